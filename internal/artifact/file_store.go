package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/chapter-audio-service/internal/core"
	"github.com/book-expert/logger"
)

const (
	filePermissions = 0o640
	dirPermissions  = 0o750
)

// FileStore keeps artifacts as files in a single directory.
type FileStore struct {
	dir string
	log *logger.Logger
	now func() time.Time
}

// NewFileStore creates a FileStore rooted at dir. Call EnsureReady before use.
func NewFileStore(dir string, log *logger.Logger) *FileStore {
	return &FileStore{
		dir: dir,
		log: log,
		now: time.Now,
	}
}

// Dir returns the storage directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// EnsureReady creates the storage directory if it does not exist.
func (s *FileStore) EnsureReady(_ context.Context) error {
	err := os.MkdirAll(s.dir, dirPermissions)
	if err != nil {
		return fmt.Errorf("%w: create directory %s: %w", core.ErrStorage, s.dir, err)
	}

	return nil
}

// Write persists data under a freshly generated name and returns it.
func (s *FileStore) Write(_ context.Context, data []byte, ext string) (string, error) {
	artifactID := NewArtifactID(s.now(), ext)
	path := filepath.Join(s.dir, artifactID)

	// Write to a temp name first so readers never see a partial artifact.
	tmp, err := os.CreateTemp(s.dir, ".partial-*")
	if err != nil {
		return "", fmt.Errorf("%w: create temp file: %w", core.ErrStorage, err)
	}

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()

	if writeErr != nil || closeErr != nil {
		s.removeQuietly(tmp.Name())

		return "", fmt.Errorf("%w: write %s: %w", core.ErrStorage, artifactID, errors.Join(writeErr, closeErr))
	}

	err = os.Chmod(tmp.Name(), filePermissions)
	if err != nil {
		s.removeQuietly(tmp.Name())

		return "", fmt.Errorf("%w: chmod %s: %w", core.ErrStorage, artifactID, err)
	}

	err = os.Rename(tmp.Name(), path)
	if err != nil {
		s.removeQuietly(tmp.Name())

		return "", fmt.Errorf("%w: rename %s: %w", core.ErrStorage, artifactID, err)
	}

	return artifactID, nil
}

// Read opens an artifact for streaming. The caller closes the reader.
func (s *FileStore) Read(_ context.Context, artifactID string) (io.ReadCloser, core.ArtifactInfo, error) {
	err := ValidateID(artifactID)
	if err != nil {
		return nil, core.ArtifactInfo{}, err
	}

	file, err := os.Open(filepath.Join(s.dir, artifactID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, core.ArtifactInfo{}, fmt.Errorf("artifact %s: %w", artifactID, core.ErrNotFound)
		}

		return nil, core.ArtifactInfo{}, fmt.Errorf("%w: open %s: %w", core.ErrStorage, artifactID, err)
	}

	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()

		return nil, core.ArtifactInfo{}, fmt.Errorf("%w: stat %s: %w", core.ErrStorage, artifactID, err)
	}

	return file, core.ArtifactInfo{
		ID:          artifactID,
		Size:        stat.Size(),
		ModTime:     stat.ModTime(),
		ContentType: ContentType(artifactID),
	}, nil
}

// Delete removes an artifact. A missing file is logged and ignored.
func (s *FileStore) Delete(_ context.Context, artifactID string) error {
	err := ValidateID(artifactID)
	if err != nil {
		return err
	}

	err = os.Remove(filepath.Join(s.dir, artifactID))
	if err == nil {
		return nil
	}

	if errors.Is(err, fs.ErrNotExist) {
		s.log.Warn("Artifact %s already absent, nothing to delete", artifactID)

		return nil
	}

	s.log.Error("Failed to delete artifact %s: %v", artifactID, err)

	return fmt.Errorf("%w: delete %s: %w", core.ErrStorage, artifactID, err)
}

func (s *FileStore) removeQuietly(path string) {
	removeErr := os.Remove(path)
	if removeErr != nil && !errors.Is(removeErr, fs.ErrNotExist) {
		s.log.Warn("Failed to remove temp file '%s': %v", path, removeErr)
	}
}
