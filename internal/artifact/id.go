// Package artifact stores generated audio artifacts and serves them back by
// name. Two backends share the core.ArtifactStore contract: a local
// directory and a NATS JetStream object store bucket.
package artifact

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/book-expert/chapter-audio-service/internal/core"
	"github.com/google/uuid"
)

const (
	artifactPrefix  = "tts"
	randomSuffixLen = 9
)

var validID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// NewArtifactID returns a collision-resistant name of the form
// tts_<unixmillis>_<random>.<ext>.
func NewArtifactID(now time.Time, ext string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:randomSuffixLen]
	ext = strings.TrimPrefix(ext, ".")

	return artifactPrefix + "_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + suffix + "." + ext
}

// ValidateID rejects names that could escape the storage location.
func ValidateID(artifactID string) error {
	if !validID.MatchString(artifactID) || strings.Contains(artifactID, "..") {
		return fmt.Errorf("%w: invalid artifact id %q", core.ErrValidation, artifactID)
	}

	return nil
}

// ContentType maps an artifact name to its MIME type.
func ContentType(artifactID string) string {
	switch {
	case strings.HasSuffix(artifactID, ".mp3"):
		return "audio/mpeg"
	case strings.HasSuffix(artifactID, ".wav"):
		return "audio/wav"
	case strings.HasSuffix(artifactID, ".ogg"):
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}
