package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/book-expert/chapter-audio-service/internal/core"
	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// ErrStoreNotReady is returned when NatsStore is used before EnsureReady.
var ErrStoreNotReady = errors.New("object store bucket not bound")

// NatsStore keeps artifacts in a NATS JetStream object store bucket.
type NatsStore struct {
	jetstreamContext nats.JetStreamContext
	bucket           string
	log              *logger.Logger
	now              func() time.Time

	mu    sync.RWMutex
	store nats.ObjectStore
}

// NewNatsStore creates a NatsStore for bucketName. Call EnsureReady before use.
func NewNatsStore(jetstreamContext nats.JetStreamContext, bucketName string, log *logger.Logger) *NatsStore {
	return &NatsStore{
		jetstreamContext: jetstreamContext,
		bucket:           bucketName,
		log:              log,
		now:              time.Now,
	}
}

// EnsureReady creates the bucket, or binds to it when it already exists.
func (n *NatsStore) EnsureReady(_ context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.store != nil {
		return nil
	}

	// Use a "create-first" approach.
	store, err := n.jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      n.bucket,
		Description: fmt.Sprintf("Chapter audio artifacts for the %s bucket.", n.bucket),
		TTL:         0,
		MaxBytes:    0,
		Storage:     nats.FileStorage,
		Replicas:    1,
		Placement:   nil,
		Metadata:    nil,
		Compression: false,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) {
			return fmt.Errorf("%w: create object store bucket '%s': %w", core.ErrStorage, n.bucket, err)
		}

		store, err = n.jetstreamContext.ObjectStore(n.bucket)
		if err != nil {
			return fmt.Errorf("%w: bind object store bucket '%s': %w", core.ErrStorage, n.bucket, err)
		}
	}

	n.store = store

	return nil
}

// Write saves data as a new object and returns its generated name.
func (n *NatsStore) Write(ctx context.Context, data []byte, ext string) (string, error) {
	store, err := n.bound()
	if err != nil {
		return "", err
	}

	artifactID := NewArtifactID(n.now(), ext)

	_, err = store.Put(&nats.ObjectMeta{
		Name:        artifactID,
		Description: "",
		Headers:     nats.Header{"Content-Type": []string{ContentType(artifactID)}},
		Metadata:    nil,
		Opts:        nil,
	}, bytes.NewReader(data), nats.Context(ctx))
	if err != nil {
		return "", fmt.Errorf("%w: put object '%s' to bucket '%s': %w", core.ErrStorage, artifactID, n.bucket, err)
	}

	return artifactID, nil
}

// Read opens an object for streaming. The caller closes the reader.
func (n *NatsStore) Read(ctx context.Context, artifactID string) (io.ReadCloser, core.ArtifactInfo, error) {
	err := ValidateID(artifactID)
	if err != nil {
		return nil, core.ArtifactInfo{}, err
	}

	store, err := n.bound()
	if err != nil {
		return nil, core.ArtifactInfo{}, err
	}

	obj, err := store.Get(artifactID, nats.Context(ctx))
	if err != nil {
		if errors.Is(err, nats.ErrObjectNotFound) {
			return nil, core.ArtifactInfo{}, fmt.Errorf("artifact %s: %w", artifactID, core.ErrNotFound)
		}

		return nil, core.ArtifactInfo{}, fmt.Errorf("%w: get object '%s' from bucket '%s': %w", core.ErrStorage, artifactID, n.bucket, err)
	}

	info, err := obj.Info()
	if err != nil {
		_ = obj.Close()

		return nil, core.ArtifactInfo{}, fmt.Errorf("%w: object info '%s': %w", core.ErrStorage, artifactID, err)
	}

	return obj, core.ArtifactInfo{
		ID:          artifactID,
		Size:        int64(info.Size),
		ModTime:     info.ModTime,
		ContentType: ContentType(artifactID),
	}, nil
}

// Delete removes an object. A missing object is logged and ignored.
func (n *NatsStore) Delete(_ context.Context, artifactID string) error {
	err := ValidateID(artifactID)
	if err != nil {
		return err
	}

	store, err := n.bound()
	if err != nil {
		return err
	}

	err = store.Delete(artifactID)
	if err == nil {
		return nil
	}

	if errors.Is(err, nats.ErrObjectNotFound) {
		n.log.Warn("Artifact %s already absent from bucket %s", artifactID, n.bucket)

		return nil
	}

	n.log.Error("Failed to delete artifact %s from bucket %s: %v", artifactID, n.bucket, err)

	return fmt.Errorf("%w: delete object '%s': %w", core.ErrStorage, artifactID, err)
}

func (n *NatsStore) bound() (nats.ObjectStore, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.store == nil {
		return nil, fmt.Errorf("%w: %w", core.ErrStorage, ErrStoreNotReady)
	}

	return n.store, nil
}
