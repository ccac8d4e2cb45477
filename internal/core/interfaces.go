// Package core defines the domain types, collaborator interfaces, and error
// taxonomy for the chapter audio service.
package core

import (
	"context"
	"io"
	"time"
)

// ArtifactInfo describes a stored audio artifact.
type ArtifactInfo struct {
	ID          string
	Size        int64
	ModTime     time.Time
	ContentType string
}

// ArtifactStore persists generated audio bytes under generated names and
// serves them back by name.
type ArtifactStore interface {
	EnsureReady(ctx context.Context) error
	Write(ctx context.Context, data []byte, ext string) (string, error)
	Read(ctx context.Context, artifactID string) (io.ReadCloser, ArtifactInfo, error)
	Delete(ctx context.Context, artifactID string) error
}

// SynthesisParams are the voice-shaping parameters passed to the provider.
type SynthesisParams struct {
	Speed     float64
	Pitch     float64
	Stability float64
	Clarity   float64
}

// SpeechRequest is a single provider call.
type SpeechRequest struct {
	Text            string
	ProviderVoiceID string
	Params          SynthesisParams
}

// SpeechProvider turns text into audio bytes through an external service.
type SpeechProvider interface {
	GenerateSpeech(ctx context.Context, req SpeechRequest) ([]byte, error)
	HealthCheck(ctx context.Context) error
}

// ChapterRepository is the persistence contract of the external chapter
// collaborator. Save must reject a chapter whose Revision no longer matches
// the stored one with ErrConflict, and bump the revision on success.
type ChapterRepository interface {
	Get(ctx context.Context, chapterID string) (*Chapter, error)
	Save(ctx context.Context, chapter *Chapter) error
}

// Authenticator resolves the caller identity from a bearer credential.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

// EventPublisher announces completed chapter generations.
type EventPublisher interface {
	PublishGenerated(ctx context.Context, event *ChapterAudioGenerated) error
}
