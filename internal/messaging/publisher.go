// Package messaging publishes chapter audio events on NATS.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/book-expert/chapter-audio-service/internal/core"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Subjects used by the service.
const (
	SubjectGenerate  = "chapter.audio.generate"
	SubjectGenerated = "chapter.audio.generated"
)

// NatsPublisher publishes ChapterAudioGenerated events on a core NATS subject.
type NatsPublisher struct {
	natsConnection *nats.Conn
	subject        string
	log            *logger.Logger
	now            func() time.Time
}

// NewNatsPublisher creates a publisher. An empty subject uses SubjectGenerated.
func NewNatsPublisher(natsConnection *nats.Conn, subject string, log *logger.Logger) *NatsPublisher {
	if subject == "" {
		subject = SubjectGenerated
	}

	return &NatsPublisher{
		natsConnection: natsConnection,
		subject:        subject,
		log:            log,
		now:            time.Now,
	}
}

// PublishGenerated fills in the event id and timestamp when missing and
// publishes the event.
func (p *NatsPublisher) PublishGenerated(_ context.Context, event *core.ChapterAudioGenerated) error {
	if event.Header.EventID == "" {
		event.Header.EventID = uuid.NewString()
	}

	if event.Header.Timestamp.IsZero() {
		event.Header.Timestamp = p.now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal generated event: %w", err)
	}

	err = p.natsConnection.Publish(p.subject, data)
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.subject, err)
	}

	p.log.Info("Published %s for chapter %s (event %s)", p.subject, event.ChapterID, event.Header.EventID)

	return nil
}

// NopPublisher drops events.
type NopPublisher struct{}

// PublishGenerated does nothing.
func (NopPublisher) PublishGenerated(context.Context, *core.ChapterAudioGenerated) error {
	return nil
}
