// Package worker provides a NATS worker that generates chapter audio on request.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/book-expert/chapter-audio-service/internal/core"
	"github.com/book-expert/chapter-audio-service/internal/versioning"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultQueueGroup spreads requests across service instances.
	DefaultQueueGroup = "chapter-audio-workers"

	// DefaultMaxInFlight bounds how many requests one instance generates at once.
	DefaultMaxInFlight = 8

	defaultHandleTimeout = 2 * time.Minute
	drainPollInterval    = 10 * time.Millisecond
)

var (
	// ErrChapterIDEmpty indicates that the request names no chapter.
	ErrChapterIDEmpty = errors.New("chapter id cannot be empty")
	// ErrUserIDEmpty indicates that the request header carries no user.
	ErrUserIDEmpty = errors.New("request header must carry the requesting user id")
)

// Generator is the subset of the version manager the worker drives.
type Generator interface {
	GenerateForChapter(
		ctx context.Context,
		chapterID, callerID string,
		overrides core.VoiceOverride,
		archiveCurrent bool,
	) (*versioning.Outcome, error)
}

// NatsWorker listens for chapter generation requests on a NATS subject and
// replies with a ChapterAudioGenerated event.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	queueGroup     string
	generator      Generator
	log            *logger.Logger
	timeout        time.Duration
	slots          *semaphore.Weighted
	inFlight       sync.WaitGroup
}

// Option tunes a NatsWorker.
type Option func(*NatsWorker)

// WithMaxInFlight bounds the number of requests handled concurrently.
// Values below one are ignored.
func WithMaxInFlight(n int) Option {
	return func(w *NatsWorker) {
		if n > 0 {
			w.slots = semaphore.NewWeighted(int64(n))
		}
	}
}

// NewNatsWorker creates a new instance of a NATS worker. Empty queueGroup
// and zero timeout take defaults.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject, queueGroup string,
	generator Generator,
	log *logger.Logger,
	timeout time.Duration,
	opts ...Option,
) *NatsWorker {
	if queueGroup == "" {
		queueGroup = DefaultQueueGroup
	}

	if timeout <= 0 {
		timeout = defaultHandleTimeout
	}

	w := &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		queueGroup:     queueGroup,
		generator:      generator,
		log:            log,
		timeout:        timeout,
		slots:          semaphore.NewWeighted(DefaultMaxInFlight),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Run subscribes and blocks until ctx is done, then drains the subscription
// and waits for the requests already dispatched.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.QueueSubscribe(w.subject, w.queueGroup, w.dispatch)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	w.log.Info("Worker listening on %s (queue %s)", w.subject, w.queueGroup)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	// The subscription turns invalid once its last callback has returned, so
	// every inFlight.Add has happened before Wait.
	deadline := time.Now().Add(w.timeout)
	for sub.IsValid() && time.Now().Before(deadline) {
		time.Sleep(drainPollInterval)
	}

	w.inFlight.Wait()

	return nil
}

// dispatch hands the message to its own goroutine. The subscription callback
// blocks while every slot is taken, leaving the backlog with NATS.
func (w *NatsWorker) dispatch(msg *nats.Msg) {
	err := w.slots.Acquire(context.Background(), 1)
	if err != nil {
		w.log.Error("Failed to acquire a worker slot: %v", err)

		return
	}

	w.inFlight.Add(1)

	go func() {
		defer w.inFlight.Done()
		defer w.slots.Release(1)

		w.handleMessage(msg)
	}()
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	request, err := parseAndValidateRequest(msg)
	if err != nil {
		w.log.Error("Failed to parse and validate request: %v", err)
		w.reply(msg, &core.ChapterAudioGenerated{Error: err.Error()})

		return
	}

	if request.Header.EventID == "" {
		request.Header.EventID = uuid.NewString()
	}

	reply := w.process(ctx, request)
	w.reply(msg, reply)
}

// process runs the generation and turns the outcome into a reply event.
func (w *NatsWorker) process(ctx context.Context, request *core.ChapterAudioRequest) *core.ChapterAudioGenerated {
	archive := true
	if request.SaveVersion != nil {
		archive = *request.SaveVersion
	}

	ctx = versioning.WithEventHeader(ctx, request.Header)

	outcome, err := w.generator.GenerateForChapter(ctx, request.ChapterID, request.Header.UserID, request.Overrides, archive)
	if err != nil {
		w.log.Error("Failed to generate audio for chapter %s (workflow %s): %v",
			request.ChapterID, request.Header.WorkflowID, err)

		return &core.ChapterAudioGenerated{
			Header:    request.Header,
			ChapterID: request.ChapterID,
			Error:     err.Error(),
		}
	}

	return &core.ChapterAudioGenerated{
		Header:     request.Header,
		ChapterID:  outcome.ChapterID,
		ArtifactID: outcome.ArtifactID,
		Settings:   outcome.Settings,
		Versions:   len(outcome.History),
		Degraded:   outcome.Degraded,
		Warning:    outcome.Reason,
	}
}

// reply responds when the sender asked for a reply.
func (w *NatsWorker) reply(msg *nats.Msg, event *core.ChapterAudioGenerated) {
	if msg.Reply == "" {
		return
	}

	replyData, err := json.Marshal(event)
	if err != nil {
		w.log.Error("Failed to marshal reply event: %v", err)

		return
	}

	err = msg.Respond(replyData)
	if err != nil {
		w.log.Error("Failed to publish reply for chapter %s: %v", event.ChapterID, err)
	}
}

func parseAndValidateRequest(msg *nats.Msg) (*core.ChapterAudioRequest, error) {
	var request core.ChapterAudioRequest

	err := json.Unmarshal(msg.Data, &request)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal request: %w", core.ErrValidation, err)
	}

	if request.ChapterID == "" {
		return nil, fmt.Errorf("%w: %w", core.ErrValidation, ErrChapterIDEmpty)
	}

	err = core.ValidateChapterID(request.ChapterID)
	if err != nil {
		return nil, err
	}

	if request.Header.UserID == "" {
		return nil, fmt.Errorf("%w: %w", core.ErrValidation, ErrUserIDEmpty)
	}

	err = core.ValidateOverride(request.Overrides)
	if err != nil {
		return nil, err
	}

	return &request, nil
}
