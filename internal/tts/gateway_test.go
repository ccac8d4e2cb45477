package tts_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/chapter-audio-service/internal/artifact"
	"github.com/book-expert/chapter-audio-service/internal/catalog"
	"github.com/book-expert/chapter-audio-service/internal/core"
	"github.com/book-expert/chapter-audio-service/internal/testutil"
	"github.com/book-expert/chapter-audio-service/internal/tts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mu       sync.Mutex
	audio    []byte
	err      error
	requests []core.SpeechRequest
}

func (f *fakeProvider) GenerateSpeech(_ context.Context, req core.SpeechRequest) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)

	return f.audio, f.err
}

func (f *fakeProvider) HealthCheck(context.Context) error {
	return f.err
}

type failingStore struct {
	core.ArtifactStore
}

func (failingStore) Write(context.Context, []byte, string) (string, error) {
	return "", core.ErrStorage
}

func newGateway(t *testing.T, provider core.SpeechProvider) (*tts.Gateway, *artifact.FileStore) {
	t.Helper()

	log := testutil.Logger(t)
	store := artifact.NewFileStore(t.TempDir(), log)
	require.NoError(t, store.EnsureReady(context.Background()))

	gateway := tts.NewGateway(provider, store, catalog.Default(), nil, log, tts.GatewayConfig{})

	return gateway, store
}

func readArtifact(t *testing.T, store core.ArtifactStore, id string) []byte {
	t.Helper()

	reader, _, err := store.Read(context.Background(), id)
	require.NoError(t, err)

	defer reader.Close()

	data, err := io.ReadAll(reader)
	require.NoError(t, err)

	return data
}

func TestGateway_Synthesize_StoresNarration(t *testing.T) {
	t.Parallel()

	audio := bytes.Repeat([]byte{0xFF}, 4096)
	provider := &fakeProvider{audio: audio}
	gateway, store := newGateway(t, provider)

	params := core.SynthesisParams{Speed: 1.2, Pitch: 1, Stability: 0.5, Clarity: 0.75}

	result, err := gateway.Synthesize(context.Background(), "Once upon a time.", "dramatic-female", params)
	require.NoError(t, err)

	assert.False(t, result.Degraded)
	assert.Empty(t, result.Reason)
	assert.Equal(t, "dramatic-female", result.Voice)
	assert.True(t, strings.HasSuffix(result.ArtifactID, ".mp3"))
	assert.Equal(t, audio, readArtifact(t, store, result.ArtifactID))

	require.Len(t, provider.requests, 1)

	voice, ok := catalog.Default().Voice("dramatic-female")
	require.True(t, ok)
	assert.Equal(t, voice.ProviderVoiceID, provider.requests[0].ProviderVoiceID)
	assert.Equal(t, params, provider.requests[0].Params)
}

func TestGateway_Synthesize_UnknownVoiceUsesDefault(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{audio: bytes.Repeat([]byte{1}, 2000)}
	gateway, _ := newGateway(t, provider)

	result, err := gateway.Synthesize(context.Background(), "Hello.", "no-such-voice", core.SynthesisParams{Speed: 1})
	require.NoError(t, err)

	assert.Equal(t, catalog.DefaultVoiceID, result.Voice)
	assert.False(t, result.Degraded)
}

func TestGateway_Synthesize_DegradesOnProviderFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		provider *fakeProvider
		reason   string
	}{
		{
			name:     "auth failure",
			provider: &fakeProvider{err: &core.ProviderError{Kind: core.ProviderErrAuth, Status: 401}},
			reason:   "auth",
		},
		{
			name:     "plain error",
			provider: &fakeProvider{err: errors.New("connection refused")},
			reason:   "connection refused",
		},
		{
			name:     "undersized audio",
			provider: &fakeProvider{audio: []byte("tiny")},
			reason:   "undersized",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			gateway, store := newGateway(t, tc.provider)

			result, err := gateway.Synthesize(context.Background(), "Hello.", "narrator-warm", core.SynthesisParams{Speed: 1})
			require.NoError(t, err)

			assert.True(t, result.Degraded)
			assert.Contains(t, result.Reason, tc.reason)
			assert.True(t, strings.HasSuffix(result.ArtifactID, ".wav"))

			data := readArtifact(t, store, result.ArtifactID)
			assert.Equal(t, "RIFF", string(data[:4]))
			assert.Equal(t, "WAVE", string(data[8:12]))
		})
	}
}

func TestGateway_Synthesize_StorageFailure(t *testing.T) {
	t.Parallel()

	log := testutil.Logger(t)
	provider := &fakeProvider{err: errors.New("down")}
	gateway := tts.NewGateway(provider, failingStore{}, catalog.Default(), nil, log, tts.GatewayConfig{})

	_, err := gateway.Synthesize(context.Background(), "Hello.", "", core.SynthesisParams{Speed: 1})
	require.ErrorIs(t, err, core.ErrStorage)
}

func TestGateway_Synthesize_PlaceholderLength(t *testing.T) {
	t.Parallel()

	log := testutil.Logger(t)
	store := artifact.NewFileStore(t.TempDir(), log)
	require.NoError(t, store.EnsureReady(context.Background()))

	gateway := tts.NewGateway(&fakeProvider{err: errors.New("down")}, store, catalog.Default(), nil, log,
		tts.GatewayConfig{PlaceholderLength: time.Second})

	result, err := gateway.Synthesize(context.Background(), "Hello.", "", core.SynthesisParams{Speed: 1})
	require.NoError(t, err)

	// 22050 Hz, 16-bit mono: one second is 44100 bytes of samples.
	data := readArtifact(t, store, result.ArtifactID)
	assert.Len(t, data, 44+44100)
}

// deadlineProvider reports whether health probes carry a deadline.
type deadlineProvider struct {
	fakeProvider

	deadline time.Duration
}

func (d *deadlineProvider) HealthCheck(ctx context.Context) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		return errors.New("health probe has no deadline")
	}

	d.deadline = time.Until(deadline)

	return d.err
}

func TestGateway_HealthCheck(t *testing.T) {
	t.Parallel()

	provider := &deadlineProvider{}
	gateway := tts.NewGateway(provider, nil, catalog.Default(), nil, testutil.Logger(t),
		tts.GatewayConfig{ProviderTimeout: 5 * time.Second})

	require.NoError(t, gateway.HealthCheck(context.Background()))
	assert.Greater(t, provider.deadline, time.Duration(0))
	assert.LessOrEqual(t, provider.deadline, 5*time.Second)

	provider.err = &core.ProviderError{Kind: core.ProviderErrAuth, Status: 401}

	var providerErr *core.ProviderError
	require.ErrorAs(t, gateway.HealthCheck(context.Background()), &providerErr)
	assert.Equal(t, core.ProviderErrAuth, providerErr.Kind)
}
