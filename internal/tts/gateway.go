package tts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/chapter-audio-service/internal/catalog"
	"github.com/book-expert/chapter-audio-service/internal/core"
	"github.com/book-expert/chapter-audio-service/internal/observe"
	"github.com/book-expert/chapter-audio-service/internal/tts/audio"
	"github.com/book-expert/logger"
)

// Gateway defaults.
const (
	DefaultMinAudioBytes   = 1000
	DefaultPlaceholderSecs = 2
	DefaultProviderTimeout = 60 * time.Second
)

const (
	extMP3 = "mp3"
	extWAV = "wav"
)

// ErrUndersizedAudio marks provider output below the minimum size.
var ErrUndersizedAudio = errors.New("provider returned too little audio")

// Result is the outcome of a synthesis. A degraded result still carries a
// playable placeholder artifact; Reason explains why narration is missing.
type Result struct {
	ArtifactID string
	Voice      string
	Degraded   bool
	Reason     string
}

// GatewayConfig tunes the gateway.
type GatewayConfig struct {
	ProviderTimeout   time.Duration
	MinAudioBytes     int
	PlaceholderLength time.Duration
	PlaceholderFormat audio.Format
}

// Gateway turns text into a stored artifact, falling back to silence.
type Gateway struct {
	provider core.SpeechProvider
	store    core.ArtifactStore
	catalog  *catalog.Registry
	metrics  *observe.Metrics
	log      *logger.Logger
	cfg      GatewayConfig
}

// NewGateway creates a Gateway. Zero config fields take package defaults.
func NewGateway(
	provider core.SpeechProvider,
	store core.ArtifactStore,
	registry *catalog.Registry,
	metrics *observe.Metrics,
	log *logger.Logger,
	cfg GatewayConfig,
) *Gateway {
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = DefaultProviderTimeout
	}

	if cfg.MinAudioBytes <= 0 {
		cfg.MinAudioBytes = DefaultMinAudioBytes
	}

	if cfg.PlaceholderLength <= 0 {
		cfg.PlaceholderLength = DefaultPlaceholderSecs * time.Second
	}

	if cfg.PlaceholderFormat == (audio.Format{}) {
		cfg.PlaceholderFormat = audio.DefaultFormat()
	}

	if metrics == nil {
		metrics = observe.Discard()
	}

	return &Gateway{
		provider: provider,
		store:    store,
		catalog:  registry,
		metrics:  metrics,
		log:      log,
		cfg:      cfg,
	}
}

// Synthesize narrates text with the given voice and parameters. Inputs are
// assumed validated. Provider failures never surface as errors: they yield
// a degraded Result. The only error is core.ErrStorage, when not even the
// placeholder could be persisted.
func (g *Gateway) Synthesize(ctx context.Context, text, voiceID string, params core.SynthesisParams) (Result, error) {
	start := time.Now()

	voice, substituted := g.catalog.ResolveVoice(voiceID)
	if substituted {
		g.log.Warn("Unknown voice %q, substituting default voice %q", voiceID, voice.ID)
	}

	audioData, providerErr := g.callProvider(ctx, text, voice, params)
	if providerErr == nil {
		artifactID, err := g.store.Write(ctx, audioData, extMP3)
		if err != nil {
			return Result{}, fmt.Errorf("persist narration: %w", err)
		}

		g.metrics.RecordSynthesis(ctx, voice.ID, observe.OutcomeOK, time.Since(start), len(audioData))
		g.log.Info("Generated narration %s with voice %s (%d bytes)", artifactID, voice.ID, len(audioData))

		return Result{ArtifactID: artifactID, Voice: voice.ID}, nil
	}

	g.recordProviderError(ctx, providerErr)
	g.log.Warn("Speech provider failed for voice %s, falling back to placeholder: %v", voice.ID, providerErr)

	placeholder, err := audio.Silence(g.cfg.PlaceholderLength, g.cfg.PlaceholderFormat)
	if err != nil {
		return Result{}, fmt.Errorf("%w: build placeholder: %w", core.ErrStorage, err)
	}

	artifactID, err := g.store.Write(ctx, placeholder, extWAV)
	if err != nil {
		g.log.Error("Failed to persist placeholder after provider failure: %v", err)

		return Result{}, fmt.Errorf("persist placeholder: %w", err)
	}

	g.metrics.RecordSynthesis(ctx, voice.ID, observe.OutcomeDegraded, time.Since(start), len(placeholder))

	return Result{
		ArtifactID: artifactID,
		Voice:      voice.ID,
		Degraded:   true,
		Reason:     "speech synthesis unavailable, a silent placeholder was generated instead: " + providerErr.Error(),
	}, nil
}

// HealthCheck probes the provider.
func (g *Gateway) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.ProviderTimeout)
	defer cancel()

	return g.provider.HealthCheck(ctx)
}

func (g *Gateway) callProvider(
	ctx context.Context,
	text string,
	voice catalog.VoiceProfile,
	params core.SynthesisParams,
) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.cfg.ProviderTimeout)
	defer cancel()

	audioData, err := g.provider.GenerateSpeech(callCtx, core.SpeechRequest{
		Text:            text,
		ProviderVoiceID: voice.ProviderVoiceID,
		Params:          params,
	})
	if err != nil {
		var providerErr *core.ProviderError
		if errors.As(err, &providerErr) {
			return nil, providerErr
		}

		kind := core.ProviderErrNetwork
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			kind = core.ProviderErrTimeout
		}

		return nil, &core.ProviderError{Kind: kind, Err: err}
	}

	if len(audioData) < g.cfg.MinAudioBytes {
		return nil, &core.ProviderError{
			Kind:   core.ProviderErrUndersized,
			Detail: fmt.Sprintf("%d bytes, need at least %d", len(audioData), g.cfg.MinAudioBytes),
			Err:    ErrUndersizedAudio,
		}
	}

	return audioData, nil
}

func (g *Gateway) recordProviderError(ctx context.Context, err error) {
	var providerErr *core.ProviderError
	if errors.As(err, &providerErr) {
		g.metrics.RecordProviderError(ctx, string(providerErr.Kind))

		return
	}

	g.metrics.RecordProviderError(ctx, "unknown")
}
