// Package tts provides the speech synthesis gateway and the HTTP client for
// the external speech provider.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/book-expert/chapter-audio-service/internal/core"
)

// API endpoints and paths.
const (
	apiTextToSpeechFmt = "/v1/text-to-speech/%s"
	apiUser            = "/v1/user"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	headerAPIKey      = "xi-api-key"
	contentTypeJSON   = "application/json"
	contentTypeMPEG   = "audio/mpeg"
)

// Default values.
const (
	DefaultModelID       = "eleven_multilingual_v2"
	DefaultOutputFormat  = "mp3_44100_128"
	DefaultMaxAudioBytes = 64 << 20
	maxErrorBodyBytes    = 8 << 10
)

// Error messages.
const (
	errTextCannotBeEmpty     = "text cannot be empty"
	errVoiceCannotBeEmpty    = "provider voice id cannot be empty"
	errMissingAPIKey         = "no API key configured"
	errUnexpectedContentType = "unexpected content type: expected audio/*, got %q"
	errAudioTooLarge         = "audio exceeds %d bytes"
)

// HTTPClient talks to an ElevenLabs-compatible text-to-speech REST API.
type HTTPClient struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	modelID      string
	outputFormat string
	maxAudio     int64
}

// ClientOption configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithModel sets the provider model id.
func WithModel(modelID string) ClientOption {
	return func(c *HTTPClient) {
		if modelID != "" {
			c.modelID = modelID
		}
	}
}

// WithOutputFormat sets the provider output format (e.g. "mp3_44100_128").
func WithOutputFormat(format string) ClientOption {
	return func(c *HTTPClient) {
		if format != "" {
			c.outputFormat = format
		}
	}
}

// WithMaxAudioBytes caps the accepted audio size. Larger responses are
// rejected as bad responses.
func WithMaxAudioBytes(n int64) ClientOption {
	return func(c *HTTPClient) {
		if n > 0 {
			c.maxAudio = n
		}
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.httpClient = client
	}
}

// speechRequest is the JSON payload of a synthesis call.
type speechRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// voiceSettings mirrors the provider voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed"`
}

// errorResponse is the provider's structured error body. Detail is either a
// string or an object with status and message.
type errorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

type errorDetail struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// NewHTTPClient creates a client for baseURL (e.g. "https://api.elevenlabs.io").
// The timeout bounds every request made by this client; callers may set a
// tighter deadline through the context.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, opts ...ClientOption) *HTTPClient {
	client := &HTTPClient{
		httpClient:   &http.Client{Timeout: timeout},
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		modelID:      DefaultModelID,
		outputFormat: DefaultOutputFormat,
		maxAudio:     DefaultMaxAudioBytes,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// GenerateSpeech synthesizes req and returns the encoded audio. Failures are
// returned as *core.ProviderError. Pitch has no provider equivalent and is
// not sent.
func (c *HTTPClient) GenerateSpeech(ctx context.Context, req core.SpeechRequest) ([]byte, error) {
	if req.Text == "" {
		return nil, &core.ProviderError{Kind: core.ProviderErrBadResponse, Detail: errTextCannotBeEmpty}
	}

	if req.ProviderVoiceID == "" {
		return nil, &core.ProviderError{Kind: core.ProviderErrBadResponse, Detail: errVoiceCannotBeEmpty}
	}

	if c.apiKey == "" {
		return nil, &core.ProviderError{Kind: core.ProviderErrAuth, Detail: errMissingAPIKey}
	}

	requestBody, err := json.Marshal(speechRequest{
		Text:    req.Text,
		ModelID: c.modelID,
		VoiceSettings: voiceSettings{
			Stability:       req.Params.Stability,
			SimilarityBoost: req.Params.Clarity,
			Speed:           req.Params.Speed,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := c.baseURL + fmt.Sprintf(apiTextToSpeechFmt, url.PathEscape(req.ProviderVoiceID)) +
		"?output_format=" + url.QueryEscape(c.outputFormat)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, contentTypeMPEG)
	httpReq.Header.Set(headerAPIKey, c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseErrorResponse(resp)
	}

	contentType := resp.Header.Get(headerContentType)
	if !strings.HasPrefix(contentType, "audio/") {
		return nil, &core.ProviderError{
			Kind:   core.ProviderErrBadResponse,
			Status: resp.StatusCode,
			Detail: fmt.Sprintf(errUnexpectedContentType, contentType),
		}
	}

	audioData, err := io.ReadAll(io.LimitReader(resp.Body, c.maxAudio+1))
	if err != nil {
		return nil, transportError(ctx, err)
	}

	if int64(len(audioData)) > c.maxAudio {
		return nil, &core.ProviderError{
			Kind:   core.ProviderErrBadResponse,
			Status: resp.StatusCode,
			Detail: fmt.Sprintf(errAudioTooLarge, c.maxAudio),
		}
	}

	return audioData, nil
}

// HealthCheck verifies the provider is reachable and accepts the API key.
func (c *HTTPClient) HealthCheck(ctx context.Context) error {
	if c.apiKey == "" {
		return &core.ProviderError{Kind: core.ProviderErrAuth, Detail: errMissingAPIKey}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiUser, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	req.Header.Set(headerAPIKey, c.apiKey)
	req.Header.Set(headerAccept, contentTypeJSON)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return parseErrorResponse(resp)
	}

	return nil
}

func transportError(ctx context.Context, err error) error {
	kind := core.ProviderErrNetwork
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		kind = core.ProviderErrTimeout
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		kind = core.ProviderErrTimeout
	}

	return &core.ProviderError{Kind: kind, Err: err}
}

// parseErrorResponse classifies a non-OK response, keeping the provider's
// message when the body carries one.
func parseErrorResponse(resp *http.Response) error {
	providerErr := &core.ProviderError{
		Kind:   core.ProviderErrBadResponse,
		Status: resp.StatusCode,
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		providerErr.Kind = core.ProviderErrAuth
	case http.StatusTooManyRequests:
		providerErr.Kind = core.ProviderErrRateLimit
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		providerErr.Kind = core.ProviderErrTimeout
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	providerErr.Detail = errorMessage(body)

	return providerErr
}

func errorMessage(body []byte) string {
	var errorResp errorResponse

	err := json.Unmarshal(body, &errorResp)
	if err != nil || len(errorResp.Detail) == 0 {
		return strings.TrimSpace(string(body))
	}

	var detail errorDetail

	err = json.Unmarshal(errorResp.Detail, &detail)
	if err == nil && detail.Message != "" {
		if detail.Status != "" {
			return detail.Status + ": " + detail.Message
		}

		return detail.Message
	}

	var text string

	err = json.Unmarshal(errorResp.Detail, &text)
	if err == nil {
		return text
	}

	return strings.TrimSpace(string(errorResp.Detail))
}
