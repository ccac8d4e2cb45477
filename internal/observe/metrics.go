// Package observe provides the service's OpenTelemetry metrics, the
// Prometheus bridge that exposes them, and the HTTP middleware that records
// request latency.
//
// Tests should build a [Metrics] with [NewMetrics] and a private
// [metric.MeterProvider] (an sdkmetric ManualReader, or the noop provider)
// to avoid cross-test pollution.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// meterName is the instrumentation scope name used for all service metrics.
const meterName = "github.com/book-expert/chapter-audio-service"

// Synthesis outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeDegraded = "degraded"
)

// Metrics holds all metric instruments. The underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// SynthesisDuration tracks provider call latency including fallback.
	SynthesisDuration metric.Float64Histogram

	// SynthesisRequests counts gateway calls. Attributes: outcome, voice.
	SynthesisRequests metric.Int64Counter

	// ProviderErrors counts provider failures. Attribute: kind.
	ProviderErrors metric.Int64Counter

	// ArtifactBytes counts bytes persisted to the artifact store. Attribute: outcome.
	ArtifactBytes metric.Int64Counter

	// VersionOperations counts version manager transitions. Attribute: operation.
	VersionOperations metric.Int64Counter

	// HTTPRequestDuration tracks HTTP handling time. Attributes: method, route, status.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// whole-chapter synthesis.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

// NewMetrics creates all instruments from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SynthesisDuration, err = m.Float64Histogram("chapter_audio.synthesis.duration",
		metric.WithDescription("Latency of speech synthesis, including placeholder fallback."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthesisRequests, err = m.Int64Counter("chapter_audio.synthesis.requests",
		metric.WithDescription("Total synthesis requests by outcome and voice."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("chapter_audio.provider.errors",
		metric.WithDescription("Total speech provider failures by kind."),
	); err != nil {
		return nil, err
	}
	if met.ArtifactBytes, err = m.Int64Counter("chapter_audio.artifact.bytes",
		metric.WithDescription("Bytes written to the artifact store."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.VersionOperations, err = m.Int64Counter("chapter_audio.version.operations",
		metric.WithDescription("Chapter audio state transitions by operation."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("chapter_audio.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// Discard returns instruments that record nothing.
func Discard() *Metrics {
	met, err := NewMetrics(noop.NewMeterProvider())
	if err != nil {
		panic("observe: noop metrics: " + err.Error())
	}

	return met
}

// RecordSynthesis records one gateway call.
func (m *Metrics) RecordSynthesis(ctx context.Context, voice, outcome string, elapsed time.Duration, bytes int) {
	m.SynthesisDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
	m.SynthesisRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("outcome", outcome),
			attribute.String("voice", voice),
		),
	)
	m.ArtifactBytes.Add(ctx, int64(bytes),
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordProviderError records a provider failure of the given kind.
func (m *Metrics) RecordProviderError(ctx context.Context, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordVersionOperation records a version manager transition.
func (m *Metrics) RecordVersionOperation(ctx context.Context, operation string) {
	m.VersionOperations.Add(ctx, 1,
		metric.WithAttributes(attribute.String("operation", operation)),
	)
}
