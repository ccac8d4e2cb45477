package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	require.NoError(t, err)

	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}

	return nil
}

func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name string, attr attribute.KeyValue) int64 {
	t.Helper()

	m := findMetric(rm, name)
	require.NotNil(t, m, "metric %s not found", name)

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", name)

	var total int64
	for _, dp := range sum.DataPoints {
		if v, found := dp.Attributes.Value(attr.Key); found && v == attr.Value {
			total += dp.Value
		}
	}

	return total
}

func TestRecordSynthesis(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordSynthesis(ctx, "narrator-warm", OutcomeOK, 120*time.Millisecond, 4096)
	m.RecordSynthesis(ctx, "narrator-warm", OutcomeDegraded, 10*time.Millisecond, 100)
	m.RecordSynthesis(ctx, "dramatic-male", OutcomeOK, time.Second, 2048)

	rm := collect(t, reader)

	assert.Equal(t, int64(2), sumFor(t, rm, "chapter_audio.synthesis.requests", attribute.String("outcome", OutcomeOK)))
	assert.Equal(t, int64(1), sumFor(t, rm, "chapter_audio.synthesis.requests", attribute.String("outcome", OutcomeDegraded)))
	assert.Equal(t, int64(6144), sumFor(t, rm, "chapter_audio.artifact.bytes", attribute.String("outcome", OutcomeOK)))

	hist := findMetric(rm, "chapter_audio.synthesis.duration")
	require.NotNil(t, hist)

	data, ok := hist.Data.(metricdata.Histogram[float64])
	require.True(t, ok)

	var count uint64
	for _, dp := range data.DataPoints {
		count += dp.Count
	}

	assert.Equal(t, uint64(3), count)
}

func TestRecordProviderErrorAndVersionOperation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderError(ctx, "rate_limit")
	m.RecordProviderError(ctx, "rate_limit")
	m.RecordVersionOperation(ctx, "restore")

	rm := collect(t, reader)

	assert.Equal(t, int64(2), sumFor(t, rm, "chapter_audio.provider.errors", attribute.String("kind", "rate_limit")))
	assert.Equal(t, int64(1), sumFor(t, rm, "chapter_audio.version.operations", attribute.String("operation", "restore")))
}

func TestMiddleware_RecordsRouteTemplate(t *testing.T) {
	m, reader := newTestMetrics(t)

	log, err := logger.New(t.TempDir(), "middleware.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	router := mux.NewRouter()
	router.Use(Middleware(m, log))
	router.HandleFunc("/chapters/{chapterId}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chapters/abc", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)

	rm := collect(t, reader)
	hist := findMetric(rm, "chapter_audio.http.request.duration")
	require.NotNil(t, hist)

	data, ok := hist.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, data.DataPoints, 1)

	route, found := data.DataPoints[0].Attributes.Value("route")
	require.True(t, found)
	assert.Equal(t, "/chapters/{chapterId}", route.AsString())

	status, found := data.DataPoints[0].Attributes.Value("status")
	require.True(t, found)
	assert.Equal(t, "418", status.AsString())
}

func TestInitProvider_ServesScrapeEndpoint(t *testing.T) {
	provider, err := InitProvider(ProviderConfig{ServiceVersion: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	provider.Metrics.RecordVersionOperation(context.Background(), "generate")

	rec := httptest.NewRecorder()
	provider.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chapter_audio_version_operations")
	assert.Contains(t, rec.Body.String(), `service_name="chapter-audio-service"`)
	assert.Contains(t, rec.Body.String(), `service_version="test"`)
}

func TestDiscard(t *testing.T) {
	m := Discard()
	m.RecordSynthesis(context.Background(), "v", OutcomeOK, time.Millisecond, 1)
}
