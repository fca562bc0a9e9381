// Package observe provides application-wide observability primitives for
// voicekey: OpenTelemetry metrics, tracing, structured logging, and the glue
// between them.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voicekey metrics.
const meterName = "github.com/voicekey/voicekey"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// CaptureDuration tracks audio capture length per session.
	CaptureDuration metric.Float64Histogram

	// TranscribeDuration tracks speech-to-text latency.
	TranscribeDuration metric.Float64Histogram

	// PostProcessDuration tracks LLM post-processing latency, including
	// fallback attempts.
	PostProcessDuration metric.Float64Histogram

	// InjectDuration tracks text injection latency.
	InjectDuration metric.Float64Histogram

	// SessionDuration tracks end-to-end session latency from start to final
	// state.
	SessionDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts LLM provider attempts. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts classified provider failures. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// Sessions counts finished dictation sessions. Use with attribute:
	//   attribute.String("status", "completed"|"failed"|"cancelled")
	Sessions metric.Int64Counter

	// PostProcessFallbacks counts sessions that degraded to the raw
	// transcript after exhausting every provider.
	PostProcessFallbacks metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live dictation sessions (0 or 1
	// under the single-session rule; the gauge makes violations visible).
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks control-surface request latency. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// an interactive dictation pipeline.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.CaptureDuration, err = m.Float64Histogram("voicekey.capture.duration",
		metric.WithDescription("Audio capture length per session."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscribeDuration, err = m.Float64Histogram("voicekey.transcribe.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PostProcessDuration, err = m.Float64Histogram("voicekey.postprocess.duration",
		metric.WithDescription("Latency of LLM post-processing including fallback."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.InjectDuration, err = m.Float64Histogram("voicekey.inject.duration",
		metric.WithDescription("Latency of text injection."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SessionDuration, err = m.Float64Histogram("voicekey.session.duration",
		metric.WithDescription("End-to-end dictation session latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ProviderRequests, err = m.Int64Counter("voicekey.provider.requests",
		metric.WithDescription("Total LLM provider attempts by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("voicekey.provider.errors",
		metric.WithDescription("Total classified provider failures by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.Sessions, err = m.Int64Counter("voicekey.sessions",
		metric.WithDescription("Total finished dictation sessions by terminal status."),
	); err != nil {
		return nil, err
	}
	if met.PostProcessFallbacks, err = m.Int64Counter("voicekey.postprocess.fallbacks",
		metric.WithDescription("Sessions degraded to the raw transcript after all providers failed."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("voicekey.active_sessions",
		metric.WithDescription("Number of live dictation sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("voicekey.http.request.duration",
		metric.WithDescription("Control-surface HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest records one provider attempt with the standard
// attribute set. status is "success" or "error".
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records one classified provider failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordSession records one finished session by terminal status.
func (m *Metrics) RecordSession(ctx context.Context, status string, duration time.Duration) {
	m.Sessions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
	m.SessionDuration.Record(ctx, duration.Seconds())
}

// RecordStage records one pipeline stage duration on the matching histogram.
func (m *Metrics) RecordStage(ctx context.Context, h metric.Float64Histogram, d time.Duration) {
	h.Record(ctx, d.Seconds())
}
