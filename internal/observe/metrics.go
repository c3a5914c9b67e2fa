// Package observe provides application-wide observability primitives for
// fortuna: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all fortuna metrics.
const meterName = "github.com/MrWong99/fortuna"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// OperationDuration tracks one-shot oracle operations including retries.
	// Use with attributes:
	//   attribute.String("operation", ...), attribute.String("status", ...)
	OperationDuration metric.Float64Histogram

	// ProviderDuration tracks a single remote call. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// RetryAttempts counts retries scheduled by the retry wrapper. Use with
	// attributes:
	//   attribute.String("operation", ...), attribute.String("reason", ...)
	RetryAttempts metric.Int64Counter

	// LiveChunksSent counts microphone chunks handed to the live transport.
	LiveChunksSent metric.Int64Counter

	// LiveChunksDropped counts microphone chunks dropped because the transport
	// was not ready.
	LiveChunksDropped metric.Int64Counter

	// LiveUnitsScheduled counts playback units queued on the output timeline.
	LiveUnitsScheduled metric.Int64Counter

	// LiveInterruptions counts barge-in flushes.
	LiveInterruptions metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts classified errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live voice sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for remote
// generation calls, which range from sub-second pings to long image renders.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.OperationDuration, err = m.Float64Histogram("fortuna.operation.duration",
		metric.WithDescription("Latency of one-shot oracle operations including retries."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ProviderDuration, err = m.Float64Histogram("fortuna.provider.duration",
		metric.WithDescription("Latency of a single provider call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("fortuna.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.RetryAttempts, err = m.Int64Counter("fortuna.retry.attempts",
		metric.WithDescription("Total retries scheduled by operation and reason."),
	); err != nil {
		return nil, err
	}
	if met.LiveChunksSent, err = m.Int64Counter("fortuna.live.chunks_sent",
		metric.WithDescription("Microphone chunks sent to the live transport."),
	); err != nil {
		return nil, err
	}
	if met.LiveChunksDropped, err = m.Int64Counter("fortuna.live.chunks_dropped",
		metric.WithDescription("Microphone chunks dropped while the transport was not ready."),
	); err != nil {
		return nil, err
	}
	if met.LiveUnitsScheduled, err = m.Int64Counter("fortuna.live.units_scheduled",
		metric.WithDescription("Playback units scheduled on the output timeline."),
	); err != nil {
		return nil, err
	}
	if met.LiveInterruptions, err = m.Int64Counter("fortuna.live.interruptions",
		metric.WithDescription("Barge-in interruptions that flushed playback."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("fortuna.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("fortuna.active_sessions",
		metric.WithDescription("Number of live voice sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("fortuna.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
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

// RecordProviderRequest records a provider request counter increment with the
// standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a classified provider error.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordRetry records one scheduled retry of operation after a failure of
// the given reason.
func (m *Metrics) RecordRetry(ctx context.Context, operation, reason string) {
	m.RetryAttempts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("reason", reason),
		),
	)
}

// RecordOperation records the total latency of a one-shot operation.
func (m *Metrics) RecordOperation(ctx context.Context, operation, status string, seconds float64) {
	m.OperationDuration.Record(ctx, seconds,
		metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("status", status),
		),
	)
}
