// Package observe provides application-wide observability primitives for
// vocalisd: OpenTelemetry metrics, distributed tracing, structured logging,
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
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all vocalisd metrics.
const meterName = "github.com/aldermoor/vocalis"

// Metrics holds all OpenTelemetry metric instruments for the application. All
// fields are safe for concurrent use — the underlying OTel types handle their
// own synchronisation. Metrics implements internal/orchestrator.Metrics.
type Metrics struct {
	// PoolWaitDuration tracks how long Transcribe blocked waiting for a free
	// decoder state.
	PoolWaitDuration metric.Float64Histogram

	// SegmentsProcessed counts segments returned to callers after
	// hallucination filtering.
	SegmentsProcessed metric.Int64Counter

	// HallucinationRejected counts segments discarded by the
	// probability-threshold hallucination filter.
	HallucinationRejected metric.Int64Counter

	// DecodeFailures counts payloads that could not be decoded into PCM
	// (malformed container or failed external transcode).
	DecodeFailures metric.Int64Counter

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for transcription-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.PoolWaitDuration, err = m.Float64Histogram("vocalisd.pool.wait.duration",
		metric.WithDescription("Time Transcribe spent blocked waiting for a free decoder state."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.SegmentsProcessed, err = m.Int64Counter("vocalisd.segments.processed",
		metric.WithDescription("Total segments returned to callers after hallucination filtering."),
	); err != nil {
		return nil, err
	}

	if met.HallucinationRejected, err = m.Int64Counter("vocalisd.hallucination.rejected",
		metric.WithDescription("Total segments discarded by the probability-threshold hallucination filter."),
	); err != nil {
		return nil, err
	}

	if met.DecodeFailures, err = m.Int64Counter("vocalisd.decode.failures",
		metric.WithDescription("Total payloads that could not be decoded into PCM."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("vocalisd.http.request.duration",
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

// ObservePoolWait records how long Transcribe blocked waiting for a free
// decoder state. Implements internal/orchestrator.Metrics.
func (m *Metrics) ObservePoolWait(d time.Duration) {
	m.PoolWaitDuration.Record(context.Background(), d.Seconds())
}

// IncSegmentsProcessed adds n to the segments-processed counter. Implements
// internal/orchestrator.Metrics.
func (m *Metrics) IncSegmentsProcessed(n int) {
	if n <= 0 {
		return
	}
	m.SegmentsProcessed.Add(context.Background(), int64(n))
}

// IncHallucinationRejected increments the hallucination-rejected counter.
// Implements internal/orchestrator.Metrics.
func (m *Metrics) IncHallucinationRejected() {
	m.HallucinationRejected.Add(context.Background(), 1)
}

// IncDecodeFailure increments the decode-failures counter. Implements
// internal/orchestrator.Metrics.
func (m *Metrics) IncDecodeFailure() {
	m.DecodeFailures.Add(context.Background(), 1)
}
