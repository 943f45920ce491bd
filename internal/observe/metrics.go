// Package observe provides application-wide observability primitives for
// Earshot: OpenTelemetry metrics, tracing, structured logging helpers, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all Earshot metrics.
const meterName = "github.com/earshot-io/earshot"

// Metrics holds all OpenTelemetry metric instruments for the server.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// DetectorAcquireDuration tracks how long acquiring a detector from the
	// pool takes, including engine construction on cache misses.
	DetectorAcquireDuration metric.Float64Histogram

	// --- Counters ---

	// Detections counts positive wake-word detections. Use with attribute:
	//   attribute.String("keyword", ...)
	Detections metric.Int64Counter

	// NotDetected counts listening brackets that ended without a detection.
	NotDetected metric.Int64Counter

	// FramesProcessed counts detector frames scored across all sessions.
	FramesProcessed metric.Int64Counter

	// PoolHits counts detector acquisitions served from the idle cache.
	PoolHits metric.Int64Counter

	// PoolMisses counts detector acquisitions that constructed a new engine.
	PoolMisses metric.Int64Counter

	// --- Error counters ---

	// EngineErrors counts engine construction and frame-scoring faults.
	// Use with attribute: attribute.String("stage", "init"|"process")
	EngineErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of connected client sessions.
	ActiveSessions metric.Int64UpDownCounter

	// IdleDetectors tracks detectors parked in the pool across all configs.
	IdleDetectors metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for detector-pool latencies: cache hits are sub-millisecond, engine
// construction can take a few hundred milliseconds.
var latencyBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.DetectorAcquireDuration, err = m.Float64Histogram("earshot.detector.acquire.duration",
		metric.WithDescription("Latency of detector acquisition from the pool."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Detections, err = m.Int64Counter("earshot.detections",
		metric.WithDescription("Total positive wake-word detections by keyword."),
	); err != nil {
		return nil, err
	}
	if met.NotDetected, err = m.Int64Counter("earshot.not_detected",
		metric.WithDescription("Total listening brackets that ended without a detection."),
	); err != nil {
		return nil, err
	}
	if met.FramesProcessed, err = m.Int64Counter("earshot.frames.processed",
		metric.WithDescription("Total detector frames scored."),
	); err != nil {
		return nil, err
	}
	if met.PoolHits, err = m.Int64Counter("earshot.pool.hits",
		metric.WithDescription("Detector acquisitions served from the idle cache."),
	); err != nil {
		return nil, err
	}
	if met.PoolMisses, err = m.Int64Counter("earshot.pool.misses",
		metric.WithDescription("Detector acquisitions that constructed a new engine."),
	); err != nil {
		return nil, err
	}

	if met.EngineErrors, err = m.Int64Counter("earshot.engine.errors",
		metric.WithDescription("Engine construction and frame-scoring faults by stage."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("earshot.active_sessions",
		metric.WithDescription("Number of connected client sessions."),
	); err != nil {
		return nil, err
	}
	if met.IdleDetectors, err = m.Int64UpDownCounter("earshot.idle_detectors",
		metric.WithDescription("Detectors parked in the pool across all configs."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("earshot.http.request.duration",
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

// RecordDetection records one positive detection for a keyword.
func (m *Metrics) RecordDetection(ctx context.Context, keyword string) {
	m.Detections.Add(ctx, 1,
		metric.WithAttributes(attribute.String("keyword", keyword)),
	)
}

// RecordEngineError records an engine fault for the given stage
// ("init" or "process").
func (m *Metrics) RecordEngineError(ctx context.Context, stage string) {
	m.EngineErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}
