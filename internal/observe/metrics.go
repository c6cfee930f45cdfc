// Package observe provides application-wide observability primitives for
// BetterSpeak: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped from the /metrics endpoint served by [MetricsHandler]. A
// package-level default [Metrics] instance ([DefaultMetrics]) is provided for
// convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all BetterSpeak metrics.
const meterName = "github.com/MrWong99/betterspeak"

// Status attribute values shared by the Record helpers.
const (
	StatusOK       = "ok"
	StatusError    = "error"
	StatusDegraded = "degraded"
	StatusRejected = "rejected"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Capture ---

	// CaptureFrames counts frames appended to the recording buffer.
	CaptureFrames metric.Int64Counter

	// CaptureErrors counts capture device failures. Use with attribute:
	//   attribute.String("op", ...)
	CaptureErrors metric.Int64Counter

	// --- Classification ---

	// ClassifierDuration tracks per-job inference latency. Use with attributes:
	//   attribute.String("type", ...), attribute.String("status", ...)
	ClassifierDuration metric.Float64Histogram

	// ClassifierChunks counts chunks scored. Use with attribute:
	//   attribute.String("type", ...)
	ClassifierChunks metric.Int64Counter

	// --- Detection runs ---

	// DetectionRuns counts detection runs by status (ok, degraded, rejected).
	DetectionRuns metric.Int64Counter

	// DetectionDuration tracks end-to-end detection latency.
	DetectionDuration metric.Float64Histogram

	// DetectionJobErrors counts failed jobs. Use with attributes:
	//   attribute.String("type", ...), attribute.String("reason", ...)
	DetectionJobErrors metric.Int64Counter

	// --- Sinks ---

	// SinkOperations counts playback and persistence runs. Use with
	// attributes: attribute.String("sink", ...), attribute.String("status", ...)
	SinkOperations metric.Int64Counter

	// ActiveCaptures tracks whether a capture loop is running.
	ActiveCaptures metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for model
// inference, which is far slower than a network round trip.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.CaptureFrames, err = m.Int64Counter("betterspeak.capture.frames",
		metric.WithDescription("Audio frames appended to the recording buffer."),
	); err != nil {
		return nil, err
	}
	if met.CaptureErrors, err = m.Int64Counter("betterspeak.capture.errors",
		metric.WithDescription("Capture device failures by operation."),
	); err != nil {
		return nil, err
	}

	if met.ClassifierDuration, err = m.Float64Histogram("betterspeak.classifier.duration",
		metric.WithDescription("Latency of one classifier job."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ClassifierChunks, err = m.Int64Counter("betterspeak.classifier.chunks",
		metric.WithDescription("Audio chunks scored by classifier type."),
	); err != nil {
		return nil, err
	}

	if met.DetectionRuns, err = m.Int64Counter("betterspeak.detection.runs",
		metric.WithDescription("Detection runs by status."),
	); err != nil {
		return nil, err
	}
	if met.DetectionDuration, err = m.Float64Histogram("betterspeak.detection.duration",
		metric.WithDescription("End-to-end latency of a detection run."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DetectionJobErrors, err = m.Int64Counter("betterspeak.detection.job_errors",
		metric.WithDescription("Failed classifier jobs by type and reason."),
	); err != nil {
		return nil, err
	}

	if met.SinkOperations, err = m.Int64Counter("betterspeak.sink.operations",
		metric.WithDescription("Playback and persistence runs by sink and status."),
	); err != nil {
		return nil, err
	}
	if met.ActiveCaptures, err = m.Int64UpDownCounter("betterspeak.active_captures",
		metric.WithDescription("Number of running capture loops."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("betterspeak.http.request.duration",
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
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
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

// RecordClassifierJob records the duration and chunk count of one
// classifier job.
func (m *Metrics) RecordClassifierJob(ctx context.Context, typ string, chunks int, d time.Duration, err error) {
	status := StatusOK
	if err != nil {
		status = StatusError
	}
	m.ClassifierDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("type", typ),
			attribute.String("status", status),
		),
	)
	m.ClassifierChunks.Add(ctx, int64(chunks),
		metric.WithAttributes(attribute.String("type", typ)),
	)
}

// RecordJobError counts a failed classifier job.
func (m *Metrics) RecordJobError(ctx context.Context, typ, reason string) {
	m.DetectionJobErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("type", typ),
			attribute.String("reason", reason),
		),
	)
}

// RecordDetectionRun counts one detection run and, for completed runs,
// records its latency.
func (m *Metrics) RecordDetectionRun(ctx context.Context, status string, d time.Duration) {
	m.DetectionRuns.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	if status != StatusRejected {
		m.DetectionDuration.Record(ctx, d.Seconds())
	}
}

// RecordSink counts one playback or persistence operation.
func (m *Metrics) RecordSink(ctx context.Context, sink, status string) {
	m.SinkOperations.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("sink", sink),
			attribute.String("status", status),
		),
	)
}

// RecordCaptureError counts a capture device failure.
func (m *Metrics) RecordCaptureError(ctx context.Context, op string) {
	m.CaptureErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}
