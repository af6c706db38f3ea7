// Package observe provides application-wide observability primitives for
// wavbridge: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
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

// meterName is the instrumentation scope name used for all wavbridge metrics.
const meterName = "github.com/MrWong99/wavbridge"

// Pipeline names used as the "pipeline" attribute value.
const (
	PipelineIngest = "ingest"
	PipelineEgress = "egress"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Frame counters. Use with attribute.String("pipeline", ...) ---

	// FramesReceived counts frames pulled from a live source.
	FramesReceived metric.Int64Counter

	// FramesWritten counts frames appended to a WAV file.
	FramesWritten metric.Int64Counter

	// FramesDropped counts frames discarded by the silence gate.
	FramesDropped metric.Int64Counter

	// FramesEmitted counts frames handed to a live sink.
	FramesEmitted metric.Int64Counter

	// FramesPadded counts emitted frames that were zero-padded at end of file.
	FramesPadded metric.Int64Counter

	// --- Run accounting ---

	// PipelineRuns counts finished runs. Use with attributes:
	//   attribute.String("pipeline", ...), attribute.String("outcome", ...)
	PipelineRuns metric.Int64Counter

	// PipelineErrors counts failed runs. Use with attributes:
	//   attribute.String("pipeline", ...), attribute.String("kind", ...)
	PipelineErrors metric.Int64Counter

	// PipelineDuration tracks wall-clock run length.
	PipelineDuration metric.Float64Histogram

	// --- Gauges ---

	// ActivePipelines tracks running pipelines by "pipeline".
	ActivePipelines metric.Int64UpDownCounter

	// ActiveParticipants tracks remote participants present in the room.
	ActiveParticipants metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// runBuckets defines histogram bucket boundaries (in seconds) for pipeline
// runs, which last from a single utterance to a whole session.
var runBuckets = []float64{
	0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300, 900, 3600,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Frame counters.
	if met.FramesReceived, err = m.Int64Counter("wavbridge.frames.received",
		metric.WithDescription("Frames pulled from live sources by pipeline."),
	); err != nil {
		return nil, err
	}
	if met.FramesWritten, err = m.Int64Counter("wavbridge.frames.written",
		metric.WithDescription("Frames appended to WAV files by pipeline."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("wavbridge.frames.dropped",
		metric.WithDescription("Frames discarded by the silence gate."),
	); err != nil {
		return nil, err
	}
	if met.FramesEmitted, err = m.Int64Counter("wavbridge.frames.emitted",
		metric.WithDescription("Frames delivered to live sinks by pipeline."),
	); err != nil {
		return nil, err
	}
	if met.FramesPadded, err = m.Int64Counter("wavbridge.frames.padded",
		metric.WithDescription("Emitted frames zero-padded at end of file."),
	); err != nil {
		return nil, err
	}

	// Run accounting.
	if met.PipelineRuns, err = m.Int64Counter("wavbridge.pipeline.runs",
		metric.WithDescription("Finished pipeline runs by pipeline and outcome."),
	); err != nil {
		return nil, err
	}
	if met.PipelineErrors, err = m.Int64Counter("wavbridge.pipeline.errors",
		metric.WithDescription("Failed pipeline runs by pipeline and error kind."),
	); err != nil {
		return nil, err
	}
	if met.PipelineDuration, err = m.Float64Histogram("wavbridge.pipeline.duration",
		metric.WithDescription("Wall-clock length of pipeline runs."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(runBuckets...),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActivePipelines, err = m.Int64UpDownCounter("wavbridge.active_pipelines",
		metric.WithDescription("Number of running pipelines by pipeline."),
	); err != nil {
		return nil, err
	}
	if met.ActiveParticipants, err = m.Int64UpDownCounter("wavbridge.active_participants",
		metric.WithDescription("Number of remote participants in the room."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("wavbridge.http.request.duration",
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

// PipelineAttr returns the metric option carrying the "pipeline" attribute.
func PipelineAttr(pipeline string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("pipeline", pipeline))
}

// RecordPipelineRun records a finished run: its outcome counter and its
// duration.
func (m *Metrics) RecordPipelineRun(ctx context.Context, pipeline, outcome string, d time.Duration) {
	m.PipelineRuns.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("pipeline", pipeline),
			attribute.String("outcome", outcome),
		),
	)
	m.PipelineDuration.Record(ctx, d.Seconds(), PipelineAttr(pipeline))
}

// RecordPipelineError records a failed run with the given error kind.
func (m *Metrics) RecordPipelineError(ctx context.Context, pipeline, kind string) {
	m.PipelineErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("pipeline", pipeline),
			attribute.String("kind", kind),
		),
	)
}
