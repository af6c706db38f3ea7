package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
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
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
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

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

// sumFor returns the value of the data point whose attributes include
// key=value, and whether one was found.
func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) (int64, bool) {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value, true
		}
	}
	return 0, false
}

func TestFrameCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	counters := []struct {
		name string
		c    metric.Int64Counter
		n    int64
	}{
		{"wavbridge.frames.received", m.FramesReceived, 5},
		{"wavbridge.frames.written", m.FramesWritten, 3},
		{"wavbridge.frames.dropped", m.FramesDropped, 2},
		{"wavbridge.frames.emitted", m.FramesEmitted, 7},
		{"wavbridge.frames.padded", m.FramesPadded, 1},
	}
	for _, tc := range counters {
		tc.c.Add(ctx, tc.n, PipelineAttr(PipelineIngest))
	}

	rm := collect(t, reader)
	for _, tc := range counters {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := sumFor(t, rm, tc.name, "pipeline", PipelineIngest)
			if !ok {
				t.Fatal("data point with pipeline=ingest not found")
			}
			if got != tc.n {
				t.Errorf("counter value = %d, want %d", got, tc.n)
			}
		})
	}
}

func TestRecordPipelineRun(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordPipelineRun(ctx, PipelineEgress, "end_of_stream", 2*time.Second)
	m.RecordPipelineRun(ctx, PipelineEgress, "end_of_stream", 3*time.Second)
	m.RecordPipelineRun(ctx, PipelineIngest, "stopped", time.Second)

	rm := collect(t, reader)
	got, ok := sumFor(t, rm, "wavbridge.pipeline.runs", "outcome", "end_of_stream")
	if !ok || got != 2 {
		t.Errorf("end_of_stream runs = %d (found=%v), want 2", got, ok)
	}

	met := findMetric(rm, "wavbridge.pipeline.duration")
	if met == nil {
		t.Fatal("duration metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	var total uint64
	for _, dp := range hist.DataPoints {
		total += dp.Count
	}
	if total != 3 {
		t.Errorf("duration sample count = %d, want 3", total)
	}
}

func TestRecordPipelineError(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordPipelineError(ctx, PipelineIngest, "format_mismatch")

	rm := collect(t, reader)
	got, ok := sumFor(t, rm, "wavbridge.pipeline.errors", "kind", "format_mismatch")
	if !ok || got != 1 {
		t.Errorf("error counter = %d (found=%v), want 1", got, ok)
	}
}

func TestGauges(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	// UpDownCounters are additive, so a run start/finish is Add(1)/Add(-1).
	m.ActivePipelines.Add(ctx, 1, PipelineAttr(PipelineIngest))
	m.ActivePipelines.Add(ctx, 1, PipelineAttr(PipelineIngest))
	m.ActivePipelines.Add(ctx, -1, PipelineAttr(PipelineIngest))
	m.ActiveParticipants.Add(ctx, 3)

	rm := collect(t, reader)

	if got, ok := sumFor(t, rm, "wavbridge.active_pipelines", "pipeline", PipelineIngest); !ok || got != 1 {
		t.Errorf("active ingest pipelines = %d (found=%v), want 1", got, ok)
	}

	met := findMetric(rm, "wavbridge.active_participants")
	if met == nil {
		t.Fatal("participants metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) == 0 {
		t.Fatal("participants metric has no sum data points")
	}
	if got := sum.DataPoints[0].Value; got != 3 {
		t.Errorf("gauge value = %d, want 3", got)
	}
}

func TestHTTPRequestDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.HTTPRequestDuration.Record(ctx, 0.05,
		metric.WithAttributes(
			attribute.String("method", "GET"),
			attribute.String("path", "/healthz"),
		),
	)

	rm := collect(t, reader)
	met := findMetric(rm, "wavbridge.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if got := hist.DataPoints[0].Count; got != 1 {
		t.Errorf("sample count = %d, want 1", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
