package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/wavbridge/internal/observe"
	"github.com/MrWong99/wavbridge/internal/pipeline"
	"github.com/MrWong99/wavbridge/pkg/audio"
	"github.com/MrWong99/wavbridge/pkg/audio/mock"
	"github.com/MrWong99/wavbridge/pkg/audio/wav"
	"github.com/MrWong99/wavbridge/pkg/provider/vad"
	"github.com/MrWong99/wavbridge/pkg/provider/vad/amplitude"
	vadmock "github.com/MrWong99/wavbridge/pkg/provider/vad/mock"
)

var (
	egressFormat = audio.PCM16(48000, 1)
	ingestFormat = audio.PCM16(16000, 1)
)

// ─── helpers ─────────────────────────────────────────────────────────────────

func newTestMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func counterTotal(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != name {
				continue
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %q is not a sum", name)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

// writeFixture writes samples as a mono 16-bit WAV file and returns its path.
func writeFixture(t *testing.T, format audio.Format, samples []int16) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.wav")
	w, err := wav.Create(path, format)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(samples) > 0 {
		f := audio.AudioFrame{
			Data:       audio.Int16Bytes(samples),
			SampleRate: format.SampleRate,
			Channels:   format.Channels,
			BitDepth:   format.BitDepth,
		}
		if err := w.Write(f); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return path
}

func openFixture(t *testing.T, path string) *wav.Reader {
	t.Helper()
	r, err := wav.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func ramp(n int) []int16 {
	s := make([]int16, n)
	for i := range s {
		s[i] = int16(i%1000 + 1)
	}
	return s
}

func pcmFrame(format audio.Format, samples []int16) audio.AudioFrame {
	return audio.AudioFrame{
		Data:       audio.Int16Bytes(samples),
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
		BitDepth:   format.BitDepth,
	}
}

func silence(n int) []int16 { return make([]int16, n) }

func loud(n int) []int16 {
	s := make([]int16, n)
	for i := range s {
		s[i] = 2000
	}
	return s
}

func fileSize(t *testing.T, path string) int64 {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	return info.Size()
}

// ─── Pacer ───────────────────────────────────────────────────────────────────

func TestNewPacer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		format   audio.Format
		duration time.Duration
		want     int
		wantErr  bool
	}{
		{"48k 10ms", egressFormat, 10 * time.Millisecond, 480, false},
		{"default duration", egressFormat, 0, 480, false},
		{"16k 20ms", ingestFormat, 20 * time.Millisecond, 320, false},
		{"44.1k 10ms truncates", audio.PCM16(44100, 2), 10 * time.Millisecond, 441, false},
		{"zero samples", audio.PCM16(50, 1), 10 * time.Millisecond, 0, true},
		{"invalid format", audio.Format{SampleRate: 48000, Channels: 1, BitDepth: 12}, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, _ := newTestMetrics(t)
			p, err := pipeline.NewPacer(tt.format, tt.duration, pipeline.WithPacerMetrics(m))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewPacer: %v", err)
			}
			if got := p.SamplesPerFrame(); got != tt.want {
				t.Errorf("SamplesPerFrame = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPacer_PadsShortTail(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)

	samples := ramp(480 + 7)
	r := openFixture(t, writeFixture(t, egressFormat, samples))
	sink := &mock.Sink{FormatResult: egressFormat}

	p, err := pipeline.NewPacer(egressFormat, 10*time.Millisecond, pipeline.WithPacerMetrics(m))
	if err != nil {
		t.Fatalf("NewPacer: %v", err)
	}
	n, err := p.Run(context.Background(), r, sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n != 2 {
		t.Fatalf("emitted = %d, want 2", n)
	}

	frames := sink.Frames()
	if len(frames) != 2 {
		t.Fatalf("sink got %d frames, want 2", len(frames))
	}
	for i, f := range frames {
		if f.SampleCount() != 480 {
			t.Errorf("frame %d: SampleCount = %d, want 480", i, f.SampleCount())
		}
		if want := time.Duration(i) * 10 * time.Millisecond; f.Timestamp != want {
			t.Errorf("frame %d: Timestamp = %v, want %v", i, f.Timestamp, want)
		}
	}

	tail := audio.Int16Samples(frames[1].Data)
	for i := range 7 {
		if tail[i] != samples[480+i] {
			t.Errorf("tail sample %d = %d, want %d", i, tail[i], samples[480+i])
		}
	}
	for i := 7; i < 480; i++ {
		if tail[i] != 0 {
			t.Fatalf("padding sample %d = %d, want 0", i, tail[i])
		}
	}

	if got := counterTotal(t, reader, "wavbridge.frames.padded"); got != 1 {
		t.Errorf("padded counter = %d, want 1", got)
	}
	if got := counterTotal(t, reader, "wavbridge.frames.emitted"); got != 2 {
		t.Errorf("emitted counter = %d, want 2", got)
	}
}

func TestPacer_ExactMultipleNotPadded(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)

	r := openFixture(t, writeFixture(t, egressFormat, ramp(480*3)))
	sink := &mock.Sink{FormatResult: egressFormat}
	p, _ := pipeline.NewPacer(egressFormat, 0, pipeline.WithPacerMetrics(m))

	n, err := p.Run(context.Background(), r, sink)
	if err != nil || n != 3 {
		t.Fatalf("Run = %d, %v; want 3, nil", n, err)
	}
	if got := counterTotal(t, reader, "wavbridge.frames.padded"); got != 0 {
		t.Errorf("padded counter = %d, want 0", got)
	}
}

func TestPacer_EmptyFile(t *testing.T) {
	t.Parallel()
	m, _ := newTestMetrics(t)

	r := openFixture(t, writeFixture(t, egressFormat, nil))
	sink := &mock.Sink{FormatResult: egressFormat}
	p, _ := pipeline.NewPacer(egressFormat, 0, pipeline.WithPacerMetrics(m))

	n, err := p.Run(context.Background(), r, sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n != 0 || len(sink.Frames()) != 0 {
		t.Errorf("emitted %d frames (sink %d), want 0", n, len(sink.Frames()))
	}
}

func TestPacer_FormatMismatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		fileFormat audio.Format
		sinkFormat audio.Format
	}{
		{"source rate", audio.PCM16(16000, 1), egressFormat},
		{"source channels", audio.PCM16(48000, 2), egressFormat},
		{"sink rate", egressFormat, audio.PCM16(24000, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, _ := newTestMetrics(t)
			r := openFixture(t, writeFixture(t, tt.fileFormat, ramp(tt.fileFormat.SamplesPer(50)*tt.fileFormat.Channels)))
			sink := &mock.Sink{FormatResult: tt.sinkFormat}
			p, _ := pipeline.NewPacer(egressFormat, 0, pipeline.WithPacerMetrics(m))

			n, err := p.Run(context.Background(), r, sink)
			var fm *audio.FormatMismatchError
			if !errors.As(err, &fm) {
				t.Fatalf("Run err = %v, want *audio.FormatMismatchError", err)
			}
			if n != 0 || len(sink.Frames()) != 0 {
				t.Errorf("partial playback: %d frames emitted", n)
			}
		})
	}
}

func TestPacer_Cancellation(t *testing.T) {
	t.Parallel()
	m, _ := newTestMetrics(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := openFixture(t, writeFixture(t, egressFormat, ramp(480*10)))
	sink := &mock.Sink{
		FormatResult: egressFormat,
		OnAccept: func(n int) {
			if n == 3 {
				cancel()
			}
		},
	}
	p, _ := pipeline.NewPacer(egressFormat, 0, pipeline.WithPacerMetrics(m))

	n, err := p.Run(ctx, r, sink)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run err = %v, want context.Canceled", err)
	}
	if n != 3 {
		t.Errorf("emitted = %d, want 3", n)
	}
}

func TestPacer_SinkError(t *testing.T) {
	t.Parallel()
	m, _ := newTestMetrics(t)

	boom := errors.New("track gone")
	r := openFixture(t, writeFixture(t, egressFormat, ramp(480*5)))
	sink := &mock.Sink{FormatResult: egressFormat, AcceptError: boom, AcceptErrorAfter: 2}
	p, _ := pipeline.NewPacer(egressFormat, 0, pipeline.WithPacerMetrics(m))

	n, err := p.Run(context.Background(), r, sink)
	if !errors.Is(err, boom) {
		t.Fatalf("Run err = %v, want %v", err, boom)
	}
	if n != 2 {
		t.Errorf("emitted = %d, want 2", n)
	}
}

// ─── Ingest ──────────────────────────────────────────────────────────────────

func newIngest(t *testing.T, m *observe.Metrics, path string, opts ...pipeline.Option) *pipeline.Ingest {
	t.Helper()
	opts = append(opts, pipeline.WithMetrics(m))
	in, err := pipeline.NewIngest(pipeline.IngestConfig{Path: path, Format: ingestFormat}, opts...)
	if err != nil {
		t.Fatalf("NewIngest: %v", err)
	}
	return in
}

func TestIngest_GateDisabledWritesEverything(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)
	path := filepath.Join(t.TempDir(), "rec", "alice.wav")

	var frames []audio.AudioFrame
	var want []byte
	for i := range 5 {
		var s []int16
		if i%2 == 0 {
			s = silence(160)
		} else {
			s = ramp(160)
		}
		f := pcmFrame(ingestFormat, s)
		frames = append(frames, f)
		want = append(want, f.Data...)
	}

	res, err := newIngest(t, m, path).Run(context.Background(), &mock.Source{Frames: frames})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Reason != pipeline.ReasonEndOfStream {
		t.Errorf("Reason = %q, want %q", res.Reason, pipeline.ReasonEndOfStream)
	}
	if res.FramesReceived != 5 || res.FramesWritten != 5 || res.FramesDropped != 0 {
		t.Errorf("result = %+v, want 5 received, 5 written, 0 dropped", res)
	}

	r := openFixture(t, path)
	got, err := r.ReadFrame(160 * 10)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !bytes.Equal(got.Data, want) {
		t.Error("recorded payload differs from source frames")
	}
	if got := counterTotal(t, reader, "wavbridge.frames.written"); got != 5 {
		t.Errorf("written counter = %d, want 5", got)
	}
}

func TestIngest_GateStopsAfterUtterance(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)
	path := filepath.Join(t.TempDir(), "gated.wav")

	src := &mock.Source{Frames: []audio.AudioFrame{
		pcmFrame(ingestFormat, silence(160)),
		pcmFrame(ingestFormat, silence(160)),
		pcmFrame(ingestFormat, loud(160)),
		pcmFrame(ingestFormat, loud(160)),
		pcmFrame(ingestFormat, silence(160)),
		pcmFrame(ingestFormat, loud(160)),
	}}
	in := newIngest(t, m, path, pipeline.WithGate(amplitude.New(), vad.Config{}))

	res, err := in.Run(context.Background(), src)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Reason != pipeline.ReasonUtteranceComplete {
		t.Errorf("Reason = %q, want %q", res.Reason, pipeline.ReasonUtteranceComplete)
	}
	if res.FramesWritten != 2 || res.FramesDropped != 2 || res.FramesReceived != 5 {
		t.Errorf("result = %+v, want 5 received, 2 written, 2 dropped", res)
	}
	if got, want := fileSize(t, path), int64(44+2*320); got != want {
		t.Errorf("file size = %d, want %d", got, want)
	}
	if got := counterTotal(t, reader, "wavbridge.frames.dropped"); got != 2 {
		t.Errorf("dropped counter = %d, want 2", got)
	}
}

func TestIngest_ScriptedGate(t *testing.T) {
	t.Parallel()
	m, _ := newTestMetrics(t)
	path := filepath.Join(t.TempDir(), "scripted.wav")

	sess := &vadmock.Session{Events: []vad.VADEvent{
		{Type: vad.VADSilence},
		{Type: vad.VADSpeechStart, ActiveSamples: 160},
		{Type: vad.VADSpeechContinue, ActiveSamples: 80},
		{Type: vad.VADSpeechEnd},
	}}
	eng := &vadmock.Engine{Session: sess}
	in := newIngest(t, m, path, pipeline.WithGate(eng, vad.Config{Threshold: 42, HangoverFrames: 1}))

	var frames []audio.AudioFrame
	for range 5 {
		frames = append(frames, pcmFrame(ingestFormat, ramp(160)))
	}
	res, err := in.Run(context.Background(), &mock.Source{Frames: frames})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Reason != pipeline.ReasonUtteranceComplete {
		t.Errorf("Reason = %q, want %q", res.Reason, pipeline.ReasonUtteranceComplete)
	}
	if res.FramesReceived != 4 || res.FramesWritten != 2 || res.FramesDropped != 1 {
		t.Errorf("result = %+v, want 4 received, 2 written, 1 dropped", res)
	}

	want := vad.Config{SampleRate: 16000, Channels: 1, BitDepth: 16, Threshold: 42, HangoverFrames: 1}
	if len(eng.NewSessionCalls) != 1 || eng.NewSessionCalls[0].Cfg != want {
		t.Errorf("NewSession calls = %+v, want one with %+v", eng.NewSessionCalls, want)
	}
	if len(sess.ProcessFrameCalls) != 4 {
		t.Errorf("ProcessFrame calls = %d, want 4", len(sess.ProcessFrameCalls))
	}
	if sess.CloseCallCount != 1 {
		t.Errorf("session Close calls = %d, want 1", sess.CloseCallCount)
	}
}

func TestIngest_GateError(t *testing.T) {
	t.Parallel()
	m, _ := newTestMetrics(t)
	path := filepath.Join(t.TempDir(), "gate-error.wav")

	boom := errors.New("classifier exploded")
	sess := &vadmock.Session{ProcessFrameErr: boom}
	in := newIngest(t, m, path, pipeline.WithGate(&vadmock.Engine{Session: sess}, vad.Config{}))

	_, err := in.Run(context.Background(), &mock.Source{Frames: []audio.AudioFrame{pcmFrame(ingestFormat, ramp(160))}})
	if !errors.Is(err, boom) {
		t.Fatalf("Run() = %v, want %v", err, boom)
	}
	if sess.CloseCallCount != 1 {
		t.Errorf("session Close calls = %d, want 1", sess.CloseCallCount)
	}
	if got := fileSize(t, path); got != 44 {
		t.Errorf("file size = %d, want header only", got)
	}
}

func TestIngest_GateLeadingSkip(t *testing.T) {
	t.Parallel()
	m, _ := newTestMetrics(t)
	path := filepath.Join(t.TempDir(), "skip.wav")

	src := &mock.Source{Frames: []audio.AudioFrame{
		pcmFrame(ingestFormat, loud(160)),
		pcmFrame(ingestFormat, loud(160)),
	}}
	in := newIngest(t, m, path, pipeline.WithGate(amplitude.New(), vad.Config{LeadingSkip: amplitude.WAVHeaderSkip}))

	res, err := in.Run(context.Background(), src)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.FramesWritten != 2 {
		t.Fatalf("FramesWritten = %d, want 2", res.FramesWritten)
	}
	want := int64(44 + 2*(160-amplitude.WAVHeaderSkip)*2)
	if got := fileSize(t, path); got != want {
		t.Errorf("file size = %d, want %d", got, want)
	}
}

func TestIngest_FormatMismatch(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)
	path := filepath.Join(t.TempDir(), "mismatch.wav")

	src := &mock.Source{Frames: []audio.AudioFrame{pcmFrame(audio.PCM16(48000, 1), ramp(480))}}
	_, err := newIngest(t, m, path).Run(context.Background(), src)
	if !errors.Is(err, audio.ErrFormatMismatch) {
		t.Fatalf("Run err = %v, want ErrFormatMismatch", err)
	}
	if got := fileSize(t, path); got != 44 {
		t.Errorf("file size = %d, want header only", got)
	}
	if got := counterTotal(t, reader, "wavbridge.pipeline.errors"); got != 1 {
		t.Errorf("error counter = %d, want 1", got)
	}
}

func TestIngest_SourceError(t *testing.T) {
	t.Parallel()
	m, _ := newTestMetrics(t)
	path := filepath.Join(t.TempDir(), "err.wav")

	boom := errors.New("rtp read failed")
	src := &mock.Source{Frames: []audio.AudioFrame{pcmFrame(ingestFormat, ramp(160))}, Err: boom}
	res, err := newIngest(t, m, path).Run(context.Background(), src)
	if !errors.Is(err, boom) {
		t.Fatalf("Run err = %v, want %v", err, boom)
	}
	if res.FramesWritten != 1 {
		t.Errorf("FramesWritten = %d, want 1", res.FramesWritten)
	}
	// The file is finalised even on failure.
	if got := fileSize(t, path); got != 44+320 {
		t.Errorf("file size = %d, want %d", got, 44+320)
	}
}

func TestIngest_Stop(t *testing.T) {
	t.Parallel()
	m, _ := newTestMetrics(t)
	path := filepath.Join(t.TempDir(), "stop.wav")

	ch := make(chan audio.AudioFrame)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type outcome struct {
		res pipeline.IngestResult
		err error
	}
	done := make(chan outcome, 1)
	in := newIngest(t, m, path)
	go func() {
		res, err := in.Run(ctx, audio.NewChanSource(ch))
		done <- outcome{res, err}
	}()

	ch <- pcmFrame(ingestFormat, ramp(160))
	ch <- pcmFrame(ingestFormat, ramp(160))
	cancel()

	select {
	case o := <-done:
		if o.err != nil {
			t.Fatalf("Run: %v", o.err)
		}
		if o.res.Reason != pipeline.ReasonStopped {
			t.Errorf("Reason = %q, want %q", o.res.Reason, pipeline.ReasonStopped)
		}
		if o.res.FramesWritten != 2 {
			t.Errorf("FramesWritten = %d, want 2", o.res.FramesWritten)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ingest did not stop after cancel")
	}
	if got := fileSize(t, path); got != 44+2*320 {
		t.Errorf("file size = %d, want %d", got, 44+2*320)
	}
}

func TestIngest_GateUnsupportedFormat(t *testing.T) {
	t.Parallel()
	m, _ := newTestMetrics(t)
	path := filepath.Join(t.TempDir(), "x", "never.wav")

	in, err := pipeline.NewIngest(pipeline.IngestConfig{
		Path:   path,
		Format: audio.Format{SampleRate: 16000, Channels: 1, BitDepth: 24},
	}, pipeline.WithMetrics(m), pipeline.WithGate(amplitude.New(), vad.Config{}))
	if err != nil {
		t.Fatalf("NewIngest: %v", err)
	}
	if _, err := in.Run(context.Background(), &mock.Source{}); !errors.Is(err, vad.ErrUnsupportedFormat) {
		t.Fatalf("Run err = %v, want vad.ErrUnsupportedFormat", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("file created despite gate error: %v", err)
	}
}

func TestNewIngest_Invalid(t *testing.T) {
	t.Parallel()
	if _, err := pipeline.NewIngest(pipeline.IngestConfig{Format: ingestFormat}); err == nil {
		t.Error("empty path: expected error")
	}
	if _, err := pipeline.NewIngest(pipeline.IngestConfig{Path: "x.wav"}); !errors.Is(err, audio.ErrUnsupportedFormat) {
		t.Errorf("zero format: err = %v, want ErrUnsupportedFormat", err)
	}
}

// ─── Egress ──────────────────────────────────────────────────────────────────

func newEgress(t *testing.T, m *observe.Metrics, path string) *pipeline.Egress {
	t.Helper()
	e, err := pipeline.NewEgress(pipeline.EgressConfig{Path: path, Format: egressFormat}, pipeline.WithMetrics(m))
	if err != nil {
		t.Fatalf("NewEgress: %v", err)
	}
	return e
}

func TestEgress_PlaysAndRetracts(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)
	path := writeFixture(t, egressFormat, ramp(480*25+100))
	sink := &mock.Sink{FormatResult: egressFormat}

	res, err := newEgress(t, m, path).Run(context.Background(), sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.FramesEmitted != 26 || res.Reason != pipeline.ReasonEndOfStream {
		t.Errorf("result = %+v, want 26 frames, end_of_stream", res)
	}
	if !sink.Closed() {
		t.Error("sink was not closed after playback")
	}
	if got := counterTotal(t, reader, "wavbridge.pipeline.runs"); got != 1 {
		t.Errorf("runs counter = %d, want 1", got)
	}
}

func TestEgress_MissingFileClosesSink(t *testing.T) {
	t.Parallel()
	m, _ := newTestMetrics(t)
	sink := &mock.Sink{FormatResult: egressFormat}

	_, err := newEgress(t, m, filepath.Join(t.TempDir(), "missing.wav")).Run(context.Background(), sink)
	var ioErr *audio.IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("Run err = %v, want *audio.IOError", err)
	}
	if !sink.Closed() {
		t.Error("sink was not closed after open failure")
	}
}

func TestEgress_FormatMismatch(t *testing.T) {
	t.Parallel()
	m, _ := newTestMetrics(t)
	path := writeFixture(t, audio.PCM16(16000, 1), ramp(1600))
	sink := &mock.Sink{FormatResult: egressFormat}

	res, err := newEgress(t, m, path).Run(context.Background(), sink)
	if !errors.Is(err, audio.ErrFormatMismatch) {
		t.Fatalf("Run err = %v, want ErrFormatMismatch", err)
	}
	if res.FramesEmitted != 0 || len(sink.Frames()) != 0 {
		t.Errorf("partial playback: %d frames", res.FramesEmitted)
	}
	if !sink.Closed() {
		t.Error("sink was not closed after mismatch")
	}
}

func TestEgress_Stop(t *testing.T) {
	t.Parallel()
	m, _ := newTestMetrics(t)
	path := writeFixture(t, egressFormat, ramp(480*50))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink := &mock.Sink{
		FormatResult: egressFormat,
		OnAccept: func(n int) {
			if n == 4 {
				cancel()
			}
		},
	}

	res, err := newEgress(t, m, path).Run(ctx, sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Reason != pipeline.ReasonStopped || res.FramesEmitted != 4 {
		t.Errorf("result = %+v, want 4 frames, stopped", res)
	}
	if !sink.Closed() {
		t.Error("sink was not closed after stop")
	}
}

func TestEgress_CloseErrorReported(t *testing.T) {
	t.Parallel()
	m, _ := newTestMetrics(t)
	path := writeFixture(t, egressFormat, ramp(480))
	boom := errors.New("unpublish failed")
	sink := &mock.Sink{FormatResult: egressFormat, CloseError: boom}

	if _, err := newEgress(t, m, path).Run(context.Background(), sink); !errors.Is(err, boom) {
		t.Fatalf("Run err = %v, want %v", err, boom)
	}
}
