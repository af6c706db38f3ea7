// Package pipeline drives audio between live room tracks and WAV files.
//
// An [Ingest] pulls frames from a [audio.FrameSource], optionally passes them
// through a silence gate, and appends them to a WAV file. An [Egress] reads a
// WAV file through a [Pacer] that hands fixed-duration frames to a
// [audio.FrameSink]. Each run owns its file handle exclusively and closes it
// exactly once, whatever the outcome.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/MrWong99/wavbridge/internal/observe"
	"github.com/MrWong99/wavbridge/pkg/audio"
)

// DefaultFrameDuration is the frame length used when none is configured.
const DefaultFrameDuration = 10 * time.Millisecond

// FrameReader is the read side of a WAV container. [*wav.Reader] implements
// it.
type FrameReader interface {
	Format() audio.Format
	ReadFrame(sampleCount int) (audio.AudioFrame, error)
}

// Pacer converts a stored stream into fixed-duration frames. It performs no
// timing of its own: [audio.FrameSink.Accept] is the only suspension point,
// so playback runs at whatever rate the sink accepts frames.
type Pacer struct {
	format          audio.Format
	frameDuration   time.Duration
	samplesPerFrame int
	metrics         *observe.Metrics
}

// PacerOption is a functional option for [NewPacer].
type PacerOption func(*Pacer)

// WithPacerMetrics sets the metrics the pacer records into. Defaults to
// [observe.DefaultMetrics].
func WithPacerMetrics(m *observe.Metrics) PacerOption {
	return func(p *Pacer) { p.metrics = m }
}

// NewPacer returns a pacer producing frames of frameDuration at format. A
// zero frameDuration selects [DefaultFrameDuration]. It fails when format is
// invalid or the duration yields zero samples per frame.
func NewPacer(format audio.Format, frameDuration time.Duration, opts ...PacerOption) (*Pacer, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: new pacer: %w", err)
	}
	if frameDuration == 0 {
		frameDuration = DefaultFrameDuration
	}
	samples := format.SamplesPer(int(frameDuration / time.Millisecond))
	if samples <= 0 {
		return nil, fmt.Errorf("pipeline: new pacer: frame duration %v yields no samples at %d Hz", frameDuration, format.SampleRate)
	}
	p := &Pacer{
		format:          format,
		frameDuration:   frameDuration,
		samplesPerFrame: samples,
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p, nil
}

// SamplesPerFrame returns the number of samples per channel in every emitted
// frame.
func (p *Pacer) SamplesPerFrame() int { return p.samplesPerFrame }

// Format returns the stream format the pacer emits.
func (p *Pacer) Format() audio.Format { return p.format }

// Run streams src into sink until src is exhausted or ctx is cancelled and
// returns the number of frames emitted.
//
// Both src and sink must carry the pacer's format; a mismatch returns an
// [*audio.FormatMismatchError] before anything is read or emitted. A short
// final frame is zero-padded to full length. Cancellation is observed before
// each read and returns ctx.Err().
func (p *Pacer) Run(ctx context.Context, src FrameReader, sink audio.FrameSink) (int, error) {
	if err := audio.CheckFormat(p.format, src.Format()); err != nil {
		return 0, fmt.Errorf("pipeline: pacer source: %w", err)
	}
	if err := audio.CheckFormat(p.format, sink.Format()); err != nil {
		return 0, fmt.Errorf("pipeline: pacer sink: %w", err)
	}

	log := observe.Logger(ctx)
	attr := observe.PipelineAttr(observe.PipelineEgress)
	emitted := 0
	var ts time.Duration
	for {
		if err := ctx.Err(); err != nil {
			log.Info("pacer stopped", "frames", emitted)
			return emitted, err
		}

		frame, err := src.ReadFrame(p.samplesPerFrame)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return emitted, fmt.Errorf("pipeline: pacer read: %w", err)
		}

		if frame.SampleCount() < p.samplesPerFrame {
			frame = audio.PadFrame(frame, p.samplesPerFrame)
			p.metrics.FramesPadded.Add(ctx, 1, attr)
		}
		frame.Timestamp = ts

		if err := sink.Accept(ctx, frame); err != nil {
			return emitted, fmt.Errorf("pipeline: pacer emit frame %d: %w", emitted, err)
		}
		emitted++
		ts += p.frameDuration
		p.metrics.FramesEmitted.Add(ctx, 1, attr)
	}

	log.Info("pacer finished", "frames", emitted, "frame_duration", p.frameDuration)
	return emitted, nil
}
