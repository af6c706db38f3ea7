package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/wavbridge/internal/observe"
	"github.com/MrWong99/wavbridge/pkg/audio"
	"github.com/MrWong99/wavbridge/pkg/audio/wav"
	"github.com/MrWong99/wavbridge/pkg/provider/vad"
)

// IngestConfig describes one ingest run.
type IngestConfig struct {
	// Path is the WAV file to create. Missing parent directories are created.
	Path string

	// Format is the stream format the source is expected to deliver and the
	// format committed to the WAV header.
	Format audio.Format
}

// IngestResult summarises a finished ingest run.
type IngestResult struct {
	Path           string
	FramesReceived int
	FramesWritten  int
	FramesDropped  int
	Reason         Reason
}

// Ingest records one live track into one WAV file.
type Ingest struct {
	cfg  IngestConfig
	opts options
}

// NewIngest validates cfg and returns an ingest driver.
func NewIngest(cfg IngestConfig, opts ...Option) (*Ingest, error) {
	if cfg.Path == "" {
		return nil, errors.New("pipeline: new ingest: path must not be empty")
	}
	if err := cfg.Format.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: new ingest: %w", err)
	}
	return &Ingest{cfg: cfg, opts: buildOptions(opts)}, nil
}

// Run records src until the stream ends, the silence gate closes, or ctx is
// cancelled. The WAV file is created before the first frame is read and is
// finalised exactly once on every path out of Run.
//
// Cancellation is not an error: the result carries [ReasonStopped] and the
// file holds everything written so far.
func (in *Ingest) Run(ctx context.Context, src audio.FrameSource) (res IngestResult, err error) {
	start := time.Now()
	m := in.opts.metrics
	attr := observe.PipelineAttr(observe.PipelineIngest)

	ctx, span := observe.StartSpan(ctx, "pipeline.ingest")
	span.SetAttributes(
		attribute.String("wav.path", in.cfg.Path),
		attribute.String("audio.format", in.cfg.Format.String()),
		attribute.Bool("gate.enabled", in.opts.gate != nil),
	)
	defer span.End()
	log := observe.Logger(ctx).With("pipeline", observe.PipelineIngest, "path", in.cfg.Path)

	m.ActivePipelines.Add(ctx, 1, attr)
	defer m.ActivePipelines.Add(ctx, -1, attr)

	res.Path = in.cfg.Path
	defer func() {
		outcome := res.Reason
		if err != nil {
			outcome = reasonFailed
			observe.FailSpan(span, err)
			m.RecordPipelineError(ctx, observe.PipelineIngest, errorKind(err))
			log.Error("ingest failed", "err", err, "frames_written", res.FramesWritten)
		} else {
			log.Info("ingest finished",
				"reason", res.Reason,
				"frames_received", res.FramesReceived,
				"frames_written", res.FramesWritten,
				"frames_dropped", res.FramesDropped,
			)
		}
		m.RecordPipelineRun(ctx, observe.PipelineIngest, string(outcome), time.Since(start))
	}()

	var sess vad.SessionHandle
	if in.opts.gate != nil {
		gc := in.opts.gateCfg
		gc.SampleRate = in.cfg.Format.SampleRate
		gc.Channels = in.cfg.Format.Channels
		gc.BitDepth = in.cfg.Format.BitDepth
		sess, err = in.opts.gate.NewSession(gc)
		if err != nil {
			return res, fmt.Errorf("pipeline: ingest gate: %w", err)
		}
		defer sess.Close()
	}

	w, err := wav.Create(in.cfg.Path, in.cfg.Format)
	if err != nil {
		return res, fmt.Errorf("pipeline: ingest: %w", err)
	}
	defer func() {
		if cerr := w.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("pipeline: ingest close: %w", cerr))
		}
	}()
	log.Info("ingest started", "format", in.cfg.Format.String())

	first := true
	for {
		if ctx.Err() != nil {
			res.Reason = ReasonStopped
			return res, nil
		}

		frame, rerr := src.NextFrame(ctx)
		switch {
		case rerr == nil:
		case errors.Is(rerr, io.EOF):
			res.Reason = ReasonEndOfStream
			return res, nil
		case isStop(ctx, rerr):
			res.Reason = ReasonStopped
			return res, nil
		default:
			return res, fmt.Errorf("pipeline: ingest read: %w", rerr)
		}
		res.FramesReceived++
		m.FramesReceived.Add(ctx, 1, attr)

		if first {
			if ferr := audio.CheckFormat(in.cfg.Format, frame.Format()); ferr != nil {
				return res, fmt.Errorf("pipeline: ingest: %w", ferr)
			}
			first = false
		}

		if sess != nil {
			ev, gerr := sess.ProcessFrame(frame.Data)
			if gerr != nil {
				return res, fmt.Errorf("pipeline: ingest gate: %w", gerr)
			}
			if ev.Type == vad.VADSpeechEnd {
				res.Reason = ReasonUtteranceComplete
				return res, nil
			}
			if !ev.Type.Writes() {
				res.FramesDropped++
				m.FramesDropped.Add(ctx, 1, attr)
				continue
			}
			frame = audio.TrimLeading(frame, in.opts.gateCfg.LeadingSkip)
		}

		if werr := w.Write(frame); werr != nil {
			return res, fmt.Errorf("pipeline: ingest write: %w", werr)
		}
		res.FramesWritten++
		m.FramesWritten.Add(ctx, 1, attr)
	}
}
