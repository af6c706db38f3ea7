package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/wavbridge/internal/observe"
	"github.com/MrWong99/wavbridge/pkg/audio"
	"github.com/MrWong99/wavbridge/pkg/audio/wav"
)

// EgressConfig describes one egress run.
type EgressConfig struct {
	// Path is the WAV file to play.
	Path string

	// Format is the format the file and the sink must both carry.
	Format audio.Format

	// FrameDuration is the length of each emitted frame. Zero selects
	// [DefaultFrameDuration].
	FrameDuration time.Duration
}

// EgressResult summarises a finished egress run.
type EgressResult struct {
	Path          string
	FramesEmitted int
	Reason        Reason
}

// Egress plays one WAV file into one live sink.
type Egress struct {
	cfg   EgressConfig
	opts  options
	pacer *Pacer
}

// NewEgress validates cfg and returns an egress driver.
func NewEgress(cfg EgressConfig, opts ...Option) (*Egress, error) {
	if cfg.Path == "" {
		return nil, errors.New("pipeline: new egress: path must not be empty")
	}
	o := buildOptions(opts)
	p, err := NewPacer(cfg.Format, cfg.FrameDuration, WithPacerMetrics(o.metrics))
	if err != nil {
		return nil, fmt.Errorf("pipeline: new egress: %w", err)
	}
	return &Egress{cfg: cfg, opts: o, pacer: p}, nil
}

// Pacer returns the pacer the egress drives.
func (e *Egress) Pacer() *Pacer { return e.pacer }

// Run opens the configured file and paces it into sink until the file is
// exhausted or ctx is cancelled. The reader is closed before sink, and sink
// is closed on every path out of Run, which retracts the published stream.
func (e *Egress) Run(ctx context.Context, sink audio.FrameSink) (res EgressResult, err error) {
	start := time.Now()
	m := e.opts.metrics
	attr := observe.PipelineAttr(observe.PipelineEgress)

	ctx, span := observe.StartSpan(ctx, "pipeline.egress")
	span.SetAttributes(
		attribute.String("wav.path", e.cfg.Path),
		attribute.String("audio.format", e.cfg.Format.String()),
	)
	defer span.End()
	log := observe.Logger(ctx).With("pipeline", observe.PipelineEgress, "path", e.cfg.Path)

	m.ActivePipelines.Add(ctx, 1, attr)
	defer m.ActivePipelines.Add(ctx, -1, attr)

	res.Path = e.cfg.Path
	defer func() {
		if cerr := sink.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("pipeline: egress retract: %w", cerr))
		}
		outcome := res.Reason
		if err != nil {
			outcome = reasonFailed
			observe.FailSpan(span, err)
			m.RecordPipelineError(ctx, observe.PipelineEgress, errorKind(err))
			log.Error("egress failed", "err", err, "frames_emitted", res.FramesEmitted)
		} else {
			log.Info("egress finished", "reason", res.Reason, "frames_emitted", res.FramesEmitted)
		}
		m.RecordPipelineRun(ctx, observe.PipelineEgress, string(outcome), time.Since(start))
	}()

	r, err := wav.Open(e.cfg.Path)
	if err != nil {
		return res, fmt.Errorf("pipeline: egress: %w", err)
	}
	log.Info("egress started", "format", r.Format().String(), "duration", r.Duration())

	n, err := e.pacer.Run(ctx, r, sink)
	res.FramesEmitted = n
	if cerr := r.Close(); cerr != nil && err == nil {
		err = cerr
	}
	switch {
	case err == nil:
		res.Reason = ReasonEndOfStream
	case isStop(ctx, err):
		res.Reason = ReasonStopped
		err = nil
	}
	return res, err
}
