package pipeline

import (
	"context"
	"errors"

	"github.com/MrWong99/wavbridge/internal/observe"
	"github.com/MrWong99/wavbridge/pkg/audio"
	"github.com/MrWong99/wavbridge/pkg/audio/wav"
	"github.com/MrWong99/wavbridge/pkg/provider/vad"
)

// Reason describes why a pipeline run ended without error.
type Reason string

const (
	// ReasonEndOfStream means the source track or file was exhausted.
	ReasonEndOfStream Reason = "end_of_stream"

	// ReasonUtteranceComplete means the silence gate closed after speech.
	ReasonUtteranceComplete Reason = "utterance_complete"

	// ReasonStopped means the run's context was cancelled.
	ReasonStopped Reason = "stopped"

	// reasonFailed is only used as a metrics outcome.
	reasonFailed Reason = "failed"
)

// options holds configuration shared by [Ingest] and [Egress].
type options struct {
	metrics *observe.Metrics
	gate    vad.Engine
	gateCfg vad.Config
}

// Option is a functional option for [NewIngest] and [NewEgress].
type Option func(*options)

// WithMetrics sets the metrics the pipeline records into. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithGate enables silence gating on ingest. cfg's format fields are filled
// from the ingest format; only Threshold, LeadingSkip and HangoverFrames are
// taken from cfg. Egress ignores this option.
func WithGate(eng vad.Engine, cfg vad.Config) Option {
	return func(o *options) {
		o.gate = eng
		o.gateCfg = cfg
	}
}

func buildOptions(opts []Option) options {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o
}

// isStop reports whether err is the result of ctx being cancelled.
func isStop(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}

// errorKind classifies err for the pipeline error counter.
func errorKind(err error) string {
	var ioErr *audio.IOError
	switch {
	case errors.Is(err, audio.ErrFormatMismatch):
		return "format_mismatch"
	case errors.Is(err, audio.ErrUnsupportedFormat), errors.Is(err, vad.ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, wav.ErrCorruptHeader):
		return "corrupt_header"
	case errors.Is(err, audio.ErrSinkClosed), errors.Is(err, wav.ErrClosed):
		return "closed"
	case errors.As(err, &ioErr):
		return "io"
	default:
		return "other"
	}
}
