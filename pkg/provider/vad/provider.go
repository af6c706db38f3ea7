// Package vad defines the Engine interface for voice activity gates.
//
// A VAD engine classifies fixed-size PCM frames as speech or silence and
// surfaces the result as a stateful, per-stream session. Each session tracks
// its own activity state so that concurrent ingest pipelines are gated
// independently.
//
// ProcessFrame is synchronous and returns immediately, which lets the ingest
// driver decide per frame whether to write, drop, or stop.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle belongs to exactly one pipeline.
package vad

import (
	"errors"
	"fmt"
)

// ErrUnsupportedFormat is returned by NewSession when the engine cannot
// analyse frames of the configured format.
var ErrUnsupportedFormat = errors.New("vad: unsupported format")

// ErrSessionClosed is returned by ProcessFrame after Close.
var ErrSessionClosed = errors.New("vad: session closed")

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz of the frames passed to
	// ProcessFrame.
	SampleRate int

	// Channels is the interleaved channel count of each frame.
	Channels int

	// BitDepth is the sample width in bits. Engines document which widths they
	// support.
	BitDepth int

	// Threshold is the absolute sample amplitude a sample must exceed to count
	// as activity. Zero selects the engine default.
	Threshold int

	// LeadingSkip is the number of samples at the start of every frame that
	// are ignored during classification. Sources that prefix each chunk with a
	// 44-byte WAV header set this to 22.
	LeadingSkip int

	// HangoverFrames is the number of consecutive silent frames tolerated
	// inside an utterance before it is considered finished. Zero ends the
	// utterance on the first silent frame.
	HangoverFrames int
}

// Validate reports whether cfg is usable by any engine.
func (c Config) Validate() error {
	var errs []error
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("vad: sample rate %d must be positive", c.SampleRate))
	}
	if c.Channels <= 0 {
		errs = append(errs, fmt.Errorf("vad: channel count %d must be positive", c.Channels))
	}
	if c.Threshold < 0 {
		errs = append(errs, fmt.Errorf("vad: threshold %d must not be negative", c.Threshold))
	}
	if c.LeadingSkip < 0 {
		errs = append(errs, fmt.Errorf("vad: leading skip %d must not be negative", c.LeadingSkip))
	}
	if c.HangoverFrames < 0 {
		errs = append(errs, fmt.Errorf("vad: hangover frames %d must not be negative", c.HangoverFrames))
	}
	return errors.Join(errs...)
}

// SessionHandle represents an active VAD session for a single audio stream. It
// is an interface so that test code can supply mock implementations without a
// live engine.
type SessionHandle interface {
	// ProcessFrame classifies a single frame of raw little-endian PCM and
	// returns the resulting event. It must not block.
	ProcessFrame(frame []byte) (VADEvent, error)

	// Reset returns the session to its initial silent state without closing
	// it.
	Reset()

	// Close releases all resources associated with the session. Calling Close
	// more than once is safe and returns nil.
	Close() error
}

// Engine is the factory for VAD sessions.
//
// Implementations must be safe for concurrent use: multiple goroutines may call
// NewSession simultaneously to create independent sessions.
type Engine interface {
	// NewSession creates a new VAD session with the given configuration.
	// Returns an error if the configuration is invalid for this engine.
	NewSession(cfg Config) (SessionHandle, error)
}
