// Package amplitude provides a [vad.Engine] that gates 16-bit PCM frames on
// peak sample amplitude.
//
// A frame counts as active when at least one sample, after an optional
// leading skip, has an absolute value strictly greater than the configured
// threshold. Sessions start silent, open on the first active frame, and close
// for good once the utterance has gone quiet for longer than the hangover
// window:
//
//	SILENT + active → VADSpeechStart    (write)
//	SILENT + silent → VADSilence        (drop)
//	ACTIVE + active → VADSpeechContinue (write)
//	ACTIVE + silent → VADSpeechEnd      (stop) after HangoverFrames
//
// Example usage:
//
//	eng := amplitude.New()
//	sess, err := eng.NewSession(vad.Config{SampleRate: 16000, Channels: 1, BitDepth: 16})
//	if err != nil {
//	    return err
//	}
//	ev, err := sess.ProcessFrame(pcm)
package amplitude

import (
	"fmt"
	"sync"

	"github.com/MrWong99/wavbridge/pkg/audio"
	"github.com/MrWong99/wavbridge/pkg/provider/vad"
)

// DefaultThreshold is the amplitude a sample must exceed when
// vad.Config.Threshold is zero.
const DefaultThreshold = 10

// WAVHeaderSkip is the leading skip for sources that prefix every chunk with a
// 44-byte WAV header: 22 samples of 16-bit PCM.
const WAVHeaderSkip = 22

var _ vad.Engine = (*Engine)(nil)

// Engine creates amplitude-gated sessions. It holds no state and is safe for
// concurrent use.
type Engine struct {
	defaultThreshold int
}

// Option is a functional option for Engine.
type Option func(*Engine)

// WithDefaultThreshold overrides the threshold used when a session's
// Config.Threshold is zero.
func WithDefaultThreshold(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.defaultThreshold = n
		}
	}
}

// New returns an amplitude Engine.
func New(opts ...Option) *Engine {
	e := &Engine{defaultThreshold: DefaultThreshold}
	for _, o := range opts {
		o(e)
	}
	return e
}

// NewSession implements [vad.Engine]. Only 16-bit PCM is supported.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("amplitude: new session: %w", err)
	}
	if cfg.BitDepth != 0 && cfg.BitDepth != 16 {
		return nil, fmt.Errorf("amplitude: new session: %w: %d-bit samples", vad.ErrUnsupportedFormat, cfg.BitDepth)
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = e.defaultThreshold
	}
	return &Session{cfg: cfg}, nil
}

type state int

const (
	stateSilent state = iota
	stateActive
	stateEnded
)

// Session is a single-stream amplitude gate.
type Session struct {
	cfg vad.Config

	mu     sync.Mutex
	state  state
	quiet  int
	closed bool
}

// ProcessFrame implements [vad.SessionHandle].
func (s *Session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return vad.VADEvent{}, vad.ErrSessionClosed
	}
	block := 2 * s.cfg.Channels
	if len(frame)%block != 0 {
		return vad.VADEvent{}, fmt.Errorf("amplitude: frame length %d is not a multiple of block size %d", len(frame), block)
	}

	if skip := s.cfg.LeadingSkip * block; skip < len(frame) {
		frame = frame[skip:]
	} else {
		frame = nil
	}
	n := audio.CountAbove16(frame, s.cfg.Threshold)
	ev := vad.VADEvent{ActiveSamples: n}
	active := n > 0

	switch s.state {
	case stateSilent:
		if active {
			s.state = stateActive
			s.quiet = 0
			ev.Type = vad.VADSpeechStart
		} else {
			ev.Type = vad.VADSilence
		}
	case stateActive:
		if active {
			s.quiet = 0
			ev.Type = vad.VADSpeechContinue
			break
		}
		s.quiet++
		if s.quiet > s.cfg.HangoverFrames {
			s.state = stateEnded
			ev.Type = vad.VADSpeechEnd
		} else {
			ev.Type = vad.VADSpeechContinue
		}
	case stateEnded:
		ev.Type = vad.VADSpeechEnd
	}
	return ev, nil
}

// Reset implements [vad.SessionHandle].
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = stateSilent
	s.quiet = 0
}

// Close implements [vad.SessionHandle].
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ vad.SessionHandle = (*Session)(nil)
