package audio

import (
	"context"
	"errors"
	"io"
	"sync"
)

// ErrSinkClosed is returned by [ChanSink.Accept] after Close.
var ErrSinkClosed = errors.New("audio: sink closed")

// ChanSource adapts a receive-only frame channel to [FrameSource]. The
// stream ends when the channel is closed.
type ChanSource struct {
	ch <-chan AudioFrame
}

// NewChanSource returns a [FrameSource] reading from ch.
func NewChanSource(ch <-chan AudioFrame) *ChanSource {
	return &ChanSource{ch: ch}
}

// NextFrame implements [FrameSource].
func (s *ChanSource) NextFrame(ctx context.Context) (AudioFrame, error) {
	select {
	case <-ctx.Done():
		return AudioFrame{}, ctx.Err()
	case f, ok := <-s.ch:
		if !ok {
			return AudioFrame{}, io.EOF
		}
		return f, nil
	}
}

// ChanSink adapts a send-only frame channel to [FrameSink]. Accept blocks
// until the receiver takes the frame, so an unbuffered channel gives exact
// receiver-driven backpressure.
type ChanSink struct {
	ch     chan<- AudioFrame
	format Format

	closeOnce sync.Once
	done      chan struct{}
}

// NewChanSink returns a [FrameSink] writing to ch. The channel is never
// closed by the sink; the caller owns it.
func NewChanSink(ch chan<- AudioFrame, format Format) *ChanSink {
	return &ChanSink{ch: ch, format: format, done: make(chan struct{})}
}

// Format implements [FrameSink].
func (s *ChanSink) Format() Format { return s.format }

// Accept implements [FrameSink].
func (s *ChanSink) Accept(ctx context.Context, frame AudioFrame) error {
	select {
	case <-s.done:
		return ErrSinkClosed
	default:
	}
	select {
	case s.ch <- frame:
		return nil
	case <-s.done:
		return ErrSinkClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements [FrameSink].
func (s *ChanSink) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

// Done returns a channel closed once Close has been called.
func (s *ChanSink) Done() <-chan struct{} { return s.done }
