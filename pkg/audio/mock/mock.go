// Package mock provides in-memory mock implementations of the
// [audio.Platform], [audio.Connection], [audio.FrameSource], and
// [audio.FrameSink] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	conn := mock.NewConnection()
//	platform := &mock.Platform{ConnectResult: conn}
//	got, err := platform.Connect(ctx, "room-42")
//	conn.EmitEvent(audio.Event{
//	    Type:          audio.EventTrackSubscribed,
//	    ParticipantID: "alice",
//	    TrackID:       "TR_1",
//	    Source:        &mock.Source{Frames: frames},
//	})
package mock

import (
	"context"
	"io"
	"sync"

	"github.com/MrWong99/wavbridge/pkg/audio"
)

// ─── Source ───────────────────────────────────────────────────────────────────

// Source is a mock implementation of [audio.FrameSource]. It returns Frames
// in order, then Err (io.EOF when Err is nil). When Hold is set, the source
// blocks after the scripted frames until ctx is cancelled instead of ending.
type Source struct {
	mu sync.Mutex

	// Frames are returned by successive NextFrame calls.
	Frames []audio.AudioFrame

	// Err is returned once Frames is exhausted. Defaults to io.EOF.
	Err error

	// Hold keeps the stream open after Frames is exhausted.
	Hold bool

	// CallCountNextFrame records how many times NextFrame was called.
	CallCountNextFrame int

	next int
}

// NextFrame implements [audio.FrameSource].
func (s *Source) NextFrame(ctx context.Context) (audio.AudioFrame, error) {
	s.mu.Lock()
	s.CallCountNextFrame++
	if err := ctx.Err(); err != nil {
		s.mu.Unlock()
		return audio.AudioFrame{}, err
	}
	if s.next < len(s.Frames) {
		f := s.Frames[s.next]
		s.next++
		s.mu.Unlock()
		return f, nil
	}
	hold, err := s.Hold, s.Err
	s.mu.Unlock()

	if hold {
		<-ctx.Done()
		return audio.AudioFrame{}, ctx.Err()
	}
	if err == nil {
		err = io.EOF
	}
	return audio.AudioFrame{}, err
}

// ─── Sink ─────────────────────────────────────────────────────────────────────

// Sink is a mock implementation of [audio.FrameSink] that records accepted
// frames.
type Sink struct {
	mu sync.Mutex

	// FormatResult is returned by Format.
	FormatResult audio.Format

	// AcceptError, if non-nil, is returned by Accept once AcceptErrorAfter
	// frames have been accepted.
	AcceptError error

	// AcceptErrorAfter is the number of frames accepted before AcceptError is
	// returned.
	AcceptErrorAfter int

	// OnAccept, if set, is called with each accepted frame's index. It runs
	// outside the mock's lock and may block or cancel a context.
	OnAccept func(n int)

	// CloseError is returned by Close.
	CloseError error

	// Accepted records every accepted frame in order.
	Accepted []audio.AudioFrame

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// Format implements [audio.FrameSink].
func (s *Sink) Format() audio.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.FormatResult
}

// Accept implements [audio.FrameSink].
func (s *Sink) Accept(ctx context.Context, frame audio.AudioFrame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.CallCountClose > 0 {
		s.mu.Unlock()
		return audio.ErrSinkClosed
	}
	if s.AcceptError != nil && len(s.Accepted) >= s.AcceptErrorAfter {
		s.mu.Unlock()
		return s.AcceptError
	}
	cp := frame
	cp.Data = append([]byte(nil), frame.Data...)
	s.Accepted = append(s.Accepted, cp)
	n := len(s.Accepted)
	hook := s.OnAccept
	s.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return nil
}

// Close implements [audio.FrameSink].
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	return s.CloseError
}

// Frames returns a copy of the accepted frames.
func (s *Sink) Frames() []audio.AudioFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audio.AudioFrame, len(s.Accepted))
	copy(out, s.Accepted)
	return out
}

// Closed reports whether Close has been called.
func (s *Sink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountClose > 0
}

// ─── Connection ───────────────────────────────────────────────────────────────

// PublishCall records the arguments of a single [Connection.Publish]
// invocation.
type PublishCall struct {
	Name   string
	Format audio.Format
}

// Connection is a mock implementation of [audio.Connection]. Create it with
// [NewConnection]; set the exported Result fields before use and inspect the
// Call* fields after.
type Connection struct {
	mu sync.Mutex

	// PublishResult is returned by Publish. When nil, Publish returns a new
	// [*Sink] carrying the requested format.
	PublishResult audio.FrameSink

	// PublishError is returned by Publish.
	PublishError error

	// DisconnectError is returned by Disconnect.
	DisconnectError error

	// PublishCalls records every Publish invocation.
	PublishCalls []PublishCall

	// Sinks records every sink handed out by Publish.
	Sinks []audio.FrameSink

	// CallCountDisconnect records how many times Disconnect was called.
	CallCountDisconnect int

	events    chan audio.Event
	closeOnce sync.Once
}

// NewConnection returns a Connection whose event channel buffers up to 64
// events.
func NewConnection() *Connection {
	return &Connection{events: make(chan audio.Event, 64)}
}

// Events implements [audio.Connection].
func (c *Connection) Events() <-chan audio.Event { return c.events }

// Publish implements [audio.Connection].
func (c *Connection) Publish(_ context.Context, name string, format audio.Format) (audio.FrameSink, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.PublishCalls = append(c.PublishCalls, PublishCall{Name: name, Format: format})
	if c.PublishError != nil {
		return nil, c.PublishError
	}
	sink := c.PublishResult
	if sink == nil {
		sink = &Sink{FormatResult: format}
	}
	c.Sinks = append(c.Sinks, sink)
	return sink, nil
}

// Disconnect implements [audio.Connection]. The first call emits
// [audio.EventDisconnected] and closes the event channel.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	c.CallCountDisconnect++
	err := c.DisconnectError
	c.mu.Unlock()
	c.CloseEvents()
	return err
}

// EmitEvent delivers ev on the event channel. Use this in tests to simulate
// participants and tracks coming and going.
func (c *Connection) EmitEvent(ev audio.Event) {
	c.events <- ev
}

// CloseEvents emits [audio.EventDisconnected] and closes the event channel,
// simulating the room going away. Safe to call more than once.
func (c *Connection) CloseEvents() {
	c.closeOnce.Do(func() {
		c.events <- audio.Event{Type: audio.EventDisconnected}
		close(c.events)
	})
}

// PublishedSinks returns a copy of the sinks handed out so far.
func (c *Connection) PublishedSinks() []audio.FrameSink {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]audio.FrameSink, len(c.Sinks))
	copy(out, c.Sinks)
	return out
}

// ─── Platform ─────────────────────────────────────────────────────────────────

// ConnectCall records the arguments of a single [Platform.Connect] invocation.
type ConnectCall struct {
	// Room is the room argument passed to Connect.
	Room string
}

// Platform is a mock implementation of [audio.Platform].
type Platform struct {
	mu sync.Mutex

	// ConnectResult is the [audio.Connection] returned by Connect.
	ConnectResult audio.Connection

	// ConnectError is the error returned by Connect.
	ConnectError error

	// ConnectCalls records all Connect invocations.
	ConnectCalls []ConnectCall
}

// Connect implements [audio.Platform]. Records the call and returns
// ConnectResult / ConnectError.
func (p *Platform) Connect(_ context.Context, room string) (audio.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Room: room})
	return p.ConnectResult, p.ConnectError
}

var (
	_ audio.FrameSource = (*Source)(nil)
	_ audio.FrameSink   = (*Sink)(nil)
	_ audio.Connection  = (*Connection)(nil)
	_ audio.Platform    = (*Platform)(nil)
)
