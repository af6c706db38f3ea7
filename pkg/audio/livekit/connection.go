package livekit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v4"

	"github.com/MrWong99/wavbridge/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Connection = (*Connection)(nil)

const eventChannelBuffer = 256

// Connection adapts a joined *lksdk.Room to the [audio.Connection]
// interface. SDK callbacks are translated into [audio.Event] values on a
// buffered channel; each subscribed audio track is decoded by its own
// [trackSource].
//
// Connection is safe for concurrent use.
type Connection struct {
	ingestFormat audio.Format

	mu      sync.RWMutex
	room    *lksdk.Room
	sources map[string]*trackSource // keyed by track SID
	closed  bool

	events    chan audio.Event
	done      chan struct{}
	closeOnce sync.Once

	// disconnectRoom leaves the room. Defaults to room.Disconnect; overridden
	// in tests.
	disconnectRoom func()
}

func newConnection(ingestFormat audio.Format) *Connection {
	return &Connection{
		ingestFormat: ingestFormat,
		sources:      make(map[string]*trackSource),
		events:       make(chan audio.Event, eventChannelBuffer),
		done:         make(chan struct{}),
	}
}

// attach binds the joined room once ConnectToRoomWithToken returns.
func (c *Connection) attach(room *lksdk.Room) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.room = room
	c.disconnectRoom = room.Disconnect
}

// callbacks builds the SDK callback set that feeds the event channel.
func (c *Connection) callbacks() *lksdk.RoomCallback {
	cb := lksdk.NewRoomCallback()
	cb.OnParticipantConnected = func(rp *lksdk.RemoteParticipant) {
		c.emit(audio.Event{Type: audio.EventParticipantConnected, ParticipantID: rp.Identity()})
	}
	cb.OnParticipantDisconnected = func(rp *lksdk.RemoteParticipant) {
		c.emit(audio.Event{Type: audio.EventParticipantDisconnected, ParticipantID: rp.Identity()})
	}
	cb.OnDisconnected = func() {
		slog.Info("livekit: disconnected from room")
		c.finish()
	}
	cb.ParticipantCallback.OnTrackSubscribed = func(track *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		src, err := newTrackSource(track, c.ingestFormat)
		if err != nil {
			slog.Error("livekit: failed to subscribe track", "participant", rp.Identity(), "track", pub.SID(), "error", err)
			return
		}
		c.handleSubscribed(rp.Identity(), pub.SID(), src)
	}
	cb.ParticipantCallback.OnTrackUnsubscribed = func(_ *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
		c.handleTrackEnded(audio.EventTrackUnsubscribed, rp.Identity(), pub.SID())
	}
	cb.ParticipantCallback.OnTrackUnpublished = func(pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
		c.handleTrackEnded(audio.EventTrackUnpublished, rp.Identity(), pub.SID())
	}
	return cb
}

// handleSubscribed registers src and announces it.
func (c *Connection) handleSubscribed(participant, trackID string, src *trackSource) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		src.stop()
		return
	}
	if old, ok := c.sources[trackID]; ok {
		old.stop()
	}
	c.sources[trackID] = src
	c.mu.Unlock()

	slog.Info("livekit: track subscribed", "participant", participant, "track", trackID)
	c.emit(audio.Event{
		Type:          audio.EventTrackSubscribed,
		ParticipantID: participant,
		TrackID:       trackID,
		Source:        src,
	})
}

// handleTrackEnded stops the track's source, which ends its stream with
// io.EOF, and announces the change.
func (c *Connection) handleTrackEnded(typ audio.EventType, participant, trackID string) {
	c.mu.Lock()
	src, ok := c.sources[trackID]
	delete(c.sources, trackID)
	c.mu.Unlock()
	if ok {
		src.stop()
	}
	c.emit(audio.Event{Type: typ, ParticipantID: participant, TrackID: trackID})
}

// Events implements [audio.Connection].
func (c *Connection) Events() <-chan audio.Event { return c.events }

// Publish creates an Opus microphone track named name and returns the sink
// that feeds it. Frames handed to the sink must carry format.
func (c *Connection) Publish(_ context.Context, name string, format audio.Format) (audio.FrameSink, error) {
	c.mu.RLock()
	room, closed := c.room, c.closed
	c.mu.RUnlock()
	if closed || room == nil {
		return nil, errors.New("livekit: publish: connection is closed")
	}

	enc, err := newOpusEncoder(format)
	if err != nil {
		return nil, err
	}
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", name,
	)
	if err != nil {
		return nil, fmt.Errorf("livekit: create local track: %w", err)
	}
	pub, err := room.LocalParticipant.PublishTrack(track, &lksdk.TrackPublicationOptions{
		Name:   name,
		Source: livekit.TrackSource_MICROPHONE,
	})
	if err != nil {
		return nil, fmt.Errorf("livekit: publish track %q: %w", name, err)
	}
	slog.Info("livekit: track published", "name", name, "track", pub.SID(), "format", format.String())

	sid := pub.SID()
	return newTrackSink(format, enc, track, func() error {
		return room.LocalParticipant.UnpublishTrack(sid)
	}), nil
}

// Disconnect leaves the room and ends every track source. It is safe to call
// more than once; subsequent calls are no-ops and return nil.
func (c *Connection) Disconnect() error {
	c.mu.RLock()
	leave := c.disconnectRoom
	c.mu.RUnlock()
	if leave != nil {
		select {
		case <-c.done:
		default:
			leave()
		}
	}
	c.finish()
	return nil
}

// emit delivers ev unless the connection has been torn down.
func (c *Connection) emit(ev audio.Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// finish stops all sources, emits EventDisconnected and closes the event
// channel. It runs once.
func (c *Connection) finish() {
	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		defer c.mu.Unlock()
		c.closed = true
		for id, src := range c.sources {
			src.stop()
			delete(c.sources, id)
		}
		select {
		case c.events <- audio.Event{Type: audio.EventDisconnected}:
		default:
			slog.Warn("livekit: event buffer full, disconnect event dropped")
		}
		close(c.events)
	})
}
