// Package audio defines the frame model, stream interfaces, and platform
// abstractions shared by the wavbridge ingest and egress pipelines.
//
// The primary abstractions are:
//
//   - [AudioFrame] and [Format] — fixed-width PCM frames and their stream format.
//   - [FrameSource] and [FrameSink] — the live ends of the ingest and egress
//     pipelines.
//   - [Platform] — connects to a room and returns a [Connection].
//   - [Connection] — an active room session that delivers lifecycle [Event]
//     values on a channel and publishes outgoing streams.
//
// Implementations of Platform live in adapter packages (e.g., audio/livekit).
// The interfaces are intentionally narrow so the pipeline drivers never depend
// on a transport SDK.
package audio

import (
	"context"
)

// EventType classifies room lifecycle events emitted by a [Connection].
type EventType int

const (
	// EventParticipantConnected is emitted when a remote participant joins.
	EventParticipantConnected EventType = iota

	// EventParticipantDisconnected is emitted when a remote participant leaves.
	EventParticipantDisconnected

	// EventTrackSubscribed is emitted when a remote audio track has been
	// subscribed. The event carries the track's [FrameSource].
	EventTrackSubscribed

	// EventTrackUnsubscribed is emitted when a subscription ends.
	EventTrackUnsubscribed

	// EventTrackUnpublished is emitted when a remote participant stops
	// publishing a track.
	EventTrackUnpublished

	// EventDisconnected is emitted once when the connection to the room is lost
	// or closed. No events follow it.
	EventDisconnected
)

// String returns the human-readable name of the event type.
func (e EventType) String() string {
	switch e {
	case EventParticipantConnected:
		return "PARTICIPANT_CONNECTED"
	case EventParticipantDisconnected:
		return "PARTICIPANT_DISCONNECTED"
	case EventTrackSubscribed:
		return "TRACK_SUBSCRIBED"
	case EventTrackUnsubscribed:
		return "TRACK_UNSUBSCRIBED"
	case EventTrackUnpublished:
		return "TRACK_UNPUBLISHED"
	case EventDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// Event describes a lifecycle change in a room.
type Event struct {
	// Type identifies what happened.
	Type EventType

	// ParticipantID is the platform-specific identity of the remote participant.
	// Empty for EventDisconnected.
	ParticipantID string

	// TrackID identifies the track for track events.
	TrackID string

	// Source delivers the track's audio. Only set for EventTrackSubscribed.
	Source FrameSource
}

// FrameSource produces PCM frames from a live track in emission order.
type FrameSource interface {
	// NextFrame blocks until the next frame is available. It returns io.EOF
	// once the track has ended or been unpublished, and ctx.Err() when ctx is
	// cancelled first.
	NextFrame(ctx context.Context) (AudioFrame, error)
}

// FrameSink accepts PCM frames for delivery to a live track.
type FrameSink interface {
	// Format is the stream format the sink expects every frame to carry.
	Format() Format

	// Accept hands frame to the sink and suspends until the sink has room for
	// more. The sink's own flow control sets the delivery rate.
	Accept(ctx context.Context, frame AudioFrame) error

	// Close retracts the published stream. Safe to call more than once.
	Close() error
}

// Connection represents an active session in a room.
//
// A Connection is obtained by calling [Platform.Connect] and remains valid
// until [Connection.Disconnect] is called or the room is closed remotely.
//
// Implementations must be safe for concurrent use.
type Connection interface {
	// Events returns the channel on which lifecycle events are delivered. The
	// channel is closed after EventDisconnected has been delivered.
	Events() <-chan Event

	// Publish creates and publishes an outgoing audio track named name that
	// accepts frames in the given format.
	Publish(ctx context.Context, name string, format Format) (FrameSink, error)

	// Disconnect leaves the room. It is safe to call Disconnect more than
	// once; subsequent calls are no-ops and return nil.
	Disconnect() error
}

// Platform is the entry point for a real-time room provider.
//
// Implementations must be safe for concurrent use.
type Platform interface {
	// Connect joins the room identified by room and returns an active
	// [Connection]. ctx governs the connection attempt only.
	Connect(ctx context.Context, room string) (Connection, error)
}
