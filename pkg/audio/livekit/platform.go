// Package livekit provides an [audio.Platform] implementation backed by
// LiveKit rooms via github.com/livekit/server-sdk-go. It bridges LiveKit's
// Opus-over-WebRTC tracks with wavbridge's PCM [audio.AudioFrame] pipelines.
//
// Each call to [Platform.Connect] mints an access token for the configured
// identity, joins the room with auto-subscribe, and returns a [Connection]
// that reports room lifecycle as [audio.Event] values. Subscribed audio
// tracks arrive as [audio.FrameSource]s decoded to the ingest format;
// [Connection.Publish] creates an outgoing microphone track fed by an
// [audio.FrameSink].
package livekit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/livekit/protocol/auth"
	lksdk "github.com/livekit/server-sdk-go/v2"

	"github.com/MrWong99/wavbridge/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Platform = (*Platform)(nil)

const (
	defaultIdentity = "wavbridge"
	defaultTokenTTL = 6 * time.Hour
	// ingestFrameDuration is the length of frames delivered by track sources.
	ingestFrameDuration = 10 * time.Millisecond
)

// Platform implements [audio.Platform] for a LiveKit server.
//
// Platform is safe for concurrent use.
type Platform struct {
	url          string
	apiKey       string
	apiSecret    string
	identity     string
	name         string
	tokenTTL     time.Duration
	ingestFormat audio.Format
}

// Option is a functional option for [New].
type Option func(*Platform)

// WithURL sets the LiveKit server URL (ws:// or wss://).
func WithURL(url string) Option {
	return func(p *Platform) { p.url = url }
}

// WithCredentials sets the API key and secret used to mint access tokens.
func WithCredentials(key, secret string) Option {
	return func(p *Platform) {
		p.apiKey = key
		p.apiSecret = secret
	}
}

// WithIdentity sets the participant identity and display name the bridge
// joins with. Defaults to "wavbridge".
func WithIdentity(identity, name string) Option {
	return func(p *Platform) {
		if identity != "" {
			p.identity = identity
		}
		p.name = name
	}
}

// WithTokenTTL sets how long minted access tokens stay valid.
func WithTokenTTL(d time.Duration) Option {
	return func(p *Platform) {
		if d > 0 {
			p.tokenTTL = d
		}
	}
}

// WithIngestFormat sets the PCM format subscribed tracks are decoded to.
// Defaults to 16 kHz mono 16-bit.
func WithIngestFormat(f audio.Format) Option {
	return func(p *Platform) { p.ingestFormat = f }
}

// New creates a LiveKit Platform. URL and credentials are required.
func New(opts ...Option) (*Platform, error) {
	p := &Platform{
		identity:     defaultIdentity,
		tokenTTL:     defaultTokenTTL,
		ingestFormat: audio.PCM16(16000, 1),
	}
	for _, o := range opts {
		o(p)
	}

	var errs []error
	if p.url == "" {
		errs = append(errs, errors.New("livekit: url must not be empty"))
	}
	if p.apiKey == "" || p.apiSecret == "" {
		errs = append(errs, errors.New("livekit: api key and secret must not be empty"))
	}
	if err := p.ingestFormat.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("livekit: ingest format: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return p, nil
}

// Token mints a room-join access token for the platform identity.
func (p *Platform) Token(room string) (string, error) {
	at := auth.NewAccessToken(p.apiKey, p.apiSecret)
	at.SetVideoGrant(&auth.VideoGrant{
		RoomJoin: true,
		Room:     room,
	}).
		SetIdentity(p.identity).
		SetName(p.name).
		SetValidFor(p.tokenTTL)
	tok, err := at.ToJWT()
	if err != nil {
		return "", fmt.Errorf("livekit: mint token for room %q: %w", room, err)
	}
	return tok, nil
}

// Connect joins room and returns an active [audio.Connection]. The supplied
// ctx governs the connection-setup phase only; once the Connection is
// returned it lives until [Connection.Disconnect] is called or the server
// closes the room.
func (p *Platform) Connect(ctx context.Context, room string) (audio.Connection, error) {
	if room == "" {
		return nil, errors.New("livekit: room must not be empty")
	}
	tok, err := p.Token(room)
	if err != nil {
		return nil, err
	}

	conn := newConnection(p.ingestFormat)
	type joined struct {
		room *lksdk.Room
		err  error
	}
	res := make(chan joined, 1)
	go func() {
		r, err := lksdk.ConnectToRoomWithToken(p.url, tok, conn.callbacks(), lksdk.WithAutoSubscribe(true))
		res <- joined{r, err}
	}()

	select {
	case j := <-res:
		if j.err != nil {
			conn.finish()
			return nil, fmt.Errorf("livekit: join room %q: %w", room, j.err)
		}
		conn.attach(j.room)
		return conn, nil
	case <-ctx.Done():
		// The join may still complete; leave the room once it does.
		go func() {
			if j := <-res; j.err == nil {
				j.room.Disconnect()
			}
			conn.finish()
		}()
		return nil, fmt.Errorf("livekit: join room %q: %w", room, ctx.Err())
	}
}
