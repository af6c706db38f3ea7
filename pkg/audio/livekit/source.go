package livekit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/MrWong99/wavbridge/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.FrameSource = (*trackSource)(nil)

const sourceFrameBuffer = 64

// packetReader returns the payload of the next RTP packet.
type packetReader func() ([]byte, error)

// trackSource decodes a remote Opus track into fixed 10 ms PCM frames.
// A slow consumer stalls the read loop once the frame buffer fills rather
// than losing audio.
type trackSource struct {
	frames chan audio.AudioFrame
	done   chan struct{}

	stopOnce sync.Once
	errMu    sync.Mutex
	err      error
}

// newTrackSource starts decoding track into format.
func newTrackSource(track *webrtc.TrackRemote, format audio.Format) (*trackSource, error) {
	dec, err := newOpusDecoder(format)
	if err != nil {
		return nil, err
	}
	read := func() ([]byte, error) {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return nil, err
		}
		return pkt.Payload, nil
	}
	return startTrackSource(read, dec.decode, format), nil
}

// startTrackSource runs the read loop on its own goroutine.
func startTrackSource(read packetReader, decode func([]byte) ([]byte, error), format audio.Format) *trackSource {
	s := &trackSource{
		frames: make(chan audio.AudioFrame, sourceFrameBuffer),
		done:   make(chan struct{}),
	}
	go s.readLoop(read, decode, newRechunker(format, ingestFrameDuration))
	return s
}

func (s *trackSource) readLoop(read packetReader, decode func([]byte) ([]byte, error), rc *rechunker) {
	defer close(s.frames)
	for {
		payload, err := read()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.setErr(err)
			}
			return
		}
		if len(payload) == 0 {
			continue
		}
		pcm, err := decode(payload)
		if err != nil {
			slog.Warn("livekit: dropping undecodable packet", "error", err)
			continue
		}
		for _, f := range rc.push(pcm) {
			select {
			case s.frames <- f:
			case <-s.done:
				return
			}
		}
	}
}

func (s *trackSource) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	select {
	case <-s.done:
		// A read error after stop is the track tearing down.
	default:
		s.err = err
	}
}

// NextFrame implements [audio.FrameSource]. It returns io.EOF once the track
// has ended or been stopped.
func (s *trackSource) NextFrame(ctx context.Context) (audio.AudioFrame, error) {
	select {
	case <-ctx.Done():
		return audio.AudioFrame{}, ctx.Err()
	case f, ok := <-s.frames:
		if ok {
			return f, nil
		}
	}
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err != nil {
		return audio.AudioFrame{}, s.err
	}
	return audio.AudioFrame{}, io.EOF
}

// stop ends the stream. Frames already buffered are still delivered.
func (s *trackSource) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}
