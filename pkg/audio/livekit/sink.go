package livekit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/MrWong99/wavbridge/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.FrameSink = (*trackSink)(nil)

// sampleWriter is the write side of a local track. *webrtc.TrackLocalStaticSample
// implements it.
type sampleWriter interface {
	WriteSample(s media.Sample) error
}

// maxLag is how far behind schedule the sink may fall before it resets its
// clock instead of bursting to catch up.
const maxLag = 200 * time.Millisecond

// trackSink encodes frames to Opus and writes them to a published track at
// real-time rate. Accept blocks until the frame's slot on the playback clock
// arrives, which is the flow control the egress pacer relies on.
type trackSink struct {
	format    audio.Format
	enc       *opusEncoder
	track     sampleWriter
	unpublish func() error
	now       func() time.Time

	mu     sync.Mutex
	next   time.Time
	closed bool
}

func newTrackSink(format audio.Format, enc *opusEncoder, track sampleWriter, unpublish func() error) *trackSink {
	return &trackSink{
		format:    format,
		enc:       enc,
		track:     track,
		unpublish: unpublish,
		now:       time.Now,
	}
}

// Format implements [audio.FrameSink].
func (s *trackSink) Format() audio.Format { return s.format }

// Accept implements [audio.FrameSink].
func (s *trackSink) Accept(ctx context.Context, frame audio.AudioFrame) error {
	if err := audio.CheckFormat(s.format, frame.Format()); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return audio.ErrSinkClosed
	}

	pkt, err := s.enc.encode(frame.Data)
	if err != nil {
		return err
	}

	if wait := s.slot(frame.Duration()); wait > 0 {
		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}

	if err := s.track.WriteSample(media.Sample{Data: pkt, Duration: frame.Duration()}); err != nil {
		return fmt.Errorf("livekit: write sample: %w", err)
	}
	return nil
}

// slot reserves the next playback slot of length d and returns how long to
// wait before it starts.
func (s *trackSink) slot(d time.Duration) time.Duration {
	now := s.now()
	if s.next.IsZero() || now.Sub(s.next) > maxLag {
		s.next = now
	}
	start := s.next
	s.next = s.next.Add(d)
	return start.Sub(now)
}

// Close unpublishes the track. Safe to call more than once.
func (s *trackSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.unpublish == nil {
		return nil
	}
	if err := s.unpublish(); err != nil {
		return fmt.Errorf("livekit: unpublish: %w", err)
	}
	return nil
}
