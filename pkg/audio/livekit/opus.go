package livekit

import (
	"fmt"
	"time"

	"layeh.com/gopus"

	"github.com/MrWong99/wavbridge/pkg/audio"
)

// Opus packets carry at most 120 ms of audio per channel.
const maxOpusPacketMs = 120

// maxOpusPacketBytes bounds a single encoded packet.
const maxOpusPacketBytes = 4000

// opusDecoder decodes one remote track into PCM at the ingest format. Each
// track gets its own decoder to maintain decoder state across packets.
type opusDecoder struct {
	dec       *gopus.Decoder
	frameSize int
}

// newOpusDecoder creates a decoder producing 16-bit PCM in format. Opus
// decodes natively to 8, 12, 16, 24 or 48 kHz with one or two channels.
func newOpusDecoder(format audio.Format) (*opusDecoder, error) {
	if format.BitDepth != 16 {
		return nil, fmt.Errorf("livekit: opus decoder: %w: %d-bit output", audio.ErrUnsupportedFormat, format.BitDepth)
	}
	dec, err := gopus.NewDecoder(format.SampleRate, format.Channels)
	if err != nil {
		return nil, fmt.Errorf("livekit: create opus decoder: %w", err)
	}
	return &opusDecoder{dec: dec, frameSize: format.SampleRate * maxOpusPacketMs / 1000}, nil
}

// decode decodes one Opus packet into little-endian interleaved PCM.
func (d *opusDecoder) decode(packet []byte) ([]byte, error) {
	pcm, err := d.dec.Decode(packet, d.frameSize, false)
	if err != nil {
		return nil, fmt.Errorf("livekit: opus decode: %w", err)
	}
	return audio.Int16Bytes(pcm), nil
}

// opusEncoder encodes PCM frames for a published track.
type opusEncoder struct {
	enc      *gopus.Encoder
	channels int
}

// newOpusEncoder creates a voice-tuned encoder accepting 16-bit PCM in format.
func newOpusEncoder(format audio.Format) (*opusEncoder, error) {
	if format.BitDepth != 16 {
		return nil, fmt.Errorf("livekit: opus encoder: %w: %d-bit input", audio.ErrUnsupportedFormat, format.BitDepth)
	}
	enc, err := gopus.NewEncoder(format.SampleRate, format.Channels, gopus.Voip)
	if err != nil {
		return nil, fmt.Errorf("livekit: create opus encoder: %w", err)
	}
	return &opusEncoder{enc: enc, channels: format.Channels}, nil
}

// encode encodes one frame of interleaved PCM. The frame must span a duration
// Opus supports: 2.5, 5, 10, 20, 40 or 60 ms.
func (e *opusEncoder) encode(pcm []byte) ([]byte, error) {
	samples := audio.Int16Samples(pcm)
	pkt, err := e.enc.Encode(samples, len(samples)/e.channels, maxOpusPacketBytes)
	if err != nil {
		return nil, fmt.Errorf("livekit: opus encode: %w", err)
	}
	return pkt, nil
}

// rechunker slices a stream of variable-sized PCM chunks into fixed-size
// frames. Remote tracks usually send 20 ms packets; ingest works in 10 ms
// frames.
type rechunker struct {
	format     audio.Format
	frameBytes int
	frameDur   time.Duration
	buf        []byte
	ts         time.Duration
}

func newRechunker(format audio.Format, frameDuration time.Duration) *rechunker {
	samples := format.SamplesPer(int(frameDuration / time.Millisecond))
	return &rechunker{
		format:     format,
		frameBytes: samples * format.BlockAlign(),
		frameDur:   frameDuration,
	}
}

// push appends pcm and returns every complete frame now available. Leftover
// bytes are kept for the next call.
func (r *rechunker) push(pcm []byte) []audio.AudioFrame {
	r.buf = append(r.buf, pcm...)
	var out []audio.AudioFrame
	for len(r.buf) >= r.frameBytes {
		data := make([]byte, r.frameBytes)
		copy(data, r.buf[:r.frameBytes])
		r.buf = r.buf[r.frameBytes:]
		out = append(out, audio.AudioFrame{
			Data:       data,
			SampleRate: r.format.SampleRate,
			Channels:   r.format.Channels,
			BitDepth:   r.format.BitDepth,
			Timestamp:  r.ts,
		})
		r.ts += r.frameDur
	}
	return out
}

// pending returns the number of buffered bytes not yet emitted.
func (r *rechunker) pending() int { return len(r.buf) }
