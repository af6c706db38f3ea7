package audio

import (
	"fmt"
	"time"
)

// AudioFrame represents a single frame of audio data flowing through the pipeline.
// Frames are the atomic unit of audio transport — received from a live track,
// gated, written to a WAV container, or read back and paced out to a live sink.
//
// A frame is treated as immutable once it has been handed to a consumer.
type AudioFrame struct {
	// PCM audio data, little-endian, interleaved when Channels > 1.
	Data []byte

	// SampleRate in Hz (e.g., 48000 for egress, 16000 for ingest).
	SampleRate int

	// Channels is the number of interleaved channels; 1 for mono.
	Channels int

	// BitDepth is the sample width in bits. Zero is treated as 16.
	BitDepth int

	// Timestamp marks the frame's position relative to stream start.
	Timestamp time.Duration
}

// Format returns the stream format carried by the frame.
func (f AudioFrame) Format() Format {
	return Format{SampleRate: f.SampleRate, Channels: f.Channels, BitDepth: f.bitDepth()}
}

// SampleCount returns the number of samples per channel in the frame.
// It returns 0 when the frame's format is invalid.
func (f AudioFrame) SampleCount() int {
	block := f.Format().BlockAlign()
	if block <= 0 {
		return 0
	}
	return len(f.Data) / block
}

// Duration returns the playback duration of the frame.
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.SampleCount()) * time.Second / time.Duration(f.SampleRate)
}

// Validate checks that the frame's format is supported and that the payload
// holds a whole number of sample blocks.
func (f AudioFrame) Validate() error {
	format := f.Format()
	if err := format.Validate(); err != nil {
		return err
	}
	if len(f.Data)%format.BlockAlign() != 0 {
		return fmt.Errorf("audio: frame payload of %d bytes is not a multiple of the %d-byte block size", len(f.Data), format.BlockAlign())
	}
	return nil
}

func (f AudioFrame) bitDepth() int {
	if f.BitDepth == 0 {
		return 16
	}
	return f.BitDepth
}
