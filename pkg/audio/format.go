package audio

import (
	"errors"
	"fmt"
)

// ErrUnsupportedFormat is returned when a stream format cannot be represented
// as fixed-width signed integer PCM (zero rate, zero channels, or a sample
// width outside 1–4 bytes).
var ErrUnsupportedFormat = errors.New("audio: unsupported format")

// ErrFormatMismatch is matched by every [*FormatMismatchError] via [errors.Is].
var ErrFormatMismatch = errors.New("audio: format mismatch")

// Format describes the sample rate, channel count, and sample width of an
// audio stream. Two streams are compatible only when their Formats are equal.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// PCM16 returns a 16-bit signed PCM format at the given rate and channel count.
// All deployed pipelines use this sample width.
func PCM16(sampleRate, channels int) Format {
	return Format{SampleRate: sampleRate, Channels: channels, BitDepth: 16}
}

// Validate reports whether f is a supported fixed-width PCM format.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrUnsupportedFormat, f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("%w: channel count %d", ErrUnsupportedFormat, f.Channels)
	}
	switch f.BitDepth {
	case 8, 16, 24, 32:
	default:
		return fmt.Errorf("%w: bit depth %d (want 8, 16, 24 or 32)", ErrUnsupportedFormat, f.BitDepth)
	}
	return nil
}

// BytesPerSample returns the width of a single sample in bytes.
func (f Format) BytesPerSample() int {
	return f.BitDepth / 8
}

// BlockAlign returns the number of bytes per sample across all channels.
func (f Format) BlockAlign() int {
	return f.BytesPerSample() * f.Channels
}

// SamplesPer returns the number of samples per channel in a frame of the
// given duration in milliseconds, truncating.
func (f Format) SamplesPer(ms int) int {
	return f.SampleRate * ms / 1000
}

// String returns a human-readable form such as "48000Hz mono s16".
func (f Format) String() string {
	return fmt.Sprintf("%s s%d", formatString(f.SampleRate, f.Channels), f.BitDepth)
}

// FormatMismatchError reports that a frame or container does not carry the
// stream format a pipeline was configured with.
type FormatMismatchError struct {
	Want Format
	Got  Format
}

func (e *FormatMismatchError) Error() string {
	return fmt.Sprintf("audio: format mismatch: want %s, got %s", e.Want, e.Got)
}

// Is makes errors.Is(err, ErrFormatMismatch) succeed.
func (e *FormatMismatchError) Is(target error) bool {
	return target == ErrFormatMismatch
}

// CheckFormat returns a [*FormatMismatchError] when got differs from want.
func CheckFormat(want, got Format) error {
	if want != got {
		return &FormatMismatchError{Want: want, Got: got}
	}
	return nil
}

// IOError wraps a file creation, read, or write failure on a WAV container.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("audio: %s %q: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// formatString returns a human-readable string for a sample rate and channel count,
// e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
