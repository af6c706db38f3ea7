// Package wav reads and writes PCM WAV containers one [audio.AudioFrame] at a
// time.
//
// A [Writer] commits the RIFF header for its stream format when it is created
// and finalises the chunk sizes on Close. A [Reader] parses the header on
// Open and hands out frames of a caller-chosen sample count until the data
// chunk is exhausted. Both are owned by exactly one pipeline and are not safe
// for concurrent use by multiple streams.
package wav

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	goaudio "github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"

	"github.com/MrWong99/wavbridge/pkg/audio"
)

// wavFormatPCM is the WAVE_FORMAT_PCM format tag.
const wavFormatPCM = 1

// ErrClosed is returned by Write and ReadFrame after Close.
var ErrClosed = errors.New("wav: container is closed")

// Writer appends PCM frames to a WAV file.
type Writer struct {
	path   string
	format audio.Format

	mu      sync.Mutex
	f       *os.File
	enc     *gowav.Encoder
	samples int
	closed  bool
}

// Create validates format, creates any missing parent directories, creates or
// truncates the file at path, and commits a WAV header for format.
//
// It returns an error wrapping [audio.ErrUnsupportedFormat] before touching
// the filesystem when format is not fixed-width PCM, and an [*audio.IOError]
// when the path cannot be created.
func Create(path string, format audio.Format) (*Writer, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("wav: create %q: %w", path, err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &audio.IOError{Op: "mkdir", Path: dir, Err: err}
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, &audio.IOError{Op: "create", Path: path, Err: err}
	}

	enc := gowav.NewEncoder(f, format.SampleRate, format.BitDepth, format.Channels, wavFormatPCM)
	// An empty buffer forces the encoder to emit the RIFF, fmt and data chunk
	// headers now rather than on the first frame.
	if err := enc.Write(newIntBuffer(format, nil)); err != nil {
		_ = f.Close()
		return nil, &audio.IOError{Op: "write header", Path: path, Err: err}
	}

	return &Writer{path: path, format: format, f: f, enc: enc}, nil
}

// Path returns the file path the writer was created with.
func (w *Writer) Path() string { return w.path }

// Format returns the stream format committed to the header.
func (w *Writer) Format() audio.Format { return w.format }

// SamplesWritten returns the number of samples per channel appended so far.
func (w *Writer) SamplesWritten() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.samples
}

// Write appends frame's payload to the data chunk. The frame must carry the
// writer's format exactly; otherwise a [*audio.FormatMismatchError] is
// returned and nothing is written.
func (w *Writer) Write(frame audio.AudioFrame) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if err := audio.CheckFormat(w.format, frame.Format()); err != nil {
		return err
	}
	if err := frame.Validate(); err != nil {
		return fmt.Errorf("wav: write %q: %w", w.path, err)
	}
	if len(frame.Data) == 0 {
		return nil
	}

	buf := newIntBuffer(w.format, decodeSamples(frame.Data, w.format.BytesPerSample()))
	if err := w.enc.Write(buf); err != nil {
		return &audio.IOError{Op: "write", Path: w.path, Err: err}
	}
	w.samples += frame.SampleCount()
	return nil
}

// Close finalises the header's declared lengths and closes the file. Calling
// Close more than once is a no-op.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	encErr := w.enc.Close()
	closeErr := w.f.Close()
	if err := errors.Join(encErr, closeErr); err != nil {
		return &audio.IOError{Op: "close", Path: w.path, Err: err}
	}
	return nil
}

func newIntBuffer(format audio.Format, data []int) *goaudio.IntBuffer {
	if data == nil {
		data = []int{}
	}
	return &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: format.Channels,
			SampleRate:  format.SampleRate,
		},
		Data:           data,
		SourceBitDepth: format.BitDepth,
	}
}

// decodeSamples converts little-endian PCM into the integer values the
// encoder writes back out byte-for-byte: unsigned for 8-bit WAV, signed for
// wider samples.
func decodeSamples(pcm []byte, width int) []int {
	out := make([]int, len(pcm)/width)
	for i := range out {
		b := pcm[i*width : (i+1)*width]
		switch width {
		case 1:
			out[i] = int(b[0])
		case 2:
			out[i] = int(int16(uint16(b[0]) | uint16(b[1])<<8))
		case 3:
			v := int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16)
			if v&0x800000 != 0 {
				v |= ^0xffffff
			}
			out[i] = int(v)
		case 4:
			out[i] = int(int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24))
		}
	}
	return out
}
