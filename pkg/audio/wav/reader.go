package wav

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	gowav "github.com/go-audio/wav"

	"github.com/MrWong99/wavbridge/pkg/audio"
)

// ErrCorruptHeader is returned by [Open] when the file does not start with a
// readable RIFF/WAVE header followed by a data chunk.
var ErrCorruptHeader = errors.New("wav: corrupt header")

// Reader hands out frames from the data chunk of a PCM WAV file.
type Reader struct {
	path     string
	format   audio.Format
	dataSize int64

	mu     sync.Mutex
	f      *os.File
	data   io.Reader
	read   int64
	closed bool
}

// Open opens the WAV file at path and parses its header.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &audio.IOError{Op: "open", Path: path, Err: err}
	}

	dec := gowav.NewDecoder(f)
	if err := dec.FwdToPCM(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %q: %v", ErrCorruptHeader, path, err)
	}
	if dec.PCMChunk == nil || dec.NumChans == 0 || dec.SampleRate == 0 {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %q: missing fmt or data chunk", ErrCorruptHeader, path)
	}
	if dec.WavAudioFormat != wavFormatPCM {
		_ = f.Close()
		return nil, fmt.Errorf("wav: open %q: %w: encoding tag %d", path, audio.ErrUnsupportedFormat, dec.WavAudioFormat)
	}

	format := audio.Format{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}
	if err := format.Validate(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("wav: open %q: %w", path, err)
	}

	// The decoder reads the file unbuffered, so after FwdToPCM the file offset
	// sits on the first data byte.
	size := int64(dec.PCMSize)
	return &Reader{
		path:     path,
		format:   format,
		dataSize: size,
		f:        f,
		data:     io.LimitReader(f, size),
	}, nil
}

// Path returns the file path the reader was opened with.
func (r *Reader) Path() string { return r.path }

// Format returns the stream format declared by the header.
func (r *Reader) Format() audio.Format { return r.format }

// Duration returns the playback length declared by the data chunk.
func (r *Reader) Duration() time.Duration {
	block := int64(r.format.BlockAlign())
	samples := r.dataSize / block
	return time.Duration(samples) * time.Second / time.Duration(r.format.SampleRate)
}

// ReadFrame returns the next frame of up to sampleCount samples per channel.
// When the data ends mid-frame the returned frame is shorter; padding is the
// caller's decision. ReadFrame returns io.EOF once no whole sample remains.
func (r *Reader) ReadFrame(sampleCount int) (audio.AudioFrame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return audio.AudioFrame{}, ErrClosed
	}
	if sampleCount <= 0 {
		return audio.AudioFrame{}, fmt.Errorf("wav: read %q: sample count %d must be positive", r.path, sampleCount)
	}

	block := r.format.BlockAlign()
	buf := make([]byte, sampleCount*block)
	n, err := io.ReadFull(r.data, buf)
	switch {
	case err == nil, errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
	default:
		return audio.AudioFrame{}, &audio.IOError{Op: "read", Path: r.path, Err: err}
	}

	offset := r.read / int64(block)
	r.read += int64(n)

	// Drop a trailing partial sample block.
	n -= n % block
	if n == 0 {
		return audio.AudioFrame{}, io.EOF
	}

	return audio.AudioFrame{
		Data:       buf[:n],
		SampleRate: r.format.SampleRate,
		Channels:   r.format.Channels,
		BitDepth:   r.format.BitDepth,
		Timestamp:  time.Duration(offset) * time.Second / time.Duration(r.format.SampleRate),
	}, nil
}

// Close releases the file handle. Calling Close more than once is a no-op.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	if err := r.f.Close(); err != nil {
		return &audio.IOError{Op: "close", Path: r.path, Err: err}
	}
	return nil
}
