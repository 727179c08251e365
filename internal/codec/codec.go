// Package codec decodes audio files into floating-point sample fragments.
//
// A Decoder wraps one container/codec backend selected by file extension
// (mp3, ogg vorbis, flac, wav) and presents packet-oriented decoding with
// per-fragment end timestamps, sample-accurate seeking, and bounded
// tolerance for corrupt packets. Decode glitches must not kill playback:
// consecutive failures are retried with the next packet, and persistent
// corruption degrades to an early end of stream instead of an error.
package codec

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrUnsupportedFormat is returned by Open when the file has no
	// recognized audio stream or no decoder exists for its codec.
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrSeekOutOfRange is returned by Seek when the target lies beyond
	// the end of the stream. The decode position is left unchanged.
	ErrSeekOutOfRange = errors.New("seek target out of range")
)

// maxDecodeErrors is how many consecutive packet failures are swallowed
// before the stream is treated as ended. The counter resets on any
// successful packet.
const maxDecodeErrors = 3

// Format describes the layout of a decoded stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Fragment is one decoded chunk of interleaved samples together with the
// track position at which the chunk ends. Fragments are produced once and
// not retained by the decoder.
type Fragment struct {
	Samples   []float32
	Channels  int
	Timestamp time.Duration
}

// backend is one container/codec implementation. readPacket returns the
// next packet's interleaved samples, io.EOF on normal exhaustion, or a
// decode error that the Decoder may retry past. seek positions the stream
// at or before the requested frame and reports the frame actually landed
// on. totalFrames is 0 when the stream length is unknown.
type backend interface {
	readPacket() ([]float32, error)
	seek(frame int64) (int64, error)
	format() Format
	totalFrames() int64
	io.Closer
}

// Decoder turns an audio file into a sequence of Fragments. It is owned by
// a single playback session and is not safe for concurrent use.
type Decoder struct {
	b      backend
	fm     Format
	frames int64 // frames decoded so far; position of the next frame
}

// Open probes path by its extension and constructs a decoder for it.
// Returns ErrUnsupportedFormat for unknown extensions and for files whose
// headers cannot be parsed as the hinted format.
func Open(path string) (*Decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	var b backend
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".mp3":
		b, err = newMP3Backend(f)
	case ".ogg", ".oga":
		b, err = newVorbisBackend(f)
	case ".flac":
		b, err = newFLACBackend(f)
	case ".wav", ".wave":
		b, err = newWAVBackend(f)
	default:
		f.Close()
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	return &Decoder{b: b, fm: b.format()}, nil
}

// SupportedExtension reports whether Open has a backend for the given
// file extension (as returned by filepath.Ext, case-insensitive).
func SupportedExtension(ext string) bool {
	switch strings.ToLower(ext) {
	case ".mp3", ".ogg", ".oga", ".flac", ".wav", ".wave":
		return true
	}
	return false
}

// Format reports the stream's sample rate and channel count.
func (d *Decoder) Format() Format {
	return d.fm
}

// Duration reports the total stream duration, or 0 when unknown.
func (d *Decoder) Duration() time.Duration {
	return framesToDuration(d.b.totalFrames(), d.fm.SampleRate)
}

// Position reports the timestamp of the next frame to be decoded.
func (d *Decoder) Position() time.Duration {
	return framesToDuration(d.frames, d.fm.SampleRate)
}

// NextFragment decodes the next packet. On normal exhaustion it returns
// io.EOF, which callers must treat as end of stream rather than a failure.
// Corrupt packets are skipped; more than maxDecodeErrors consecutive
// failures also end the stream.
func (d *Decoder) NextFragment() (*Fragment, error) {
	failures := 0
	for {
		samples, err := d.b.readPacket()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			failures++
			if failures > maxDecodeErrors {
				return nil, io.EOF
			}
			continue
		}
		if len(samples) == 0 {
			continue
		}

		d.frames += int64(len(samples) / d.fm.Channels)
		return &Fragment{
			Samples:   samples,
			Channels:  d.fm.Channels,
			Timestamp: framesToDuration(d.frames, d.fm.SampleRate),
		}, nil
	}
}

// Seek positions the stream so that the next fragment ends at or after
// target. Accurate mode: the backend lands on the nearest frame boundary
// at or before the target, never after it. Negative targets clamp to the
// start of the stream.
func (d *Decoder) Seek(target time.Duration) error {
	if target < 0 {
		target = 0
	}

	frame := int64(target) * int64(d.fm.SampleRate) / int64(time.Second)
	if total := d.b.totalFrames(); total > 0 && frame > total {
		return fmt.Errorf("%w: %v", ErrSeekOutOfRange, target)
	}

	landed, err := d.b.seek(frame)
	if err != nil {
		return fmt.Errorf("seek to %v failed: %w", target, err)
	}
	d.frames = landed
	return nil
}

// Close releases the backend and its file handle.
func (d *Decoder) Close() error {
	return d.b.Close()
}

func framesToDuration(frames int64, rate int) time.Duration {
	if rate <= 0 || frames <= 0 {
		return 0
	}
	return time.Duration(frames * int64(time.Second) / int64(rate))
}
