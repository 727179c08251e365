package audio

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"

	"github.com/hajimehoshi/oto/v2"
)

const (
	outputChannels       = 2
	outputBytesPerSample = 2 // 16-bit PCM
)

// ErrNoOutputDevice is returned when the platform audio backend cannot be
// initialized.
var ErrNoOutputDevice = errors.New("no audio output device available")

// Stream is one running output stream on a Device.
type Stream interface {
	io.Closer
}

// Device opens output streams that pull 16-bit little-endian stereo PCM
// from an io.Reader on the hardware's schedule.
type Device interface {
	Start(r io.Reader) (Stream, error)
	SampleRate() int
}

// OtoDevice drives the platform audio backend through oto. The underlying
// context is process-wide and created once at a fixed rate; every track is
// remixed and resampled to it before reaching the device.
type OtoDevice struct {
	sampleRate int

	once    sync.Once
	ctx     *oto.Context
	initErr error
}

// NewOtoDevice returns a device for the given output sample rate. The
// platform backend is not touched until the first Start call.
func NewOtoDevice(sampleRate int) *OtoDevice {
	return &OtoDevice{sampleRate: sampleRate}
}

// Start initializes the backend on first use and begins pulling from r.
func (d *OtoDevice) Start(r io.Reader) (Stream, error) {
	d.once.Do(func() {
		ctx, ready, err := oto.NewContext(d.sampleRate, outputChannels, outputBytesPerSample)
		if err != nil {
			d.initErr = fmt.Errorf("%w: %v", ErrNoOutputDevice, err)
			return
		}
		<-ready
		d.ctx = ctx
	})
	if d.initErr != nil {
		return nil, d.initErr
	}
	p := d.ctx.NewPlayer(r)
	p.Play()
	return otoStream{p}, nil
}

// SampleRate returns the device's output rate.
func (d *OtoDevice) SampleRate() int {
	return d.sampleRate
}

type otoStream struct {
	player oto.Player
}

func (s otoStream) Close() error {
	return s.player.Close()
}

// sourceReader is the device-facing side of a session. The backend calls
// Read on its own real-time schedule, so Read must never block on decoding
// or on a contended lock: when the ring has nothing ready, or playback is
// paused, it fills the request with silence and the stream keeps running.
// 16-bit silence is all zero bytes.
type sourceReader struct {
	ring   <-chan block
	gen    *atomic.Uint64 // current seek generation; older blocks are stale
	paused *atomic.Bool
	volume *atomic.Uint64 // math.Float64bits of the 0..1 volume

	closed atomic.Bool

	// pending is the remainder of the block currently being drained. Only
	// the Read goroutine touches it.
	pending    []byte
	pendingGen uint64
}

func (r *sourceReader) Read(p []byte) (int, error) {
	if r.closed.Load() {
		return 0, io.EOF
	}
	if r.paused.Load() {
		zeroSamples(p)
		return len(p), nil
	}

	gen := r.gen.Load()
	if len(r.pending) > 0 && r.pendingGen != gen {
		r.pending = nil
	}

	n := 0
	for n < len(p) {
		if len(r.pending) > 0 {
			c := copy(p[n:], r.pending)
			r.pending = r.pending[c:]
			n += c
			continue
		}
		select {
		case blk := <-r.ring:
			if blk.gen != gen {
				// Decoded before the last seek; drop it.
				continue
			}
			r.pending = blk.pcm
			r.pendingGen = blk.gen
		default:
			// Decoder is behind; pad with silence rather than stall the
			// device.
			zeroSamples(p[n:])
			n = len(p)
		}
	}

	if v := math.Float64frombits(r.volume.Load()); v < 1.0 {
		applyVolume(p, v)
	}
	return len(p), nil
}

func (r *sourceReader) close() {
	r.closed.Store(true)
}

// applyVolume scales 16-bit little-endian PCM samples in place.
func applyVolume(data []byte, volume float64) {
	if volume <= 0 {
		zeroSamples(data)
		return
	}
	for i := 0; i < len(data)-1; i += 2 {
		sample := int16(data[i]) | int16(data[i+1])<<8
		scaled := int16(float64(sample) * volume)
		data[i] = byte(scaled)
		data[i+1] = byte(scaled >> 8)
	}
}

func zeroSamples(p []byte) {
	for i := range p {
		p[i] = 0
	}
}

var _ io.Reader = (*sourceReader)(nil)
