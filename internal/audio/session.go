package audio

import (
	"encoding/binary"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep/v2"

	"github.com/deifactor/deimos/internal/codec"
)

const (
	// blockFrames is how many device frames the decode worker hands to the
	// ring at a time. 2048 frames is roughly 46ms at 44.1kHz.
	blockFrames = 2048

	// resampleQuality is beep's resampler quality setting, a reasonable
	// speed/accuracy tradeoff for music.
	resampleQuality = 4
)

// block is one run of device-format PCM tagged with the seek generation that
// produced it.
type block struct {
	gen uint64
	pcm []byte
}

// session is one live playback pipeline: decoder -> bridge -> decode worker
// -> bounded ring -> sourceReader pulled by the device. The worker owns all
// file I/O; the device side only ever drains the ring.
type session struct {
	dec        *codec.Decoder
	bridge     *SampleBridge
	stream     beep.Streamer
	reader     *sourceReader
	out        Stream
	srcFormat  codec.Format
	deviceRate int

	ring chan block
	gen  atomic.Uint64

	// mu serializes seeks against the decode worker. The device pull path
	// never takes it.
	mu sync.Mutex

	quit chan struct{}
	done chan struct{}
}

func newSession(dec *codec.Decoder, deviceRate, ringBlocks int, paused *atomic.Bool, volume *atomic.Uint64) *session {
	s := &session{
		dec:        dec,
		srcFormat:  dec.Format(),
		deviceRate: deviceRate,
		ring:       make(chan block, ringBlocks),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	s.bridge = NewSampleBridge(dec)
	s.buildStream()
	s.reader = &sourceReader{ring: s.ring, gen: &s.gen, paused: paused, volume: volume}
	return s
}

// buildStream assembles the bridge-to-device conversion chain: remix to
// stereo, then resample if the track's rate differs from the device's.
func (s *session) buildStream() {
	var st beep.Streamer = &bridgeStreamer{bridge: s.bridge, channels: s.srcFormat.Channels}
	if s.srcFormat.SampleRate != s.deviceRate {
		st = beep.Resample(resampleQuality, beep.SampleRate(s.srcFormat.SampleRate), beep.SampleRate(s.deviceRate), st)
	}
	s.stream = st
}

// start launches the decode worker and opens the device stream. On failure
// the worker is joined before returning; the decoder is left to the caller.
func (s *session) start(dev Device) error {
	go s.run()
	out, err := dev.Start(s.reader)
	if err != nil {
		close(s.quit)
		<-s.done
		return err
	}
	s.out = out
	return nil
}

// run is the decode worker. It pulls blocks through the conversion chain and
// pushes them into the ring, blocking when the ring is full. The ring bound
// is what throttles decoding to playback speed.
func (s *session) run() {
	defer close(s.done)
	buf := make([][2]float64, blockFrames)
	for {
		select {
		case <-s.quit:
			return
		default:
		}

		s.mu.Lock()
		gen := s.gen.Load()
		n, _ := s.stream.Stream(buf)
		s.mu.Unlock()
		if n == 0 {
			continue
		}

		select {
		case s.ring <- block{gen: gen, pcm: encodePCM(buf[:n])}:
		case <-s.quit:
			return
		}
	}
}

// seek repositions the decoder. The generation bump makes the reader discard
// any blocks decoded before the seek, and the conversion chain is rebuilt so
// the resampler does not smear pre-seek history into the new position.
func (s *session) seek(target time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.dec.Seek(target); err != nil {
		return err
	}
	s.bridge.Reset()
	s.buildStream()
	s.gen.Add(1)
	return nil
}

// stop joins the worker, closes the device stream, and releases the decoder.
func (s *session) stop() {
	close(s.quit)
	<-s.done
	s.reader.close()
	if s.out != nil {
		s.out.Close()
	}
	if err := s.dec.Close(); err != nil {
		log.Printf("[AUDIO] Closing decoder: %v", err)
	}
}

// bridgeStreamer adapts a SampleBridge to beep's stereo streamer interface.
// Mono input is duplicated onto both sides; streams with more than two
// channels are averaged down.
type bridgeStreamer struct {
	bridge   *SampleBridge
	channels int
}

func (bs *bridgeStreamer) Stream(samples [][2]float64) (int, bool) {
	for i := range samples {
		switch bs.channels {
		case 1:
			v := float64(bs.bridge.NextSample())
			samples[i][0], samples[i][1] = v, v
		case 2:
			samples[i][0] = float64(bs.bridge.NextSample())
			samples[i][1] = float64(bs.bridge.NextSample())
		default:
			var sum float64
			for c := 0; c < bs.channels; c++ {
				sum += float64(bs.bridge.NextSample())
			}
			v := sum / float64(bs.channels)
			samples[i][0], samples[i][1] = v, v
		}
	}
	return len(samples), true
}

func (bs *bridgeStreamer) Err() error { return nil }

// encodePCM converts stereo float frames to 16-bit little-endian PCM,
// clamping out-of-range values.
func encodePCM(frames [][2]float64) []byte {
	pcm := make([]byte, len(frames)*outputChannels*outputBytesPerSample)
	for i, f := range frames {
		l := int16(clampSample(f[0]) * 32767)
		r := int16(clampSample(f[1]) * 32767)
		binary.LittleEndian.PutUint16(pcm[i*4:], uint16(l))
		binary.LittleEndian.PutUint16(pcm[i*4+2:], uint16(r))
	}
	return pcm
}

func clampSample(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
