package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// stubBackend feeds a scripted sequence of packets to the Decoder.
type stubBackend struct {
	packets []stubPacket
	pos     int
	fm      Format
	total   int64
}

type stubPacket struct {
	samples []float32
	err     error
}

func (s *stubBackend) readPacket() ([]float32, error) {
	if s.pos >= len(s.packets) {
		return nil, io.EOF
	}
	p := s.packets[s.pos]
	s.pos++
	return p.samples, p.err
}

func (s *stubBackend) seek(frame int64) (int64, error) { return frame, nil }
func (s *stubBackend) format() Format                  { return s.fm }
func (s *stubBackend) totalFrames() int64              { return s.total }
func (s *stubBackend) Close() error                    { return nil }

func stereoPacket(frames int) stubPacket {
	return stubPacket{samples: make([]float32, frames*2)}
}

func decodeErr() stubPacket {
	return stubPacket{err: fmt.Errorf("corrupt packet")}
}

func newStubDecoder(total int64, packets ...stubPacket) *Decoder {
	b := &stubBackend{
		packets: packets,
		fm:      Format{SampleRate: 44100, Channels: 2},
		total:   total,
	}
	return &Decoder{b: b, fm: b.format()}
}

func TestFragmentTimestampsAreCumulativeEnds(t *testing.T) {
	d := newStubDecoder(0, stereoPacket(4410), stereoPacket(4410))

	f1, err := d.NextFragment()
	if err != nil {
		t.Fatalf("NextFragment failed: %v", err)
	}
	if f1.Timestamp != 100*time.Millisecond {
		t.Errorf("Expected first fragment to end at 100ms, got %v", f1.Timestamp)
	}

	f2, err := d.NextFragment()
	if err != nil {
		t.Fatalf("NextFragment failed: %v", err)
	}
	if f2.Timestamp != 200*time.Millisecond {
		t.Errorf("Expected second fragment to end at 200ms, got %v", f2.Timestamp)
	}

	if _, err := d.NextFragment(); err != io.EOF {
		t.Errorf("Expected io.EOF at end of stream, got %v", err)
	}
}

func TestDecodeErrorsAreRetried(t *testing.T) {
	// Three consecutive failures must be swallowed and the next good
	// packet returned.
	d := newStubDecoder(0,
		stereoPacket(100),
		decodeErr(), decodeErr(), decodeErr(),
		stereoPacket(100),
	)

	if _, err := d.NextFragment(); err != nil {
		t.Fatalf("First fragment failed: %v", err)
	}
	f, err := d.NextFragment()
	if err != nil {
		t.Fatalf("Expected recovery after 3 consecutive errors, got %v", err)
	}
	if f.Timestamp == 0 {
		t.Error("Recovered fragment has no timestamp")
	}
}

func TestFourConsecutiveErrorsEndTheStream(t *testing.T) {
	d := newStubDecoder(0,
		stereoPacket(100),
		decodeErr(), decodeErr(), decodeErr(), decodeErr(),
		stereoPacket(100), // must never be reached
	)

	if _, err := d.NextFragment(); err != nil {
		t.Fatalf("First fragment failed: %v", err)
	}
	if _, err := d.NextFragment(); err != io.EOF {
		t.Errorf("Expected io.EOF after a fourth consecutive failure, got %v", err)
	}
}

func TestErrorCountResetsOnSuccess(t *testing.T) {
	// Six failures in total, but never more than three in a row: the
	// stream must survive all of them.
	d := newStubDecoder(0,
		decodeErr(), decodeErr(), decodeErr(), stereoPacket(10),
		decodeErr(), decodeErr(), decodeErr(), stereoPacket(10),
	)

	for i := 0; i < 2; i++ {
		if _, err := d.NextFragment(); err != nil {
			t.Fatalf("Fragment %d failed: %v", i, err)
		}
	}
}

func TestSeekBeyondEndReportsErrorAndKeepsPosition(t *testing.T) {
	d := newStubDecoder(44100, stereoPacket(4410))

	if _, err := d.NextFragment(); err != nil {
		t.Fatal(err)
	}
	before := d.Position()

	err := d.Seek(2 * time.Second)
	if !errors.Is(err, ErrSeekOutOfRange) {
		t.Errorf("Expected ErrSeekOutOfRange, got %v", err)
	}
	if d.Position() != before {
		t.Errorf("Position changed on failed seek: %v -> %v", before, d.Position())
	}
}

func TestSeekClampsNegativeTargets(t *testing.T) {
	d := newStubDecoder(44100)
	if err := d.Seek(-5 * time.Second); err != nil {
		t.Fatalf("Seek(-5s) should clamp to start, got %v", err)
	}
	if d.Position() != 0 {
		t.Errorf("Expected position 0, got %v", d.Position())
	}
}

// writeWAV synthesizes a 16-bit PCM wav file with a deterministic ramp so
// tests can verify exact seek positions.
func writeWAV(t *testing.T, path string, rate, channels, frames int) {
	t.Helper()

	var buf bytes.Buffer
	dataSize := frames * channels * 2
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(rate))
	binary.Write(&buf, binary.LittleEndian, uint32(rate*channels*2))
	binary.Write(&buf, binary.LittleEndian, uint16(channels*2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataSize))
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			binary.Write(&buf, binary.LittleEndian, int16(i%8000))
		}
	}

	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestWAVDecodeToExactDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "three.wav")
	writeWAV(t, path, 8000, 1, 24000) // exactly 3 seconds

	d, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer d.Close()

	if fm := d.Format(); fm.SampleRate != 8000 || fm.Channels != 1 {
		t.Fatalf("Unexpected format: %+v", fm)
	}
	if d.Duration() != 3*time.Second {
		t.Errorf("Expected duration 3s, got %v", d.Duration())
	}

	var last time.Duration
	var frames int
	for {
		f, err := d.NextFragment()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("NextFragment failed: %v", err)
		}
		if f.Timestamp <= last {
			t.Fatalf("Timestamps not increasing: %v then %v", last, f.Timestamp)
		}
		last = f.Timestamp
		frames += len(f.Samples) / f.Channels
	}

	if last != 3*time.Second {
		t.Errorf("Expected last fragment to end at 3s, got %v", last)
	}
	if frames != 24000 {
		t.Errorf("Expected 24000 frames, got %d", frames)
	}
}

func TestWAVSeekLandsAtOrBeforeTarget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seek.wav")
	writeWAV(t, path, 8000, 1, 24000)

	d, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer d.Close()

	target := 1500 * time.Millisecond
	if err := d.Seek(target); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}

	f, err := d.NextFragment()
	if err != nil {
		t.Fatalf("NextFragment after seek failed: %v", err)
	}
	if f.Timestamp < target {
		t.Errorf("Fragment after seek ends at %v, before target %v", f.Timestamp, target)
	}

	// Frame 12000 of the ramp carries value 12000 % 8000 = 4000.
	if want := float32(4000) / 32768; f.Samples[0] != want {
		t.Errorf("Expected first sample %v at the seek point, got %v", want, f.Samples[0])
	}
}

func TestWAVSeekBeyondEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.wav")
	writeWAV(t, path, 8000, 2, 8000)

	d, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer d.Close()

	if err := d.Seek(10 * time.Second); !errors.Is(err, ErrSeekOutOfRange) {
		t.Errorf("Expected ErrSeekOutOfRange, got %v", err)
	}
}

func TestOpenUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.xyz")
	if err := os.WriteFile(path, []byte("data"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := Open(path); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestOpenGarbageHeader(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"bad.flac", "bad.ogg", "bad.wav"} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("certainly not audio"), 0600); err != nil {
			t.Fatal(err)
		}
		if _, err := Open(path); !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("%s: expected ErrUnsupportedFormat, got %v", name, err)
		}
	}
}

func TestOpenMissingFile(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "gone.mp3")); err == nil {
		t.Error("Expected error for missing file, got nil")
	}
}
