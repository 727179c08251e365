package codec

import (
	"encoding/binary"
	"io"
	"os"

	mp3 "github.com/hajimehoshi/go-mp3"
)

// mp3PacketBytes is one MPEG frame of decoded output: 1152 frames of
// 16-bit stereo.
const mp3PacketBytes = 1152 * 2 * 2

// mp3Backend decodes MPEG layer 3 via go-mp3. The library always emits
// 16-bit little-endian stereo at the source sample rate, and its Seek is
// byte-addressed into that decoded stream, which makes seeking exact.
type mp3Backend struct {
	file *os.File
	dec  *mp3.Decoder
	eof  bool
}

func newMP3Backend(f *os.File) (*mp3Backend, error) {
	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, err
	}
	return &mp3Backend{file: f, dec: dec}, nil
}

func (b *mp3Backend) readPacket() ([]float32, error) {
	if b.eof {
		return nil, io.EOF
	}

	buf := make([]byte, mp3PacketBytes)
	n, err := io.ReadFull(b.dec, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		b.eof = true
		if n == 0 {
			return nil, io.EOF
		}
		err = nil
	}
	if err != nil {
		return nil, err
	}

	n -= n % 4 // whole 16-bit stereo frames only
	samples := make([]float32, n/2)
	for i := 0; i < n; i += 2 {
		samples[i/2] = float32(int16(binary.LittleEndian.Uint16(buf[i:]))) / 32768
	}
	return samples, nil
}

func (b *mp3Backend) seek(frame int64) (int64, error) {
	off, err := b.dec.Seek(frame*4, io.SeekStart)
	if err != nil {
		return 0, err
	}
	b.eof = false
	return off / 4, nil
}

func (b *mp3Backend) format() Format {
	return Format{SampleRate: b.dec.SampleRate(), Channels: 2}
}

func (b *mp3Backend) totalFrames() int64 {
	if n := b.dec.Length(); n > 0 {
		return n / 4
	}
	return 0
}

func (b *mp3Backend) Close() error {
	return b.file.Close()
}
