package codec

import (
	"io"
	"os"

	"github.com/jfreymuth/oggvorbis"
)

// vorbisPacketFrames is how many frames are pulled per packet read.
const vorbisPacketFrames = 2048

// vorbisBackend decodes ogg vorbis via oggvorbis, which natively yields
// interleaved float32 samples and supports sample-exact positioning.
type vorbisBackend struct {
	file *os.File
	r    *oggvorbis.Reader
	buf  []float32
}

func newVorbisBackend(f *os.File) (*vorbisBackend, error) {
	r, err := oggvorbis.NewReader(f)
	if err != nil {
		return nil, err
	}
	return &vorbisBackend{
		file: f,
		r:    r,
		buf:  make([]float32, vorbisPacketFrames*r.Channels()),
	}, nil
}

func (b *vorbisBackend) readPacket() ([]float32, error) {
	n, err := b.r.Read(b.buf)
	if n == 0 {
		if err == nil {
			err = io.EOF
		}
		return nil, err
	}

	out := make([]float32, n)
	copy(out, b.buf[:n])
	return out, nil
}

func (b *vorbisBackend) seek(frame int64) (int64, error) {
	if err := b.r.SetPosition(frame); err != nil {
		return 0, err
	}
	return frame, nil
}

func (b *vorbisBackend) format() Format {
	return Format{SampleRate: b.r.SampleRate(), Channels: b.r.Channels()}
}

func (b *vorbisBackend) totalFrames() int64 {
	return b.r.Length()
}

func (b *vorbisBackend) Close() error {
	return b.file.Close()
}
