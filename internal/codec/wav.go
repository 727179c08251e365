package codec

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/wav"
)

// wavPacketFrames is how many frames are read per packet.
const wavPacketFrames = 2048

// wavBackend reads PCM wav data. The header is parsed with go-audio/wav;
// after FwdToPCM the samples are read straight from the file so that seeks
// are plain offset arithmetic from the start of the data chunk.
type wavBackend struct {
	file      *os.File
	rate      int
	channels  int
	bitDepth  int
	frameSize int64 // bytes per frame in the source
	total     int64 // total frames in the data chunk
	read      int64 // frames consumed so far
	pcmStart  int64 // file offset where PCM data begins
}

func newWAVBackend(f *os.File) (*wavBackend, error) {
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("not a valid wav file")
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("locating wav pcm data: %w", err)
	}

	channels := int(dec.NumChans)
	bitDepth := int(dec.BitDepth)
	if channels == 0 {
		return nil, fmt.Errorf("wav header reports zero channels")
	}
	switch bitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("unsupported wav bit depth %d", bitDepth)
	}
	frameSize := int64(channels * bitDepth / 8)

	pcmStart, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}

	return &wavBackend{
		file:      f,
		rate:      int(dec.SampleRate),
		channels:  channels,
		bitDepth:  bitDepth,
		frameSize: frameSize,
		total:     dec.PCMLen() / frameSize,
		pcmStart:  pcmStart,
	}, nil
}

func (b *wavBackend) readPacket() ([]float32, error) {
	remaining := b.total - b.read
	if remaining <= 0 {
		return nil, io.EOF
	}

	frames := int64(wavPacketFrames)
	if frames > remaining {
		frames = remaining
	}
	buf := make([]byte, frames*b.frameSize)
	n, err := io.ReadFull(b.file, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		if n == 0 {
			b.read = b.total
			return nil, io.EOF
		}
		err = nil
	}
	if err != nil {
		return nil, err
	}

	n -= n % int(b.frameSize)
	b.read += int64(n) / b.frameSize

	bytesPer := b.bitDepth / 8
	count := n / bytesPer
	samples := make([]float32, count)
	for i := 0; i < count; i++ {
		off := i * bytesPer
		switch b.bitDepth {
		case 8:
			// 8-bit wav is unsigned
			samples[i] = (float32(buf[off]) - 128) / 128
		case 16:
			samples[i] = float32(int16(binary.LittleEndian.Uint16(buf[off:]))) / 32768
		case 24:
			v := int32(buf[off]) | int32(buf[off+1])<<8 | int32(buf[off+2])<<16
			if v&0x800000 != 0 {
				v |= ^int32(0xFFFFFF)
			}
			samples[i] = float32(v) / 8388608
		case 32:
			samples[i] = float32(int32(binary.LittleEndian.Uint32(buf[off:]))) / 2147483648
		}
	}
	return samples, nil
}

func (b *wavBackend) seek(frame int64) (int64, error) {
	if frame > b.total {
		frame = b.total
	}
	if _, err := b.file.Seek(b.pcmStart+frame*b.frameSize, io.SeekStart); err != nil {
		return 0, err
	}
	b.read = frame
	return frame, nil
}

func (b *wavBackend) format() Format {
	return Format{SampleRate: b.rate, Channels: b.channels}
}

func (b *wavBackend) totalFrames() int64 {
	return b.total
}

func (b *wavBackend) Close() error {
	return b.file.Close()
}
