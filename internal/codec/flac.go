package codec

import (
	"fmt"
	"os"

	"github.com/mewkiz/flac"
)

// flacBackend decodes FLAC via mewkiz/flac, one frame per packet.
// Stream.Seek lands on the frame containing the requested sample, which is
// always at or before it, so the next fragment still ends past the target.
type flacBackend struct {
	file   *os.File
	stream *flac.Stream
	scale  float32
}

func newFLACBackend(f *os.File) (*flacBackend, error) {
	stream, err := flac.NewSeek(f)
	if err != nil {
		return nil, err
	}
	return &flacBackend{
		file:   f,
		stream: stream,
		scale:  float32(int64(1) << (stream.Info.BitsPerSample - 1)),
	}, nil
}

func (b *flacBackend) readPacket() ([]float32, error) {
	frame, err := b.stream.ParseNext()
	if err != nil {
		return nil, err // io.EOF at end of stream, a decode error otherwise
	}

	channels := int(b.stream.Info.NChannels)
	if len(frame.Subframes) < channels {
		return nil, fmt.Errorf("flac frame has %d subframes, want %d", len(frame.Subframes), channels)
	}

	n := frame.Subframes[0].NSamples
	samples := make([]float32, n*channels)
	for ch := 0; ch < channels; ch++ {
		sub := frame.Subframes[ch]
		for i := 0; i < n; i++ {
			samples[i*channels+ch] = float32(sub.Samples[i]) / b.scale
		}
	}
	return samples, nil
}

func (b *flacBackend) seek(frame int64) (int64, error) {
	pos, err := b.stream.Seek(uint64(frame))
	if err != nil {
		return 0, err
	}
	return int64(pos), nil
}

func (b *flacBackend) format() Format {
	return Format{
		SampleRate: int(b.stream.Info.SampleRate),
		Channels:   int(b.stream.Info.NChannels),
	}
}

func (b *flacBackend) totalFrames() int64 {
	return int64(b.stream.Info.NSamples)
}

func (b *flacBackend) Close() error {
	return b.file.Close()
}
