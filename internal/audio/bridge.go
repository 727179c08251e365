package audio

import (
	"github.com/deifactor/deimos/internal/codec"
)

// FragmentSource is the decoder-facing half of the bridge. *codec.Decoder
// satisfies it.
type FragmentSource interface {
	NextFragment() (*codec.Fragment, error)
}

// SampleBridge flattens a decoder's fragment stream into individual
// interleaved samples so the playback pipeline can pull one sample at a time
// regardless of how the codec packetizes its output.
//
// The bridge never terminates. Once the decoder reports end of stream it
// switches to an exhausted state and yields the neutral sample forever; the
// device keeps pulling on its own schedule, and returning "no more data"
// here would stall the output stream.
type SampleBridge struct {
	src  FragmentSource
	frag []float32
	pos  int

	exhausted bool

	onFragment func(*codec.Fragment)
	onFinished func()
}

// NewSampleBridge creates a bridge over src. Callbacks are optional and are
// invoked on whatever goroutine calls NextSample.
func NewSampleBridge(src FragmentSource) *SampleBridge {
	return &SampleBridge{src: src}
}

// SetOnFragment registers a callback invoked once per decoded fragment,
// before any of its samples are handed out.
func (b *SampleBridge) SetOnFragment(fn func(*codec.Fragment)) {
	b.onFragment = fn
}

// SetOnFinished registers a callback invoked exactly once, the first time
// the decoder reports end of stream.
func (b *SampleBridge) SetOnFinished(fn func()) {
	b.onFinished = fn
}

// NextSample returns the next interleaved sample, pulling a fresh fragment
// from the decoder whenever the current one is used up. After exhaustion it
// returns zero forever without touching the decoder again.
func (b *SampleBridge) NextSample() float32 {
	for b.pos >= len(b.frag) {
		if b.exhausted {
			return 0
		}
		frag, err := b.src.NextFragment()
		if err != nil {
			// The decoder only surfaces io.EOF here; decode errors are
			// retried internally and repeated failure ends the stream.
			b.exhausted = true
			if b.onFinished != nil {
				b.onFinished()
			}
			return 0
		}
		if b.onFragment != nil {
			b.onFragment(frag)
		}
		b.frag = frag.Samples
		b.pos = 0
	}
	s := b.frag[b.pos]
	b.pos++
	return s
}

// Exhausted reports whether the decoder has reached end of stream.
func (b *SampleBridge) Exhausted() bool {
	return b.exhausted
}

// Reset drops any partially consumed fragment, typically after the decoder
// has been repositioned. An exhausted bridge stays exhausted so the finished
// callback cannot fire a second time.
func (b *SampleBridge) Reset() {
	b.frag = nil
	b.pos = 0
}
