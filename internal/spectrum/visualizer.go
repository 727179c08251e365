// Package spectrum turns decoded audio into the frequency bands the
// visualizer renders.
package spectrum

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	// windowLength is the FFT size; must be a power of 2. At 44100Hz this
	// is about 93ms of audio per analysis frame.
	windowLength = 4096

	// NumBands is how many frequency bands the visualizer outputs.
	NumBands = 64

	// decay controls how fast a band falls once the signal under it drops.
	// Rising values are taken immediately.
	decay = 0.2

	// The analysis range. Most musical energy lives well below 3kHz, and
	// clamping the top end keeps the interesting part of the spectrum from
	// being squeezed into the first few bands.
	minFreq = 100.0
	maxFreq = 3000.0
)

// Callback receives a fresh set of bands each time a full analysis window
// has been processed.
type Callback func(bands []uint8)

// Visualizer performs streaming FFT analysis over decoded samples. Feed it
// fragments as they come off the decoder; each time a full window
// accumulates it recomputes the band magnitudes.
type Visualizer struct {
	mu sync.RWMutex

	fft    *fourier.FFT
	window []float64 // Hann coefficients

	// Circular mono sample buffer.
	buf []float64
	idx int

	bands      []float64 // 0-255, with falloff applied
	sampleRate int

	callback Callback
}

// New creates a visualizer for audio at the given sample rate.
func New(sampleRate int) *Visualizer {
	window := make([]float64, windowLength)
	for i := range window {
		window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(windowLength-1)))
	}

	return &Visualizer{
		fft:        fourier.NewFFT(windowLength),
		window:     window,
		buf:        make([]float64, windowLength),
		bands:      make([]float64, NumBands),
		sampleRate: sampleRate,
	}
}

// SetCallback registers a callback invoked on the caller of Process
// whenever a window completes.
func (v *Visualizer) SetCallback(cb Callback) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.callback = cb
}

// Process consumes one fragment of interleaved samples. Channels are
// averaged down to mono. A sample rate change resets the analysis buffer,
// since the bin-to-frequency mapping shifts with it.
func (v *Visualizer) Process(samples []float32, channels, sampleRate int) {
	if channels <= 0 {
		return
	}

	var notify []uint8

	v.mu.Lock()
	if sampleRate != v.sampleRate && sampleRate > 0 {
		v.sampleRate = sampleRate
		v.resetLocked()
	}

	for i := 0; i+channels <= len(samples); i += channels {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			sum += float64(samples[i+ch])
		}
		v.buf[v.idx] = sum / float64(channels)
		v.idx = (v.idx + 1) % windowLength

		if v.idx == 0 {
			v.computeLocked()
			if v.callback != nil {
				notify = v.quantizeLocked()
			}
		}
	}
	cb := v.callback
	v.mu.Unlock()

	// Deliver outside the lock so a slow consumer cannot stall Bands().
	if notify != nil && cb != nil {
		cb(notify)
	}
}

// Bands returns the current band magnitudes, 0-255 each.
func (v *Visualizer) Bands() []uint8 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.quantizeLocked()
}

// Reset clears accumulated samples and zeroes the display, typically on a
// track change or seek.
func (v *Visualizer) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.resetLocked()
}

func (v *Visualizer) resetLocked() {
	v.idx = 0
	for i := range v.buf {
		v.buf[i] = 0
	}
	for i := range v.bands {
		v.bands[i] = 0
	}
}

func (v *Visualizer) quantizeLocked() []uint8 {
	out := make([]uint8, NumBands)
	for i, b := range v.bands {
		switch {
		case b > 255:
			out[i] = 255
		case b < 0:
			out[i] = 0
		default:
			out[i] = uint8(b)
		}
	}
	return out
}

// computeLocked runs one FFT over the full circular buffer and folds the
// magnitudes into log-spaced bands.
func (v *Visualizer) computeLocked() {
	windowed := make([]float64, windowLength)
	for i := 0; i < windowLength; i++ {
		idx := (v.idx + i) % windowLength
		windowed[i] = v.buf[idx] * v.window[i]
	}

	coeffs := v.fft.Coefficients(nil, windowed)

	nyquist := windowLength / 2
	freqPerBin := float64(v.sampleRate) / float64(windowLength)

	top := maxFreq
	if float64(v.sampleRate)/2 < top {
		top = float64(v.sampleRate) / 2
	}
	logMin := math.Log10(minFreq)
	logRange := math.Log10(top) - logMin

	fresh := make([]float64, NumBands)
	counts := make([]int, NumBands)

	for bin := 1; bin < nyquist; bin++ {
		freq := float64(bin) * freqPerBin
		if freq < minFreq || freq > top {
			continue
		}

		band := int((math.Log10(freq) - logMin) / logRange * NumBands)
		if band >= NumBands {
			band = NumBands - 1
		}

		re := real(coeffs[bin])
		im := imag(coeffs[bin])
		magnitude := math.Sqrt(re*re + im*im)

		// Map to a -60dB..0dB range and normalize to 0-255.
		db := 20 * math.Log10(magnitude/float64(windowLength)+1e-10)
		normalized := (db + 60) / 60 * 255
		if normalized < 0 {
			normalized = 0
		}
		if normalized > 255 {
			normalized = 255
		}

		fresh[band] += normalized
		counts[band]++
	}

	for i := range fresh {
		if counts[i] > 0 {
			fresh[i] /= float64(counts[i])
		}
	}

	// Sparse low bands can land between bins; borrow from neighbors so the
	// display has no permanent gaps.
	for i := range fresh {
		if counts[i] == 0 {
			switch {
			case i > 0 && counts[i-1] > 0:
				fresh[i] = fresh[i-1]
			case i < NumBands-1 && counts[i+1] > 0:
				fresh[i] = fresh[i+1]
			}
		}
	}

	// Instant attack, gradual falloff.
	for i := range v.bands {
		if fresh[i] >= v.bands[i] {
			v.bands[i] = fresh[i]
		} else {
			v.bands[i] *= 1 - decay
		}
	}
}
