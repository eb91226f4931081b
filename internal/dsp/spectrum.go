package dsp

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// Band weights for the percussive-energy scalar. The bass region carries most
// of the rhythmic information in salsa (congas, bass tumbao), so it dominates
// the weighted sum.
const (
	bassLowHz   = 40
	bassHighHz  = 120
	lowMidHz    = 200
	bassWeight  = 3.0
	midWeight   = 1.5
	otherWeight = 0.5
)

// Spectrum is one frame of frequency-bin magnitudes with its capture context.
// Magnitudes cover 0..Nyquist inclusive.
type Spectrum struct {
	Magnitudes  []float64
	SampleRate  float64
	TimestampMs float64
}

// BinWidth returns the frequency span of one bin in Hz.
func (s Spectrum) BinWidth() float64 {
	if len(s.Magnitudes) < 2 || s.SampleRate <= 0 {
		return 0
	}
	return s.SampleRate / float64(2*(len(s.Magnitudes)-1))
}

// Energy returns the bass-weighted energy scalar for this frame.
func (s Spectrum) Energy() float64 {
	return WeightedEnergy(s.Magnitudes, s.BinWidth())
}

// WeightedEnergy reduces a magnitude spectrum to a single scalar, weighting
// the 40-120Hz bins 3x, 120-200Hz bins 1.5x, and everything else 0.5x,
// normalized by total weight.
func WeightedEnergy(magnitudes []float64, binWidth float64) float64 {
	if len(magnitudes) == 0 || binWidth <= 0 {
		return 0
	}

	var sum, weightSum float64
	for i, mag := range magnitudes {
		freq := float64(i) * binWidth
		weight := otherWeight
		switch {
		case freq >= bassLowHz && freq < bassHighHz:
			weight = bassWeight
		case freq >= bassHighHz && freq < lowMidHz:
			weight = midWeight
		}
		sum += mag * weight
		weightSum += weight
	}
	return sum / weightSum
}

// Analyzer transforms mono frames into magnitude spectra. The window is
// precomputed; each Process call returns a fresh magnitude slice so spectra
// can safely cross goroutine boundaries.
type Analyzer struct {
	sampleRate    float64
	frameSize     int
	window        []float64
	windowedFrame []float64
}

// NewAnalyzer constructs an Analyzer configured for a given sample rate/frame size.
func NewAnalyzer(sampleRate float64, frameSize int) *Analyzer {
	if frameSize <= 0 {
		panic("dsp: frameSize must be > 0")
	}
	if sampleRate <= 0 {
		panic("dsp: sampleRate must be > 0")
	}

	return &Analyzer{
		sampleRate:    sampleRate,
		frameSize:     frameSize,
		window:        HannWindow(frameSize),
		windowedFrame: make([]float64, frameSize),
	}
}

// Process computes the magnitude spectrum for the supplied mono frame. The
// frame length must match the configured frameSize.
func (a *Analyzer) Process(frame []float64, nowMs float64) Spectrum {
	if len(frame) != a.frameSize {
		panic("dsp: frame length mismatch")
	}

	copy(a.windowedFrame, frame)
	ApplyWindowInPlace(a.windowedFrame, a.window)

	spectrum := fft.FFTReal(a.windowedFrame)
	half := len(spectrum)/2 + 1
	magnitudes := make([]float64, half)
	for i := range half {
		magnitudes[i] = cmplx.Abs(spectrum[i])
	}

	return Spectrum{
		Magnitudes:  magnitudes,
		SampleRate:  a.sampleRate,
		TimestampMs: nowMs,
	}
}

// ToMono averages interleaved multi-channel data into a mono frame.
func ToMono(samples []float32, channels int, dst []float64) []float64 {
	if channels <= 0 {
		channels = 1
	}
	frameLen := len(samples) / channels
	if cap(dst) < frameLen {
		dst = make([]float64, frameLen)
	} else {
		dst = dst[:frameLen]
	}
	if frameLen == 0 {
		return dst
	}
	idx := 0
	for i := range frameLen {
		sum := 0.0
		for c := 0; c < channels; c++ {
			sum += float64(samples[idx])
			idx++
		}
		dst[i] = sum / float64(channels)
	}
	return dst
}

// HannWindow returns a precomputed Hann window for the requested size.
func HannWindow(n int) []float64 {
	if n <= 0 {
		return nil
	}
	window := make([]float64, n)
	if n == 1 {
		window[0] = 1
		return window
	}
	for i := range n {
		window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return window
}

// ApplyWindowInPlace multiplies samples by a window function in-place.
func ApplyWindowInPlace(samples []float64, window []float64) {
	switch {
	case len(samples) == 0:
		return
	case len(samples) != len(window):
		panic("dsp: window length mismatch")
	}
	for i := range samples {
		samples[i] *= window[i]
	}
}

// Smoother implements an exponential moving average with separate attack
// and release coefficients, seeded from the first sample it sees.
type Smoother struct {
	attack      float64
	release     float64
	initialized bool
	value       float64
}

// NewSmoother constructs a symmetric Smoother using the supplied alpha
// (0..1). Smaller values produce heavier smoothing.
func NewSmoother(alpha float64) *Smoother {
	return NewAsymmetricSmoother(alpha, alpha)
}

// NewAsymmetricSmoother constructs a Smoother that follows rising input
// with attack and falling input with release.
func NewAsymmetricSmoother(attack, release float64) *Smoother {
	return &Smoother{attack: clampAlpha(attack), release: clampAlpha(release)}
}

func clampAlpha(alpha float64) float64 {
	if alpha < 0 {
		return 0
	}
	if alpha > 1 {
		return 1
	}
	return alpha
}

// Step updates the internal state and returns the smoothed value.
func (s *Smoother) Step(v float64) float64 {
	if !s.initialized {
		s.value = v
		s.initialized = true
		return v
	}
	alpha := s.release
	if v > s.value {
		alpha = s.attack
	}
	s.value += alpha * (v - s.value)
	return s.value
}

// Set overrides the current state, seeding the level the next Step blends
// from.
func (s *Smoother) Set(v float64) {
	s.value = v
	s.initialized = true
}

// Value returns the current smoothed value without updating it.
func (s *Smoother) Value() float64 {
	return s.value
}
