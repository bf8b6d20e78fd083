// Package pitchtrack estimates frame-wise fundamental frequency and
// voicing for mono audio.
//
// The Tracker interface is the collaborator contract used by the harmonic
// mask and time-stretch stages; Autocorrelation is the default
// implementation, an FFT-accelerated normalized autocorrelation picker
// with parabolic peak refinement.
package pitchtrack

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/cwbudde/algo-tune/tune"
)

const (
	// DefaultFrameSize is the analysis window in samples.
	DefaultFrameSize = 2048

	// DefaultThreshold is the normalized-autocorrelation level above which
	// a frame counts as voiced.
	DefaultThreshold = 0.5

	energyFloor = 1e-9
)

// Tracker estimates per-frame f0 and voicing.
//
// Returned contours mark unvoiced frames with f0 = 0. hop is the frame
// advance in samples.
type Tracker interface {
	Track(audio []float64, sampleRate int, fminHz, fmaxHz float64, hop int) (f0 []float64, voiced []bool, err error)
}

// Autocorrelation is the default tracker.
//
// Each frame is mean-removed, autocorrelated through a zero-padded FFT,
// and scanned for the strongest normalized peak in the lag range implied
// by [fminHz, fmaxHz]. The peak lag is refined parabolically before
// conversion to Hz.
type Autocorrelation struct {
	frameSize int
	threshold float64
	fft       *fourier.FFT
	padded    int
	re        []float64
	coeffs    []complex128
	power     []float64
}

// Option configures an Autocorrelation tracker.
type Option func(*Autocorrelation)

// WithFrameSize sets the analysis window length in samples.
func WithFrameSize(n int) Option {
	return func(a *Autocorrelation) {
		if n > 0 {
			a.frameSize = n
		}
	}
}

// WithThreshold sets the voicing decision threshold in (0, 1).
func WithThreshold(v float64) Option {
	return func(a *Autocorrelation) {
		if v > 0 && v < 1 {
			a.threshold = v
		}
	}
}

// NewAutocorrelation creates the default tracker.
func NewAutocorrelation(opts ...Option) *Autocorrelation {
	a := &Autocorrelation{
		frameSize: DefaultFrameSize,
		threshold: DefaultThreshold,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	a.padded = nextPowerOfTwo(2 * a.frameSize)
	a.fft = fourier.NewFFT(a.padded)
	a.re = make([]float64, a.padded)
	a.coeffs = make([]complex128, a.padded/2+1)
	a.power = make([]float64, a.padded)

	return a
}

// FrameSize returns the analysis window length.
func (a *Autocorrelation) FrameSize() int { return a.frameSize }

// Track implements Tracker.
func (a *Autocorrelation) Track(audio []float64, sampleRate int, fminHz, fmaxHz float64, hop int) ([]float64, []bool, error) {
	if sampleRate <= 0 {
		return nil, nil, fmt.Errorf("%w: sample rate must be positive: %d", tune.ErrInvalidArgument, sampleRate)
	}
	if hop <= 0 {
		return nil, nil, fmt.Errorf("%w: hop must be positive: %d", tune.ErrInvalidArgument, hop)
	}
	if !(fminHz > 0) || !(fmaxHz > fminHz) {
		return nil, nil, fmt.Errorf("%w: need 0 < fmin < fmax: %f, %f", tune.ErrInvalidArgument, fminHz, fmaxHz)
	}
	if len(audio) == 0 {
		return nil, nil, nil
	}

	minLag := int(math.Floor(float64(sampleRate) / fmaxHz))
	maxLag := int(math.Ceil(float64(sampleRate) / fminHz))
	if minLag < 1 {
		minLag = 1
	}
	if maxLag >= a.frameSize {
		maxLag = a.frameSize - 1
	}
	if minLag >= maxLag {
		return nil, nil, fmt.Errorf("%w: frequency range [%f, %f] unusable at %d Hz with frame %d",
			tune.ErrInvalidArgument, fminHz, fmaxHz, sampleRate, a.frameSize)
	}

	frameCount := 1 + (len(audio)-1)/hop
	f0 := make([]float64, frameCount)
	voiced := make([]bool, frameCount)

	for t := range frameCount {
		hz, ok := a.trackFrame(audio, t*hop, sampleRate, minLag, maxLag)
		if ok {
			f0[t] = hz
			voiced[t] = true
		}
	}

	return f0, voiced, nil
}

func (a *Autocorrelation) trackFrame(audio []float64, pos, sampleRate, minLag, maxLag int) (float64, bool) {
	mean := 0.0
	count := 0
	for i := range a.frameSize {
		if idx := pos + i; idx < len(audio) {
			mean += audio[idx]
			count++
		}
	}
	if count == 0 {
		return 0, false
	}
	mean /= float64(count)

	for i := range a.padded {
		a.re[i] = 0
	}
	for i := range a.frameSize {
		if idx := pos + i; idx < len(audio) {
			a.re[i] = audio[idx] - mean
		}
	}

	// Autocorrelation via the Wiener-Khinchin route: IFFT of the power
	// spectrum. gonum's Sequence is unnormalized, so divide by the
	// transform length.
	a.fft.Coefficients(a.coeffs, a.re)
	for i, c := range a.coeffs {
		a.coeffs[i] = complex(real(c)*real(c)+imag(c)*imag(c), 0)
	}
	a.fft.Sequence(a.power, a.coeffs)

	norm := 1 / float64(a.padded)
	r0 := a.power[0] * norm
	if r0 < energyFloor {
		return 0, false
	}

	bestLag := 0
	bestVal := 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		v := a.power[lag] * norm
		if v > bestVal {
			bestVal = v
			bestLag = lag
		}
	}

	if bestLag == 0 || bestVal/r0 < a.threshold {
		return 0, false
	}

	lag := refinePeak(a.power, bestLag, norm)
	hz := float64(sampleRate) / lag
	if math.IsNaN(hz) || math.IsInf(hz, 0) || hz <= 0 {
		return 0, false
	}
	return hz, true
}

// refinePeak fits a parabola through the peak and its neighbors for
// sub-sample lag precision.
func refinePeak(power []float64, lag int, norm float64) float64 {
	if lag <= 0 || lag+1 >= len(power) {
		return float64(lag)
	}

	ym1 := power[lag-1] * norm
	y0 := power[lag] * norm
	yp1 := power[lag+1] * norm

	denom := ym1 - 2*y0 + yp1
	if denom == 0 {
		return float64(lag)
	}

	delta := 0.5 * (ym1 - yp1) / denom
	if delta < -0.5 || delta > 0.5 {
		return float64(lag)
	}
	return float64(lag) + delta
}

func nextPowerOfTwo(v int) int {
	n := 1
	for n < v {
		n <<= 1
	}
	return n
}
