// Package harmonic isolates the fundamental and its harmonics in a
// time-frequency representation.
//
// The mask passes a Gaussian band around every harmonic of each frame's
// f0 and attenuates the spectrum between harmonics; "cleanliness" controls
// the band width. High settings make speech robotic; the effect is meant
// for sustained vowels, and consonant noise can be protected with the
// high-frequency bypass and the preserve-unvoiced policy.
package harmonic

import (
	"math"
)

const (
	// DefaultMinBandwidthHz and DefaultMaxBandwidthHz are the Gaussian
	// full-width bounds interpolated by cleanliness (100 -> min, 0 -> max).
	DefaultMinBandwidthHz = 10.0
	DefaultMaxBandwidthHz = 200.0

	// fwhmToSigma converts a full-width-at-half-maximum to a standard
	// deviation.
	fwhmToSigma = 2.355

	// temporalSigmaFrames is the width of the flicker-suppression
	// smoothing along the time axis.
	temporalSigmaFrames = 2.0
)

// MaskParams configure BuildMask.
//
// Cleanliness is in [0, 100]. BypassHz is the frequency at and above which
// every bin passes unattenuated; zero or non-finite means the top bin
// (everything below Nyquist is maskable). PreserveUnvoiced keeps unvoiced
// frames untouched, including after temporal smoothing.
type MaskParams struct {
	Cleanliness      float64
	MinBandwidthHz   float64
	MaxBandwidthHz   float64
	BypassHz         float64
	PreserveUnvoiced bool
}

// DefaultMaskParams returns the standard mask configuration.
func DefaultMaskParams(cleanliness float64) MaskParams {
	return MaskParams{
		Cleanliness:      cleanliness,
		MinBandwidthHz:   DefaultMinBandwidthHz,
		MaxBandwidthHz:   DefaultMaxBandwidthHz,
		PreserveUnvoiced: true,
	}
}

// BuildMask computes a soft mask in [0, 1], one row per frame, one column
// per analysis frequency.
//
// Frames that are unvoiced (when PreserveUnvoiced is set) or whose f0 is
// not positive and finite pass everything. Voiced frames get a comb that is
// 1.0 exactly on harmonics of f0 and decays between them with a Gaussian
// whose sigma follows the cleanliness setting. The mask is smoothed along
// the time axis to avoid frame-to-frame flicker, then unvoiced columns are
// re-forced to 1 so the smoothing cannot leak attenuation into them, and
// bins at or above the bypass frequency always pass.
func BuildMask(freqs []float64, f0 []float64, voiced []bool, p MaskParams) [][]float64 {
	frames := len(f0)
	bins := len(freqs)

	mask := make([][]float64, frames)
	passAll := make([]bool, frames)

	cleanliness := clamp(p.Cleanliness, 0, 100)
	bandwidth := p.MaxBandwidthHz - (cleanliness/100)*(p.MaxBandwidthHz-p.MinBandwidthHz)
	sigma := bandwidth / fwhmToSigma

	for t := range frames {
		row := make([]float64, bins)
		mask[t] = row

		frameVoiced := t < len(voiced) && voiced[t]
		if (p.PreserveUnvoiced && !frameVoiced) ||
			math.IsNaN(f0[t]) || math.IsInf(f0[t], 0) || f0[t] <= 0 || sigma <= 0 {
			passAll[t] = true
			for k := range row {
				row[k] = 1
			}
			continue
		}

		for k, freq := range freqs {
			harmonic := math.Round(freq/f0[t]) * f0[t]
			d := (freq - harmonic) / sigma
			row[k] = clamp(math.Exp(-0.5*d*d), 0, 1)
		}
	}

	smoothTime(mask, temporalSigmaFrames)

	for t := range mask {
		if p.PreserveUnvoiced && passAll[t] {
			for k := range mask[t] {
				mask[t][k] = 1
			}
			continue
		}
		for k := range mask[t] {
			mask[t][k] = clamp(mask[t][k], 0, 1)
		}
	}

	bypass := p.BypassHz
	if math.IsNaN(bypass) || math.IsInf(bypass, 0) || bypass <= 0 {
		if bins > 0 {
			bypass = freqs[bins-1]
		}
	}
	for t := range mask {
		for k, freq := range freqs {
			if freq >= bypass {
				mask[t][k] = 1
			}
		}
	}

	return mask
}

// smoothTime applies a small Gaussian along the frame axis, per frequency
// bin, with reflected edges.
func smoothTime(mask [][]float64, sigma float64) {
	frames := len(mask)
	if frames < 2 || sigma <= 0 {
		return
	}
	bins := len(mask[0])

	radius := int(math.Ceil(4 * sigma))
	kernel := make([]float64, 2*radius+1)
	sum := 0.0
	for i := range kernel {
		d := float64(i - radius)
		kernel[i] = math.Exp(-0.5 * d * d / (sigma * sigma))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}

	column := make([]float64, frames)
	for k := range bins {
		for t := range frames {
			column[t] = mask[t][k]
		}
		for t := range frames {
			acc := 0.0
			for i, w := range kernel {
				acc += w * column[reflectIndex(t+i-radius, frames)]
			}
			mask[t][k] = acc
		}
	}
}

// reflectIndex mirrors out-of-range indices back into [0, n), matching
// symmetric boundary handling.
func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * (n - 1)
	i = ((i % period) + period) % period
	if i >= n {
		i = period - i
	}
	return i
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
