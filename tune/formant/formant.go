// Package formant remaps spectral-envelope frames along the frequency axis.
//
// Shifting the envelope by a ratio moves formant positions without touching
// pitch: ratios above 1 brighten (smaller vocal tract), below 1 darken.
package formant

import "math"

// ShiftEnvelope resamples one envelope frame by ratio.
//
// Each output bin i reads the input at i/ratio with linear interpolation,
// clamped to the valid bin range. A ratio that is not positive and finite
// returns an unmodified copy; this never fails. The input is not mutated.
func ShiftEnvelope(frame []float64, ratio float64) []float64 {
	out := make([]float64, len(frame))

	if math.IsNaN(ratio) || math.IsInf(ratio, 0) || ratio <= 0 {
		copy(out, frame)
		return out
	}

	last := len(frame) - 1
	for i := range frame {
		pos := float64(i) / ratio
		if pos <= 0 {
			out[i] = frame[0]
			continue
		}
		if pos >= float64(last) {
			out[i] = frame[last]
			continue
		}

		lo := int(pos)
		frac := pos - float64(lo)
		out[i] = frame[lo]*(1-frac) + frame[lo+1]*frac
	}

	return out
}

// ShiftFrames applies ShiftEnvelope with a single ratio to every frame.
func ShiftFrames(frames [][]float64, ratio float64) [][]float64 {
	out := make([][]float64, len(frames))
	for i, f := range frames {
		out[i] = ShiftEnvelope(f, ratio)
	}
	return out
}

// CentsRatio converts a formant shift in cents to a frequency ratio.
func CentsRatio(cents float64) float64 {
	return math.Pow(2, cents/1200)
}
