// Package voicing derives frame-correction masks from a raw voiced/unvoiced
// pitch contour.
//
// A raw contour marks unvoiced frames with f0 <= 0. The policy decides which
// frames receive correction and how unvoiced gaps are filled before the
// contour is handed to spectral analysis.
package voicing

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-tune/tune"
)

// Mode selects how the correction mask is derived from the raw contour.
type Mode string

const (
	// ModeStrict trusts the raw detector: only frames with f0 > 0 are
	// corrected and the contour is left unchanged.
	ModeStrict Mode = "strict"

	// ModeForce corrects every frame. Unvoiced gaps in the contour are
	// filled by linear interpolation between the nearest voiced neighbors.
	ModeForce Mode = "force"

	// ModeDilate corrects the raw voiced frames plus a fixed number of
	// neighboring frames on each side. Gaps are filled as in ModeForce.
	ModeDilate Mode = "dilate"
)

// DefaultFallbackHz fills the analysis contour when no frame is voiced at
// all, keeping downstream log and division operations defined.
const DefaultFallbackHz = 1.0

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeStrict, ModeForce, ModeDilate:
		return Mode(s), nil
	}
	return "", fmt.Errorf("%w: voicing mode must be one of strict, force, dilate: %q",
		tune.ErrInvalidArgument, s)
}

// DeriveMask applies the policy to a raw contour.
//
// It returns the correction mask and the contour to use for analysis. For
// ModeForce and ModeDilate the analysis contour has unvoiced gaps linearly
// interpolated in index space; if no frame is voiced it is filled with
// fallbackHz instead. A fallbackHz that is not positive and finite is
// replaced by DefaultFallbackHz. The inputs are never modified.
func DeriveMask(rawF0 []float64, mode Mode, dilationFrames int, fallbackHz float64) ([]bool, []float64, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, nil, err
	}

	voiced := rawVoiced(rawF0)

	mask := make([]bool, len(rawF0))
	switch mode {
	case ModeStrict:
		copy(mask, voiced)
		analysis := make([]float64, len(rawF0))
		copy(analysis, rawF0)
		return mask, analysis, nil
	case ModeForce:
		for i := range mask {
			mask[i] = true
		}
	case ModeDilate:
		copy(mask, voiced)
		Dilate(mask, dilationFrames)
	}

	return mask, FillGaps(rawF0, voiced, fallbackHz), nil
}

// Dilate expands every true frame at index i to cover [i-d, i+d] in place,
// clamped to the mask bounds. d <= 0 leaves the mask unchanged.
func Dilate(mask []bool, d int) {
	if d <= 0 || len(mask) == 0 {
		return
	}

	src := make([]bool, len(mask))
	copy(src, mask)

	for i, v := range src {
		if !v {
			continue
		}
		start := max(i-d, 0)
		end := min(i+d+1, len(mask))
		for j := start; j < end; j++ {
			mask[j] = true
		}
	}
}

// FillGaps returns a copy of f0 with frames not marked voiced replaced by
// index-space linear interpolation between the nearest voiced neighbors.
// Frames before the first (after the last) voiced frame take its value. If
// no frame is voiced the whole contour is filled with fallbackHz.
func FillGaps(f0 []float64, voiced []bool, fallbackHz float64) []float64 {
	out := make([]float64, len(f0))

	if math.IsNaN(fallbackHz) || math.IsInf(fallbackHz, 0) || fallbackHz <= 0 {
		fallbackHz = DefaultFallbackHz
	}

	prev := -1
	any := false
	for i := range f0 {
		if !indexVoiced(voiced, f0, i) {
			continue
		}
		any = true

		if prev < 0 {
			for j := 0; j < i; j++ {
				out[j] = f0[i]
			}
		} else {
			span := i - prev
			for j := prev + 1; j < i; j++ {
				t := float64(j-prev) / float64(span)
				out[j] = f0[prev] + t*(f0[i]-f0[prev])
			}
		}

		out[i] = f0[i]
		prev = i
	}

	if !any {
		for i := range out {
			out[i] = fallbackHz
		}
		return out
	}

	for j := prev + 1; j < len(out); j++ {
		out[j] = f0[prev]
	}

	return out
}

func rawVoiced(f0 []float64) []bool {
	out := make([]bool, len(f0))
	for i, v := range f0 {
		out[i] = v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
	}
	return out
}

func indexVoiced(voiced []bool, f0 []float64, i int) bool {
	if voiced != nil {
		return voiced[i]
	}
	return f0[i] > 0 && !math.IsInf(f0[i], 0)
}
