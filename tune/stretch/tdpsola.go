package stretch

import (
	"fmt"
	"math"
	"sort"

	"github.com/cwbudde/algo-tune/tune/pitchtrack"
	"github.com/cwbudde/algo-tune/tune/window"
)

const (
	tdpsolaMinPeriod  = 16
	tdpsolaMinPitchHz = 50.0
	tdpsolaNormFloor  = 1e-12
)

// TDPSOLA stretches audio pitch-synchronously.
//
// A single period is estimated from the median voiced f0 of the whole
// buffer, then two-period Hann grains are read at period/factor and
// written at the period. Because grain spacing follows the signal's own
// period the overlap stays phase-coherent without any spectral
// processing, which makes this a good fallback for monophonic voiced
// material. Buffers with no voiced content fall back to plain OLA.
func TDPSOLA(audio []float64, sampleRate int, factor float64) ([]float64, error) {
	identity, err := validateArgs(audio, sampleRate, factor)
	if err != nil {
		return nil, err
	}
	if identity {
		return copySlice(audio), nil
	}

	tracker := pitchtrack.NewAutocorrelation()
	hop := max(int(math.Round(0.005*float64(sampleRate))), 1)
	f0, voiced, err := tracker.Track(audio, sampleRate, tdpsolaMinPitchHz, 500, hop)
	if err != nil {
		return nil, fmt.Errorf("tdpsola: pitch tracking failed: %w", err)
	}

	medianF0, ok := medianVoiced(f0, voiced)
	if !ok {
		return OLA(audio, sampleRate, factor)
	}

	period := int(math.Round(float64(sampleRate) / medianF0))
	period = min(max(period, tdpsolaMinPeriod), int(float64(sampleRate)/tdpsolaMinPitchHz))

	return tdpsolaStretch(audio, period, factor), nil
}

func tdpsolaStretch(input []float64, period int, factor float64) []float64 {
	grainLen := 2 * period
	win := window.Hann(grainLen)

	targetLen := targetLength(len(input), factor)
	grainCount := targetLen/period + 2
	outCap := (grainCount-1)*period + grainLen
	out := make([]float64, outCap)
	norm := make([]float64, outCap)

	analysisStep := float64(period) / factor

	for grain := range grainCount {
		inPos := int(math.Round(float64(grain) * analysisStep))
		outPos := grain * period

		for i := range grainLen {
			w := win[i]
			out[outPos+i] += sampleZero(input, inPos+i) * w * w
			norm[outPos+i] += w * w
		}
	}

	for i := range out {
		if norm[i] > tdpsolaNormFloor {
			out[i] /= norm[i]
		}
	}

	return fitLength(out, targetLen)
}

func medianVoiced(f0 []float64, voiced []bool) (float64, bool) {
	vals := make([]float64, 0, len(f0))
	for i, hz := range f0 {
		if i < len(voiced) && voiced[i] && hz > 0 && !math.IsInf(hz, 0) && !math.IsNaN(hz) {
			vals = append(vals, hz)
		}
	}
	if len(vals) == 0 {
		return 0, false
	}

	sort.Float64s(vals)
	mid := len(vals) / 2
	if len(vals)%2 == 0 {
		return 0.5 * (vals[mid-1] + vals[mid]), true
	}
	return vals[mid], true
}
