package stretch

import (
	"math"

	"github.com/cwbudde/algo-tune/tune/window"
)

// WSOLA segment geometry in milliseconds. The long sequence window keeps
// several pitch periods inside the correlation window, matching
// SoundTouch's music preset (82/10/28 ms).
const (
	wsolaSequenceMs = 82.0
	wsolaOverlapMs  = 10.0
	wsolaSearchMs   = 28.0

	wsolaTiny = 1e-12
)

// WSOLA stretches audio by waveform-similarity overlap-add.
//
// Fixed-size sequences are laid down at the output hop while the input
// read position advances at hop/factor. Each splice point is refined by
// searching near the nominal position for the candidate whose overlap
// region best correlates with the already-written output, then
// cross-faded with raised-cosine ramps. Time-domain, cheap, and free of
// spectral smearing, at the cost of occasional transient doubling on
// percussive material.
func WSOLA(audio []float64, sampleRate int, factor float64) ([]float64, error) {
	identity, err := validateArgs(audio, sampleRate, factor)
	if err != nil {
		return nil, err
	}
	if identity {
		return copySlice(audio), nil
	}

	w := newWSOLAState(sampleRate)
	return w.stretch(audio, factor), nil
}

type wsolaState struct {
	sequenceLen int
	overlapLen  int
	searchLen   int
	stepOut     int

	fadeIn  []float64
	fadeOut []float64
}

func newWSOLAState(sampleRate int) *wsolaState {
	msToSamples := func(ms float64, floor int) int {
		n := int(math.Round(ms * 0.001 * float64(sampleRate)))
		return max(n, floor)
	}

	w := &wsolaState{
		sequenceLen: msToSamples(wsolaSequenceMs, 32),
		overlapLen:  msToSamples(wsolaOverlapMs, 8),
		searchLen:   msToSamples(wsolaSearchMs, 1),
	}
	if w.overlapLen >= w.sequenceLen {
		w.overlapLen = w.sequenceLen / 4
	}
	w.stepOut = w.sequenceLen - w.overlapLen
	w.fadeIn, w.fadeOut = window.CrossFades(w.overlapLen)

	return w
}

func (w *wsolaState) stretch(input []float64, factor float64) []float64 {
	targetLen := targetLength(len(input), factor)

	nominalInStep := float64(w.stepOut) / factor
	if nominalInStep < 1 {
		nominalInStep = 1
	}

	nFrames := targetLen/w.stepOut + 4
	out := make([]float64, nFrames*w.stepOut+w.sequenceLen+1)

	for i := range w.sequenceLen {
		out[i] = sampleZero(input, i)
	}
	outLen := w.sequenceLen
	prevStart := 0
	nextNominal := nominalInStep
	ref := make([]float64, w.overlapLen)

	for outLen < targetLen+w.sequenceLen {
		refStart := prevStart + w.stepOut
		for i := range w.overlapLen {
			ref[i] = sampleZero(input, refStart+i)
		}

		predicted := int(math.Round(nextNominal))
		candStart := w.findBestOverlap(ref, input, predicted)

		outStart := outLen - w.overlapLen
		for i := range w.overlapLen {
			yOld := out[outStart+i]
			yNew := sampleZero(input, candStart+i)
			out[outStart+i] = yOld*w.fadeOut[i] + yNew*w.fadeIn[i]
		}
		writePos := outStart + w.overlapLen
		for i := w.overlapLen; i < w.sequenceLen; i++ {
			out[writePos+i-w.overlapLen] = sampleZero(input, candStart+i)
		}

		outLen = outStart + w.sequenceLen
		prevStart = candStart
		nextNominal += nominalInStep

		if prevStart > len(input)+w.sequenceLen && outLen >= targetLen {
			break
		}
	}

	return fitLength(out, targetLen)
}

// findBestOverlap returns the candidate start position near predicted
// whose overlap region has the highest normalized cross-correlation with
// ref.
func (w *wsolaState) findBestOverlap(ref, input []float64, predicted int) int {
	best := predicted
	bestScore := math.Inf(-1)

	refEnergy := wsolaTiny
	for _, v := range ref {
		refEnergy += v * v
	}

	for cand := predicted - w.searchLen; cand <= predicted+w.searchLen; cand++ {
		dot := 0.0
		candEnergy := wsolaTiny
		for i, rv := range ref {
			cv := sampleZero(input, cand+i)
			dot += rv * cv
			candEnergy += cv * cv
		}
		score := dot / math.Sqrt(refEnergy*candEnergy)
		if score > bestScore {
			bestScore = score
			best = cand
		}
	}

	return best
}
