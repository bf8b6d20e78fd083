package stretch

import (
	"math"

	"github.com/cwbudde/algo-tune/tune/window"
)

const (
	olaFrameMs   = 50.0
	olaNormFloor = 1e-12
)

// OLA stretches audio by plain windowed overlap-add.
//
// Hann-windowed frames read at hop/factor are written at a fixed 50%
// output hop with window-squared normalization. No similarity search and
// no phase tracking, so it is the cheapest method here; the trade-off is
// audible flutter on strongly pitched material. Useful as a baseline and
// for noise-like signals.
func OLA(audio []float64, sampleRate int, factor float64) ([]float64, error) {
	identity, err := validateArgs(audio, sampleRate, factor)
	if err != nil {
		return nil, err
	}
	if identity {
		return copySlice(audio), nil
	}

	frameLen := max(int(math.Round(olaFrameMs*0.001*float64(sampleRate))), 32)
	if frameLen%2 != 0 {
		frameLen++
	}
	synthesisHop := frameLen / 2
	analysisHop := float64(synthesisHop) / factor

	targetLen := targetLength(len(audio), factor)
	frameCount := targetLen/synthesisHop + 2
	outCap := (frameCount-1)*synthesisHop + frameLen
	out := make([]float64, outCap)
	norm := make([]float64, outCap)

	win := window.Hann(frameLen)

	for frame := range frameCount {
		inPos := int(math.Round(float64(frame) * analysisHop))
		outPos := frame * synthesisHop

		for i := range frameLen {
			w := win[i]
			out[outPos+i] += sampleZero(audio, inPos+i) * w * w
			norm[outPos+i] += w * w
		}
	}

	for i := range out {
		if norm[i] > olaNormFloor {
			out[i] /= norm[i]
		}
	}

	return fitLength(out, targetLen), nil
}
