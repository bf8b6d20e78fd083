package stretch

import (
	"fmt"
	"math"

	algofft "github.com/MeKo-Christian/algo-fft"

	"github.com/cwbudde/algo-tune/tune/window"
)

const (
	pvFrameSize   = 1024
	pvAnalysisHop = 256
	pvNormFloor   = 1e-12
)

// PhaseVocoder stretches audio in the frequency domain.
//
// Each analysis frame is re-laid at a wider (or narrower) synthesis hop
// and the bin phases are advanced by the instantaneous frequency so that
// partials stay coherent across the new frame spacing. Identity phase
// locking (Laroche & Dolson 1999) keeps the bins around each spectral
// peak rigid relative to the peak, which suppresses the phasiness that a
// plain per-bin vocoder produces on harmonic material.
func PhaseVocoder(audio []float64, sampleRate int, factor float64) ([]float64, error) {
	identity, err := validateArgs(audio, sampleRate, factor)
	if err != nil {
		return nil, err
	}
	if identity {
		return copySlice(audio), nil
	}

	v, err := newPhaseVocoderState(factor)
	if err != nil {
		return nil, err
	}
	return v.process(audio)
}

type phaseVocoderState struct {
	synthesisHop int

	plan *algofft.Plan[complex128]

	window    []float64
	omega     []float64
	prevPhase []float64
	sumPhase  []float64

	spectrum  []complex128
	timeFrame []complex128

	magnitudes []float64
	instFreqs  []float64
	peakBins   []int
}

func newPhaseVocoderState(factor float64) (*phaseVocoderState, error) {
	plan, err := algofft.NewPlan64(pvFrameSize)
	if err != nil {
		return nil, fmt.Errorf("phase vocoder: failed to create FFT plan: %w", err)
	}

	bins := pvFrameSize/2 + 1
	omega := make([]float64, bins)
	for k := range bins {
		omega[k] = 2 * math.Pi * float64(k) / float64(pvFrameSize)
	}

	return &phaseVocoderState{
		synthesisHop: max(int(math.Round(pvAnalysisHop*factor)), 1),
		plan:         plan,
		window:       window.Hann(pvFrameSize),
		omega:        omega,
		prevPhase:    make([]float64, bins),
		sumPhase:     make([]float64, bins),
		spectrum:     make([]complex128, pvFrameSize),
		timeFrame:    make([]complex128, pvFrameSize),
		magnitudes:   make([]float64, bins),
		instFreqs:    make([]float64, bins),
		peakBins:     make([]int, 0, bins),
	}, nil
}

func (v *phaseVocoderState) process(input []float64) ([]float64, error) {
	frameCount := 1 + (len(input)-1)/pvAnalysisHop
	stretchedLen := (frameCount-1)*v.synthesisHop + pvFrameSize
	stretched := make([]float64, stretchedLen)
	norm := make([]float64, stretchedLen)

	half := pvFrameSize / 2
	analysisHopF := float64(pvAnalysisHop)
	synthesisHopF := float64(v.synthesisHop)

	for frame := range frameCount {
		inPos := frame * pvAnalysisHop
		outPos := frame * v.synthesisHop

		for i := range pvFrameSize {
			v.spectrum[i] = complex(sampleZero(input, inPos+i)*v.window[i], 0)
		}

		err := v.plan.Forward(v.spectrum, v.spectrum)
		if err != nil {
			return nil, fmt.Errorf("phase vocoder: forward FFT failed: %w", err)
		}

		// Magnitudes and instantaneous frequencies.
		for k := 0; k <= half; k++ {
			re := real(v.spectrum[k])
			im := imag(v.spectrum[k])
			v.magnitudes[k] = math.Hypot(re, im)
			phase := math.Atan2(im, re)

			delta := wrapPhase(phase - v.prevPhase[k] - v.omega[k]*analysisHopF)
			v.instFreqs[k] = v.omega[k] + delta/analysisHopF
			v.prevPhase[k] = phase
		}

		// Identity phase locking around local spectral peaks.
		v.peakBins = v.peakBins[:0]
		for k := 1; k < half; k++ {
			if v.magnitudes[k] >= v.magnitudes[k-1] && v.magnitudes[k] > v.magnitudes[k+1] {
				v.peakBins = append(v.peakBins, k)
			}
		}

		if len(v.peakBins) == 0 {
			for k := 0; k <= half; k++ {
				v.sumPhase[k] += v.instFreqs[k] * synthesisHopF
				v.spectrum[k] = complex(
					v.magnitudes[k]*math.Cos(v.sumPhase[k]),
					v.magnitudes[k]*math.Sin(v.sumPhase[k]),
				)
			}
		} else {
			for _, pk := range v.peakBins {
				v.sumPhase[pk] += v.instFreqs[pk] * synthesisHopF
			}

			peakIdx := 0
			for k := 0; k <= half; k++ {
				for peakIdx+1 < len(v.peakBins) {
					curr := v.peakBins[peakIdx]
					next := v.peakBins[peakIdx+1]
					if absInt(next-k) < absInt(curr-k) {
						peakIdx++
					} else {
						break
					}
				}

				pk := v.peakBins[peakIdx]
				if k != pk {
					v.sumPhase[k] = v.sumPhase[pk] + (v.prevPhase[k] - v.prevPhase[pk])
				}

				v.spectrum[k] = complex(
					v.magnitudes[k]*math.Cos(v.sumPhase[k]),
					v.magnitudes[k]*math.Sin(v.sumPhase[k]),
				)
			}
		}

		// Mirror for real-valued IFFT.
		v.spectrum[0] = complex(real(v.spectrum[0]), 0)
		v.spectrum[half] = complex(real(v.spectrum[half]), 0)
		for k := 1; k < half; k++ {
			c := v.spectrum[k]
			v.spectrum[pvFrameSize-k] = complex(real(c), -imag(c))
		}

		err = v.plan.Inverse(v.timeFrame, v.spectrum)
		if err != nil {
			return nil, fmt.Errorf("phase vocoder: inverse FFT failed: %w", err)
		}

		for i := range pvFrameSize {
			idx := outPos + i
			w := v.window[i]
			stretched[idx] += real(v.timeFrame[i]) * w
			norm[idx] += w * w
		}
	}

	for i := range stretched {
		if norm[i] > pvNormFloor {
			stretched[i] /= norm[i]
		}
	}

	// Trim to the realized factor, which is quantized to
	// synthesisHop/analysisHop.
	return fitLength(stretched, targetLength(len(input), float64(v.synthesisHop)/pvAnalysisHop)), nil
}

func wrapPhase(x float64) float64 {
	x = math.Mod(x+math.Pi, 2*math.Pi)
	if x < 0 {
		x += 2 * math.Pi
	}
	return x - math.Pi
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
