// Package vocoder defines the spectral analysis/resynthesis collaborator
// contract and a bounded, thread-safe cache for its analysis results.
//
// The analysis engine itself (fundamental-frequency extraction, spectral
// envelope, aperiodicity, resynthesis) is pluggable; the additive subpackage
// ships a self-contained reference implementation.
package vocoder

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-tune/tune"
	"github.com/cwbudde/algo-tune/tune/voicing"
)

// Default f0 search band, matching typical vocal fundamentals.
const (
	DefaultF0FloorHz = 50.0
	DefaultF0CeilHz  = 500.0
)

// Analyzer is the external vocoder-analysis engine contract.
//
// All slice arguments are read-only for the engine; returned slices are
// owned by the caller. Frame counts must be consistent: every per-frame
// output of one analysis pass has the same length, and envelope and
// aperiodicity frames have equal bin counts.
type Analyzer interface {
	// ExtractF0 estimates a fundamental-frequency contour and its frame
	// timestamps in seconds. Unvoiced frames carry f0 = 0.
	ExtractF0(audio []float64, sampleRate int, floorHz, ceilHz float64) (f0, timeAxis []float64, err error)

	// RefineF0 improves a previously extracted contour.
	RefineF0(audio []float64, f0, timeAxis []float64, sampleRate int) ([]float64, error)

	// SpectralEnvelope estimates per-frame spectral magnitudes.
	SpectralEnvelope(audio, f0, timeAxis []float64, sampleRate int) ([][]float64, error)

	// Aperiodicity estimates per-frame band noise ratios in [0, 1].
	Aperiodicity(audio, f0, timeAxis []float64, sampleRate int) ([][]float64, error)

	// Synthesize reconstructs audio from a contour, envelope frames, and
	// aperiodicity frames.
	Synthesize(f0 []float64, envelope, aperiodicity [][]float64, sampleRate int) ([]float64, error)
}

// Result is one complete, immutable analysis of a buffer.
//
// F0 is the raw refined contour (0 = unvoiced); VoicedMask is the
// policy-derived correction mask. Envelope and Aperiodicity were estimated
// on the gap-filled contour so unvoiced stretches still carry usable
// spectral data.
type Result struct {
	F0           []float64
	TimeAxis     []float64
	Envelope     [][]float64
	Aperiodicity [][]float64
	VoicedMask   []bool
}

// Frames returns the analysis frame count.
func (r *Result) Frames() int { return len(r.F0) }

// HopSeconds estimates the analysis hop as the median of consecutive
// time-axis deltas, falling back to 5 ms when the estimate is unusable.
func (r *Result) HopSeconds() float64 {
	return hopFromTimeAxis(r.TimeAxis)
}

const fallbackHopSeconds = 0.005

func hopFromTimeAxis(timeAxis []float64) float64 {
	if len(timeAxis) < 2 {
		return fallbackHopSeconds
	}

	deltas := make([]float64, 0, len(timeAxis)-1)
	for i := 1; i < len(timeAxis); i++ {
		deltas = append(deltas, timeAxis[i]-timeAxis[i-1])
	}

	hop := median(deltas)
	if math.IsNaN(hop) || math.IsInf(hop, 0) || hop <= 0 {
		return fallbackHopSeconds
	}
	return hop
}

func median(v []float64) float64 {
	if len(v) == 0 {
		return math.NaN()
	}

	s := make([]float64, len(v))
	copy(s, v)
	insertionSort(s)

	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return 0.5 * (s[mid-1] + s[mid])
}

func insertionSort(s []float64) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

// Analyze runs the full analysis pass: f0 extraction and refinement, mask
// derivation under the voicing policy, and envelope plus aperiodicity
// estimation on the gap-filled contour.
func Analyze(a Analyzer, audio []float64, sampleRate int, mode voicing.Mode, dilationFrames int) (*Result, error) {
	return AnalyzeBand(a, audio, sampleRate, mode, dilationFrames, DefaultF0FloorHz, DefaultF0CeilHz)
}

// AnalyzeBand is Analyze with an explicit f0 search band.
func AnalyzeBand(a Analyzer, audio []float64, sampleRate int, mode voicing.Mode, dilationFrames int, floorHz, ceilHz float64) (*Result, error) {
	if _, err := voicing.ParseMode(string(mode)); err != nil {
		return nil, err
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive: %d", tune.ErrInvalidArgument, sampleRate)
	}

	f0, timeAxis, err := a.ExtractF0(audio, sampleRate, floorHz, ceilHz)
	if err != nil {
		return nil, fmt.Errorf("%w: extract f0: %w", tune.ErrUpstreamAnalysis, err)
	}

	f0, err = a.RefineF0(audio, f0, timeAxis, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("%w: refine f0: %w", tune.ErrUpstreamAnalysis, err)
	}

	mask, analysisF0, err := voicing.DeriveMask(f0, mode, dilationFrames, voicing.DefaultFallbackHz)
	if err != nil {
		return nil, err
	}

	envelope, err := a.SpectralEnvelope(audio, analysisF0, timeAxis, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("%w: spectral envelope: %w", tune.ErrUpstreamAnalysis, err)
	}

	aperiodicity, err := a.Aperiodicity(audio, analysisF0, timeAxis, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("%w: aperiodicity: %w", tune.ErrUpstreamAnalysis, err)
	}

	return &Result{
		F0:           f0,
		TimeAxis:     timeAxis,
		Envelope:     envelope,
		Aperiodicity: aperiodicity,
		VoicedMask:   mask,
	}, nil
}
