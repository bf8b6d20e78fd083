// Package psola defines a thin seam over pitch-synchronous overlap-add
// resynthesis back ends.
//
// The package itself ships no DSP. It models the manipulation workflow of
// an external PSOLA engine as three small interfaces and provides
// Resynthesize, which drives a full replace-pitch-and-synthesize pass
// over any implementation. Production deployments inject an engine
// binding; tests inject fakes.
package psola

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-tune/tune"
)

// Default analysis parameters passed to CreateManipulation.
const (
	DefaultTimeStepSeconds = 0.01
	DefaultPitchFloorHz    = 50.0
	DefaultPitchCeilHz     = 500.0
)

// Engine creates manipulations and pitch tiers. Implementations wrap an
// external PSOLA capability.
type Engine interface {
	// CreateManipulation analyzes audio into an editable manipulation
	// object. timeStep is the analysis frame step in seconds; pitchFloor
	// and pitchCeil bound the f0 search in Hz.
	CreateManipulation(audio []float64, sampleRate int, timeStep, pitchFloor, pitchCeil float64) (Manipulation, error)

	// NewPitchTier creates an empty pitch tier spanning [start, end]
	// seconds.
	NewPitchTier(start, end float64) (Tier, error)
}

// Manipulation is an analyzed utterance whose pitch contour can be
// replaced before resynthesis.
type Manipulation interface {
	Duration() float64
	ReplacePitchTier(tier Tier) error
	ResynthesizeOverlapAdd() ([]float64, error)
}

// Tier is a sparse pitch contour of (time, frequency) anchor points.
type Tier interface {
	AddPoint(timeSeconds, frequencyHz float64) error
}

// Params controls a Resynthesize pass.
type Params struct {
	TimeStepSeconds float64
	PitchFloorHz    float64
	PitchCeilHz     float64
}

// DefaultParams returns the standard analysis settings.
func DefaultParams() Params {
	return Params{
		TimeStepSeconds: DefaultTimeStepSeconds,
		PitchFloorHz:    DefaultPitchFloorHz,
		PitchCeilHz:     DefaultPitchCeilHz,
	}
}

func (p Params) validate() error {
	if !(p.TimeStepSeconds > 0) || math.IsInf(p.TimeStepSeconds, 0) {
		return fmt.Errorf("%w: time step must be positive and finite: %f", tune.ErrInvalidArgument, p.TimeStepSeconds)
	}
	if !(p.PitchFloorHz > 0) || !(p.PitchCeilHz > p.PitchFloorHz) {
		return fmt.Errorf("%w: pitch bounds must satisfy 0 < floor < ceil: floor=%f ceil=%f",
			tune.ErrInvalidArgument, p.PitchFloorHz, p.PitchCeilHz)
	}
	return nil
}

// Resynthesize renders audio with its pitch contour replaced by the
// (times, f0) pair, using the given engine.
//
// Contour points with non-finite or non-positive frequency are skipped,
// leaving the engine to interpolate across the gap. Engines backed by
// external processes occasionally fail transiently on the synthesis
// step, so that step is retried exactly once before the error is
// surfaced.
func Resynthesize(engine Engine, audio []float64, sampleRate int, times, f0 []float64, params Params) ([]float64, error) {
	if engine == nil {
		return nil, fmt.Errorf("%w: engine must be set", tune.ErrMissingCapability)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: audio must be non-empty", tune.ErrInvalidArgument)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive: %d", tune.ErrInvalidArgument, sampleRate)
	}
	if len(times) != len(f0) {
		return nil, fmt.Errorf("%w: contour length mismatch: %d times, %d values",
			tune.ErrInvalidArgument, len(times), len(f0))
	}
	if err := params.validate(); err != nil {
		return nil, err
	}

	manipulation, err := engine.CreateManipulation(audio, sampleRate,
		params.TimeStepSeconds, params.PitchFloorHz, params.PitchCeilHz)
	if err != nil {
		return nil, fmt.Errorf("psola: manipulation failed: %w", err)
	}

	tier, err := engine.NewPitchTier(0, manipulation.Duration())
	if err != nil {
		return nil, fmt.Errorf("psola: pitch tier creation failed: %w", err)
	}

	added := 0
	for i, hz := range f0 {
		if math.IsNaN(hz) || math.IsInf(hz, 0) || hz <= 0 {
			continue
		}
		if err := tier.AddPoint(times[i], hz); err != nil {
			return nil, fmt.Errorf("psola: adding contour point at %fs failed: %w", times[i], err)
		}
		added++
	}
	if added == 0 {
		return nil, fmt.Errorf("%w: contour has no usable pitch points", tune.ErrNoVoicedContent)
	}

	out, err := renderTier(manipulation, tier)
	if err != nil {
		// One retry of the replace and synthesis pair covers transient
		// engine failures.
		out, err = renderTier(manipulation, tier)
		if err != nil {
			return nil, fmt.Errorf("psola: resynthesis failed: %w", err)
		}
	}

	return out, nil
}

// renderTier installs the tier on the manipulation handle and requests
// overlap-add synthesis.
func renderTier(m Manipulation, tier Tier) ([]float64, error) {
	if err := m.ReplacePitchTier(tier); err != nil {
		return nil, fmt.Errorf("replacing pitch tier: %w", err)
	}
	return m.ResynthesizeOverlapAdd()
}
