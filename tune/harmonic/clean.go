package harmonic

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-tune/tune"
	"github.com/cwbudde/algo-tune/tune/pitchtrack"
	"github.com/cwbudde/algo-tune/tune/spectrum"
	"github.com/cwbudde/algo-tune/tune/stft"
)

const (
	// minCleanSeconds is the shortest buffer worth filtering; anything
	// shorter passes through unchanged.
	minCleanSeconds = 0.2

	defaultFminHz = 50.0
	defaultFmaxHz = 500.0
)

// Engine applies harmonic isolation to audio buffers.
//
// It analyzes with a short-time transform, tracks f0 frame-wise, builds the
// comb mask, scales the magnitude spectrogram, and reconstructs with the
// original phase. Construct once, use from one goroutine at a time.
type Engine struct {
	transformer stft.Transformer
	tracker     pitchtrack.Tracker
	fminHz      float64
	fmaxHz      float64
	minBwHz     float64
	maxBwHz     float64
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithTransformer replaces the default 2048/512 short-time transform.
func WithTransformer(t stft.Transformer) EngineOption {
	return func(e *Engine) {
		if t != nil {
			e.transformer = t
		}
	}
}

// WithTracker replaces the default autocorrelation pitch tracker.
func WithTracker(t pitchtrack.Tracker) EngineOption {
	return func(e *Engine) {
		if t != nil {
			e.tracker = t
		}
	}
}

// WithF0Range sets the pitch search band in Hz.
func WithF0Range(fminHz, fmaxHz float64) EngineOption {
	return func(e *Engine) {
		if fminHz > 0 && fmaxHz > fminHz {
			e.fminHz = fminHz
			e.fmaxHz = fmaxHz
		}
	}
}

// WithBandwidthBounds overrides the Gaussian bandwidth range in Hz.
func WithBandwidthBounds(minHz, maxHz float64) EngineOption {
	return func(e *Engine) {
		if minHz > 0 && maxHz > minHz {
			e.minBwHz = minHz
			e.maxBwHz = maxHz
		}
	}
}

// NewEngine creates a cleanliness engine with default framing.
func NewEngine(opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		fminHz:  defaultFminHz,
		fmaxHz:  defaultFmaxHz,
		minBwHz: DefaultMinBandwidthHz,
		maxBwHz: DefaultMaxBandwidthHz,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}

	if e.transformer == nil {
		t, err := stft.New()
		if err != nil {
			return nil, err
		}
		e.transformer = t
	}
	if e.tracker == nil {
		e.tracker = pitchtrack.NewAutocorrelation()
	}

	return e, nil
}

// CleanParams are the per-call cleanliness controls.
//
// Cleanliness 0 is a no-op; 100 is the tightest isolation. BypassHz keeps
// content at and above it untouched (0 means Nyquist). PreserveUnvoiced
// leaves unvoiced frames unfiltered so consonants stay intelligible.
type CleanParams struct {
	Cleanliness      float64
	BypassHz         float64
	PreserveUnvoiced bool
}

// Process returns a harmonically isolated copy of audio.
//
// Cleanliness <= 0 and buffers shorter than 0.2 s return an unmodified
// copy without any analysis. Output length always equals input length.
func (e *Engine) Process(audio []float64, sampleRate int, p CleanParams) ([]float64, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive: %d", tune.ErrInvalidArgument, sampleRate)
	}

	if p.Cleanliness <= 0 || math.IsNaN(p.Cleanliness) {
		return copySlice(audio), nil
	}
	if float64(len(audio))/float64(sampleRate) < minCleanSeconds {
		return copySlice(audio), nil
	}

	frames, err := e.transformer.Forward(audio)
	if err != nil {
		return nil, fmt.Errorf("%w: forward transform: %w", tune.ErrUpstreamAnalysis, err)
	}
	if len(frames) == 0 {
		return copySlice(audio), nil
	}

	f0, voiced, err := e.tracker.Track(audio, sampleRate, e.fminHz, e.fmaxHz, e.transformer.Hop())
	if err != nil {
		return nil, fmt.Errorf("%w: pitch tracking: %w", tune.ErrUpstreamAnalysis, err)
	}
	if len(f0) == 0 {
		return copySlice(audio), nil
	}
	f0, voiced = fitFrames(f0, voiced, len(frames))

	nyquist := float64(sampleRate) / 2
	bypass := p.BypassHz
	if math.IsNaN(bypass) || math.IsInf(bypass, 0) || bypass <= 0 || bypass > nyquist {
		bypass = nyquist
	}

	freqs := e.transformer.Frequencies(float64(sampleRate))
	mask := BuildMask(freqs, f0, voiced, MaskParams{
		Cleanliness:      clamp(p.Cleanliness, 0, 100),
		MinBandwidthHz:   e.minBwHz,
		MaxBandwidthHz:   e.maxBwHz,
		BypassHz:         bypass,
		PreserveUnvoiced: p.PreserveUnvoiced,
	})

	for t, spec := range frames {
		mag := spectrum.Magnitude(spec)
		phase := spectrum.Phase(spec)
		spectrum.ScaleInPlace(mag, mask[t])
		frames[t] = spectrum.FromPolar(mag, phase)
	}

	out, err := e.transformer.Inverse(frames, len(audio))
	if err != nil {
		return nil, fmt.Errorf("%w: inverse transform: %w", tune.ErrUpstreamAnalysis, err)
	}

	return out, nil
}

// fitFrames trims or edge-pads the tracked contour to the spectrogram's
// frame count.
func fitFrames(f0 []float64, voiced []bool, frames int) ([]float64, []bool) {
	outF0 := make([]float64, frames)
	outVoiced := make([]bool, frames)

	for t := range frames {
		src := t
		if src >= len(f0) {
			src = len(f0) - 1
		}
		outF0[t] = f0[src]
		outVoiced[t] = voiced[src]
	}

	return outF0, outVoiced
}

func copySlice(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
