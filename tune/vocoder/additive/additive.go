// Package additive is a self-contained reference implementation of the
// vocoder analysis contract.
//
// Analysis pairs an autocorrelation pitch tracker with short-time FFT
// magnitudes for the spectral envelope; synthesis rebuilds the signal as
// a bank of envelope-weighted harmonics plus shaped noise. It trades
// fidelity for having no external engine dependency, which makes it the
// default for tests, the command-line tool, and deployments without a
// dedicated vocoder binding.
package additive

import (
	"fmt"
	"math"

	algofft "github.com/MeKo-Christian/algo-fft"

	"github.com/cwbudde/algo-tune/tune"
	"github.com/cwbudde/algo-tune/tune/pitchtrack"
	"github.com/cwbudde/algo-tune/tune/window"
)

const (
	defaultFrameSize  = 1024
	defaultHopSeconds = 0.005
	maxHarmonics      = 64

	energyFloor  = 1e-9
	minFrameSize = 256
)

// Engine implements vocoder.Analyzer with purely in-process DSP.
type Engine struct {
	frameSize  int
	hopSeconds float64

	tracker   *pitchtrack.Autocorrelation
	plan      *algofft.Plan[complex128]
	window    []float64
	windowSum float64
}

// Option configures an Engine.
type Option func(*Engine)

// WithFrameSize sets the envelope analysis frame size. size must be a
// power of two and at least 256.
func WithFrameSize(size int) Option {
	return func(e *Engine) { e.frameSize = size }
}

// WithHopSeconds sets the analysis hop in seconds.
func WithHopSeconds(hop float64) Option {
	return func(e *Engine) { e.hopSeconds = hop }
}

// New creates a reference engine with a 1024-sample envelope frame and a
// 5 ms hop.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		frameSize:  defaultFrameSize,
		hopSeconds: defaultHopSeconds,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.frameSize < minFrameSize || e.frameSize&(e.frameSize-1) != 0 {
		return nil, fmt.Errorf("%w: frame size must be a power of two >= %d: %d",
			tune.ErrInvalidArgument, minFrameSize, e.frameSize)
	}
	if !(e.hopSeconds > 0) || math.IsInf(e.hopSeconds, 0) {
		return nil, fmt.Errorf("%w: hop must be positive and finite: %f", tune.ErrInvalidArgument, e.hopSeconds)
	}

	plan, err := algofft.NewPlan64(e.frameSize)
	if err != nil {
		return nil, fmt.Errorf("additive engine: failed to create FFT plan: %w", err)
	}
	e.plan = plan

	e.window = window.Hann(e.frameSize)
	e.windowSum = window.HannSum(e.frameSize)

	e.tracker = pitchtrack.NewAutocorrelation()

	return e, nil
}

func (e *Engine) hopSamples(sampleRate int) int {
	return max(int(math.Round(e.hopSeconds*float64(sampleRate))), 1)
}

// ExtractF0 estimates the fundamental contour on the engine's hop grid.
func (e *Engine) ExtractF0(audio []float64, sampleRate int, floorHz, ceilHz float64) ([]float64, []float64, error) {
	if sampleRate <= 0 {
		return nil, nil, fmt.Errorf("%w: sample rate must be positive: %d", tune.ErrInvalidArgument, sampleRate)
	}

	hop := e.hopSamples(sampleRate)
	f0, voiced, err := e.tracker.Track(audio, sampleRate, floorHz, ceilHz, hop)
	if err != nil {
		return nil, nil, err
	}

	timeAxis := make([]float64, len(f0))
	for i := range timeAxis {
		timeAxis[i] = float64(i*hop) / float64(sampleRate)
	}
	for i := range f0 {
		if !voiced[i] {
			f0[i] = 0
		}
	}

	return f0, timeAxis, nil
}

// RefineF0 applies a three-point median to voiced runs, removing isolated
// octave spikes while leaving unvoiced zeros untouched.
func (e *Engine) RefineF0(audio []float64, f0, timeAxis []float64, sampleRate int) ([]float64, error) {
	out := make([]float64, len(f0))
	copy(out, f0)

	for i := 1; i < len(f0)-1; i++ {
		a, b, c := f0[i-1], f0[i], f0[i+1]
		if a > 0 && b > 0 && c > 0 {
			out[i] = median3(a, b, c)
		}
	}

	return out, nil
}

func median3(a, b, c float64) float64 {
	return max(min(a, b), min(max(a, b), c))
}

// SpectralEnvelope returns lightly smoothed per-frame FFT magnitudes.
func (e *Engine) SpectralEnvelope(audio, f0, timeAxis []float64, sampleRate int) ([][]float64, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive: %d", tune.ErrInvalidArgument, sampleRate)
	}

	bins := e.frameSize/2 + 1
	spectrum := make([]complex128, e.frameSize)
	envelope := make([][]float64, len(timeAxis))

	for i, t := range timeAxis {
		pos := int(math.Round(t * float64(sampleRate)))

		for j := range e.frameSize {
			x := 0.0
			if idx := pos + j; idx >= 0 && idx < len(audio) {
				x = audio[idx]
			}
			spectrum[j] = complex(x*e.window[j], 0)
		}

		if err := e.plan.Forward(spectrum, spectrum); err != nil {
			return nil, fmt.Errorf("additive engine: forward FFT failed: %w", err)
		}

		row := make([]float64, bins)
		for k := range bins {
			row[k] = math.Hypot(real(spectrum[k]), imag(spectrum[k]))
		}
		envelope[i] = smooth3(row)
	}

	return envelope, nil
}

func smooth3(row []float64) []float64 {
	if len(row) < 3 {
		return row
	}
	out := make([]float64, len(row))
	out[0] = row[0]
	out[len(row)-1] = row[len(row)-1]
	for i := 1; i < len(row)-1; i++ {
		out[i] = (row[i-1] + row[i] + row[i+1]) / 3
	}
	return out
}

// Aperiodicity measures per-frame noisiness as one minus the normalized
// autocorrelation at the pitch period, broadcast across all envelope
// bins. Silent frames are fully aperiodic.
func (e *Engine) Aperiodicity(audio, f0, timeAxis []float64, sampleRate int) ([][]float64, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive: %d", tune.ErrInvalidArgument, sampleRate)
	}

	bins := e.frameSize/2 + 1
	out := make([][]float64, len(timeAxis))
	frame := make([]float64, e.frameSize)

	for i, t := range timeAxis {
		pos := int(math.Round(t * float64(sampleRate)))

		energy := 0.0
		for j := range e.frameSize {
			x := 0.0
			if idx := pos + j; idx >= 0 && idx < len(audio) {
				x = audio[idx]
			}
			frame[j] = x
			energy += x * x
		}

		ap := 1.0
		if energy > energyFloor && i < len(f0) && f0[i] > 0 {
			lag := int(math.Round(float64(sampleRate) / f0[i]))
			lag = min(max(lag, 2), e.frameSize/2)

			corr := 0.0
			for j := 0; j+lag < e.frameSize; j++ {
				corr += frame[j] * frame[j+lag]
			}
			ap = min(max(1-corr/energy, 0), 1)
		}

		row := make([]float64, bins)
		for k := range row {
			row[k] = ap
		}
		out[i] = row
	}

	return out, nil
}

// Synthesize rebuilds audio as envelope-weighted harmonics plus shaped
// noise. Frames with f0 <= 0 render noise only.
func (e *Engine) Synthesize(f0 []float64, envelope, aperiodicity [][]float64, sampleRate int) ([]float64, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive: %d", tune.ErrInvalidArgument, sampleRate)
	}
	if len(f0) == 0 || len(envelope) != len(f0) || len(aperiodicity) != len(f0) {
		return nil, fmt.Errorf("%w: frame counts must match: f0=%d envelope=%d aperiodicity=%d",
			tune.ErrInvalidArgument, len(f0), len(envelope), len(aperiodicity))
	}

	bins := len(envelope[0])
	binWidth := float64(sampleRate) / float64(e.frameSize)
	nyquist := float64(sampleRate) / 2

	// A windowed FFT peak of a unit sinusoid has magnitude windowSum/2,
	// so this scale maps envelope magnitudes back to waveform amplitude.
	scale := 2 / e.windowSum

	envMean := make([]float64, len(envelope))
	for i, row := range envelope {
		if len(row) != bins {
			return nil, fmt.Errorf("%w: envelope frame %d has %d bins, want %d",
				tune.ErrInvalidArgument, i, len(row), bins)
		}
		sum := 0.0
		for _, v := range row {
			sum += v
		}
		envMean[i] = sum / float64(bins)
	}

	hop := e.hopSamples(sampleRate)
	out := make([]float64, len(f0)*hop)

	phase := 0.0
	noise := uint64(0x9e3779b97f4a7c15)

	for n := range out {
		framePos := float64(n) / float64(hop)
		i0 := min(int(framePos), len(f0)-1)
		i1 := min(i0+1, len(f0)-1)
		frac := framePos - float64(i0)

		freq := interpF0(f0[i0], f0[i1], frac)
		ap := lerp(aperiodicity[i0][0], aperiodicity[i1][0], frac)

		sample := 0.0
		if freq > 0 && freq < nyquist {
			phase += 2 * math.Pi * freq / float64(sampleRate)
			if phase > 2*math.Pi {
				phase -= 2 * math.Pi
			}

			harmonics := min(int(nyquist/freq), maxHarmonics)
			for h := 1; h <= harmonics; h++ {
				bin := int(math.Round(float64(h) * freq / binWidth))
				if bin >= bins {
					break
				}
				amp := lerp(envelope[i0][bin], envelope[i1][bin], frac) * scale
				sample += amp * math.Sin(float64(h)*phase)
			}
			sample *= 1 - ap
		}

		noise = noise*6364136223846793005 + 1442695040888963407
		white := float64(int64(noise>>11))/(1<<52) - 1
		sample += white * ap * lerp(envMean[i0], envMean[i1], frac) * scale

		out[n] = sample
	}

	return out, nil
}

func interpF0(a, b, frac float64) float64 {
	switch {
	case a > 0 && b > 0:
		return lerp(a, b, frac)
	case frac < 0.5:
		return a
	default:
		return b
	}
}

func lerp(a, b, frac float64) float64 {
	return a + (b-a)*frac
}
