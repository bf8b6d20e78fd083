// Package stft provides short-time Fourier analysis and overlap-add
// reconstruction for the time-frequency stages of the pipeline.
//
// The Transformer interface is the collaborator contract; STFT is the
// default implementation backed by algo-fft plans.
package stft

import (
	"fmt"

	algofft "github.com/MeKo-Christian/algo-fft"

	"github.com/cwbudde/algo-tune/tune"
	"github.com/cwbudde/algo-tune/tune/window"
)

const (
	// DefaultFFTSize and DefaultHop match the framing used by the
	// cleanliness stage: 2048/512 at typical vocal sample rates.
	DefaultFFTSize = 2048
	DefaultHop     = 512

	minFFTSize = 64
	normFloor  = 1e-12
)

// Transformer is the spectral-transform collaborator contract.
//
// Forward returns one complex half-spectrum (fftSize/2+1 bins) per frame.
// Inverse reconstructs audio from such frames, trimmed or zero-padded to
// outputLen samples. Frequencies lists the bin centers in Hz for a sample
// rate.
type Transformer interface {
	Forward(audio []float64) ([][]complex128, error)
	Inverse(frames [][]complex128, outputLen int) ([]float64, error)
	Frequencies(sampleRate float64) []float64
	Bins() int
	Hop() int
}

// STFT is a Hann-windowed short-time Fourier transformer.
//
// It is mono, one-shot buffer oriented, and safe for concurrent use only
// through separate instances.
type STFT struct {
	fftSize int
	hop     int
	plan    *algofft.Plan[complex128]
	window  []float64
	frame   []complex128
}

// Option configures an STFT.
type Option func(*config)

type config struct {
	fftSize int
	hop     int
}

// WithFFTSize sets the transform size. It must be a power of two >= 64.
func WithFFTSize(n int) Option {
	return func(c *config) { c.fftSize = n }
}

// WithHop sets the analysis/synthesis hop in samples.
func WithHop(hop int) Option {
	return func(c *config) { c.hop = hop }
}

// New creates a transformer with the default 2048/512 framing.
func New(opts ...Option) (*STFT, error) {
	cfg := config{fftSize: DefaultFFTSize, hop: DefaultHop}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	if cfg.fftSize < minFFTSize || !isPowerOfTwo(cfg.fftSize) {
		return nil, fmt.Errorf("%w: fft size must be a power of two >= %d: %d",
			tune.ErrInvalidArgument, minFFTSize, cfg.fftSize)
	}
	if cfg.hop <= 0 || cfg.hop > cfg.fftSize {
		return nil, fmt.Errorf("%w: hop must be in [1, %d]: %d",
			tune.ErrInvalidArgument, cfg.fftSize, cfg.hop)
	}

	plan, err := algofft.NewPlan64(cfg.fftSize)
	if err != nil {
		return nil, fmt.Errorf("stft: failed to create FFT plan: %w", err)
	}

	return &STFT{
		fftSize: cfg.fftSize,
		hop:     cfg.hop,
		plan:    plan,
		window:  window.Hann(cfg.fftSize),
		frame:   make([]complex128, cfg.fftSize),
	}, nil
}

// FFTSize returns the transform size.
func (s *STFT) FFTSize() int { return s.fftSize }

// Hop returns the hop size in samples.
func (s *STFT) Hop() int { return s.hop }

// Bins returns the half-spectrum bin count.
func (s *STFT) Bins() int { return s.fftSize/2 + 1 }

// FrameCount returns the number of analysis frames for an input length.
func (s *STFT) FrameCount(inputLen int) int {
	if inputLen <= 0 {
		return 0
	}
	return 1 + (inputLen-1)/s.hop
}

// Frequencies returns the bin center frequencies in Hz.
func (s *STFT) Frequencies(sampleRate float64) []float64 {
	bins := s.Bins()
	out := make([]float64, bins)
	for k := range bins {
		out[k] = float64(k) * sampleRate / float64(s.fftSize)
	}
	return out
}

// Forward computes the windowed half-spectrum of every frame.
func (s *STFT) Forward(audio []float64) ([][]complex128, error) {
	if len(audio) == 0 {
		return nil, nil
	}

	frameCount := s.FrameCount(len(audio))
	half := s.fftSize / 2
	out := make([][]complex128, frameCount)

	for frame := range frameCount {
		pos := frame * s.hop

		for i := range s.fftSize {
			x := 0.0
			if idx := pos + i; idx < len(audio) {
				x = audio[idx]
			}
			s.frame[i] = complex(x*s.window[i], 0)
		}

		if err := s.plan.Forward(s.frame, s.frame); err != nil {
			return nil, fmt.Errorf("stft: forward FFT failed: %w", err)
		}

		spec := make([]complex128, half+1)
		copy(spec, s.frame[:half+1])
		out[frame] = spec
	}

	return out, nil
}

// Inverse reconstructs audio by windowed overlap-add with window-squared
// normalization, then trims or zero-pads to outputLen.
func (s *STFT) Inverse(frames [][]complex128, outputLen int) ([]float64, error) {
	if len(frames) == 0 || outputLen <= 0 {
		return make([]float64, max(outputLen, 0)), nil
	}

	half := s.fftSize / 2
	total := (len(frames)-1)*s.hop + s.fftSize
	acc := make([]float64, total)
	norm := make([]float64, total)

	for f, spec := range frames {
		if len(spec) != half+1 {
			return nil, fmt.Errorf("%w: frame %d has %d bins, want %d",
				tune.ErrInvalidArgument, f, len(spec), half+1)
		}

		copy(s.frame[:half+1], spec)
		s.frame[0] = complex(real(s.frame[0]), 0)
		s.frame[half] = complex(real(s.frame[half]), 0)
		for k := 1; k < half; k++ {
			v := s.frame[k]
			s.frame[s.fftSize-k] = complex(real(v), -imag(v))
		}

		if err := s.plan.Inverse(s.frame, s.frame); err != nil {
			return nil, fmt.Errorf("stft: inverse FFT failed: %w", err)
		}

		pos := f * s.hop
		for i := range s.fftSize {
			w := s.window[i]
			acc[pos+i] += real(s.frame[i]) * w
			norm[pos+i] += w * w
		}
	}

	for i := range acc {
		if norm[i] > normFloor {
			acc[i] /= norm[i]
		}
	}

	out := make([]float64, outputLen)
	copy(out, acc)
	return out, nil
}

func isPowerOfTwo(v int) bool {
	return v > 0 && v&(v-1) == 0
}
