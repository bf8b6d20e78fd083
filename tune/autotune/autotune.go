// Package autotune wires analysis, contour shaping, and resynthesis into
// the user-facing pitch correction operations.
//
// A Pipeline owns a pluggable vocoder engine behind a bounded analysis
// cache, so repeated corrections of the same buffer with different
// targets or strengths reuse one analysis pass. Hard correction snaps
// every voiced frame to the target; soft correction pulls the note
// trajectory toward it while optionally keeping vibrato; the overlap-add
// variant renders the corrected contour through an external
// pitch-synchronous engine instead of the vocoder.
package autotune

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/cwbudde/algo-tune/tune"
	"github.com/cwbudde/algo-tune/tune/contour"
	"github.com/cwbudde/algo-tune/tune/formant"
	"github.com/cwbudde/algo-tune/tune/note"
	"github.com/cwbudde/algo-tune/tune/psola"
	"github.com/cwbudde/algo-tune/tune/vocoder"
	"github.com/cwbudde/algo-tune/tune/voicing"
)

// minCorrectSeconds is the shortest buffer the correction operations
// accept.
const minCorrectSeconds = 0.1

// Pipeline runs pitch correction on mono buffers.
//
// Safe for concurrent use when the underlying analyzer is.
type Pipeline struct {
	analyzer vocoder.Analyzer
	cache    *vocoder.Cache
	logger   *zap.Logger

	cacheCapacity int
	f0FloorHz     float64
	f0CeilHz      float64
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger attaches a structured logger. The default discards logs.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithCacheCapacity bounds the analysis cache entry count.
func WithCacheCapacity(n int) Option {
	return func(p *Pipeline) { p.cacheCapacity = n }
}

// WithF0Range sets the fundamental-frequency search band in Hz.
func WithF0Range(floorHz, ceilHz float64) Option {
	return func(p *Pipeline) {
		p.f0FloorHz = floorHz
		p.f0CeilHz = ceilHz
	}
}

// New creates a correction pipeline around the given analysis engine.
func New(analyzer vocoder.Analyzer, opts ...Option) (*Pipeline, error) {
	if analyzer == nil {
		return nil, fmt.Errorf("%w: analyzer must be set", tune.ErrMissingCapability)
	}

	p := &Pipeline{
		analyzer:      analyzer,
		logger:        zap.NewNop(),
		cacheCapacity: vocoder.DefaultCacheCapacity,
		f0FloorHz:     vocoder.DefaultF0FloorHz,
		f0CeilHz:      vocoder.DefaultF0CeilHz,
	}
	for _, opt := range opts {
		opt(p)
	}

	cache, err := vocoder.NewCache(analyzer,
		vocoder.WithCapacity(p.cacheCapacity),
		vocoder.WithF0Range(p.f0FloorHz, p.f0CeilHz))
	if err != nil {
		return nil, err
	}
	p.cache = cache

	return p, nil
}

// HardParams controls HardCorrect.
//
// Exactly one of TargetNote and TargetHz selects the target pitch; a
// non-empty note name wins. PreserveFormants keeps the spectral envelope
// in place so the timbre does not follow the pitch shift.
// FormantShiftCents additionally moves the envelope, independent of the
// pitch target.
type HardParams struct {
	TargetNote string
	TargetHz   float64

	Mode           voicing.Mode
	DilationFrames int

	PreserveFormants  bool
	FormantShiftCents float64
}

// SoftParams controls SoftCorrect and RetuneOverlapAdd.
//
// Amount in [0, 1] scales how far the note trajectory is pulled to the
// target; RetuneSpeedMs is the pull's smoothing time constant;
// PreserveVibrato in [0, 1] is the fraction of fast pitch deviation kept.
type SoftParams struct {
	TargetNote string
	TargetHz   float64

	Amount          float64
	RetuneSpeedMs   float64
	PreserveVibrato float64

	Mode           voicing.Mode
	DilationFrames int

	PreserveFormants  bool
	FormantShiftCents float64
}

// HardCorrect snaps every voiced frame to the target pitch and
// resynthesizes.
//
// Buffers shorter than 0.1 s are rejected with tune.ErrInvalidArgument.
// When no frame is voiced under the requested policy, a copy of the
// input is returned together with tune.ErrNoVoicedContent.
func (p *Pipeline) HardCorrect(audio []float64, sampleRate int, params HardParams) ([]float64, error) {
	targetHz, err := resolveTarget(params.TargetNote, params.TargetHz)
	if err != nil {
		return nil, err
	}

	result, err := p.analyze(audio, sampleRate, params.Mode, params.DilationFrames)
	if err != nil {
		return nil, err
	}
	if !anyMasked(result.VoicedMask) {
		p.logger.Info("no voiced content under policy, returning input",
			zap.String("mode", string(normalizeMode(params.Mode))))
		return copySlice(audio), tune.ErrNoVoicedContent
	}

	flat := contour.Flatten(result.F0, result.VoicedMask, targetHz)
	envelope := p.shapeEnvelope(result, flat,
		params.PreserveFormants, params.FormantShiftCents)

	p.logger.Debug("hard correction",
		zap.Float64("target_hz", targetHz),
		zap.Int("frames", result.Frames()))

	return p.synthesize(flat, envelope, result, audio, sampleRate)
}

// SoftCorrect pulls the note trajectory toward the target while keeping
// the requested fraction of vibrato, then resynthesizes.
func (p *Pipeline) SoftCorrect(audio []float64, sampleRate int, params SoftParams) ([]float64, error) {
	targetHz, err := resolveTarget(params.TargetNote, params.TargetHz)
	if err != nil {
		return nil, err
	}

	result, err := p.analyze(audio, sampleRate, params.Mode, params.DilationFrames)
	if err != nil {
		return nil, err
	}

	shaped, voiced := contour.Retune(result.F0, result.VoicedMask, result.HopSeconds(), contour.RetuneParams{
		TargetHz:        targetHz,
		Amount:          params.Amount,
		RetuneSpeedMs:   params.RetuneSpeedMs,
		PreserveVibrato: params.PreserveVibrato,
	})
	if !voiced {
		p.logger.Info("no voiced content, returning input")
		return copySlice(audio), tune.ErrNoVoicedContent
	}

	envelope := p.shapeEnvelope(result, shaped,
		params.PreserveFormants, params.FormantShiftCents)

	p.logger.Debug("soft correction",
		zap.Float64("target_hz", targetHz),
		zap.Float64("amount", params.Amount),
		zap.Float64("retune_speed_ms", params.RetuneSpeedMs))

	return p.synthesize(shaped, envelope, result, audio, sampleRate)
}

// RetuneOverlapAdd renders the soft-corrected contour through an
// external pitch-synchronous overlap-add engine instead of the vocoder.
// The envelope controls of params are ignored; PSOLA keeps formants by
// construction.
func (p *Pipeline) RetuneOverlapAdd(engine psola.Engine, audio []float64, sampleRate int, params SoftParams) ([]float64, error) {
	targetHz, err := resolveTarget(params.TargetNote, params.TargetHz)
	if err != nil {
		return nil, err
	}

	result, err := p.analyze(audio, sampleRate, params.Mode, params.DilationFrames)
	if err != nil {
		return nil, err
	}

	shaped, voiced := contour.Retune(result.F0, result.VoicedMask, result.HopSeconds(), contour.RetuneParams{
		TargetHz:        targetHz,
		Amount:          params.Amount,
		RetuneSpeedMs:   params.RetuneSpeedMs,
		PreserveVibrato: params.PreserveVibrato,
	})
	if !voiced {
		return copySlice(audio), tune.ErrNoVoicedContent
	}

	p.logger.Debug("overlap-add retune",
		zap.Float64("target_hz", targetHz),
		zap.Int("frames", result.Frames()))

	return psola.Resynthesize(engine, audio, sampleRate, result.TimeAxis, shaped, psola.DefaultParams())
}

// analyze validates the buffer and pulls its analysis through the cache.
func (p *Pipeline) analyze(audio []float64, sampleRate int, mode voicing.Mode, dilationFrames int) (*vocoder.Result, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: audio must be non-empty", tune.ErrInvalidArgument)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive: %d", tune.ErrInvalidArgument, sampleRate)
	}
	if float64(len(audio))/float64(sampleRate) < minCorrectSeconds {
		return nil, fmt.Errorf("%w: buffer shorter than %.1f s minimum: %d samples at %d Hz",
			tune.ErrInvalidArgument, minCorrectSeconds, len(audio), sampleRate)
	}

	return p.cache.GetOrCompute(audio, sampleRate, normalizeMode(mode), dilationFrames)
}

// shapeEnvelope applies the formant controls to the analysis envelope.
// With PreserveFormants the envelope stays in place; otherwise it follows
// the per-frame pitch ratio. FormantShiftCents is applied on top either
// way.
func (p *Pipeline) shapeEnvelope(result *vocoder.Result, shaped []float64, preserve bool, shiftCents float64) [][]float64 {
	envelope := result.Envelope

	if !preserve {
		ratios := make([]float64, len(shaped))
		for i := range shaped {
			ratios[i] = 1
			if i < len(result.F0) && result.F0[i] > 0 && shaped[i] > 0 {
				ratios[i] = shaped[i] / result.F0[i]
			}
		}
		envelope = shiftPerFrame(envelope, ratios)
	}

	if shiftCents != 0 {
		envelope = formant.ShiftFrames(envelope, formant.CentsRatio(shiftCents))
	}

	return envelope
}

func shiftPerFrame(envelope [][]float64, ratios []float64) [][]float64 {
	out := make([][]float64, len(envelope))
	for i, frame := range envelope {
		ratio := 1.0
		if i < len(ratios) {
			ratio = ratios[i]
		}
		out[i] = formant.ShiftEnvelope(frame, ratio)
	}
	return out
}

func (p *Pipeline) synthesize(f0 []float64, envelope [][]float64, result *vocoder.Result, audio []float64, sampleRate int) ([]float64, error) {
	if len(f0) != len(envelope) || len(f0) != len(result.Aperiodicity) {
		return nil, fmt.Errorf("%w: frame counts disagree: f0 %d, envelope %d, aperiodicity %d",
			tune.ErrInvalidArgument, len(f0), len(envelope), len(result.Aperiodicity))
	}

	out, err := p.analyzer.Synthesize(f0, envelope, result.Aperiodicity, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("%w: synthesis: %w", tune.ErrUpstreamAnalysis, err)
	}
	return fitLength(out, len(audio)), nil
}

func resolveTarget(targetNote string, targetHz float64) (float64, error) {
	if targetNote != "" {
		hz, err := note.NameToFreq(targetNote)
		if err != nil {
			return 0, err
		}
		return hz, nil
	}
	if math.IsNaN(targetHz) || math.IsInf(targetHz, 0) || targetHz <= 0 {
		return 0, fmt.Errorf("%w: target pitch must be positive and finite: %f", tune.ErrInvalidArgument, targetHz)
	}
	return targetHz, nil
}

func normalizeMode(mode voicing.Mode) voicing.Mode {
	if mode == "" {
		return voicing.ModeStrict
	}
	return mode
}

func anyMasked(mask []bool) bool {
	for _, m := range mask {
		if m {
			return true
		}
	}
	return false
}

func copySlice(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}

func fitLength(in []float64, n int) []float64 {
	out := make([]float64, n)
	copy(out, in)
	return out
}
