package autotune

import (
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"github.com/cwbudde/algo-tune/tune"
	"github.com/cwbudde/algo-tune/tune/formant"
	"github.com/cwbudde/algo-tune/tune/pitchtrack"
	"github.com/cwbudde/algo-tune/tune/psola"
	"github.com/cwbudde/algo-tune/tune/vocoder"
	"github.com/cwbudde/algo-tune/tune/vocoder/additive"
)

const testSampleRate = 44100

func sine(freq float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/testSampleRate)
	}
	return out
}

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()

	engine, err := additive.New()
	if err != nil {
		t.Fatalf("additive.New failed: %v", err)
	}
	p, err := New(engine)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p
}

func meanTrackedF0(t *testing.T, audio []float64) float64 {
	t.Helper()

	tracker := pitchtrack.NewAutocorrelation()
	f0, voiced, err := tracker.Track(audio, testSampleRate, 50, 600, testSampleRate/200)
	if err != nil {
		t.Fatalf("pitch tracking failed: %v", err)
	}

	sum, count := 0.0, 0
	for i := len(f0) / 4; i < 3*len(f0)/4; i++ {
		if voiced[i] {
			sum += f0[i]
			count++
		}
	}
	if count == 0 {
		t.Fatalf("no voiced frames in corrected audio")
	}
	return sum / float64(count)
}

func TestHardCorrectShiftsOctave(t *testing.T) {
	p := newTestPipeline(t)
	input := sine(220, testSampleRate)

	out, err := p.HardCorrect(input, testSampleRate, HardParams{TargetNote: "A4"})
	if err != nil {
		t.Fatalf("HardCorrect failed: %v", err)
	}
	if len(out) != len(input) {
		t.Fatalf("output length = %d, want %d", len(out), len(input))
	}

	if mean := meanTrackedF0(t, out); math.Abs(mean-440) > 3 {
		t.Errorf("corrected mean f0 = %f Hz, want 440 +- 3", mean)
	}
}

// shapeRecorder wraps an engine to capture the analysis envelope and the
// arguments handed to synthesis.
type shapeRecorder struct {
	vocoder.Analyzer
	analyzed [][]float64
	f0       []float64
	envelope [][]float64
}

func (r *shapeRecorder) SpectralEnvelope(audio, f0, timeAxis []float64, sampleRate int) ([][]float64, error) {
	env, err := r.Analyzer.SpectralEnvelope(audio, f0, timeAxis, sampleRate)
	r.analyzed = env
	return env, err
}

func (r *shapeRecorder) Synthesize(f0 []float64, envelope, aperiodicity [][]float64, sampleRate int) ([]float64, error) {
	r.f0 = f0
	r.envelope = envelope
	return r.Analyzer.Synthesize(f0, envelope, aperiodicity, sampleRate)
}

func newRecordingPipeline(t *testing.T) (*Pipeline, *shapeRecorder) {
	t.Helper()

	engine, err := additive.New()
	if err != nil {
		t.Fatalf("additive.New failed: %v", err)
	}
	rec := &shapeRecorder{Analyzer: engine}
	p, err := New(rec)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p, rec
}

func TestHardCorrectPreservesFormants(t *testing.T) {
	p, rec := newRecordingPipeline(t)
	input := sine(220, testSampleRate)

	out, err := p.HardCorrect(input, testSampleRate, HardParams{
		TargetNote:       "A4",
		PreserveFormants: true,
	})
	if err != nil {
		t.Fatalf("HardCorrect failed: %v", err)
	}
	if len(out) != len(input) {
		t.Fatalf("output length = %d, want %d", len(out), len(input))
	}
	for i, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("output sample %d = %f, want finite", i, v)
		}
	}

	voiced := 0
	for i, hz := range rec.f0 {
		if hz == 0 {
			continue
		}
		voiced++
		if math.Abs(hz-440) > 1e-9 {
			t.Fatalf("corrected contour frame %d = %f Hz, want exactly 440", i, hz)
		}
	}
	if voiced == 0 {
		t.Fatalf("corrected contour has no voiced frames")
	}

	// Preserving formants means the analysis envelope reaches synthesis
	// untouched.
	if len(rec.envelope) != len(rec.analyzed) {
		t.Fatalf("synthesis envelope has %d frames, analysis %d", len(rec.envelope), len(rec.analyzed))
	}
	for i := range rec.envelope {
		for k := range rec.envelope[i] {
			if rec.envelope[i][k] != rec.analyzed[i][k] {
				t.Fatalf("envelope frame %d bin %d changed: %g vs %g",
					i, k, rec.envelope[i][k], rec.analyzed[i][k])
			}
		}
	}
}

func TestHardCorrectAppliesFormantShiftCents(t *testing.T) {
	p, rec := newRecordingPipeline(t)
	input := sine(220, testSampleRate)

	out, err := p.HardCorrect(input, testSampleRate, HardParams{
		TargetHz:          440,
		PreserveFormants:  true,
		FormantShiftCents: 1200,
	})
	if err != nil {
		t.Fatalf("HardCorrect failed: %v", err)
	}
	if len(out) != len(input) {
		t.Fatalf("output length = %d, want %d", len(out), len(input))
	}
	for i, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("output sample %d = %f, want finite", i, v)
		}
	}

	ratio := formant.CentsRatio(1200)
	changed := false
	for i := range rec.envelope {
		want := formant.ShiftEnvelope(rec.analyzed[i], ratio)
		for k := range rec.envelope[i] {
			if math.Abs(rec.envelope[i][k]-want[k]) > 1e-12 {
				t.Fatalf("envelope frame %d bin %d = %g, want shifted value %g",
					i, k, rec.envelope[i][k], want[k])
			}
			if rec.envelope[i][k] != rec.analyzed[i][k] {
				changed = true
			}
		}
	}
	if !changed {
		t.Fatalf("formant shift of an octave left the envelope unchanged")
	}
}

func TestSynthesizeRejectsFrameMismatch(t *testing.T) {
	p := newTestPipeline(t)

	result := &vocoder.Result{
		F0:           []float64{440, 440},
		TimeAxis:     []float64{0, 0.005},
		Envelope:     [][]float64{{1}, {1}},
		Aperiodicity: [][]float64{{0}},
		VoicedMask:   []bool{true, true},
	}

	_, err := p.synthesize(result.F0, result.Envelope, result, make([]float64, 8), testSampleRate)
	if !errors.Is(err, tune.ErrInvalidArgument) {
		t.Fatalf("mismatched frame counts error = %v, want ErrInvalidArgument", err)
	}
}

func TestSoftFullStrengthMatchesHard(t *testing.T) {
	p := newTestPipeline(t)
	input := sine(220, testSampleRate)

	hard, err := p.HardCorrect(input, testSampleRate, HardParams{TargetHz: 440})
	if err != nil {
		t.Fatalf("HardCorrect failed: %v", err)
	}

	soft, err := p.SoftCorrect(input, testSampleRate, SoftParams{
		TargetHz:        440,
		Amount:          1,
		RetuneSpeedMs:   0,
		PreserveVibrato: 0,
	})
	if err != nil {
		t.Fatalf("SoftCorrect failed: %v", err)
	}

	if len(soft) != len(hard) {
		t.Fatalf("soft length %d != hard length %d", len(soft), len(hard))
	}
	for i := range soft {
		if math.Abs(soft[i]-hard[i]) > 1e-9 {
			t.Fatalf("soft and hard diverge at sample %d: %f vs %f", i, soft[i], hard[i])
		}
	}
}

func TestSoftPartialAmountLandsBetween(t *testing.T) {
	p := newTestPipeline(t)
	input := sine(220, testSampleRate)

	out, err := p.SoftCorrect(input, testSampleRate, SoftParams{
		TargetHz: 440,
		Amount:   0.5,
	})
	if err != nil {
		t.Fatalf("SoftCorrect failed: %v", err)
	}

	// Half the distance in log space: 220 * 2^0.5 ~ 311 Hz.
	if mean := meanTrackedF0(t, out); math.Abs(mean-311.1) > 5 {
		t.Errorf("half-strength mean f0 = %f Hz, want ~311", mean)
	}
}

func TestCorrectSilenceReturnsInput(t *testing.T) {
	p := newTestPipeline(t)
	input := make([]float64, testSampleRate)

	out, err := p.HardCorrect(input, testSampleRate, HardParams{TargetHz: 440})
	if !errors.Is(err, tune.ErrNoVoicedContent) {
		t.Fatalf("HardCorrect(silence) error = %v, want ErrNoVoicedContent", err)
	}
	if len(out) != len(input) {
		t.Fatalf("silence output length = %d, want %d", len(out), len(input))
	}
	for i, v := range out {
		if v != 0 {
			t.Fatalf("silence output sample %d = %f, want 0", i, v)
		}
	}

	if _, err := p.SoftCorrect(input, testSampleRate, SoftParams{TargetHz: 440}); !errors.Is(err, tune.ErrNoVoicedContent) {
		t.Fatalf("SoftCorrect(silence) error = %v, want ErrNoVoicedContent", err)
	}
}

func TestShortBufferRejected(t *testing.T) {
	p := newTestPipeline(t)
	input := sine(220, testSampleRate/20)

	if _, err := p.HardCorrect(input, testSampleRate, HardParams{TargetHz: 440}); !errors.Is(err, tune.ErrInvalidArgument) {
		t.Fatalf("HardCorrect(short) error = %v, want ErrInvalidArgument", err)
	}
	if _, err := p.SoftCorrect(input, testSampleRate, SoftParams{TargetHz: 440}); !errors.Is(err, tune.ErrInvalidArgument) {
		t.Fatalf("SoftCorrect(short) error = %v, want ErrInvalidArgument", err)
	}
}

func TestTargetValidation(t *testing.T) {
	p := newTestPipeline(t)
	input := sine(220, testSampleRate)

	if _, err := p.HardCorrect(input, testSampleRate, HardParams{}); !errors.Is(err, tune.ErrInvalidArgument) {
		t.Errorf("missing target error = %v, want ErrInvalidArgument", err)
	}
	if _, err := p.HardCorrect(input, testSampleRate, HardParams{TargetNote: "H9"}); !errors.Is(err, tune.ErrInvalidArgument) {
		t.Errorf("bad note error = %v, want ErrInvalidArgument", err)
	}
	if _, err := p.HardCorrect(nil, testSampleRate, HardParams{TargetHz: 440}); !errors.Is(err, tune.ErrInvalidArgument) {
		t.Errorf("empty audio error = %v, want ErrInvalidArgument", err)
	}
	if _, err := p.HardCorrect(input, 0, HardParams{TargetHz: 440}); !errors.Is(err, tune.ErrInvalidArgument) {
		t.Errorf("zero sample rate error = %v, want ErrInvalidArgument", err)
	}
}

// countingAnalyzer wraps an engine to count full analysis passes.
type countingAnalyzer struct {
	vocoder.Analyzer
	extractions atomic.Int64
}

func (c *countingAnalyzer) ExtractF0(audio []float64, sampleRate int, floorHz, ceilHz float64) ([]float64, []float64, error) {
	c.extractions.Add(1)
	return c.Analyzer.ExtractF0(audio, sampleRate, floorHz, ceilHz)
}

func TestRepeatedCorrectionsShareAnalysis(t *testing.T) {
	engine, err := additive.New()
	if err != nil {
		t.Fatalf("additive.New failed: %v", err)
	}
	counting := &countingAnalyzer{Analyzer: engine}

	p, err := New(counting)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	input := sine(220, testSampleRate)
	if _, err := p.HardCorrect(input, testSampleRate, HardParams{TargetHz: 440}); err != nil {
		t.Fatalf("first correction failed: %v", err)
	}
	if _, err := p.SoftCorrect(input, testSampleRate, SoftParams{TargetHz: 330, Amount: 0.7}); err != nil {
		t.Fatalf("second correction failed: %v", err)
	}

	if got := counting.extractions.Load(); got != 1 {
		t.Errorf("analysis ran %d times for one buffer, want 1", got)
	}
}

type recordingTier struct {
	times []float64
	freqs []float64
}

func (t *recordingTier) AddPoint(timeSeconds, frequencyHz float64) error {
	t.times = append(t.times, timeSeconds)
	t.freqs = append(t.freqs, frequencyHz)
	return nil
}

type recordingManipulation struct {
	duration float64
	tier     *recordingTier
	output   []float64
}

func (m *recordingManipulation) Duration() float64 { return m.duration }

func (m *recordingManipulation) ReplacePitchTier(tier psola.Tier) error {
	m.tier = tier.(*recordingTier)
	return nil
}

func (m *recordingManipulation) ResynthesizeOverlapAdd() ([]float64, error) {
	return m.output, nil
}

type recordingEngine struct {
	manipulation *recordingManipulation
}

func (e *recordingEngine) CreateManipulation(audio []float64, sampleRate int, timeStep, pitchFloor, pitchCeil float64) (psola.Manipulation, error) {
	e.manipulation.duration = float64(len(audio)) / float64(sampleRate)
	return e.manipulation, nil
}

func (e *recordingEngine) NewPitchTier(start, end float64) (psola.Tier, error) {
	return &recordingTier{}, nil
}

func TestRetuneOverlapAddDrivesEngine(t *testing.T) {
	p := newTestPipeline(t)
	input := sine(220, testSampleRate)

	engine := &recordingEngine{manipulation: &recordingManipulation{output: sine(440, testSampleRate)}}

	out, err := p.RetuneOverlapAdd(engine, input, testSampleRate, SoftParams{
		TargetHz: 440,
		Amount:   1,
	})
	if err != nil {
		t.Fatalf("RetuneOverlapAdd failed: %v", err)
	}
	if len(out) != len(input) {
		t.Fatalf("output length = %d, want %d", len(out), len(input))
	}

	tier := engine.manipulation.tier
	if tier == nil || len(tier.freqs) == 0 {
		t.Fatalf("engine received no pitch points")
	}
	for i, hz := range tier.freqs {
		if math.Abs(hz-440) > 1e-6 {
			t.Fatalf("tier point %d = %f Hz, want 440", i, hz)
		}
	}
}
