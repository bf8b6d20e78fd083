package pitchtrack

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/cwbudde/algo-tune/tune"
)

func sine(freq float64, sampleRate, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.8 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

func TestTrackSine(t *testing.T) {
	sr := 44100
	audio := sine(220, sr, sr)

	tracker := NewAutocorrelation()
	f0, voiced, err := tracker.Track(audio, sr, 50, 500, 512)
	if err != nil {
		t.Fatalf("Track error: %v", err)
	}
	if len(f0) != len(voiced) {
		t.Fatalf("length mismatch: %d != %d", len(f0), len(voiced))
	}

	// Interior frames (full window available) must be voiced at 220 Hz.
	hi := (len(audio)-tracker.FrameSize())/512 - 1
	for i := 2; i < hi; i++ {
		if !voiced[i] {
			t.Fatalf("frame %d unvoiced for a pure tone", i)
		}
		if math.Abs(f0[i]-220) > 1 {
			t.Fatalf("f0[%d]=%f want 220 +/- 1", i, f0[i])
		}
	}
}

func TestTrackSilence(t *testing.T) {
	sr := 44100
	audio := make([]float64, sr/2)

	tracker := NewAutocorrelation()
	f0, voiced, err := tracker.Track(audio, sr, 50, 500, 512)
	if err != nil {
		t.Fatalf("Track error: %v", err)
	}

	for i := range f0 {
		if voiced[i] || f0[i] != 0 {
			t.Fatalf("frame %d voiced on silence: f0=%f", i, f0[i])
		}
	}
}

func TestTrackNoiseIsMostlyUnvoiced(t *testing.T) {
	sr := 44100
	rng := rand.New(rand.NewSource(7))
	audio := make([]float64, sr/2)
	for i := range audio {
		audio[i] = rng.Float64()*2 - 1
	}

	tracker := NewAutocorrelation()
	_, voiced, err := tracker.Track(audio, sr, 50, 500, 512)
	if err != nil {
		t.Fatalf("Track error: %v", err)
	}

	count := 0
	for _, v := range voiced {
		if v {
			count++
		}
	}
	if count > len(voiced)/4 {
		t.Errorf("%d/%d noise frames voiced, want few", count, len(voiced))
	}
}

func TestTrackValidation(t *testing.T) {
	tracker := NewAutocorrelation()
	audio := sine(220, 44100, 4096)

	cases := []struct {
		sr   int
		fmin float64
		fmax float64
		hop  int
	}{
		{0, 50, 500, 512},
		{44100, 0, 500, 512},
		{44100, 500, 50, 512},
		{44100, 50, 500, 0},
	}
	for _, tc := range cases {
		_, _, err := tracker.Track(audio, tc.sr, tc.fmin, tc.fmax, tc.hop)
		if !errors.Is(err, tune.ErrInvalidArgument) {
			t.Errorf("Track(%+v): want ErrInvalidArgument, got %v", tc, err)
		}
	}
}

func TestDetectSine(t *testing.T) {
	sr := 44100
	audio := sine(440, sr, sr)

	d, err := Detect(audio, sr)
	if err != nil {
		t.Fatalf("Detect error: %v", err)
	}

	if math.Abs(d.MedianF0-440) > 2 {
		t.Errorf("MedianF0=%f want 440 +/- 2", d.MedianF0)
	}
	if d.Note != "A4" {
		t.Errorf("Note=%q want A4", d.Note)
	}
	if d.VoicedRatio < 0.8 {
		t.Errorf("VoicedRatio=%f want >= 0.8", d.VoicedRatio)
	}
}

func TestDetectShortBuffer(t *testing.T) {
	d, err := Detect(make([]float64, 100), 44100)
	if err != nil {
		t.Fatalf("Detect error: %v", err)
	}
	if len(d.F0) != 0 || d.MedianF0 != 0 || d.Note != "" || d.VoicedRatio != 0 {
		t.Errorf("short buffer should yield empty detection: %+v", d)
	}
}

func TestDetectInvalidRate(t *testing.T) {
	_, err := Detect(make([]float64, 44100), 0)
	if !errors.Is(err, tune.ErrInvalidArgument) {
		t.Errorf("want ErrInvalidArgument, got %v", err)
	}
}
