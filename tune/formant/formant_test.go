package formant

import (
	"math"
	"testing"
)

func TestShiftEnvelopeIdentityRatio(t *testing.T) {
	frame := []float64{1, 2, 3, 4, 5}
	out := ShiftEnvelope(frame, 1)
	for i := range frame {
		if math.Abs(out[i]-frame[i]) > 1e-12 {
			t.Errorf("out[%d]=%f want=%f", i, out[i], frame[i])
		}
	}
}

func TestShiftEnvelopeInvalidRatioIsIdentity(t *testing.T) {
	frame := []float64{3, 1, 4, 1, 5}
	for _, ratio := range []float64{0, -1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		out := ShiftEnvelope(frame, ratio)
		for i := range frame {
			if out[i] != frame[i] {
				t.Errorf("ratio=%f: out[%d]=%f want=%f", ratio, i, out[i], frame[i])
			}
		}
	}
}

func TestShiftEnvelopeUpsamplesTowardOrigin(t *testing.T) {
	// Ratio 2 reads input at half speed: out[i] = in[i/2].
	frame := []float64{0, 2, 4, 6, 8}
	out := ShiftEnvelope(frame, 2)
	want := []float64{0, 1, 2, 3, 4}
	for i := range want {
		if math.Abs(out[i]-want[i]) > 1e-12 {
			t.Errorf("out[%d]=%f want=%f", i, out[i], want[i])
		}
	}
}

func TestShiftEnvelopeClampsAtEdge(t *testing.T) {
	// Ratio 0.5 reads input at double speed and clamps at the last bin.
	frame := []float64{0, 1, 2, 3}
	out := ShiftEnvelope(frame, 0.5)
	want := []float64{0, 2, 3, 3}
	for i := range want {
		if math.Abs(out[i]-want[i]) > 1e-12 {
			t.Errorf("out[%d]=%f want=%f", i, out[i], want[i])
		}
	}
}

func TestShiftEnvelopeDoesNotMutate(t *testing.T) {
	frame := []float64{1, 2, 3}
	ShiftEnvelope(frame, 1.3)
	if frame[0] != 1 || frame[1] != 2 || frame[2] != 3 {
		t.Error("ShiftEnvelope mutated its input")
	}
}

func TestShiftFrames(t *testing.T) {
	frames := [][]float64{{0, 2, 4}, {1, 3, 5}}
	out := ShiftFrames(frames, 2)
	if len(out) != 2 {
		t.Fatalf("frame count %d want 2", len(out))
	}
	if math.Abs(out[0][1]-1) > 1e-12 {
		t.Errorf("out[0][1]=%f want 1", out[0][1])
	}
}

func TestCentsRatio(t *testing.T) {
	if math.Abs(CentsRatio(0)-1) > 1e-12 {
		t.Errorf("CentsRatio(0)=%f want 1", CentsRatio(0))
	}
	if math.Abs(CentsRatio(1200)-2) > 1e-12 {
		t.Errorf("CentsRatio(1200)=%f want 2", CentsRatio(1200))
	}
	if math.Abs(CentsRatio(-1200)-0.5) > 1e-12 {
		t.Errorf("CentsRatio(-1200)=%f want 0.5", CentsRatio(-1200))
	}
}
