package spectrum

import (
	"math"
	"testing"
)

func TestMagnitude(t *testing.T) {
	in := []complex128{3 + 4i, -1 - 1i, 0}

	mag := Magnitude(in)
	if len(mag) != 3 {
		t.Fatalf("length %d want 3", len(mag))
	}
	if math.Abs(mag[0]-5) > 1e-12 {
		t.Errorf("mag[0]=%f want 5", mag[0])
	}
	if math.Abs(mag[1]-math.Sqrt2) > 1e-12 {
		t.Errorf("mag[1]=%f want sqrt(2)", mag[1])
	}
	if mag[2] != 0 {
		t.Errorf("mag[2]=%f want 0", mag[2])
	}
}

func TestPolarRoundTrip(t *testing.T) {
	in := []complex128{3 + 4i, -2 + 1i, 0.5 - 0.25i}

	back := FromPolar(Magnitude(in), Phase(in))
	for i := range in {
		if math.Abs(real(back[i])-real(in[i])) > 1e-12 ||
			math.Abs(imag(back[i])-imag(in[i])) > 1e-12 {
			t.Errorf("bin %d: got %v want %v", i, back[i], in[i])
		}
	}
}

func TestScaleInPlace(t *testing.T) {
	mag := []float64{1, 2, 4}
	ScaleInPlace(mag, []float64{0.5, 1, 0})
	want := []float64{0.5, 2, 0}
	for i := range want {
		if mag[i] != want[i] {
			t.Errorf("mag[%d]=%f want=%f", i, mag[i], want[i])
		}
	}
}

func TestEmptyInputs(t *testing.T) {
	if Magnitude(nil) != nil {
		t.Error("Magnitude(nil) should be nil")
	}
	if Phase(nil) != nil {
		t.Error("Phase(nil) should be nil")
	}
	if len(FromPolar(nil, nil)) != 0 {
		t.Error("FromPolar(nil, nil) should be empty")
	}
}
