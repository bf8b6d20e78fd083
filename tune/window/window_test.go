package window

import (
	"math"
	"testing"
)

func TestHannEndpoints(t *testing.T) {
	w := Hann(1024)
	if len(w) != 1024 {
		t.Fatalf("length = %d, want 1024", len(w))
	}
	if w[0] != 0 {
		t.Errorf("w[0] = %f, want 0 (periodic form)", w[0])
	}
	if math.Abs(w[512]-1) > 1e-12 {
		t.Errorf("w[n/2] = %f, want 1", w[512])
	}
}

// The periodic Hann at 50% overlap must sum to a constant, which is what
// the overlap-add stages rely on.
func TestHannConstantOverlapAdd(t *testing.T) {
	const n = 256
	w := Hann(n)
	for i := range n / 2 {
		sum := w[i] + w[i+n/2]
		if math.Abs(sum-1) > 1e-12 {
			t.Fatalf("w[%d]+w[%d] = %f, want 1", i, i+n/2, sum)
		}
	}
}

func TestHannSumMatchesCoefficients(t *testing.T) {
	for _, n := range []int{1, 2, 64, 1024} {
		sum := 0.0
		for _, v := range Hann(n) {
			sum += v
		}
		if got := HannSum(n); math.Abs(got-sum) > 1e-9 {
			t.Errorf("HannSum(%d) = %f, coefficient sum = %f", n, got, sum)
		}
	}
}

func TestCrossFadesComplementary(t *testing.T) {
	fadeIn, fadeOut := CrossFades(64)
	if fadeIn[0] != 0 || fadeIn[63] != 1 {
		t.Errorf("fade-in endpoints = %f, %f, want 0, 1", fadeIn[0], fadeIn[63])
	}
	for i := range fadeIn {
		if math.Abs(fadeIn[i]+fadeOut[i]-1) > 1e-12 {
			t.Fatalf("fades not complementary at %d: %f + %f", i, fadeIn[i], fadeOut[i])
		}
	}

	fadeIn, fadeOut = CrossFades(1)
	if fadeIn[0] != 1 || fadeOut[0] != 0 {
		t.Errorf("single-sample fades = %f, %f, want 1, 0", fadeIn[0], fadeOut[0])
	}
}
