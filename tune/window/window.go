// Package window provides the analysis window shapes shared by the
// spectral and overlap-add processors.
package window

import "math"

// Hann returns a periodic (FFT-form) Hann window of length n. The
// periodic form sums to a constant under power-of-two overlap, which is
// what the overlap-add stages rely on.
func Hann(n int) []float64 {
	w := make([]float64, n)
	if n <= 0 {
		return w
	}
	for i := range n {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// HannSum returns the coefficient sum of a periodic Hann window of
// length n without materializing it. For n > 1 the sum is exactly n/2.
func HannSum(n int) float64 {
	if n <= 0 {
		return 0
	}
	if n == 1 {
		return 0
	}
	return float64(n) / 2
}

// CrossFades returns complementary raised-cosine fade-in and fade-out
// ramps of length n for splicing overlapping segments.
func CrossFades(n int) (fadeIn, fadeOut []float64) {
	fadeIn = make([]float64, n)
	fadeOut = make([]float64, n)
	if n == 1 {
		fadeIn[0] = 1
		return fadeIn, fadeOut
	}
	for i := range n {
		t := float64(i) / float64(n-1)
		in := 0.5 - 0.5*math.Cos(math.Pi*t)
		fadeIn[i] = in
		fadeOut[i] = 1 - in
	}
	return fadeIn, fadeOut
}
