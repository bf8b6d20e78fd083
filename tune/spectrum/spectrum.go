// Package spectrum converts between complex spectra and magnitude/phase
// form for frame-wise masking.
package spectrum

import (
	"math"
	"sync"

	"github.com/cwbudde/algo-vecmath"
)

type scratchBuf struct {
	data []float64
}

var scratchPool = sync.Pool{
	New: func() any { return &scratchBuf{} },
}

func getScratch(n int) (re, im []float64, buf *scratchBuf) {
	buf = scratchPool.Get().(*scratchBuf)
	need := 2 * n
	if cap(buf.data) < need {
		buf.data = make([]float64, need)
	} else {
		buf.data = buf.data[:need]
	}
	return buf.data[:n], buf.data[n:need], buf
}

// Magnitude returns |X[k]| per bin, using SIMD kernels when available.
func Magnitude(in []complex128) []float64 {
	if len(in) == 0 {
		return nil
	}

	out := make([]float64, len(in))
	re, im, buf := getScratch(len(in))

	for i, c := range in {
		re[i] = real(c)
		im[i] = imag(c)
	}

	vecmath.Magnitude(out, re, im)
	scratchPool.Put(buf)
	return out
}

// Phase returns arg(X[k]) per bin in radians.
func Phase(in []complex128) []float64 {
	if len(in) == 0 {
		return nil
	}
	out := make([]float64, len(in))
	for i, c := range in {
		out[i] = math.Atan2(imag(c), real(c))
	}
	return out
}

// FromPolar rebuilds a complex spectrum from magnitude and phase. Both
// slices must have the same length.
func FromPolar(magnitude, phase []float64) []complex128 {
	out := make([]complex128, len(magnitude))
	for i, m := range magnitude {
		s, c := math.Sincos(phase[i])
		out[i] = complex(m*c, m*s)
	}
	return out
}

// ScaleInPlace multiplies magnitude bins by per-bin gains.
func ScaleInPlace(magnitude, gains []float64) {
	vecmath.MulBlockInPlace(magnitude, gains)
}
