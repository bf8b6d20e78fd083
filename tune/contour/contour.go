// Package contour builds corrected pitch contours from an analyzed f0
// track and a correction mask.
//
// Two styles are provided: Flatten snaps every corrected frame to the
// target immediately, Retune pulls the note-level trajectory toward the
// target through a one-pole smoother while optionally keeping vibrato.
package contour

import (
	"math"

	"github.com/cwbudde/algo-tune/tune/voicing"
)

const (
	// slowWindowSeconds is the moving-average span that separates the
	// note/phrase trajectory from vibrato and micro-inflection.
	slowWindowSeconds = 0.12

	// minSpeedSeconds keeps the smoothing time constant away from zero;
	// at this scale the filter already snaps within a single hop.
	minSpeedSeconds = 1e-6

	maxAlpha = 0.9999
)

// Flatten returns a contour that is targetHz on every masked frame and 0
// (no pitch) elsewhere. This is the immediate, robotic correction style.
func Flatten(f0 []float64, mask []bool, targetHz float64) []float64 {
	out := make([]float64, len(f0))
	for i := range f0 {
		if i < len(mask) && mask[i] {
			out[i] = targetHz
		}
	}
	return out
}

// RetuneParams are the soft correction controls.
//
// Amount blends between leaving the contour alone (0) and fully pulling the
// note trajectory to the target (1). RetuneSpeedMs is the smoothing time
// constant of the pull; zero or negative snaps instantly. PreserveVibrato
// is the fraction of the fast pitch-deviation component kept in the output.
type RetuneParams struct {
	TargetHz        float64
	Amount          float64
	RetuneSpeedMs   float64
	PreserveVibrato float64
}

// Retune applies the smoothed, vibrato-preserving correction style.
//
// All shaping happens in log2-frequency space so musical intervals are
// additive. The contour is split into a slow moving-average component and a
// fast residual; the slow part is pulled toward the target and smoothed by
// a one-pole filter with alpha = exp(-hop/tau), then the scaled residual is
// added back. Frames outside the mask are zeroed.
//
// The second return value is false when no input frame is voiced; in that
// case the contour is returned unchanged (a copy) and no shaping happens.
func Retune(f0 []float64, mask []bool, hopSeconds float64, p RetuneParams) ([]float64, bool) {
	n := len(f0)
	out := make([]float64, n)

	voiced := make([]bool, n)
	any := false
	for i, v := range f0 {
		if v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0) {
			voiced[i] = true
			any = true
		}
	}
	if !any {
		copy(out, f0)
		return out, false
	}

	amount := clampUnit(p.Amount)
	preserve := clampUnit(p.PreserveVibrato)

	if math.IsNaN(hopSeconds) || math.IsInf(hopSeconds, 0) || hopSeconds <= 0 {
		hopSeconds = 0.005
	}

	// Log-frequency contour with unvoiced gaps interpolated so the
	// moving average stays defined across them.
	x := make([]float64, n)
	for i := range f0 {
		if voiced[i] {
			x[i] = math.Log2(f0[i])
		} else {
			x[i] = math.NaN()
		}
	}
	x = voicing.FillGaps(x, voiced, 1)

	slow := movingAverage(x, windowFrames(hopSeconds))
	fast := make([]float64, n)
	for i := range fast {
		fast[i] = x[i] - slow[i]
	}

	targetX := math.Log2(p.TargetHz)
	desired := make([]float64, n)
	for i := range desired {
		desired[i] = slow[i] + amount*(targetX-slow[i])
	}

	alpha := smoothingAlpha(hopSeconds, p.RetuneSpeedMs)

	y := make([]float64, n)
	y[0] = desired[0]
	for i := 1; i < n; i++ {
		y[i] = alpha*y[i-1] + (1-alpha)*desired[i]
	}

	for i := range out {
		if i < len(mask) && mask[i] {
			out[i] = math.Exp2(y[i] + preserve*fast[i])
		}
	}

	return out, true
}

// smoothingAlpha maps the retune speed to a one-pole coefficient. Zero,
// negative, or non-finite speeds degenerate to alpha 0, an instant snap.
func smoothingAlpha(hopSeconds, speedMs float64) float64 {
	if math.IsNaN(speedMs) || math.IsInf(speedMs, 0) || speedMs <= 0 {
		return 0
	}

	tau := math.Max(minSpeedSeconds, speedMs/1000)
	alpha := math.Exp(-hopSeconds / tau)
	if alpha < 0 {
		return 0
	}
	return math.Min(alpha, maxAlpha)
}

// windowFrames converts the slow-component span to an odd frame count.
func windowFrames(hopSeconds float64) int {
	w := int(math.Round(slowWindowSeconds / hopSeconds))
	if w < 1 {
		w = 1
	}
	if w%2 == 0 {
		w++
	}
	return w
}

// movingAverage smooths with an edge-padded centered window.
func movingAverage(x []float64, window int) []float64 {
	n := len(x)
	out := make([]float64, n)
	if window <= 1 {
		copy(out, x)
		return out
	}

	half := window / 2
	for i := range x {
		sum := 0.0
		for j := i - half; j <= i+half; j++ {
			k := j
			if k < 0 {
				k = 0
			} else if k >= n {
				k = n - 1
			}
			sum += x[k]
		}
		out[i] = sum / float64(window)
	}
	return out
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 1
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
