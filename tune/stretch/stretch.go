// Package stretch changes the duration of mono audio without changing its
// pitch, through a registry of interchangeable back ends.
//
// Built-in methods: "phasevocoder" (frequency domain, identity phase
// locking), "wsola" (waveform-similarity overlap-add), "ola" (plain
// windowed overlap-add), and "tdpsola" (pitch-synchronous fallback driven
// by the median voiced f0). The registry also knows the optional
// "rubberband_faster" and "rubberband_finer" methods; until an external
// adapter is injected they report tune.ErrMissingCapability so callers can
// fall back instead of aborting.
package stretch

import (
	"fmt"
	"math"
	"sort"

	"github.com/cwbudde/algo-tune/tune"
)

// Built-in and optional method names.
const (
	MethodPhaseVocoder    = "phasevocoder"
	MethodWSOLA           = "wsola"
	MethodOLA             = "ola"
	MethodTDPSOLA         = "tdpsola"
	MethodRubberBandFast  = "rubberband_faster"
	MethodRubberBandFiner = "rubberband_finer"
)

const identityEps = 1e-9

// Func is the uniform back-end contract: factor > 1 lengthens, < 1
// shortens, pitch held constant. Implementations return a new buffer and
// never modify the input.
type Func func(audio []float64, sampleRate int, factor float64) ([]float64, error)

// Dispatcher maps method names to back ends.
//
// A zero Dispatcher is not usable; create one with NewDispatcher. The
// dispatcher itself is safe for concurrent Stretch calls once built, but
// RegisterExternal must not race with Stretch.
type Dispatcher struct {
	methods  map[string]Func
	optional map[string]bool
}

// NewDispatcher builds a registry with all built-in methods and the
// optional method names marked unavailable.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		methods: map[string]Func{
			MethodPhaseVocoder: PhaseVocoder,
			MethodWSOLA:        WSOLA,
			MethodOLA:          OLA,
			MethodTDPSOLA:      TDPSOLA,
		},
		optional: map[string]bool{
			MethodRubberBandFast:  true,
			MethodRubberBandFiner: true,
		},
	}
}

// RegisterExternal installs an adapter for an optional or new method name.
func (d *Dispatcher) RegisterExternal(name string, fn Func) error {
	if name == "" || fn == nil {
		return fmt.Errorf("%w: method name and function must be set", tune.ErrInvalidArgument)
	}
	d.methods[name] = fn
	return nil
}

// Methods lists every known method name, available or not, sorted.
func (d *Dispatcher) Methods() []string {
	names := make([]string, 0, len(d.methods)+len(d.optional))
	for name := range d.methods {
		names = append(names, name)
	}
	for name := range d.optional {
		if _, ok := d.methods[name]; !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Available reports whether a method can run in this deployment.
func (d *Dispatcher) Available(name string) bool {
	_, ok := d.methods[name]
	return ok
}

// Stretch runs the named back end. Unknown names yield
// tune.ErrInvalidArgument; known-but-uninstalled optional methods yield
// tune.ErrMissingCapability.
func (d *Dispatcher) Stretch(name string, audio []float64, sampleRate int, factor float64) ([]float64, error) {
	fn, ok := d.methods[name]
	if !ok {
		if d.optional[name] {
			return nil, fmt.Errorf("%w: stretch method %q is not installed in this build",
				tune.ErrMissingCapability, name)
		}
		return nil, fmt.Errorf("%w: unknown stretch method %q", tune.ErrInvalidArgument, name)
	}
	return fn(audio, sampleRate, factor)
}

// validateArgs applies the shared front-door checks and reports whether
// the call is a near-identity that should just copy the input.
func validateArgs(audio []float64, sampleRate int, factor float64) (identity bool, err error) {
	if len(audio) == 0 {
		return false, fmt.Errorf("%w: audio must be non-empty", tune.ErrInvalidArgument)
	}
	if sampleRate <= 0 {
		return false, fmt.Errorf("%w: sample rate must be positive: %d", tune.ErrInvalidArgument, sampleRate)
	}
	if math.IsNaN(factor) || math.IsInf(factor, 0) || factor <= 0 {
		return false, fmt.Errorf("%w: stretch factor must be positive and finite: %f", tune.ErrInvalidArgument, factor)
	}
	return math.Abs(factor-1) <= identityEps, nil
}

func copySlice(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}

func targetLength(inputLen int, factor float64) int {
	n := int(math.Round(float64(inputLen) * factor))
	if n < 1 {
		n = 1
	}
	return n
}

func sampleZero(x []float64, idx int) float64 {
	if idx < 0 || idx >= len(x) {
		return 0
	}
	return x[idx]
}

func fitLength(in []float64, n int) []float64 {
	out := make([]float64, n)
	copy(out, in)
	return out
}
