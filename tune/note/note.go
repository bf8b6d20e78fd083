// Package note converts between note names, MIDI numbers, and frequencies.
//
// The reference tuning is A4 = MIDI 69 = 440 Hz. Note names use a letter
// A..G, an optional accidental (# or b, case-insensitive), and an octave
// number that may be negative: "C4", "F#3", "Bb-1".
package note

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/cwbudde/algo-tune/tune"
)

const (
	referenceFreq = 440.0
	referenceMidi = 69.0
)

var sharpNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

var pitchClasses = map[string]int{
	"C": 0, "B#": 0,
	"C#": 1, "DB": 1,
	"D":  2,
	"D#": 3, "EB": 3,
	"E": 4, "FB": 4,
	"E#": 5, "F": 5,
	"F#": 6, "GB": 6,
	"G":  7,
	"G#": 8, "AB": 8,
	"A":  9,
	"A#": 10, "BB": 10,
	"B": 11, "CB": 11,
}

var noteRe = regexp.MustCompile(`^\s*([A-Ga-g])\s*([#bB]?)\s*(-?\d+)\s*$`)

// FreqToMidi converts a frequency in Hz to a fractional MIDI number.
func FreqToMidi(freq float64) (float64, error) {
	if math.IsNaN(freq) || math.IsInf(freq, 0) || freq <= 0 {
		return 0, fmt.Errorf("%w: frequency must be positive and finite: %f", tune.ErrInvalidArgument, freq)
	}
	return referenceMidi + 12*math.Log2(freq/referenceFreq), nil
}

// MidiToFreq converts a (possibly fractional) MIDI number to Hz.
func MidiToFreq(midi float64) (float64, error) {
	if math.IsNaN(midi) || math.IsInf(midi, 0) {
		return 0, fmt.Errorf("%w: midi must be finite: %f", tune.ErrInvalidArgument, midi)
	}
	return referenceFreq * math.Pow(2, (midi-referenceMidi)/12), nil
}

// MidiToName formats an integer MIDI number using sharp spelling.
func MidiToName(midi int) string {
	name := sharpNames[((midi%12)+12)%12]
	octave := int(math.Floor(float64(midi)/12)) - 1
	return fmt.Sprintf("%s%d", name, octave)
}

// NameToMidi parses a note name into an integer MIDI number.
func NameToMidi(name string) (int, error) {
	m := noteRe.FindStringSubmatch(name)
	if m == nil {
		return 0, fmt.Errorf("%w: invalid note name: %q", tune.ErrInvalidArgument, name)
	}

	pitch := strings.ToUpper(m[1]) + strings.ToUpper(m[2])
	pc, ok := pitchClasses[pitch]
	if !ok {
		return 0, fmt.Errorf("%w: invalid pitch class: %q", tune.ErrInvalidArgument, pitch)
	}

	octave, err := strconv.Atoi(m[3])
	if err != nil {
		return 0, fmt.Errorf("%w: invalid octave in %q", tune.ErrInvalidArgument, name)
	}

	return (octave+1)*12 + pc, nil
}

// NameToFreq parses a note name and returns its frequency in Hz.
func NameToFreq(name string) (float64, error) {
	midi, err := NameToMidi(name)
	if err != nil {
		return 0, err
	}
	return MidiToFreq(float64(midi))
}

// Difference reports the interval from target to detected as whole
// semitones plus a cents remainder in [-50, 50].
func Difference(detectedHz, targetHz float64) (semitones, cents int, err error) {
	if !finitePositive(detectedHz) || !finitePositive(targetHz) {
		return 0, 0, fmt.Errorf("%w: frequencies must be positive and finite: %f, %f",
			tune.ErrInvalidArgument, detectedHz, targetHz)
	}

	diff := 12 * math.Log2(detectedHz/targetHz)
	semitones = roundHalfAway(diff)
	cents = roundHalfAway((diff - float64(semitones)) * 100)

	switch {
	case cents < -50:
		semitones--
		cents += 100
	case cents > 50:
		semitones++
		cents -= 100
	}

	return semitones, cents, nil
}

// Nearest returns the note name closest to freq and the cents offset from it.
func Nearest(freq float64) (name string, cents int, err error) {
	midi, err := FreqToMidi(freq)
	if err != nil {
		return "", 0, err
	}

	rounded := roundHalfAway(midi)
	name = MidiToName(rounded)

	ref, err := NameToFreq(name)
	if err != nil {
		return "", 0, err
	}

	_, cents, err = Difference(freq, ref)
	if err != nil {
		return "", 0, err
	}

	return name, cents, nil
}

// roundHalfAway rounds half away from zero, matching musical cent rounding.
func roundHalfAway(x float64) int {
	if x >= 0 {
		return int(math.Floor(x + 0.5))
	}
	return -int(math.Floor(-x + 0.5))
}

func finitePositive(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}
