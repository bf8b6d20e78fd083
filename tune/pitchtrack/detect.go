package pitchtrack

import (
	"fmt"
	"math"
	"sort"

	"github.com/cwbudde/algo-tune/tune"
	"github.com/cwbudde/algo-tune/tune/note"
)

const (
	// DefaultFminHz and DefaultFmaxHz bound the vocal pitch search band.
	DefaultFminHz = 50.0
	DefaultFmaxHz = 500.0

	// minDetectSeconds is the shortest buffer the summary analyzes;
	// shorter input yields an empty (not erroneous) result.
	minDetectSeconds = 0.1
)

// Detection summarizes the pitch content of a whole buffer.
//
// MedianF0 and MeanF0 are zero and Note empty when no frame is voiced.
type Detection struct {
	F0          []float64
	Times       []float64
	MedianF0    float64
	MeanF0      float64
	VoicedRatio float64
	Note        string
	Cents       int
}

// Detect runs the default tracker over the buffer and summarizes it:
// voiced-only median and mean f0, voiced ratio, and the nearest note name
// with its cents offset.
func Detect(audio []float64, sampleRate int) (*Detection, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive: %d", tune.ErrInvalidArgument, sampleRate)
	}

	d := &Detection{}
	if float64(len(audio))/float64(sampleRate) < minDetectSeconds {
		return d, nil
	}

	hop := int(math.Round(0.005 * float64(sampleRate)))
	if hop < 1 {
		hop = 1
	}

	tracker := NewAutocorrelation()
	f0, voiced, err := tracker.Track(audio, sampleRate, DefaultFminHz, DefaultFmaxHz, hop)
	if err != nil {
		return nil, err
	}

	d.F0 = f0
	d.Times = make([]float64, len(f0))
	for i := range d.Times {
		d.Times[i] = float64(i*hop) / float64(sampleRate)
	}

	var voicedF0 []float64
	for i, v := range voiced {
		if v {
			voicedF0 = append(voicedF0, f0[i])
		}
	}
	if len(f0) > 0 {
		d.VoicedRatio = float64(len(voicedF0)) / float64(len(f0))
	}
	if len(voicedF0) == 0 {
		return d, nil
	}

	sort.Float64s(voicedF0)
	mid := len(voicedF0) / 2
	if len(voicedF0)%2 == 1 {
		d.MedianF0 = voicedF0[mid]
	} else {
		d.MedianF0 = 0.5 * (voicedF0[mid-1] + voicedF0[mid])
	}

	sum := 0.0
	for _, v := range voicedF0 {
		sum += v
	}
	d.MeanF0 = sum / float64(len(voicedF0))

	name, cents, err := note.Nearest(d.MedianF0)
	if err == nil {
		d.Note = name
		d.Cents = cents
	}

	return d, nil
}
