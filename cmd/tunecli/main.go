// Command tunecli runs pitch detection and correction on mono WAV files.
//
// Usage:
//
//	tunecli -op <operation> [flags]
//
// Operations:
//
//	detect    print the pitch profile of the input
//	hard      snap every voiced frame to the target pitch
//	soft      pull the note trajectory toward the target
//	clean     attenuate energy between the harmonics
//	stretch   change duration without changing pitch
//
// Examples:
//
//	tunecli -op detect -in take.wav
//	tunecli -op hard -in take.wav -out tuned.wav -note A4
//	tunecli -op soft -in take.wav -out tuned.wav -hz 440 -amount 0.8 -vibrato 0.5
//	tunecli -op clean -in take.wav -out clean.wav -cleanliness 60
//	tunecli -op stretch -in take.wav -out slow.wav -factor 1.5 -method wsola
//	tunecli -list-methods
package main

import (
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"text/tabwriter"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"go.uber.org/zap"

	"github.com/cwbudde/algo-tune/tune/autotune"
	"github.com/cwbudde/algo-tune/tune/harmonic"
	"github.com/cwbudde/algo-tune/tune/pitchtrack"
	"github.com/cwbudde/algo-tune/tune/stretch"
	"github.com/cwbudde/algo-tune/tune/vocoder/additive"
	"github.com/cwbudde/algo-tune/tune/voicing"
)

func main() {
	var (
		inPath  = flag.String("in", "", "input WAV file")
		outPath = flag.String("out", "", "output WAV file")
		op      = flag.String("op", "detect", "operation: detect, hard, soft, clean, stretch")

		noteName = flag.String("note", "", "target note name, e.g. A4 or C#3")
		targetHz = flag.Float64("hz", 0, "target frequency in Hz (ignored when -note is set)")

		amount  = flag.Float64("amount", 1, "soft correction strength in [0, 1]")
		speedMs = flag.Float64("speed", 50, "soft correction retune speed in ms")
		vibrato = flag.Float64("vibrato", 0, "fraction of vibrato to keep in [0, 1]")

		mode            = flag.String("mode", "strict", "voicing policy: strict, force, dilate")
		dilate          = flag.Int("dilate", 0, "voiced-mask dilation in frames (mode dilate)")
		preserveFormant = flag.Bool("preserve-formants", false, "keep the spectral envelope in place")
		formantCents    = flag.Float64("formant-cents", 0, "extra formant shift in cents")

		cleanliness = flag.Float64("cleanliness", 50, "harmonic cleaning strength in [0, 100]")
		bypassHz    = flag.Float64("bypass", 0, "leave spectrum above this frequency untouched (0 = none)")

		factor      = flag.Float64("factor", 1, "stretch factor: 2 doubles the duration")
		method      = flag.String("method", stretch.MethodPhaseVocoder, "stretch method name")
		listMethods = flag.Bool("list-methods", false, "list stretch methods and exit")

		verbose = flag.Bool("v", false, "verbose logging")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tunecli -op <operation> [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Pitch detection and correction for mono WAV files.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  tunecli -op detect -in take.wav\n")
		fmt.Fprintf(os.Stderr, "  tunecli -op hard -in take.wav -out tuned.wav -note A4\n")
		fmt.Fprintf(os.Stderr, "  tunecli -op stretch -in take.wav -out slow.wav -factor 1.5\n")
	}
	flag.Parse()

	if *listMethods {
		printMethods()
		return
	}

	if *inPath == "" {
		fatal("missing -in")
	}
	samples, sampleRate, err := readWAV(*inPath)
	if err != nil {
		fatal("reading %s: %v", *inPath, err)
	}

	logger := zap.NewNop()
	if *verbose {
		logger, err = zap.NewDevelopment()
		if err != nil {
			fatal("creating logger: %v", err)
		}
		defer func() { _ = logger.Sync() }()
	}

	if *op == "detect" {
		if err := runDetect(samples, sampleRate); err != nil {
			fatal("detect: %v", err)
		}
		return
	}

	if *outPath == "" {
		fatal("missing -out")
	}

	var out []float64
	switch *op {
	case "hard":
		out, err = runCorrect(samples, sampleRate, logger, correctionArgs{
			note: *noteName, hz: *targetHz,
			mode: *mode, dilate: *dilate,
			preserveFormants: *preserveFormant, formantCents: *formantCents,
		})
	case "soft":
		out, err = runCorrect(samples, sampleRate, logger, correctionArgs{
			note: *noteName, hz: *targetHz,
			soft: true, amount: *amount, speedMs: *speedMs, vibrato: *vibrato,
			mode: *mode, dilate: *dilate,
			preserveFormants: *preserveFormant, formantCents: *formantCents,
		})
	case "clean":
		out, err = runClean(samples, sampleRate, *cleanliness, *bypassHz)
	case "stretch":
		out, err = stretch.NewDispatcher().Stretch(*method, samples, sampleRate, *factor)
	default:
		fatal("unknown operation %q", *op)
	}
	if err != nil {
		fatal("%s: %v", *op, err)
	}

	if err := writeWAV(*outPath, out, sampleRate); err != nil {
		fatal("writing %s: %v", *outPath, err)
	}
}

type correctionArgs struct {
	note string
	hz   float64

	soft    bool
	amount  float64
	speedMs float64
	vibrato float64

	mode   string
	dilate int

	preserveFormants bool
	formantCents     float64
}

func runCorrect(samples []float64, sampleRate int, logger *zap.Logger, args correctionArgs) ([]float64, error) {
	voicingMode, err := voicing.ParseMode(args.mode)
	if err != nil {
		return nil, err
	}

	engine, err := additive.New()
	if err != nil {
		return nil, err
	}
	pipeline, err := autotune.New(engine, autotune.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	if args.soft {
		return pipeline.SoftCorrect(samples, sampleRate, autotune.SoftParams{
			TargetNote:        args.note,
			TargetHz:          args.hz,
			Amount:            args.amount,
			RetuneSpeedMs:     args.speedMs,
			PreserveVibrato:   args.vibrato,
			Mode:              voicingMode,
			DilationFrames:    args.dilate,
			PreserveFormants:  args.preserveFormants,
			FormantShiftCents: args.formantCents,
		})
	}
	return pipeline.HardCorrect(samples, sampleRate, autotune.HardParams{
		TargetNote:        args.note,
		TargetHz:          args.hz,
		Mode:              voicingMode,
		DilationFrames:    args.dilate,
		PreserveFormants:  args.preserveFormants,
		FormantShiftCents: args.formantCents,
	})
}

func runClean(samples []float64, sampleRate int, cleanliness, bypassHz float64) ([]float64, error) {
	engine, err := harmonic.NewEngine()
	if err != nil {
		return nil, err
	}
	return engine.Process(samples, sampleRate, harmonic.CleanParams{
		Cleanliness: cleanliness,
		BypassHz:    bypassHz,
	})
}

func runDetect(samples []float64, sampleRate int) error {
	d, err := pitchtrack.Detect(samples, sampleRate)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Duration\t%.3f s\n", float64(len(samples))/float64(sampleRate))
	fmt.Fprintf(tw, "Voiced\t%.1f %%\n", 100*d.VoicedRatio)
	if d.VoicedRatio > 0 {
		fmt.Fprintf(tw, "Median f0\t%.2f Hz\n", d.MedianF0)
		fmt.Fprintf(tw, "Mean f0\t%.2f Hz\n", d.MeanF0)
		fmt.Fprintf(tw, "Nearest note\t%s (%+d cents)\n", d.Note, d.Cents)
	}
	return tw.Flush()
}

func printMethods() {
	d := stretch.NewDispatcher()
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Method\tAvailable\n")
	for _, name := range d.Methods() {
		fmt.Fprintf(tw, "%s\t%v\n", name, d.Available(name))
	}
	if err := tw.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to flush output: %v\n", err)
	}
}

func readWAV(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, err
	}
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return nil, 0, errors.New("no audio data")
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		return nil, 0, fmt.Errorf("invalid channel count %d", channels)
	}
	scale := 1.0
	if decoder.BitDepth > 0 && decoder.BitDepth <= 32 {
		scale = 1 / float64(int64(1)<<(decoder.BitDepth-1))
	}

	// Downmix to mono by averaging channels.
	frames := len(buf.Data) / channels
	samples := make([]float64, frames)
	for i := range frames {
		sum := 0.0
		for c := range channels {
			sum += float64(buf.Data[i*channels+c])
		}
		samples[i] = sum / float64(channels) * scale
	}

	return samples, buf.Format.SampleRate, nil
}

func writeWAV(path string, samples []float64, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	const bitDepth = 16
	data := make([]int, len(samples))
	for i, v := range samples {
		scaled := math.Round(v * (1 << (bitDepth - 1)))
		data[i] = int(math.Min(math.Max(scaled, -(1<<(bitDepth-1))), 1<<(bitDepth-1)-1))
	}

	encoder := wav.NewEncoder(f, sampleRate, bitDepth, 1, 1)
	err = encoder.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	})
	if err != nil {
		f.Close()
		return err
	}
	if err := encoder.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
