package note_test

import (
	"fmt"

	"github.com/cwbudde/algo-tune/tune/note"
)

func ExampleNameToFreq() {
	hz, err := note.NameToFreq("A4")
	if err != nil {
		panic(err)
	}
	fmt.Printf("%.2f Hz\n", hz)
	// Output:
	// 440.00 Hz
}

func ExampleNearest() {
	name, cents, err := note.Nearest(450)
	if err != nil {
		panic(err)
	}
	fmt.Printf("%s %+d cents\n", name, cents)
	// Output:
	// A4 +39 cents
}

func ExampleDifference() {
	semitones, cents, err := note.Difference(466.16, 440)
	if err != nil {
		panic(err)
	}
	fmt.Printf("%+d semitones %+d cents\n", semitones, cents)
	// Output:
	// +1 semitones +0 cents
}
