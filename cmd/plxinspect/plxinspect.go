// plxinspect is a tool which prints the frame index of .plx recordings and
// validates their frame consistency.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/plexio/plx"
	"github.com/plexio/plx/frame"
)

// flagFrames specifies how many frames of each category to print.
var flagFrames int

// flagCheck specifies if frame consistency should be validated.
var flagCheck bool

func init() {
	flag.IntVar(&flagFrames, "frames", 0, "Print the first N frames of each category.")
	flag.BoolVar(&flagCheck, "check", true, "Validate frame consistency of the continuous categories.")
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: plxinspect [OPTION]... FILE.plx...")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}
	for _, path := range flag.Args() {
		if err := inspect(path); err != nil {
			log.Fatal(err)
		}
	}
}

// inspect opens and indexes one recording and reports on it.
func inspect(path string) error {
	f, err := plx.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	fmt.Printf("Plexon file %s (version %d, %d Hz clock)\n", path, f.Header().Version, f.Header().ADFrequency)
	for _, s := range f.Summary() {
		fmt.Printf("\t%8s: %d frames, %d / %d\n", s.Type, s.Frames, s.Indexed, s.Declared)
	}
	if nonMono, unclassified := f.Anomalies(); nonMono+unclassified > 0 {
		fmt.Printf("\tscan anomalies: %d non-monotonic, %d unclassified\n", nonMono, unclassified)
	}

	if flagFrames > 0 {
		for t := frame.Spike; int(t) < frame.NumTypes; t++ {
			frames := f.Frames(t).Frames()
			for i := 0; i < flagFrames && i < len(frames); i++ {
				fmt.Println(frames[i])
			}
		}
	}

	if flagCheck {
		for t := frame.Wideband; t <= frame.Analog; t++ {
			bad, err := f.CheckFrames(t)
			if err != nil {
				return err
			}
			fmt.Printf("Checking %s... found %d bad frames\n", t, bad)
		}
	}
	return nil
}
