// plx2wav is a tool which exports a continuous channel window of a .plx
// recording to a WAV file.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/plexio/plx"
	"github.com/plexio/plx/frame"
)

var (
	// flagType specifies the continuous category to export.
	flagType string
	// flagChans specifies the channel numbers to export.
	flagChans string
	// flagT0 and flagT1 specify the time window in seconds.
	flagT0 float64
	flagT1 float64
	// flagOutput specifies the output WAV path.
	flagOutput string
)

func init() {
	flag.StringVar(&flagType, "type", "analog", "Continuous category: wideband, spkc, lfp or analog.")
	flag.StringVar(&flagChans, "chans", "0", "Comma-separated channel numbers.")
	flag.Float64Var(&flagT0, "t0", 0, "Window start in seconds.")
	flag.Float64Var(&flagT1, "t1", 1, "Window end in seconds.")
	flag.StringVar(&flagOutput, "o", "out.wav", "Output WAV path.")
}

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: plx2wav [OPTION]... FILE.plx")
		flag.PrintDefaults()
		os.Exit(1)
	}
	if err := plx2wav(flag.Arg(0)); err != nil {
		log.Fatal(err)
	}
}

// plx2wav reads the requested continuous window and encodes it as 16-bit WAV.
func plx2wav(path string) error {
	typ, err := contType(flagType)
	if err != nil {
		return err
	}
	chans, err := chanList(flagChans)
	if err != nil {
		return err
	}

	f, err := plx.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Continuous(typ, flagT0, flagT1, chans)
	if err != nil {
		return err
	}
	data := make([]float64, info.Len*info.NChans)
	if err := info.Read(data); err != nil {
		return err
	}

	fw, err := os.Create(flagOutput)
	if err != nil {
		return err
	}
	enc := wav.NewEncoder(fw, int(info.Rate), 16, info.NChans, 1)

	// Rescale millivolts to the full 16-bit range against the recording's
	// declared maximum magnitude.
	maxMV := float64(f.Header().SlowMaxMagnitudeMV)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: info.NChans, SampleRate: int(info.Rate)},
		Data:           make([]int, len(data)),
		SourceBitDepth: 16,
	}
	for i, v := range data {
		if math.IsNaN(v) {
			v = 0
		}
		buf.Data[i] = int(v / maxMV * math.MaxInt16)
	}
	if err := enc.Write(buf); err != nil {
		fw.Close()
		return err
	}
	// A WAV header is finalized on close; a failure here means a
	// truncated file.
	if err := enc.Close(); err != nil {
		fw.Close()
		return err
	}
	return fw.Close()
}

func contType(name string) (frame.Type, error) {
	for t := frame.Wideband; t <= frame.Analog; t++ {
		if t.String() == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown continuous category %q", name)
}

func chanList(s string) ([]int, error) {
	var chans []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("bad channel list %q: %v", s, err)
		}
		chans = append(chans, n)
	}
	return chans, nil
}
