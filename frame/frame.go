// Package frame implements access to the data block stream of a .plx
// recording and the frame indices derived from it.
//
// The data region is a single sequence of variable-length blocks in
// non-decreasing timestamp order. Each block is a 16-byte header followed by
// NumberOfWaveforms * NumberOfWordsInWaveform signed 16-bit sample words.
// Scanning the stream once coalesces the blocks into per-channel frames,
// grouped into one Set per channel type category.
package frame

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrTruncated is reported when a block header or payload extends past the
// end of the file.
var ErrTruncated = errors.New("frame: truncated file")

// A Type is a channel type category. Spike and event blocks are tagged
// directly in the stream; continuous blocks are carved into the four
// continuous categories by their channel's descriptor.
type Type int

// Channel type categories.
const (
	Spike Type = iota
	Event
	Wideband
	SPKC
	LFP
	Analog

	NumTypes int = iota
)

var typeNames = [NumTypes]string{"spikes", "events", "wideband", "spkc", "lfp", "analog"}

func (t Type) String() string {
	if t < 0 || int(t) >= NumTypes {
		return fmt.Sprintf("Type(%d)", int(t))
	}
	return typeNames[t]
}

// Continuous reports whether t is a continuous category.
func (t Type) Continuous() bool {
	return t >= Wideband && t <= Analog
}

// SlowType returns the continuous category of a slow channel, determined by
// the naming convention of the acquisition software: WB for wideband, SPKC
// for spike-filtered continuous, FP for field potential, AI for auxiliary
// analog input. Unrecognized names fall back to the analog category.
func SlowType(name string) Type {
	switch {
	case strings.HasPrefix(name, "WB"):
		return Wideband
	case strings.HasPrefix(name, "SPKC"):
		return SPKC
	case strings.HasPrefix(name, "FP"):
		return LFP
	default:
		return Analog
	}
}

// Block type tags of the on-disk stream.
const (
	TagSpike = 1
	TagEvent = 4
	TagSlow  = 5
)

// HeaderSize is the on-disk size of a data block header.
const HeaderSize = 16

// A Header is the decoded header of one data block.
type Header struct {
	// Raw type tag: TagSpike, TagEvent or TagSlow.
	Type int16
	// Reassembled 40-bit timestamp, in ticks of the timestamp clock.
	Timestamp uint64
	// Channel number: 1-based for spike and event blocks, 0-based for
	// continuous blocks.
	Channel int16
	// Sorted unit number for spike blocks (zero is unsorted), strobe value
	// for event blocks.
	Unit int16
	// Number of waveform records following the header, and sample words per
	// waveform record.
	Waveforms     int16
	WaveformWords int16
}

// DecodeHeader decodes a data block header from the first HeaderSize bytes
// of buf. The 40-bit timestamp is reassembled from its 8-bit upper and 32-bit
// lower on-disk parts.
func DecodeHeader(buf []byte) Header {
	upper := uint64(binary.LittleEndian.Uint16(buf[2:4]))
	lower := uint64(binary.LittleEndian.Uint32(buf[4:8]))
	return Header{
		Type:          int16(binary.LittleEndian.Uint16(buf[0:2])),
		Timestamp:     upper<<32 | lower,
		Channel:       int16(binary.LittleEndian.Uint16(buf[8:10])),
		Unit:          int16(binary.LittleEndian.Uint16(buf[10:12])),
		Waveforms:     int16(binary.LittleEndian.Uint16(buf[12:14])),
		WaveformWords: int16(binary.LittleEndian.Uint16(buf[14:16])),
	}
}

// PayloadSize returns the byte size of the sample words following the header.
func (h Header) PayloadSize() int {
	return int(h.Waveforms) * int(h.WaveformWords) * 2
}

// A Frame covers one contiguous run of samples for one channel within one
// channel type category. Frames are created during the indexing scan and
// never mutated afterwards.
type Frame struct {
	Type    Type
	Channel int16
	// Unit of the indexed occurrences, for discrete frames.
	Unit int16
	// Sample words per waveform record, for discrete frames with payloads.
	WaveWords int16
	// Tick of the first sample, and first tick past the frame's coverage.
	// Discrete frames cover exactly their own tick.
	Start uint64
	End   uint64
	// Byte range [Off[0], Off[1]) spanning the underlying data blocks. For
	// continuous frames the range may interleave blocks of other channels.
	Off [2]int64
	// Per-channel sample count for continuous frames; number of indexed
	// occurrences for discrete frames.
	Samples uint64
	// Number of blocks of this frame's channel within the byte range.
	Blocks uint64
}

func (fr Frame) String() string {
	return fmt.Sprintf("%s ch%d at ts=%d, fpos=[%d, %d), samples=%d, blocks=%d",
		fr.Type, fr.Channel, fr.Start, fr.Off[0], fr.Off[1], fr.Samples, fr.Blocks)
}
