// Package meta implements decoding of the descriptor tables of a Plexon .plx
// recording.
//
// The descriptor region at the start of every .plx file is laid out as:
//    - The fixed file header (256 bytes of scalar fields followed by the
//      timestamp, waveform and event count tables; 7504 bytes in total).
//    - NumDSPChannels spike channel descriptors (1020 bytes each).
//    - NumEventChannels event channel descriptors (296 bytes each).
//    - NumSlowChannels continuous channel descriptors (296 bytes each).
//
// The data block stream starts immediately after the last descriptor.
package meta

import (
	"io"

	"github.com/pkg/errors"
)

// Magic is the little-endian magic number at offset zero of every .plx file;
// it spells "PLEX" in ASCII.
const Magic = 0x58454c50

// On-disk sizes of the descriptor records. The per-record sizes are fixed by
// the channel category and do not vary with the file version.
const (
	HeaderSize       = 7504
	SpikeChannelSize = 1020
	EventChannelSize = 296
	SlowChannelSize  = 296
)

var (
	// ErrMalformedHeader is reported when the magic number does not match or
	// a declared descriptor count would read past the end of the source.
	ErrMalformedHeader = errors.New("meta: malformed header")
	// ErrUnknownChannel is reported by descriptor lookups for channel numbers
	// that have no descriptor.
	ErrUnknownChannel = errors.New("meta: unknown channel")
)

// Tables holds the decoded descriptor tables of one recording. Tables are
// immutable after Parse and owned by the open recording.
type Tables struct {
	// Fixed file header.
	Header *FileHeader
	// Spike channel descriptors, in file order.
	SpikeChannels []*SpikeChannel
	// Event channel descriptors, in file order.
	EventChannels []*EventChannel
	// Continuous channel descriptors, in file order.
	SlowChannels []*SlowChannel

	spikeByNum map[int]*SpikeChannel
	eventByNum map[int]*EventChannel
	slowByNum  map[int]*SlowChannel
}

// Parse decodes the fixed file header and all channel descriptors from r,
// which must be positioned at the start of the file. It fails with
// ErrMalformedHeader if the magic number does not match or if a declared
// descriptor count exceeds the available bytes.
func Parse(r io.Reader) (*Tables, error) {
	hdr, err := parseFileHeader(r)
	if err != nil {
		return nil, err
	}
	t := &Tables{
		Header:     hdr,
		spikeByNum: make(map[int]*SpikeChannel, hdr.NumDSPChannels),
		eventByNum: make(map[int]*EventChannel, hdr.NumEventChannels),
		slowByNum:  make(map[int]*SlowChannel, hdr.NumSlowChannels),
	}
	for i := 0; i < hdr.NumDSPChannels; i++ {
		ch, err := parseSpikeChannel(r, hdr.Version)
		if err != nil {
			return nil, err
		}
		t.SpikeChannels = append(t.SpikeChannels, ch)
		t.spikeByNum[ch.Channel] = ch
	}
	for i := 0; i < hdr.NumEventChannels; i++ {
		ch, err := parseEventChannel(r, hdr.Version)
		if err != nil {
			return nil, err
		}
		t.EventChannels = append(t.EventChannels, ch)
		t.eventByNum[ch.Channel] = ch
	}
	for i := 0; i < hdr.NumSlowChannels; i++ {
		ch, err := parseSlowChannel(r, hdr.Version)
		if err != nil {
			return nil, err
		}
		t.SlowChannels = append(t.SlowChannels, ch)
		t.slowByNum[ch.Channel] = ch
	}
	return t, nil
}

// DataStart returns the byte offset of the first data block, immediately
// after the last channel descriptor.
func (t *Tables) DataStart() int64 {
	return HeaderSize +
		int64(t.Header.NumDSPChannels)*SpikeChannelSize +
		int64(t.Header.NumEventChannels)*EventChannelSize +
		int64(t.Header.NumSlowChannels)*SlowChannelSize
}

// SpikeChannel returns the descriptor of the given 1-based spike channel
// number.
func (t *Tables) SpikeChannel(n int) (*SpikeChannel, error) {
	ch, ok := t.spikeByNum[n]
	if !ok {
		return nil, errors.WithMessagef(ErrUnknownChannel, "spike channel %d", n)
	}
	return ch, nil
}

// EventChannel returns the descriptor of the given 1-based event channel
// number.
func (t *Tables) EventChannel(n int) (*EventChannel, error) {
	ch, ok := t.eventByNum[n]
	if !ok {
		return nil, errors.WithMessagef(ErrUnknownChannel, "event channel %d", n)
	}
	return ch, nil
}

// SlowChannel returns the descriptor of the given 0-based continuous channel
// number.
func (t *Tables) SlowChannel(n int) (*SlowChannel, error) {
	ch, ok := t.slowByNum[n]
	if !ok {
		return nil, errors.WithMessagef(ErrUnknownChannel, "slow channel %d", n)
	}
	return ch, nil
}
