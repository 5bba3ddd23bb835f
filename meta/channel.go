package meta

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// A SpikeChannel describes one DSP (spike) channel. Channel numbers are
// 1-based.
type SpikeChannel struct {
	Name    string
	SIGName string
	Channel int
	// Waveform rate limit divided by ten, when the acquisition processor is
	// rate limiting.
	WFRate int
	// Associated SIG and reference channels, 1-based.
	SIG int
	Ref int
	// Gain divided by the preamp gain (divided by 1000 for versions before
	// 105).
	Gain      int
	Filter    bool
	Threshold int
	// Unit sorting configuration: 1 for boxes, 2 for templates.
	Method    int
	NUnits    int
	Template  [5][64]int16
	Fit       [5]int
	SortWidth int
	Boxes     [5][2][4]int16
	SortBeg   int
	// Valid for version >= 105.
	Comment string
	// Valid for version >= 106.
	SrcID  int
	ChanID int
}

type rawSpikeChannel struct {
	Name      [32]byte
	SIGName   [32]byte
	Channel   int32
	WFRate    int32
	SIG       int32
	Ref       int32
	Gain      int32
	Filter    int32
	Threshold int32
	Method    int32
	NUnits    int32
	Template  [5][64]int16
	Fit       [5]int32
	SortWidth int32
	Boxes     [5][2][4]int16
	SortBeg   int32
	Comment   [128]byte
	SrcID     uint8
	Reserved  uint8
	ChanID    uint16
	Padding   [10]int32
}

func parseSpikeChannel(r io.Reader, version int) (*SpikeChannel, error) {
	var raw rawSpikeChannel
	if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
		return nil, errors.WithMessagef(ErrMalformedHeader, "reading spike channel descriptor: %v", err)
	}
	ch := &SpikeChannel{
		Name:      cstring(raw.Name[:]),
		SIGName:   cstring(raw.SIGName[:]),
		Channel:   int(raw.Channel),
		WFRate:    int(raw.WFRate),
		SIG:       int(raw.SIG),
		Ref:       int(raw.Ref),
		Gain:      int(raw.Gain),
		Filter:    raw.Filter != 0,
		Threshold: int(raw.Threshold),
		Method:    int(raw.Method),
		NUnits:    int(raw.NUnits),
		Template:  raw.Template,
		SortWidth: int(raw.SortWidth),
		Boxes:     raw.Boxes,
		SortBeg:   int(raw.SortBeg),
	}
	for i, fit := range raw.Fit {
		ch.Fit[i] = int(fit)
	}
	if version >= 105 {
		ch.Comment = cstring(raw.Comment[:])
	}
	if version >= 106 {
		ch.SrcID = int(raw.SrcID)
		ch.ChanID = int(raw.ChanID)
	}
	return ch, nil
}

// An EventChannel describes one digital event channel. Channel numbers are
// 1-based.
type EventChannel struct {
	Name    string
	Channel int
	// Valid for version >= 105.
	Comment string
	// Valid for version >= 106.
	SrcID  int
	ChanID int
}

type rawEventChannel struct {
	Name     [32]byte
	Channel  int32
	Comment  [128]byte
	SrcID    uint8
	Reserved uint8
	ChanID   uint16
	Padding  [32]int32
}

func parseEventChannel(r io.Reader, version int) (*EventChannel, error) {
	var raw rawEventChannel
	if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
		return nil, errors.WithMessagef(ErrMalformedHeader, "reading event channel descriptor: %v", err)
	}
	ch := &EventChannel{
		Name:    cstring(raw.Name[:]),
		Channel: int(raw.Channel),
	}
	if version >= 105 {
		ch.Comment = cstring(raw.Comment[:])
	}
	if version >= 106 {
		ch.SrcID = int(raw.SrcID)
		ch.ChanID = int(raw.ChanID)
	}
	return ch, nil
}

// A SlowChannel describes one continuous (A/D) channel. Channel numbers are
// 0-based. Each slow channel may declare its own digitization frequency.
type SlowChannel struct {
	Name    string
	Channel int
	// Digitization frequency in Hz.
	ADFreq int
	// Gain at the A/D card.
	Gain    int
	Enabled bool
	// Gain at the preamp.
	PreAmpGain int
	// 1-based spike channel corresponding to this continuous channel, for
	// version >= 104; zero or negative means none.
	SpikeChannel int
	// Valid for version >= 105.
	Comment string
	// Valid for version >= 106.
	SrcID  int
	ChanID int
}

type rawSlowChannel struct {
	Name         [32]byte
	Channel      int32
	ADFreq       int32
	Gain         int32
	Enabled      int32
	PreAmpGain   int32
	SpikeChannel int32
	Comment      [128]byte
	SrcID        uint8
	Reserved     uint8
	ChanID       uint16
	Padding      [27]int32
}

func parseSlowChannel(r io.Reader, version int) (*SlowChannel, error) {
	var raw rawSlowChannel
	if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
		return nil, errors.WithMessagef(ErrMalformedHeader, "reading slow channel descriptor: %v", err)
	}
	ch := &SlowChannel{
		Name:       cstring(raw.Name[:]),
		Channel:    int(raw.Channel),
		ADFreq:     int(raw.ADFreq),
		Gain:       int(raw.Gain),
		Enabled:    raw.Enabled != 0,
		PreAmpGain: int(raw.PreAmpGain),
	}
	if ch.ADFreq <= 0 {
		return nil, errors.WithMessagef(ErrMalformedHeader, "slow channel %d: non-positive frequency %d", ch.Channel, ch.ADFreq)
	}
	if version >= 104 {
		ch.SpikeChannel = int(raw.SpikeChannel)
	}
	if version >= 105 {
		ch.Comment = cstring(raw.Comment[:])
	}
	if version >= 106 {
		ch.SrcID = int(raw.SrcID)
		ch.ChanID = int(raw.ChanID)
	}
	return ch, nil
}
