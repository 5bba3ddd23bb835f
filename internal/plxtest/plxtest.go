// Package plxtest assembles synthetic .plx recordings in memory for tests.
package plxtest

import (
	"bytes"
	"encoding/binary"
)

// Default header values of generated recordings.
const (
	DefaultVersion     = 106
	DefaultADFrequency = 40000
)

// A Builder accumulates channel descriptors and data blocks and serializes
// them as a complete recording. Blocks are emitted in call order; callers are
// responsible for timestamp ordering.
type Builder struct {
	Version     int
	ADFrequency int
	// Points per spike waveform.
	NumPointsWave int
	// Spike waveform digitization frequency.
	WaveformFreq int

	BitsPerSpikeSample  int
	BitsPerSlowSample   int
	SpikeMaxMagnitudeMV int
	SlowMaxMagnitudeMV  int
	SpikePreAmpGain     int

	// Advisory count tables, written to the header verbatim.
	TSCounts [130][5]int32
	WFCounts [130][5]int32
	EVCounts [512]int32

	spikeChans []spikeChan
	eventChans []eventChan
	slowChans  []slowChan
	blocks     bytes.Buffer
}

// NewBuilder returns a Builder with the defaults of a version 106 recording.
func NewBuilder() *Builder {
	return &Builder{
		Version:             DefaultVersion,
		ADFrequency:         DefaultADFrequency,
		NumPointsWave:       32,
		WaveformFreq:        DefaultADFrequency,
		BitsPerSpikeSample:  12,
		BitsPerSlowSample:   12,
		SpikeMaxMagnitudeMV: 3000,
		SlowMaxMagnitudeMV:  5000,
		SpikePreAmpGain:     1000,
	}
}

type spikeChan struct {
	name   string
	num    int
	gain   int
	nunits int
}

type eventChan struct {
	name string
	num  int
}

type slowChan struct {
	name    string
	num     int
	freq    int
	gain    int
	preamp  int
	enabled bool
}

// AddSpikeChannel declares a 1-based spike channel.
func (b *Builder) AddSpikeChannel(num int, name string, gain, nunits int) {
	b.spikeChans = append(b.spikeChans, spikeChan{name: name, num: num, gain: gain, nunits: nunits})
}

// AddEventChannel declares a 1-based event channel.
func (b *Builder) AddEventChannel(num int, name string) {
	b.eventChans = append(b.eventChans, eventChan{name: name, num: num})
}

// AddSlowChannel declares a 0-based continuous channel.
func (b *Builder) AddSlowChannel(num int, name string, freq, gain, preamp int, enabled bool) {
	b.slowChans = append(b.slowChans, slowChan{name: name, num: num, freq: freq, gain: gain, preamp: preamp, enabled: enabled})
}

// Spike appends a spike block. A nil waveform emits a timestamp-only block.
func (b *Builder) Spike(ts uint64, channel, unit int, waveform []int16) {
	waveforms := int16(0)
	if len(waveform) > 0 {
		waveforms = 1
	}
	b.block(1, ts, int16(channel), int16(unit), waveforms, int16(len(waveform)), waveform)
}

// Event appends a digital event block.
func (b *Builder) Event(ts uint64, channel, strobe int) {
	b.block(4, ts, int16(channel), int16(strobe), 0, 0, nil)
}

// Slow appends a continuous block of samples for one channel.
func (b *Builder) Slow(ts uint64, channel int, samples []int16) {
	b.block(5, ts, int16(channel), 0, 1, int16(len(samples)), samples)
}

// RawBlock appends a block with explicit header fields, for malformed-stream
// tests.
func (b *Builder) RawBlock(tag int16, ts uint64, channel, unit, waveforms, words int16, samples []int16) {
	b.block(tag, ts, channel, unit, waveforms, words, samples)
}

func (b *Builder) block(tag int16, ts uint64, channel, unit, waveforms, words int16, samples []int16) {
	var hdr [16]byte
	binary.LittleEndian.PutUint16(hdr[0:2], uint16(tag))
	binary.LittleEndian.PutUint16(hdr[2:4], uint16(ts>>32))
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(ts))
	binary.LittleEndian.PutUint16(hdr[8:10], uint16(channel))
	binary.LittleEndian.PutUint16(hdr[10:12], uint16(unit))
	binary.LittleEndian.PutUint16(hdr[12:14], uint16(waveforms))
	binary.LittleEndian.PutUint16(hdr[14:16], uint16(words))
	b.blocks.Write(hdr[:])
	for _, s := range samples {
		var w [2]byte
		binary.LittleEndian.PutUint16(w[:], uint16(s))
		b.blocks.Write(w[:])
	}
}

// On-disk layouts, mirroring the .plx descriptor records.

type fileHeader struct {
	MagicNumber         uint32
	Version             int32
	Comment             [128]byte
	ADFrequency         int32
	NumDSPChannels      int32
	NumEventChannels    int32
	NumSlowChannels     int32
	NumPointsWave       int32
	NumPointsPreThr     int32
	Year                int32
	Month               int32
	Day                 int32
	Hour                int32
	Minute              int32
	Second              int32
	FastRead            int32
	WaveformFreq        int32
	LastTimestamp       float64
	Trodalness          int8
	DataTrodalness      int8
	BitsPerSpikeSample  int8
	BitsPerSlowSample   int8
	SpikeMaxMagnitudeMV uint16
	SlowMaxMagnitudeMV  uint16
	SpikePreAmpGain     uint16
	AcquiringSoftware   [18]byte
	ProcessingSoftware  [18]byte
	Padding             [10]byte
}

type spikeChanRecord struct {
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

type eventChanRecord struct {
	Name     [32]byte
	Channel  int32
	Comment  [128]byte
	SrcID    uint8
	Reserved uint8
	ChanID   uint16
	Padding  [32]int32
}

type slowChanRecord struct {
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

// Bytes serializes the recording: fixed header, descriptors, data blocks.
func (b *Builder) Bytes() []byte {
	var buf bytes.Buffer
	hdr := fileHeader{
		MagicNumber:         0x58454c50,
		Version:             int32(b.Version),
		ADFrequency:         int32(b.ADFrequency),
		NumDSPChannels:      int32(len(b.spikeChans)),
		NumEventChannels:    int32(len(b.eventChans)),
		NumSlowChannels:     int32(len(b.slowChans)),
		NumPointsWave:       int32(b.NumPointsWave),
		Year:                2024,
		Month:               1,
		Day:                 2,
		WaveformFreq:        int32(b.WaveformFreq),
		Trodalness:          1,
		DataTrodalness:      1,
		BitsPerSpikeSample:  int8(b.BitsPerSpikeSample),
		BitsPerSlowSample:   int8(b.BitsPerSlowSample),
		SpikeMaxMagnitudeMV: uint16(b.SpikeMaxMagnitudeMV),
		SlowMaxMagnitudeMV:  uint16(b.SlowMaxMagnitudeMV),
		SpikePreAmpGain:     uint16(b.SpikePreAmpGain),
	}
	copy(hdr.Comment[:], "plxtest recording")
	copy(hdr.AcquiringSoftware[:], "plxtest")
	mustWrite(&buf, &hdr)
	mustWrite(&buf, &b.TSCounts)
	mustWrite(&buf, &b.WFCounts)
	mustWrite(&buf, &b.EVCounts)
	for _, ch := range b.spikeChans {
		rec := spikeChanRecord{
			Channel: int32(ch.num),
			Gain:    int32(ch.gain),
			NUnits:  int32(ch.nunits),
		}
		copy(rec.Name[:], ch.name)
		mustWrite(&buf, &rec)
	}
	for _, ch := range b.eventChans {
		rec := eventChanRecord{Channel: int32(ch.num)}
		copy(rec.Name[:], ch.name)
		mustWrite(&buf, &rec)
	}
	for _, ch := range b.slowChans {
		rec := slowChanRecord{
			Channel:    int32(ch.num),
			ADFreq:     int32(ch.freq),
			Gain:       int32(ch.gain),
			PreAmpGain: int32(ch.preamp),
		}
		if ch.enabled {
			rec.Enabled = 1
		}
		copy(rec.Name[:], ch.name)
		mustWrite(&buf, &rec)
	}
	buf.Write(b.blocks.Bytes())
	return buf.Bytes()
}

func mustWrite(buf *bytes.Buffer, v interface{}) {
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		panic(err)
	}
}
