package meta

import (
	"encoding/binary"
	"io"
	"time"

	"github.com/pkg/errors"
)

// Count table dimensions of the fixed file header. Timestamp and waveform
// counts cover the first 128 spike channels and first 4 units only; event
// counts cover event numbers up to 299, with continuous channel sample counts
// starting at index 300 for 0-based channels up to 211.
const (
	MaxCountSpikeChannels = 128
	MaxCountUnits         = 4
	MaxCountEventNumber   = 299
	ContCountBase         = 300
	MaxCountSlowChannel   = 211
)

// A FileHeader is the fixed-size header of a .plx recording. The count tables
// are advisory; the authoritative per-category counts are recomputed from the
// data block stream when the recording is indexed.
type FileHeader struct {
	// Format version; gates which trailing fields are valid.
	Version int
	// User-supplied comment.
	Comment string
	// Timestamp clock frequency in Hz. All 40-bit timestamps count ticks of
	// this clock.
	ADFrequency int
	// Descriptor counts, in the order the descriptors appear on disk.
	NumDSPChannels   int
	NumEventChannels int
	NumSlowChannels  int
	// Points per spike waveform, and points before threshold crossing.
	NumPointsWave   int
	NumPointsPreThr int
	// Session start time.
	Start time.Time
	// Spike waveform digitization frequency in Hz (distinct from the
	// timestamp clock above).
	WaveformFreq int
	// Duration of the session, in ticks.
	LastTimestamp float64

	// Valid for version >= 103; defaulted below that.
	Trodalness          int
	DataTrodalness      int
	BitsPerSpikeSample  int
	BitsPerSlowSample   int
	SpikeMaxMagnitudeMV int
	SlowMaxMagnitudeMV  int
	// Valid for version >= 105; defaulted below that.
	SpikePreAmpGain int
	// Valid for version >= 106; empty below that.
	AcquiringSoftware  string
	ProcessingSoftware string

	// Declared timestamp and waveform counts per [channel][unit]. Channel and
	// unit numbers are 1-based; row 0 and unit 0 columns are unused beyond
	// the unsorted unit.
	TSCounts [130][5]int32
	WFCounts [130][5]int32
	// Declared counts per event number, with continuous sample counts at
	// ContCountBase+channel.
	EVCounts [512]int32
}

// rawFileHeader mirrors the first 256 bytes of the on-disk header.
type rawFileHeader struct {
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

func parseFileHeader(r io.Reader) (*FileHeader, error) {
	var raw rawFileHeader
	if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
		return nil, errors.WithMessagef(ErrMalformedHeader, "reading file header: %v", err)
	}
	if raw.MagicNumber != Magic {
		return nil, errors.WithMessagef(ErrMalformedHeader, "bad magic number 0x%08x", raw.MagicNumber)
	}
	hdr := &FileHeader{
		Version:          int(raw.Version),
		Comment:          cstring(raw.Comment[:]),
		ADFrequency:      int(raw.ADFrequency),
		NumDSPChannels:   int(raw.NumDSPChannels),
		NumEventChannels: int(raw.NumEventChannels),
		NumSlowChannels:  int(raw.NumSlowChannels),
		NumPointsWave:    int(raw.NumPointsWave),
		NumPointsPreThr:  int(raw.NumPointsPreThr),
		Start: time.Date(int(raw.Year), time.Month(raw.Month), int(raw.Day),
			int(raw.Hour), int(raw.Minute), int(raw.Second), 0, time.UTC),
		WaveformFreq:  int(raw.WaveformFreq),
		LastTimestamp: raw.LastTimestamp,
	}
	if hdr.ADFrequency <= 0 {
		return nil, errors.WithMessagef(ErrMalformedHeader, "non-positive timestamp frequency %d", hdr.ADFrequency)
	}
	if hdr.NumDSPChannels < 0 || hdr.NumEventChannels < 0 || hdr.NumSlowChannels < 0 {
		return nil, errors.WithMessage(ErrMalformedHeader, "negative channel count")
	}

	// Fields below are gated on the format version; older files get the
	// defaults the acquisition hardware used before the fields existed.
	if hdr.Version >= 103 {
		hdr.Trodalness = int(raw.Trodalness)
		hdr.DataTrodalness = int(raw.DataTrodalness)
		hdr.BitsPerSpikeSample = int(raw.BitsPerSpikeSample)
		hdr.BitsPerSlowSample = int(raw.BitsPerSlowSample)
		hdr.SpikeMaxMagnitudeMV = int(raw.SpikeMaxMagnitudeMV)
		hdr.SlowMaxMagnitudeMV = int(raw.SlowMaxMagnitudeMV)
	} else {
		hdr.Trodalness = 1
		hdr.DataTrodalness = 1
		hdr.BitsPerSpikeSample = 12
		hdr.BitsPerSlowSample = 12
		hdr.SpikeMaxMagnitudeMV = 3000
		hdr.SlowMaxMagnitudeMV = 5000
	}
	if hdr.Version >= 105 {
		hdr.SpikePreAmpGain = int(raw.SpikePreAmpGain)
	} else {
		hdr.SpikePreAmpGain = 1000
	}
	if hdr.Version >= 106 {
		hdr.AcquiringSoftware = cstring(raw.AcquiringSoftware[:])
		hdr.ProcessingSoftware = cstring(raw.ProcessingSoftware[:])
	}

	if err := binary.Read(r, binary.LittleEndian, &hdr.TSCounts); err != nil {
		return nil, errors.WithMessagef(ErrMalformedHeader, "reading timestamp counts: %v", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &hdr.WFCounts); err != nil {
		return nil, errors.WithMessagef(ErrMalformedHeader, "reading waveform counts: %v", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &hdr.EVCounts); err != nil {
		return nil, errors.WithMessagef(ErrMalformedHeader, "reading event counts: %v", err)
	}
	return hdr, nil
}

// DeclaredSpikeCount returns the total number of spike timestamps declared by
// the header count tables, across all counted channels and units.
func (hdr *FileHeader) DeclaredSpikeCount() uint64 {
	var n uint64
	for ch := 1; ch <= MaxCountSpikeChannels; ch++ {
		for u := 0; u <= MaxCountUnits; u++ {
			n += uint64(hdr.TSCounts[ch][u])
		}
	}
	return n
}

// DeclaredEventCount returns the total number of event timestamps declared by
// the header count tables.
func (hdr *FileHeader) DeclaredEventCount() uint64 {
	var n uint64
	for ev := 1; ev <= MaxCountEventNumber; ev++ {
		n += uint64(hdr.EVCounts[ev])
	}
	return n
}

// DeclaredSlowCount returns the declared sample count of the given 0-based
// continuous channel, or zero for channels beyond the counted range.
func (hdr *FileHeader) DeclaredSlowCount(channel int) uint64 {
	if channel < 0 || channel > MaxCountSlowChannel {
		return 0
	}
	return uint64(hdr.EVCounts[ContCountBase+channel])
}

// cstring interprets b as a NUL-terminated string.
func cstring(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
