package plx

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/plexio/plx/frame"
	"github.com/plexio/plx/meta"
)

// A ContInfo is a resolved continuous query: a time window and channel
// subset mapped onto an output grid shape. It is consumed by Read and not
// retained by the recording.
type ContInfo struct {
	// Queried continuous category.
	Type frame.Type
	// Requested channel numbers, in output column order.
	Channels []int
	// Time of the first output row, in seconds.
	TStart float64
	// Sampling rate of the output grid: the coarsest rate among the
	// requested channels. Faster channels are decimated onto this grid.
	Rate float64
	// Output shape: Len rows of NChans columns.
	Len    int
	NChans int

	f      *File
	chans  []*meta.SlowChannel
	t0, t1 uint64
	// Ticks of the timestamp clock per output row.
	stride float64
}

// Continuous resolves a continuous query against the frame index. Every
// requested channel must exist, be enabled and belong to the requested
// category. When the requested channels sample at different rates the output
// grid uses the coarsest rate and faster channels are decimated onto it;
// rates that are not integer multiples of the coarsest fail with
// ErrRateMismatch rather than resampling silently.
func (f *File) Continuous(typ frame.Type, t0, t1 float64, channels []int) (*ContInfo, error) {
	if !typ.Continuous() {
		return nil, errors.WithMessagef(ErrNotContinuous, "%v", typ)
	}
	if len(channels) == 0 {
		return nil, errors.WithMessage(ErrChannelNotFound, "no channels requested")
	}
	if !(t0 < t1) {
		return nil, errors.WithMessagef(ErrEmptyTimeRange, "[%g, %g)", t0, t1)
	}

	chans := make([]*meta.SlowChannel, 0, len(channels))
	gridRate := 0
	for _, n := range channels {
		sc, err := f.tables.SlowChannel(n)
		if err != nil {
			return nil, errors.WithMessagef(ErrChannelNotFound, "slow channel %d", n)
		}
		if frame.SlowType(sc.Name) != typ {
			return nil, errors.WithMessagef(ErrChannelNotFound, "channel %d (%s) is not %v", n, sc.Name, typ)
		}
		if !sc.Enabled {
			return nil, errors.WithMessagef(ErrChannelNotFound, "channel %d (%s) is disabled", n, sc.Name)
		}
		chans = append(chans, sc)
		if gridRate == 0 || sc.ADFreq < gridRate {
			gridRate = sc.ADFreq
		}
	}
	for _, sc := range chans {
		if sc.ADFreq%gridRate != 0 {
			return nil, errors.WithMessagef(ErrRateMismatch, "channel %d at %d Hz against grid rate %d Hz", sc.Channel, sc.ADFreq, gridRate)
		}
	}

	n := int(math.Round((t1 - t0) * float64(gridRate)))
	if n <= 0 {
		return nil, errors.WithMessagef(ErrEmptyTimeRange, "window [%g, %g) holds no samples at %d Hz", t0, t1, gridRate)
	}

	tick0, tick1 := f.tick(t0), f.tick(t1)
	start, end, ok := f.index.Set(typ).Bounds()
	if !ok || tick1 <= start || tick0 >= end {
		return nil, errors.WithMessagef(ErrOutOfRange, "window [%g, %g) for %v", t0, t1, typ)
	}

	return &ContInfo{
		Type:     typ,
		Channels: append([]int(nil), channels...),
		TStart:   f.seconds(tick0),
		Rate:     float64(gridRate),
		Len:      n,
		NChans:   len(chans),
		f:        f,
		chans:    chans,
		t0:       tick0,
		t1:       tick1,
		stride:   float64(f.tables.Header.ADFrequency) / float64(gridRate),
	}, nil
}

// Read fills dst with the resolved sample grid in row-major (sample, channel)
// order, in physical millivolt units. dst must hold at least Len*NChans
// values. Grid positions that no indexed frame covers are filled with the
// recording's gap sentinel. File reads cover only the byte ranges overlapping
// the window.
func (ci *ContInfo) Read(dst []float64) error {
	if need := ci.Len * ci.NChans; len(dst) < need {
		return errors.Errorf("plx: output buffer holds %d values, query needs %d", len(dst), need)
	}
	sentinel := 0.0
	if ci.f.gapFill == GapNaN {
		sentinel = math.NaN()
	}
	frames := ci.f.index.Set(ci.Type).Overlapping(ci.t0, ci.t1)
	adfreq := float64(ci.f.tables.Header.ADFrequency)
	col := make([]float64, ci.Len)
	for ic, sc := range ci.chans {
		for i := range col {
			col[i] = sentinel
		}
		tps := adfreq / float64(sc.ADFreq)
		for _, fr := range frames {
			if fr.Channel != int16(sc.Channel) {
				continue
			}
			if err := ci.fillFrame(fr, tps, col); err != nil {
				return err
			}
		}
		floats.Scale(ci.f.slowScale(sc), col)
		for i, v := range col {
			dst[i*ci.NChans+ic] = v
		}
	}
	return nil
}

// fillFrame writes the raw sample values of one frame into the rows of col
// that fall inside the frame's coverage. Block payloads load lazily, one
// block at a time, and only for blocks holding a needed sample.
func (ci *ContInfo) fillFrame(fr frame.Frame, tps float64, col []float64) error {
	t0 := float64(ci.t0)
	iLo := int(math.Ceil((float64(fr.Start) - t0) / ci.stride))
	if iLo < 0 {
		iLo = 0
	}
	iHi := int(math.Ceil((float64(fr.End) - t0) / ci.stride))
	if iHi > ci.Len {
		iHi = ci.Len
	}
	if iLo >= iHi {
		return nil
	}
	blocks, err := ci.f.channelBlocks(fr)
	if err != nil {
		return err
	}
	bi := 0
	var payload []int16
	for i := iLo; i < iHi; i++ {
		tick := t0 + float64(i)*ci.stride
		k := int64(math.Round((tick - float64(fr.Start)) / tps))
		if k < 0 || uint64(k) >= fr.Samples {
			continue
		}
		for bi < len(blocks) && uint64(k) >= blocks[bi].base+uint64(blocks[bi].words) {
			bi++
			payload = nil
		}
		if bi >= len(blocks) {
			break
		}
		b := blocks[bi]
		if uint64(k) < b.base {
			continue
		}
		if payload == nil {
			if payload, err = ci.f.readWords(b.off, b.words); err != nil {
				return err
			}
		}
		col[i] = float64(payload[uint64(k)-b.base])
	}
	return nil
}

// A blockRef locates the payload of one data block of a frame's channel:
// absolute payload offset, sample word count, and the cumulative sample index
// of the first word within the frame.
type blockRef struct {
	off   int64
	words int
	base  uint64
}

// channelBlocks walks the block headers of a frame's byte range and returns
// the blocks belonging to the frame's channel. Continuous frame ranges may
// interleave other channels' blocks; those are skipped by header size alone,
// without reading their payloads.
func (f *File) channelBlocks(fr frame.Frame) ([]blockRef, error) {
	blocks := make([]blockRef, 0, fr.Blocks)
	var hdr [frame.HeaderSize]byte
	pos := fr.Off[0]
	var base uint64
	for pos < fr.Off[1] {
		if err := f.readAt(hdr[:], pos); err != nil {
			return nil, err
		}
		h := frame.DecodeHeader(hdr[:])
		size := int64(h.PayloadSize())
		if size < 0 {
			// Corrupt counts are excluded from the index during the scan;
			// a foreign block carrying them must not stall the walk.
			size = 0
		} else if h.Type == frame.TagSlow && h.Channel == fr.Channel {
			words := int(h.Waveforms) * int(h.WaveformWords)
			blocks = append(blocks, blockRef{off: pos + frame.HeaderSize, words: words, base: base})
			base += uint64(words)
		}
		pos += frame.HeaderSize + size
	}
	return blocks, nil
}

// readWords reads n little-endian sample words at the given offset.
func (f *File) readWords(off int64, n int) ([]int16, error) {
	buf := make([]byte, 2*n)
	if err := f.readAt(buf, off); err != nil {
		return nil, err
	}
	words := make([]int16, n)
	for i := range words {
		words[i] = int16(binary.LittleEndian.Uint16(buf[2*i:]))
	}
	return words, nil
}

// slowScale returns the raw-to-millivolt conversion factor of a continuous
// channel: maxMagnitudeMV / (2^(bits-1) * gain * preampGain).
func (f *File) slowScale(sc *meta.SlowChannel) float64 {
	hdr := f.tables.Header
	gain := sc.Gain
	if gain == 0 {
		gain = 1
	}
	preamp := sc.PreAmpGain
	if preamp == 0 {
		preamp = 1
	}
	halfScale := float64(int64(1) << uint(hdr.BitsPerSlowSample-1))
	return float64(hdr.SlowMaxMagnitudeMV) / (halfScale * float64(gain) * float64(preamp))
}
