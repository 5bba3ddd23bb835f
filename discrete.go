package plx

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/plexio/plx/frame"
)

// A Spike is one discrete occurrence returned by a discrete query: a sorted
// spike or a digital event. For events, Unit carries the strobe value.
type Spike struct {
	// Occurrence time in seconds.
	Time    float64
	Channel int16
	Unit    int16
	// Calibrated waveform samples in millivolts; nil unless the query
	// requested waveforms.
	Waveform []float64
}

// A SpikeInfo is a resolved discrete query over the spike or event category.
// It is consumed by Read and not retained by the recording.
type SpikeInfo struct {
	// Queried category: frame.Spike or frame.Event.
	Type frame.Type
	// Requested window, in seconds.
	T0, T1 float64
	// Number of occurrences the query will yield.
	Num int
	// Largest waveform length among the matched frames, when waveforms were
	// requested; zero otherwise.
	WaveformWords int

	f             *File
	frames        []frame.Frame
	withWaveforms bool
}

// Discrete resolves a discrete query: all spike or event occurrences inside
// [t0, t1), optionally restricted to a channel and unit subset. A nil channel
// or unit slice means no restriction. Waveform payloads dominate I/O volume,
// so they are read only when withWaveforms is set.
func (f *File) Discrete(typ frame.Type, t0, t1 float64, channels, units []int, withWaveforms bool) (*SpikeInfo, error) {
	if typ != frame.Spike && typ != frame.Event {
		return nil, errors.WithMessagef(ErrNotDiscrete, "%v", typ)
	}
	if !(t0 < t1) {
		return nil, errors.WithMessagef(ErrEmptyTimeRange, "[%g, %g)", t0, t1)
	}

	var chanFilter map[int16]bool
	if channels != nil {
		chanFilter = make(map[int16]bool, len(channels))
		for _, n := range channels {
			var err error
			if typ == frame.Spike {
				_, err = f.tables.SpikeChannel(n)
			} else {
				_, err = f.tables.EventChannel(n)
			}
			if err != nil {
				return nil, errors.WithMessagef(ErrChannelNotFound, "%v channel %d", typ, n)
			}
			chanFilter[int16(n)] = true
		}
	}
	var unitFilter map[int16]bool
	if units != nil {
		unitFilter = make(map[int16]bool, len(units))
		for _, u := range units {
			if u < 0 {
				return nil, errors.WithMessagef(ErrUnknownUnit, "unit %d", u)
			}
			unitFilter[int16(u)] = true
		}
	}

	tick0, tick1 := f.tick(t0), f.tick(t1)
	set := f.index.Set(typ)
	start, end, ok := set.Bounds()
	if !ok || tick1 <= start || tick0 >= end {
		return nil, errors.WithMessagef(ErrOutOfRange, "window [%g, %g) for %v", t0, t1, typ)
	}

	si := &SpikeInfo{
		Type:          typ,
		T0:            t0,
		T1:            t1,
		f:             f,
		withWaveforms: withWaveforms,
	}
	for _, fr := range set.Overlapping(tick0, tick1) {
		if chanFilter != nil && !chanFilter[fr.Channel] {
			continue
		}
		if unitFilter != nil && !unitFilter[fr.Unit] {
			continue
		}
		si.frames = append(si.frames, fr)
		si.Num += int(fr.Samples)
		if withWaveforms && int(fr.WaveWords) > si.WaveformWords {
			si.WaveformWords = int(fr.WaveWords)
		}
	}
	return si, nil
}

// Read fills dst with the query's occurrences ordered by time, then channel,
// then unit, and returns the number of records written. dst must hold at
// least Num records. Waveform payloads, when requested, are read from the
// file and calibrated to millivolts.
func (si *SpikeInfo) Read(dst []Spike) (int, error) {
	if len(dst) < si.Num {
		return 0, errors.Errorf("plx: output buffer holds %d records, query yields %d", len(dst), si.Num)
	}
	n := 0
	for _, fr := range si.frames {
		var err error
		if n, err = si.readFrame(fr, dst, n); err != nil {
			return n, err
		}
	}
	out := dst[:n]
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Time != out[j].Time {
			return out[i].Time < out[j].Time
		}
		if out[i].Channel != out[j].Channel {
			return out[i].Channel < out[j].Channel
		}
		return out[i].Unit < out[j].Unit
	})
	return n, nil
}

// readFrame expands one discrete frame into records. Discrete frames index
// file-contiguous blocks, so the walk never leaves the frame's byte range.
func (si *SpikeInfo) readFrame(fr frame.Frame, dst []Spike, n int) (int, error) {
	t := si.f.seconds(fr.Start)
	if !si.withWaveforms || fr.WaveWords == 0 {
		for j := uint64(0); j < fr.Samples; j++ {
			dst[n] = Spike{Time: t, Channel: fr.Channel, Unit: fr.Unit}
			n++
		}
		return n, nil
	}

	scale := si.f.spikeScale(fr.Channel)
	var hdr [frame.HeaderSize]byte
	pos := fr.Off[0]
	for pos < fr.Off[1] {
		if err := si.f.readAt(hdr[:], pos); err != nil {
			return n, err
		}
		h := frame.DecodeHeader(hdr[:])
		words := int(h.WaveformWords)
		for w := 0; w < int(h.Waveforms); w++ {
			raw, err := si.f.readWords(pos+frame.HeaderSize+int64(2*w*words), words)
			if err != nil {
				return n, err
			}
			wf := make([]float64, words)
			for i, v := range raw {
				wf[i] = float64(v) * scale
			}
			dst[n] = Spike{Time: t, Channel: fr.Channel, Unit: fr.Unit, Waveform: wf}
			n++
		}
		if h.Waveforms == 0 {
			dst[n] = Spike{Time: t, Channel: fr.Channel, Unit: fr.Unit}
			n++
		}
		pos += frame.HeaderSize + int64(h.PayloadSize())
	}
	return n, nil
}

// spikeScale returns the raw-to-millivolt conversion factor of a spike
// channel's waveform samples.
func (f *File) spikeScale(channel int16) float64 {
	hdr := f.tables.Header
	gain := 1
	if sc, err := f.tables.SpikeChannel(int(channel)); err == nil && sc.Gain != 0 {
		gain = sc.Gain
	}
	preamp := hdr.SpikePreAmpGain
	if preamp == 0 {
		preamp = 1
	}
	halfScale := float64(int64(1) << uint(hdr.BitsPerSpikeSample-1))
	return float64(hdr.SpikeMaxMagnitudeMV) / (halfScale * float64(gain) * float64(preamp))
}
