package frame

import (
	"io"
	"math"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/plexio/plx/meta"
)

// An Index holds one frame Set per channel type category, built by a single
// pass over the data block stream, plus the anomaly counts recorded during
// that pass. After Scan returns, an Index is immutable.
type Index struct {
	sets [NumTypes]*Set
	// Number of blocks whose timestamp regressed relative to the previous
	// block of the same channel. Such blocks are indexed anyway so that the
	// consistency checker can surface them.
	NonMonotonic int
	// Number of blocks skipped because their type tag or channel number
	// matched no descriptor.
	Unclassified int
}

// Set returns the frame set of the given category.
func (ix *Index) Set(t Type) *Set { return ix.sets[int(t)] }

// Scan reads the data block stream of r once, from the first block position
// to the end of the file, and builds the frame index. size is the total byte
// length of the source. Scanning is strictly sequential; every byte of the
// data region is visited exactly once.
//
// A block header or payload extending past size fails with ErrTruncated.
// Timestamp regressions and unclassifiable blocks are logged on logger,
// counted, and do not abort the scan.
func Scan(r io.ReadSeeker, size int64, tables *meta.Tables, logger *log.Logger) (*Index, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	s := &scanner{
		adfreq: tables.Header.ADFrequency,
		logger: logger,
		slow:   make(map[int16]slowInfo, len(tables.SlowChannels)),
		ix:     &Index{},
	}
	for _, ch := range tables.SlowChannels {
		s.slow[int16(ch.Channel)] = slowInfo{typ: SlowType(ch.Name), rate: ch.ADFreq}
	}
	s.ix.sets[Spike] = NewSet(Spike, reserve(tables.Header.DeclaredSpikeCount()))
	s.ix.sets[Event] = NewSet(Event, reserve(tables.Header.DeclaredEventCount()))
	for t := Wideband; t <= Analog; t++ {
		s.ix.sets[t] = NewSet(t, len(tables.SlowChannels))
	}
	for i := range s.pending {
		s.pending[i] = make(map[int16]*Frame)
		s.lastTS[i] = make(map[int16]uint64)
	}

	pos, err := r.Seek(tables.DataStart(), io.SeekStart)
	if err != nil {
		return nil, errors.Wrap(err, "frame: seeking to data region")
	}
	if pos > size {
		return nil, errors.WithMessagef(ErrTruncated, "data region starts at %d beyond file size %d", pos, size)
	}

	var hdrBuf [HeaderSize]byte
	for {
		if _, err := io.ReadFull(r, hdrBuf[:]); err != nil {
			if err == io.EOF {
				break
			}
			if err == io.ErrUnexpectedEOF {
				return nil, errors.WithMessagef(ErrTruncated, "block header at offset %d", pos)
			}
			return nil, errors.Wrapf(err, "frame: reading block header at offset %d", pos)
		}
		h := DecodeHeader(hdrBuf[:])
		if h.Waveforms < 0 || h.WaveformWords < 0 {
			// The payload size of such a block is meaningless; skip the
			// header and resynchronize at the next one.
			s.ix.Unclassified++
			s.logger.WithFields(log.Fields{
				"offset":    pos,
				"waveforms": h.Waveforms,
				"words":     h.WaveformWords,
			}).Warn("block with negative waveform counts, skipping")
			pos += HeaderSize
			continue
		}
		end := pos + HeaderSize + int64(h.PayloadSize())
		if end > size {
			return nil, errors.WithMessagef(ErrTruncated, "block payload [%d, %d) beyond file size %d", pos+HeaderSize, end, size)
		}
		s.block(h, pos, end)
		if h.PayloadSize() > 0 {
			if _, err := r.Seek(int64(h.PayloadSize()), io.SeekCurrent); err != nil {
				return nil, errors.Wrapf(err, "frame: skipping block payload at offset %d", pos)
			}
		}
		pos = end
	}

	s.flush()
	for _, set := range s.ix.sets {
		set.Finish()
	}
	return s.ix, nil
}

// reserve caps the pre-reserved frame capacity derived from the advisory
// header counts, which may be stale or absent.
func reserve(declared uint64) int {
	const max = 1 << 20
	if declared > max {
		return max
	}
	return int(declared)
}

// slowInfo caches the category and rate of one continuous channel for block
// classification.
type slowInfo struct {
	typ  Type
	rate int
}

type scanner struct {
	adfreq  int
	logger  *log.Logger
	slow    map[int16]slowInfo
	ix      *Index
	pending [NumTypes]map[int16]*Frame
	lastTS  [NumTypes]map[int16]uint64
}

// block classifies one decoded block and folds it into the per-channel
// in-progress frame of its category.
func (s *scanner) block(h Header, pos, end int64) {
	var typ Type
	switch h.Type {
	case TagSpike:
		typ = Spike
	case TagEvent:
		typ = Event
	case TagSlow:
		info, ok := s.slow[h.Channel]
		if !ok {
			s.ix.Unclassified++
			s.logger.WithFields(log.Fields{
				"offset":  pos,
				"channel": h.Channel,
			}).Warn("continuous block on undeclared channel, skipping")
			return
		}
		s.continuous(info, h, pos, end)
		return
	default:
		s.ix.Unclassified++
		s.logger.WithFields(log.Fields{
			"offset": pos,
			"tag":    h.Type,
		}).Warn("block with unknown type tag, skipping")
		return
	}
	s.discrete(typ, h, pos, end)
}

func (s *scanner) checkMonotonic(typ Type, h Header, pos int64) {
	if last, ok := s.lastTS[typ][h.Channel]; ok && h.Timestamp < last {
		s.ix.NonMonotonic++
		s.logger.WithFields(log.Fields{
			"offset":   pos,
			"type":     typ.String(),
			"channel":  h.Channel,
			"ts":       h.Timestamp,
			"previous": last,
		}).Warn("block timestamp regressed")
	}
	s.lastTS[typ][h.Channel] = h.Timestamp
}

// discrete folds a spike or event block into the index. Consecutive blocks
// of one channel coalesce only when they share a timestamp, unit and
// waveform shape and are adjacent in the file.
func (s *scanner) discrete(typ Type, h Header, pos, end int64) {
	s.checkMonotonic(typ, h, pos)
	occurrences := uint64(h.Waveforms)
	if occurrences == 0 {
		// Event blocks and unsampled spike blocks carry no waveform records
		// but still mark one occurrence.
		occurrences = 1
	}
	cur := s.pending[typ][h.Channel]
	if cur != nil && cur.Start == h.Timestamp && cur.Unit == h.Unit &&
		cur.WaveWords == h.WaveformWords && cur.Off[1] == pos {
		cur.Samples += occurrences
		cur.Blocks++
		cur.Off[1] = end
		return
	}
	s.finalize(typ, h.Channel)
	s.pending[typ][h.Channel] = &Frame{
		Type:      typ,
		Channel:   h.Channel,
		Unit:      h.Unit,
		WaveWords: h.WaveformWords,
		Start:     h.Timestamp,
		End:       h.Timestamp + 1,
		Off:       [2]int64{pos, end},
		Samples:   occurrences,
		Blocks:    1,
	}
}

// continuous folds a continuous block into the index. A block extends its
// channel's in-progress frame only when its timestamp lands exactly where
// the frame's sample run ends at the channel's rate; anything else (a gap, a
// pause, a regression) starts a new frame.
func (s *scanner) continuous(typ slowInfo, h Header, pos, end int64) {
	s.checkMonotonic(typ.typ, h, pos)
	words := uint64(h.Waveforms) * uint64(h.WaveformWords)
	cur := s.pending[typ.typ][h.Channel]
	if cur != nil && h.Timestamp == cur.Start+s.ticksFor(typ.rate, cur.Samples) {
		cur.Samples += words
		cur.Blocks++
		cur.Off[1] = end
		return
	}
	s.finalize(typ.typ, h.Channel)
	s.pending[typ.typ][h.Channel] = &Frame{
		Type:    typ.typ,
		Channel: h.Channel,
		Start:   h.Timestamp,
		Off:     [2]int64{pos, end},
		Samples: words,
		Blocks:  1,
	}
}

// finalize seals the in-progress frame of one channel, if any, and appends
// it to its category's set.
func (s *scanner) finalize(typ Type, channel int16) {
	cur := s.pending[typ][channel]
	if cur == nil {
		return
	}
	delete(s.pending[typ], channel)
	if typ.Continuous() {
		cur.End = cur.Start + s.ticksFor(s.slow[channel].rate, cur.Samples)
	}
	s.ix.sets[typ].append(*cur)
}

// flush finalizes every in-progress frame at the end of the stream.
func (s *scanner) flush() {
	for typ := range s.pending {
		for ch := range s.pending[typ] {
			s.finalize(Type(typ), ch)
		}
	}
}

// ticksFor converts a sample count of a channel at the given rate into ticks
// of the timestamp clock, rounded to the clock's integer resolution.
func (s *scanner) ticksFor(rate int, samples uint64) uint64 {
	if s.adfreq%rate == 0 {
		return samples * uint64(s.adfreq/rate)
	}
	return uint64(math.Round(float64(samples) * float64(s.adfreq) / float64(rate)))
}
