package plx

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/plexio/plx/frame"
)

// CheckFrames validates the frame index of a continuous category: for every
// pair of consecutive frames of one channel, the elapsed ticks between the
// frame starts must equal the first frame's declared sample count at the
// channel's rate, exactly, after rounding to the clock's integer tick
// resolution. Any divergence indicates a dropped or duplicated block, or an
// acquisition gap.
//
// Violations are logged and counted, never raised, so one corrupt region
// does not mask later anomalies. The returned count is the number of
// violating frame pairs.
func (f *File) CheckFrames(typ frame.Type) (int, error) {
	if !typ.Continuous() {
		return 0, errors.WithMessagef(ErrNotContinuous, "%v", typ)
	}
	rates := make(map[int16]int, len(f.tables.SlowChannels))
	for _, sc := range f.tables.SlowChannels {
		rates[int16(sc.Channel)] = sc.ADFreq
	}

	anomalies := 0
	prev := make(map[int16]frame.Frame)
	for _, fr := range f.Frames(typ).Frames() {
		p, ok := prev[fr.Channel]
		prev[fr.Channel] = fr
		if !ok {
			continue
		}
		rate, ok := rates[fr.Channel]
		if !ok {
			continue
		}
		elapsed := fr.Start - p.Start
		expected := f.ticksFor(rate, p.Samples)
		if elapsed != expected {
			anomalies++
			f.logger.WithFields(log.Fields{
				"type":     typ.String(),
				"channel":  fr.Channel,
				"ts":       p.Start,
				"next":     fr.Start,
				"elapsed":  elapsed,
				"samples":  p.Samples,
				"expected": expected,
			}).Warn("frame sample count does not match elapsed time")
		}
	}
	return anomalies, nil
}
