package frame_test

import (
	"bytes"
	"io"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/plexio/plx/frame"
	"github.com/plexio/plx/internal/plxtest"
	"github.com/plexio/plx/meta"
)

func quietLogger() *log.Logger {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger
}

func scan(t *testing.T, b *plxtest.Builder) *frame.Index {
	t.Helper()
	data := b.Bytes()
	tables, err := meta.Parse(bytes.NewReader(data))
	require.NoError(t, err)
	ix, err := frame.Scan(bytes.NewReader(data), int64(len(data)), tables, quietLogger())
	require.NoError(t, err)
	return ix
}

// ramp returns n sample words counting up from base.
func ramp(base, n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(base + i)
	}
	return out
}

func TestScanContinuousCoalescing(t *testing.T) {
	b := plxtest.NewBuilder()
	b.AddSlowChannel(0, "FP01", 1000, 1, 1, true)
	b.AddSlowChannel(1, "FP02", 1000, 1, 1, true)
	// Interleaved sweeps of 100 samples each: at 1000 Hz against a 40 kHz
	// clock, each sweep spans 4000 ticks.
	for sweep := 0; sweep < 5; sweep++ {
		ts := uint64(sweep) * 4000
		b.Slow(ts, 0, ramp(0, 100))
		b.Slow(ts, 1, ramp(0, 100))
	}

	ix := scan(t, b)
	set := ix.Set(frame.LFP)
	require.Equal(t, 2, set.Len())
	require.Equal(t, uint64(1000), set.Samples())

	for _, fr := range set.Frames() {
		require.Equal(t, frame.LFP, fr.Type)
		require.Equal(t, uint64(0), fr.Start)
		require.Equal(t, uint64(5*4000), fr.End)
		require.Equal(t, uint64(500), fr.Samples)
		require.Equal(t, uint64(5), fr.Blocks)
	}
	// The byte ranges of the two channels interleave each other's blocks.
	frames := set.Frames()
	require.Less(t, frames[0].Off[0], frames[1].Off[0])
	require.Less(t, frames[1].Off[0], frames[0].Off[1])

	start, end, ok := set.Bounds()
	require.True(t, ok)
	require.Equal(t, uint64(0), start)
	require.Equal(t, uint64(20000), end)
	require.Equal(t, 0, ix.NonMonotonic)
	require.Equal(t, 0, ix.Unclassified)
}

func TestScanContinuousGapSplitsFrame(t *testing.T) {
	b := plxtest.NewBuilder()
	b.AddSlowChannel(0, "AI00", 1000, 1, 1, true)
	b.Slow(0, 0, ramp(0, 100))
	b.Slow(4000, 0, ramp(100, 100))
	// One sweep of silence, then acquisition resumes.
	b.Slow(12000, 0, ramp(200, 100))

	ix := scan(t, b)
	set := ix.Set(frame.Analog)
	require.Equal(t, 2, set.Len())

	frames := set.Frames()
	require.Equal(t, uint64(0), frames[0].Start)
	require.Equal(t, uint64(8000), frames[0].End)
	require.Equal(t, uint64(200), frames[0].Samples)
	require.Equal(t, uint64(12000), frames[1].Start)
	require.Equal(t, uint64(16000), frames[1].End)
	require.Equal(t, uint64(100), frames[1].Samples)
}

func TestScanDiscrete(t *testing.T) {
	b := plxtest.NewBuilder()
	b.AddSpikeChannel(1, "sig001", 1, 2)
	b.AddEventChannel(1, "Event01")
	b.Spike(1000, 1, 0, ramp(0, 32))
	b.Spike(2000, 1, 1, nil)
	b.Spike(3000, 1, 1, nil)
	b.Event(2500, 1, 9)

	ix := scan(t, b)
	spikes := ix.Set(frame.Spike)
	require.Equal(t, 3, spikes.Len())
	require.Equal(t, uint64(3), spikes.Samples())

	frames := spikes.Frames()
	require.Equal(t, uint64(1000), frames[0].Start)
	require.Equal(t, uint64(1001), frames[0].End)
	require.Equal(t, int16(0), frames[0].Unit)
	require.Equal(t, int16(32), frames[0].WaveWords)
	require.Equal(t, uint64(2000), frames[1].Start)
	require.Equal(t, int16(1), frames[1].Unit)
	require.Equal(t, int16(0), frames[1].WaveWords)

	events := ix.Set(frame.Event)
	require.Equal(t, 1, events.Len())
	require.Equal(t, int16(9), events.Frames()[0].Unit)
}

func TestScanDiscreteCoalescing(t *testing.T) {
	b := plxtest.NewBuilder()
	b.AddSpikeChannel(1, "sig001", 1, 0)
	// Two file-adjacent unsampled blocks of one channel at one timestamp
	// coalesce; a third at a later timestamp does not.
	b.Spike(1000, 1, 0, nil)
	b.Spike(1000, 1, 0, nil)
	b.Spike(1200, 1, 0, nil)

	ix := scan(t, b)
	set := ix.Set(frame.Spike)
	require.Equal(t, 2, set.Len())
	frames := set.Frames()
	require.Equal(t, uint64(2), frames[0].Samples)
	require.Equal(t, uint64(2), frames[0].Blocks)
	require.Equal(t, uint64(1), frames[1].Samples)
}

func TestScanTruncated(t *testing.T) {
	b := plxtest.NewBuilder()
	b.AddSlowChannel(0, "AI00", 1000, 1, 1, true)
	b.Slow(0, 0, ramp(0, 100))
	data := b.Bytes()

	tables, err := meta.Parse(bytes.NewReader(data))
	require.NoError(t, err)

	// Cut inside the last payload, then inside the block header.
	cut := data[:len(data)-3]
	_, err = frame.Scan(bytes.NewReader(cut), int64(len(cut)), tables, quietLogger())
	require.ErrorIs(t, err, frame.ErrTruncated)

	cut = data[:len(data)-100*2-10]
	_, err = frame.Scan(bytes.NewReader(cut), int64(len(cut)), tables, quietLogger())
	require.ErrorIs(t, err, frame.ErrTruncated)
}

func TestScanNegativeCounts(t *testing.T) {
	b := plxtest.NewBuilder()
	b.AddSlowChannel(0, "AI00", 1000, 1, 1, true)
	b.Slow(0, 0, ramp(0, 100))
	// A header-only block with negative waveform counts between two regular
	// sweeps. Its declared payload size is nonsense and must not be trusted:
	// the sample counter, the coalescing cadence and the byte offsets of the
	// surrounding blocks all have to come out exact.
	b.RawBlock(5, 4000, 0, 0, -1, 8, nil)
	b.Slow(4000, 0, ramp(100, 100))

	ix := scan(t, b)
	require.Equal(t, 1, ix.Unclassified)

	set := ix.Set(frame.Analog)
	require.Equal(t, 1, set.Len())
	fr := set.Frames()[0]
	require.Equal(t, uint64(200), fr.Samples)
	require.Equal(t, uint64(2), fr.Blocks)
	require.Equal(t, uint64(8000), fr.End)

	dataStart := int64(meta.HeaderSize + meta.SlowChannelSize)
	require.Equal(t, dataStart, fr.Off[0])
	// 16-byte headers, 200 bytes per sweep payload, 16 bytes of corrupt
	// header in between.
	require.Equal(t, dataStart+2*(16+200)+16, fr.Off[1])
}

func TestScanNonMonotonic(t *testing.T) {
	b := plxtest.NewBuilder()
	b.AddSpikeChannel(1, "sig001", 1, 0)
	b.Spike(8000, 1, 0, nil)
	b.Spike(4000, 1, 0, nil)

	ix := scan(t, b)
	require.Equal(t, 1, ix.NonMonotonic)
	// Regressed blocks are indexed anyway, in start order.
	set := ix.Set(frame.Spike)
	require.Equal(t, 2, set.Len())
	require.Equal(t, uint64(4000), set.Frames()[0].Start)
	require.Equal(t, uint64(8000), set.Frames()[1].Start)
}

func TestScanUnclassified(t *testing.T) {
	b := plxtest.NewBuilder()
	b.AddSlowChannel(0, "AI00", 1000, 1, 1, true)
	b.Slow(0, 0, ramp(0, 100))
	// A continuous block on an undeclared channel and a block with a bogus
	// type tag are skipped, not fatal.
	b.RawBlock(5, 4000, 7, 0, 1, 4, ramp(0, 4))
	b.RawBlock(3, 4000, 1, 0, 0, 0, nil)
	b.Slow(4000, 0, ramp(100, 100))

	ix := scan(t, b)
	require.Equal(t, 2, ix.Unclassified)
	set := ix.Set(frame.Analog)
	require.Equal(t, 1, set.Len())
	require.Equal(t, uint64(200), set.Frames()[0].Samples)
}
