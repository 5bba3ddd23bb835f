package plx_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/plexio/plx"
	"github.com/plexio/plx/frame"
	"github.com/plexio/plx/internal/plxtest"
)

// eventFixture builds a recording with one event per 100 ms for 10 seconds,
// strobing the occurrence number.
func eventFixture() *plxtest.Builder {
	b := plxtest.NewBuilder()
	b.AddEventChannel(1, "Event01")
	b.AddEventChannel(2, "Event02")
	for k := 0; k < 100; k++ {
		b.Event(uint64(k)*4000, 1, k)
	}
	return b
}

func TestDiscreteEvents(t *testing.T) {
	f := open(t, eventFixture())
	defer f.Close()

	si, err := f.Discrete(frame.Event, 0, 1, nil, nil, false)
	require.NoError(t, err)
	require.Equal(t, 10, si.Num)

	dst := make([]plx.Spike, si.Num)
	n, err := si.Read(dst)
	require.NoError(t, err)
	require.Equal(t, 10, n)
	for k, ev := range dst {
		require.Equal(t, float64(k*4000)/40000, ev.Time)
		require.Equal(t, int16(1), ev.Channel)
		require.Equal(t, int16(k), ev.Unit)
		require.Nil(t, ev.Waveform)
		if k > 0 {
			require.Greater(t, ev.Time, dst[k-1].Time)
		}
	}
}

func TestDiscreteEventChannelFilter(t *testing.T) {
	f := open(t, eventFixture())
	defer f.Close()

	// A declared channel with no occurrences resolves to an empty result.
	si, err := f.Discrete(frame.Event, 0, 10, []int{2}, nil, false)
	require.NoError(t, err)
	require.Zero(t, si.Num)
	n, err := si.Read(nil)
	require.NoError(t, err)
	require.Zero(t, n)
}

func spikeFixture() *plxtest.Builder {
	b := plxtest.NewBuilder()
	b.AddSpikeChannel(1, "sig001", 32, 2)
	b.AddSpikeChannel(2, "sig002", 1, 1)
	b.Spike(4000, 2, 0, nil)
	b.Spike(4000, 1, 1, nil)
	b.Spike(8000, 1, 2, nil)
	b.Spike(8000, 1, 1, nil)
	b.Spike(12000, 1, 0, ramp(-16, 32))
	return b
}

func TestDiscreteOrdering(t *testing.T) {
	f := open(t, spikeFixture())
	defer f.Close()

	si, err := f.Discrete(frame.Spike, 0, 1, nil, nil, false)
	require.NoError(t, err)
	require.Equal(t, 5, si.Num)

	dst := make([]plx.Spike, si.Num)
	n, err := si.Read(dst)
	require.NoError(t, err)
	require.Equal(t, 5, n)

	// Ordered by time, then channel, then unit, regardless of file order.
	type key struct {
		time    float64
		ch, unit int16
	}
	got := make([]key, n)
	for i, s := range dst {
		got[i] = key{s.Time, s.Channel, s.Unit}
	}
	want := []key{
		{0.1, 1, 1},
		{0.1, 2, 0},
		{0.2, 1, 1},
		{0.2, 1, 2},
		{0.3, 1, 0},
	}
	require.Equal(t, want, got)
}

func TestDiscreteFilters(t *testing.T) {
	f := open(t, spikeFixture())
	defer f.Close()

	si, err := f.Discrete(frame.Spike, 0, 1, []int{2}, nil, false)
	require.NoError(t, err)
	require.Equal(t, 1, si.Num)

	si, err = f.Discrete(frame.Spike, 0, 1, nil, []int{1}, false)
	require.NoError(t, err)
	require.Equal(t, 2, si.Num)

	si, err = f.Discrete(frame.Spike, 0, 1, []int{1}, []int{1, 2}, false)
	require.NoError(t, err)
	require.Equal(t, 3, si.Num)

	// The window is half-open on the right.
	si, err = f.Discrete(frame.Spike, 0, 0.3, nil, nil, false)
	require.NoError(t, err)
	require.Equal(t, 4, si.Num)
}

func TestDiscreteWaveforms(t *testing.T) {
	f := open(t, spikeFixture())
	defer f.Close()

	si, err := f.Discrete(frame.Spike, 0.25, 0.35, nil, nil, true)
	require.NoError(t, err)
	require.Equal(t, 1, si.Num)
	require.Equal(t, 32, si.WaveformWords)

	dst := make([]plx.Spike, si.Num)
	n, err := si.Read(dst)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	wf := dst[0].Waveform
	require.Len(t, wf, 32)
	// Channel gain 32, preamp gain 1000, 12-bit samples.
	scale := 3000.0 / (2048.0 * 32.0 * 1000.0)
	for i, v := range wf {
		require.InDelta(t, float64(-16+i)*scale, v, 1e-12, "word %d", i)
	}

	// Waveform payloads stay on disk unless requested.
	si, err = f.Discrete(frame.Spike, 0.25, 0.35, nil, nil, false)
	require.NoError(t, err)
	require.Zero(t, si.WaveformWords)
	n, err = si.Read(dst)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Nil(t, dst[0].Waveform)
}

func TestDiscreteErrors(t *testing.T) {
	f := open(t, spikeFixture())
	defer f.Close()

	_, err := f.Discrete(frame.LFP, 0, 1, nil, nil, false)
	require.ErrorIs(t, err, plx.ErrNotDiscrete)

	_, err = f.Discrete(frame.Spike, 1, 1, nil, nil, false)
	require.ErrorIs(t, err, plx.ErrEmptyTimeRange)

	_, err = f.Discrete(frame.Spike, 0, 1, []int{99}, nil, false)
	require.ErrorIs(t, err, plx.ErrChannelNotFound)

	_, err = f.Discrete(frame.Spike, 0, 1, nil, []int{-1}, false)
	require.ErrorIs(t, err, plx.ErrUnknownUnit)

	_, err = f.Discrete(frame.Spike, 5, 6, nil, nil, false)
	require.ErrorIs(t, err, plx.ErrOutOfRange)

	_, err = f.Discrete(frame.Event, 0, 1, nil, nil, false)
	require.ErrorIs(t, err, plx.ErrOutOfRange)

	si, err := f.Discrete(frame.Spike, 0, 1, nil, nil, false)
	require.NoError(t, err)
	_, err = si.Read(make([]plx.Spike, si.Num-1))
	require.Error(t, err)
}
