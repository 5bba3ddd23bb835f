package bufseekio

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func testData(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i)
	}
	return data
}

func TestRead(t *testing.T) {
	data := testData(100)
	b := NewReadSeekerSize(bytes.NewReader(data), 16)

	got := make([]byte, 10)
	_, err := io.ReadFull(b, got)
	require.NoError(t, err)
	require.Equal(t, data[:10], got)

	// Crossing a buffer refill boundary.
	got = make([]byte, 20)
	_, err = io.ReadFull(b, got)
	require.NoError(t, err)
	require.Equal(t, data[10:30], got)

	rest, err := io.ReadAll(b)
	require.NoError(t, err)
	require.Equal(t, data[30:], rest)

	n, err := b.Read(got)
	require.Zero(t, n)
	require.Equal(t, io.EOF, err)
}

func TestReadBypassesBuffer(t *testing.T) {
	data := testData(200)
	b := NewReadSeekerSize(bytes.NewReader(data), 16)

	// A read larger than the buffer goes straight to the source.
	got := make([]byte, 64)
	_, err := io.ReadFull(b, got)
	require.NoError(t, err)
	require.Equal(t, data[:64], got)

	pos, err := b.Seek(0, io.SeekCurrent)
	require.NoError(t, err)
	require.Equal(t, int64(64), pos)
}

func TestSeekWithinBuffer(t *testing.T) {
	data := testData(100)
	b := NewReadSeekerSize(bytes.NewReader(data), 32)

	got := make([]byte, 8)
	_, err := io.ReadFull(b, got)
	require.NoError(t, err)

	// Backward seek into the buffered window must not touch the source.
	pos, err := b.Seek(2, io.SeekStart)
	require.NoError(t, err)
	require.Equal(t, int64(2), pos)
	_, err = io.ReadFull(b, got)
	require.NoError(t, err)
	require.Equal(t, data[2:10], got)

	// Short forward skip, as when skipping a block payload.
	pos, err = b.Seek(5, io.SeekCurrent)
	require.NoError(t, err)
	require.Equal(t, int64(15), pos)
	_, err = io.ReadFull(b, got)
	require.NoError(t, err)
	require.Equal(t, data[15:23], got)
}

func TestSeekBeyondBuffer(t *testing.T) {
	data := testData(1024)
	b := NewReadSeekerSize(bytes.NewReader(data), 16)

	got := make([]byte, 4)
	_, err := io.ReadFull(b, got)
	require.NoError(t, err)

	pos, err := b.Seek(500, io.SeekStart)
	require.NoError(t, err)
	require.Equal(t, int64(500), pos)
	_, err = io.ReadFull(b, got)
	require.NoError(t, err)
	require.Equal(t, data[500:504], got)

	pos, err = b.Seek(-4, io.SeekEnd)
	require.NoError(t, err)
	require.Equal(t, int64(1020), pos)
	_, err = io.ReadFull(b, got)
	require.NoError(t, err)
	require.Equal(t, data[1020:], got)
}

func TestNewReadSeekerSizeReuse(t *testing.T) {
	b := NewReadSeekerSize(bytes.NewReader(testData(10)), 64)
	require.Same(t, b, NewReadSeekerSize(b, 32))
	require.NotSame(t, b, NewReadSeekerSize(b, 128))
}
