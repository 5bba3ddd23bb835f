// Package bufseekio implements a buffered io.ReadSeeker for the indexing
// scan, which reads the block stream strictly forward but skips over sample
// payloads by seeking. Short relative seeks that stay inside the buffer cost
// nothing; only seeks past the buffered window reach the underlying source.
package bufseekio

import (
	"errors"
	"io"
)

const (
	defaultBufSize = 1 << 16
	minBufSize     = 16
)

// ReadSeeker implements buffering for an io.ReadSeeker object, in the manner
// of bufio.Reader with seek support added.
type ReadSeeker struct {
	src io.ReadSeeker
	buf []byte
	// Absolute source position of buf[0].
	pos int64
	// Read and fill positions within buf.
	r, w int
	err  error
}

// NewReadSeeker returns a buffered ReadSeeker with the default buffer size.
func NewReadSeeker(src io.ReadSeeker) *ReadSeeker {
	return NewReadSeekerSize(src, defaultBufSize)
}

// NewReadSeekerSize returns a buffered ReadSeeker whose buffer has at least
// the given size. If src is already a ReadSeeker with a large enough buffer,
// it is returned as is.
func NewReadSeekerSize(src io.ReadSeeker, size int) *ReadSeeker {
	if b, ok := src.(*ReadSeeker); ok && len(b.buf) >= size {
		return b
	}
	if size < minBufSize {
		size = minBufSize
	}
	return &ReadSeeker{src: src, buf: make([]byte, size)}
}

var errNegativeRead = errors.New("bufseekio: source returned negative count from Read")

func (b *ReadSeeker) takeErr() error {
	err := b.err
	b.err = nil
	return err
}

// Read reads into p from the buffer, refilling it from the source at most
// once. n may be less than len(p); use io.ReadFull to read exactly len(p)
// bytes.
func (b *ReadSeeker) Read(p []byte) (n int, err error) {
	if len(p) == 0 {
		if b.w > b.r {
			return 0, nil
		}
		return 0, b.takeErr()
	}
	if b.r == b.w {
		if b.err != nil {
			return 0, b.takeErr()
		}
		if len(p) >= len(b.buf) {
			// Read larger than the buffer: bypass it.
			n, b.err = b.src.Read(p)
			if n < 0 {
				panic(errNegativeRead)
			}
			b.pos += int64(n)
			return n, b.takeErr()
		}
		b.pos += int64(b.r)
		b.r, b.w = 0, 0
		n, b.err = b.src.Read(b.buf)
		if n < 0 {
			panic(errNegativeRead)
		}
		if n == 0 {
			return 0, b.takeErr()
		}
		b.w = n
	}
	n = copy(p, b.buf[b.r:b.w])
	b.r += n
	return n, nil
}

// Seek repositions the reader. Seeks that land within the buffered window
// only move the read position; everything else discards the buffer and seeks
// the source.
func (b *ReadSeeker) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekCurrent:
		if offset == 0 {
			return b.position(), nil
		}
		offset += b.position()
	case io.SeekEnd:
		// The absolute end position is unknown here, so the buffer cannot
		// help.
		return b.seekSrc(offset, io.SeekEnd)
	}
	if offset >= b.pos && offset < b.pos+int64(b.w) {
		b.r = int(offset - b.pos)
		return offset, nil
	}
	return b.seekSrc(offset, io.SeekStart)
}

func (b *ReadSeeker) seekSrc(offset int64, whence int) (int64, error) {
	b.r, b.w = 0, 0
	var err error
	b.pos, err = b.src.Seek(offset, whence)
	return b.pos, err
}

// position returns the absolute read offset.
func (b *ReadSeeker) position() int64 {
	return b.pos + int64(b.r)
}
