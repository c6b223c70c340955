package internal

import (
	"io"

	"github.com/pkg/errors"
)

var errRingBufferFull = errors.New("seqs: ringbuffer full")

// Ring is a ring buffer implementation that supports writing past the end of its
// used region, which is how out of order data is stored before it becomes contiguous.
// Off is the offset of the first used byte and Len the amount of used bytes.
type Ring struct {
	Buf []byte
	Off int
	Len int
}

// Write appends b to the used region.
func (r *Ring) Write(b []byte) (int, error) {
	if len(b) > r.Free() {
		return 0, errRingBufferFull
	}
	n := r.WriteAt(0, b)
	r.Len += n
	return n, nil
}

// WriteAt copies b into the free region starting off bytes past the end of
// the used region without marking it as used. It returns the amount of bytes
// copied which is less than len(b) if b does not fit.
func (r *Ring) WriteAt(off int, b []byte) int {
	free := r.Free() - off
	if free <= 0 || len(b) == 0 {
		return 0
	}
	b = b[:min(len(b), free)]
	start := r.wrap(r.Off + r.Len + off)
	n := copy(r.Buf[start:], b)
	if n < len(b) {
		// start       end         len(buf)
		//   | wrapped  |   ...   |  first   |
		n += copy(r.Buf, b[n:])
	}
	return n
}

// ReadAt copies used data starting at off into b without consuming it.
func (r *Ring) ReadAt(off int, b []byte) int {
	avail := r.Len - off
	if avail <= 0 || len(b) == 0 {
		return 0
	}
	b = b[:min(len(b), avail)]
	start := r.wrap(r.Off + off)
	n := copy(b, r.Buf[start:])
	if n < len(b) {
		n += copy(b[n:], r.Buf)
	}
	return n
}

// Contiguous returns a view of n used bytes starting at off if they are not
// split by the end of the buffer.
func (r *Ring) Contiguous(off, n int) (view []byte, ok bool) {
	start := r.wrap(r.Off + off)
	if start+n > len(r.Buf) {
		return nil, false
	}
	return r.Buf[start : start+n], true
}

func (r *Ring) Read(b []byte) (int, error) {
	if r.Len == 0 {
		return 0, io.EOF
	}
	n := r.ReadAt(0, b)
	r.Discard(n)
	return n, nil
}

// Discard consumes n bytes of the used region. Panics if n exceeds the used length.
func (r *Ring) Discard(n int) {
	if n < 0 || n > r.Len {
		panic("seqs: ring discard out of range")
	}
	r.Len -= n
	// Off is not reset on empty since data may have been written past the used region.
	r.Off = r.wrap(r.Off + n)
}

// Grow marks n bytes past the used region as used. Panics if n exceeds the free length.
func (r *Ring) Grow(n int) {
	if n < 0 || n > r.Free() {
		panic("seqs: ring grow out of range")
	}
	r.Len += n
}

func (r *Ring) Buffered() int { return r.Len }

func (r *Ring) Free() int { return len(r.Buf) - r.Len }

func (r *Ring) Reset() {
	r.Off = 0
	r.Len = 0
}

func (r *Ring) wrap(i int) int {
	if len(r.Buf) == 0 {
		return 0
	}
	return i % len(r.Buf)
}
