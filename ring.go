package seqs

import (
	"io"

	"github.com/netseqs/seqs/internal"
	"github.com/pkg/errors"
	"github.com/smallnest/ringbuffer"
)

var (
	_ SendBuffer    = (*RingBuffer)(nil)
	_ ReceiveBuffer = (*RingBuffer)(nil)
)

// NewRingBuffer returns a RingBuffer of capacity size. A zero sized buffer is valid
// and advertises a zero window.
func NewRingBuffer(size int) *RingBuffer {
	if size < 0 {
		panic("seqs: negative ring buffer size")
	}
	return &RingBuffer{ring: internal.Ring{Buf: make([]byte, size)}}
}

// RingBuffer is a fixed capacity ring buffer usable both as a [SendBuffer] and
// as a [ReceiveBuffer].
type RingBuffer struct {
	ring internal.Ring
	// scratch holds the linearized view returned by Peek when data wraps around.
	scratch []byte
}

func (rb *RingBuffer) Len() int { return rb.ring.Buffered() }

func (rb *RingBuffer) Cap() int { return len(rb.ring.Buf) }

func (rb *RingBuffer) Enqueue(data []byte) int {
	n := rb.ring.WriteAt(0, data)
	rb.ring.Grow(n)
	return n
}

func (rb *RingBuffer) Peek(offset, n int) []byte {
	if offset < 0 || n < 0 || offset+n > rb.ring.Len {
		panic("seqs: peek out of range")
	}
	if view, ok := rb.ring.Contiguous(offset, n); ok {
		return view
	}
	if cap(rb.scratch) < n {
		rb.scratch = make([]byte, n)
	}
	rb.scratch = rb.scratch[:n]
	rb.ring.ReadAt(offset, rb.scratch)
	return rb.scratch
}

func (rb *RingBuffer) MarkRead(n int) { rb.ring.Discard(n) }

func (rb *RingBuffer) WriteAt(offset int, data []byte) int {
	return rb.ring.WriteAt(offset, data)
}

func (rb *RingBuffer) MakeReadable(n int) { rb.ring.Grow(n) }

// Read reads readable data. It returns io.EOF if there is no readable data.
func (rb *RingBuffer) Read(b []byte) (int, error) { return rb.ring.Read(b) }

// Residual moves the readable data into a [Residual] buffer.
func (rb *RingBuffer) Residual() ResidualBuffer {
	n := rb.ring.Buffered()
	res := &Residual{}
	if n == 0 {
		return res
	}
	res.rb = ringbuffer.New(n)
	buf := make([]byte, n)
	rb.ring.Read(buf)
	if _, err := res.rb.Write(buf); err != nil {
		panic(errors.Wrap(err, "seqs: residual buffer"))
	}
	rb.ring.Reset()
	return res
}

// Residual is the read-only remainder of a receive buffer after the remote sent a FIN.
type Residual struct {
	rb *ringbuffer.RingBuffer
}

func (r *Residual) Len() int {
	if r.rb == nil {
		return 0
	}
	return r.rb.Length()
}

// Read reads residual data. It returns io.EOF once all data has been read.
func (r *Residual) Read(b []byte) (int, error) {
	if r.Len() == 0 {
		return 0, io.EOF
	}
	n, err := r.rb.Read(b)
	if errors.Is(err, ringbuffer.ErrIsEmpty) {
		err = io.EOF
	}
	return n, err
}
