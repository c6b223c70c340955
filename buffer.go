package seqs

// SendBuffer holds data enqueued by the user that has not yet been acknowledged
// by the remote. The state machine only reads from it through Peek and releases
// acknowledged bytes with MarkRead.
type SendBuffer interface {
	// Len returns the amount of bytes enqueued and not acknowledged.
	Len() int
	Cap() int
	// Enqueue appends data and returns the amount of bytes accepted.
	Enqueue(data []byte) int
	// Peek returns a view of n bytes starting offset bytes after the first
	// unacknowledged byte. The view is valid until the buffer is next modified.
	Peek(offset, n int) []byte
	// MarkRead releases the first n bytes.
	MarkRead(n int)
}

// ReceiveBuffer holds data received from the remote. Data may be written past the
// readable region when it arrives out of order and is only made readable once
// the sequence space preceding it has been received.
type ReceiveBuffer interface {
	// Len returns the amount of readable bytes.
	Len() int
	Cap() int
	// WriteAt writes data offset bytes past the end of the readable region and
	// returns the amount of bytes written.
	WriteAt(offset int, data []byte) int
	// MakeReadable extends the readable region by n bytes.
	MakeReadable(n int)
	Read(b []byte) (int, error)
	// Residual converts the buffer to its read-only remainder. The receive
	// buffer must not be used after the call.
	Residual() ResidualBuffer
}

// ResidualBuffer holds received data that the user has yet to read after the
// remote closed its side of the connection.
type ResidualBuffer interface {
	Len() int
	Read(b []byte) (int, error)
}

// BufferProvider creates the buffers of a connection once it is synchronized.
type BufferProvider interface {
	NewSendBuffer() SendBuffer
	NewReceiveBuffer() ReceiveBuffer
}

// RingProvider is a [BufferProvider] of [RingBuffer]s with fixed capacities.
type RingProvider struct {
	SendSize int
	RecvSize int
}

func (p RingProvider) NewSendBuffer() SendBuffer       { return NewRingBuffer(p.SendSize) }
func (p RingProvider) NewReceiveBuffer() ReceiveBuffer { return NewRingBuffer(p.RecvSize) }
