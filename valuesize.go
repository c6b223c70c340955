/*
package seqs implements a TCP connection state machine as described by RFC 793
with RFC 6298 retransmission timing.

# Transmission Control Block

The [ControlBlock] is the core data structure of TCP. It stores the state of
the connection, the send and receive sequence spaces and the retransmission
timer. It performs no I/O: segments are handed to it with [ControlBlock.OnSegment]
and segments to transmit are obtained from [ControlBlock.PollSend].

# Sequence space

Sequence numbers wrap at 2**32. Two values are compared by the sign of their
32 bit difference, so comparisons are only meaningful between values less than
2**31 apart.
*/
package seqs

import (
	"math"
	"time"
)

// Value is a sequence number.
type Value uint32

// Size is a count of sequence numbers, such as a segment length or a window.
type Size uint32

// LessThan reports whether v precedes w in sequence space.
func LessThan(v, w Value) bool {
	return int32(v-w) < 0
}

// LessThanEq reports whether v precedes or equals w.
func LessThanEq(v, w Value) bool {
	return v == w || LessThan(v, w)
}

// InRange reports whether v lies in the half open range [a,b).
func InRange(v, a, b Value) bool {
	return v-a < b-a
}

// InWindow reports whether v lies in the size sequence numbers starting at first.
func InWindow(v, first Value, size Size) bool {
	return InRange(v, first, Add(first, size))
}

// Add returns the first value past the range [v, v+s).
func Add(v Value, s Size) Value {
	return v + Value(s)
}

// Sizeof returns the length of [v, w).
func Sizeof(v, w Value) Size {
	return Size(w - v)
}

// UpdateForward advances v by s.
func (v *Value) UpdateForward(s Size) {
	*v += Value(s)
}

// Before reports whether v comes before w in sequence space.
func (v Value) Before(w Value) bool { return LessThan(v, w) }

// After reports whether v comes after w in sequence space.
func (v Value) After(w Value) bool { return LessThan(w, v) }

// Add returns v advanced by n sequence numbers. n may be negative.
func (v Value) Add(n int) Value { return v + Value(int32(n)) }

// Sub returns the signed distance from w to v, that is, v - w.
func (v Value) Sub(w Value) int32 { return int32(v - w) }

// DefaultNewISS derives an initial send sequence number from a clock that
// ticks every 4 microseconds, as RFC 9293 section 3.4.1 suggests.
func DefaultNewISS(t time.Time) Value {
	return Value(t.UnixMicro() / 4)
}

// WindowSize is a receive or send window. It is bounded by [WindowMax], the largest
// window expressible with the maximum window scale of 14.
type WindowSize uint32

const (
	WindowZero    WindowSize = 0
	WindowDefault WindowSize = math.MaxUint16
	WindowMax     WindowSize = 1<<30 - 1
)

// NewWindowSize returns n as a WindowSize. ok is false if n is negative or exceeds [WindowMax].
func NewWindowSize(n int) (wnd WindowSize, ok bool) {
	if n < 0 || uint64(n) > uint64(WindowMax) {
		return 0, false
	}
	return WindowSize(n), true
}

// SaturatingWindow returns n as a WindowSize, saturating to [WindowMax]
// and flooring negative values to [WindowZero].
func SaturatingWindow(n int) WindowSize {
	if n < 0 {
		return WindowZero
	}
	if uint64(n) > uint64(WindowMax) {
		return WindowMax
	}
	return WindowSize(n)
}

// CheckedSub returns wnd-n. ok is false if the result would be negative.
func (wnd WindowSize) CheckedSub(n Size) (_ WindowSize, ok bool) {
	if Size(wnd) < n {
		return 0, false
	}
	return wnd - WindowSize(n), true
}

// Size returns the window as a sequence space [Size].
func (wnd WindowSize) Size() Size { return Size(wnd) }
