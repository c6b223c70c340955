package seqs

import (
	"math"
	"strconv"
	"time"
)

// Instant is a reading of a monotonic clock in nanoseconds since an arbitrary epoch.
// Instants from different clocks must not be compared.
type Instant int64

// CheckedAdd returns t+d. ok is false if the result overflows.
func (t Instant) CheckedAdd(d time.Duration) (_ Instant, ok bool) {
	if d > 0 && int64(t) > math.MaxInt64-int64(d) {
		return 0, false
	} else if d < 0 && int64(t) < math.MinInt64-int64(d) {
		return 0, false
	}
	return t + Instant(d), true
}

// Add returns t+d and panics on overflow.
func (t Instant) Add(d time.Duration) Instant {
	sum, ok := t.CheckedAdd(d)
	if !ok {
		panic("seqs: instant overflow adding " + d.String())
	}
	return sum
}

// Sub returns the duration t-u.
func (t Instant) Sub(u Instant) time.Duration { return time.Duration(t - u) }

// Before reports whether t is before u.
func (t Instant) Before(u Instant) bool { return t < u }

func (t Instant) String() string { return strconv.FormatInt(int64(t), 10) + "ns" }

// Clock provides monotonic time to users of a [ControlBlock].
type Clock interface {
	Now() Instant
}

// MonotonicClock is a [Clock] backed by the runtime's monotonic clock.
type MonotonicClock struct {
	start time.Time
}

// NewMonotonicClock returns a clock whose epoch is the moment of the call.
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{start: time.Now()}
}

func (c *MonotonicClock) Now() Instant {
	return Instant(time.Since(c.start))
}

// RetransTimer is a retransmission deadline together with the timeout used to compute it.
type RetransTimer struct {
	at  Instant
	rto time.Duration
}

// newRetransTimer panics if now+rto overflows the clock.
func newRetransTimer(now Instant, rto time.Duration) RetransTimer {
	at, ok := now.CheckedAdd(rto)
	if !ok {
		panic("seqs: retransmit timer overflow: now=" + now.String() + " rto=" + rto.String())
	}
	return RetransTimer{at: at, rto: rto}
}

// backoff doubles the timeout and recomputes the deadline from now.
func (t *RetransTimer) backoff(now Instant) {
	if t.rto > math.MaxInt64/2 {
		panic("seqs: retransmit timeout overflow: rto=" + t.rto.String())
	}
	*t = newRetransTimer(now, 2*t.rto)
}

// rearm recomputes the deadline from now keeping the current timeout.
func (t *RetransTimer) rearm(now Instant) {
	*t = newRetransTimer(now, t.rto)
}

// expired reports whether the deadline has been reached at now.
func (t *RetransTimer) expired(now Instant) bool { return !now.Before(t.at) }

// Deadline returns the instant at which the timer fires.
func (t RetransTimer) Deadline() Instant { return t.at }

// RTO returns the timeout the deadline was computed with.
func (t RetransTimer) RTO() time.Duration { return t.rto }
