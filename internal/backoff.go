package internal

import (
	"context"
	"time"
)

type BackoffFlags uint8

const (
	BackoffHasPriority BackoffFlags = 1 << iota
	BackoffCriticalPath
)

func NewBackoff(priority BackoffFlags) Backoff {
	if priority&BackoffCriticalPath != 0 {
		return Backoff{
			maxWait: time.Millisecond,
		}
	}
	return Backoff{
		maxWait: time.Second >> (priority & BackoffHasPriority),
	}
}

// A Backoff waits increasingly longer periods between polls of a condition
// that is not yet met. A Backoff with a non-zero maxWait is ready for use.
type Backoff struct {
	// wait is the amount of time the next Miss will wait.
	wait time.Duration
	// Maximum allowable value for wait.
	maxWait time.Duration
}

// Hit resets the wait after the polled condition was met.
func (eb *Backoff) Hit() {
	if eb.maxWait == 0 {
		panic("maxWait cannot be zero")
	}
	eb.wait = 0
}

// Miss waits for the current wait period, or less if limit is positive and
// shorter, and then doubles the wait period. Miss returns early with the
// context's error if ctx is done.
func (eb *Backoff) Miss(ctx context.Context, limit time.Duration) error {
	if eb.maxWait == 0 {
		panic("maxWait cannot be zero")
	}
	wait := eb.wait
	if limit > 0 && limit < wait {
		wait = limit
	}
	eb.wait = min(eb.maxWait, (eb.wait|1)<<1)
	if wait <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Wait returns the period the next call to Miss waits for.
func (eb *Backoff) Wait() time.Duration { return eb.wait }
