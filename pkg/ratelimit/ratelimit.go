package ratelimit

import "time"

// Window is the trailing interval the limiter enforces.
const Window = 60 * time.Second

// Clock abstracts wall time so tests can drive the limiter deterministically.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// Limiter bounds calls to at most `limit` per trailing Window. It keeps a
// FIFO of the last `limit` call instants; when the history is full the caller
// sleeps until the oldest instant falls outside the window. Not a token
// bucket: there is no burst credit beyond the window itself.
//
// Access is assumed single-threaded, matching the one-call-at-a-time catalog
// session it throttles.
type Limiter struct {
	limit int
	calls []time.Time
	clock Clock
}

// New creates a limiter allowing `limit` calls per 60 seconds.
func New(limit int) *Limiter {
	return NewWithClock(limit, realClock{})
}

// NewWithClock creates a limiter with an injectable clock.
func NewWithClock(limit int, clock Clock) *Limiter {
	if limit <= 0 {
		limit = 60
	}
	return &Limiter{
		limit: limit,
		calls: make([]time.Time, 0, limit),
		clock: clock,
	}
}

// Wait blocks until a call slot is free, then records the call instant.
func (l *Limiter) Wait() {
	if len(l.calls) >= l.limit {
		oldest := l.calls[0]
		l.calls = l.calls[1:]

		age := l.clock.Now().Sub(oldest)
		if age < Window {
			l.clock.Sleep(Window - age)
		}
	}

	l.calls = append(l.calls, l.clock.Now())
}

// Len reports how many call instants are currently recorded.
func (l *Limiter) Len() int { return len(l.calls) }
