package audit

import (
	"sync"
	"time"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock returns UTC wall time.
var SystemClock Clock = ClockFunc(func() time.Time { return time.Now().UTC() })

// MonotonicClock never returns the same or an earlier instant twice.
type MonotonicClock struct {
	mu   sync.Mutex
	base Clock
	last time.Time
}

// NewMonotonicClock wraps base; nil means SystemClock.
func NewMonotonicClock(base Clock) *MonotonicClock {
	if base == nil {
		base = SystemClock
	}
	return &MonotonicClock{base: base}
}

// Now returns base time at microsecond precision, nudged past the previous
// result if needed. Microseconds match what Postgres stores.
func (c *MonotonicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.base.Now().UTC().Truncate(time.Microsecond)
	if !now.After(c.last) {
		now = c.last.Add(time.Microsecond)
	}
	c.last = now
	return now
}
