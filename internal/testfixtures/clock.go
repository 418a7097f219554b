package testfixtures

import (
	"sync"
	"time"
)

// Clock is a manually driven time source. Services take a now func, so tests
// freeze generation horizons and timestamps by injecting NowFunc and moving
// the clock themselves.
type Clock struct {
	mu      sync.Mutex
	current time.Time
}

// NewClock pins the clock to start. A zero start falls back to
// ReferenceTime, the Monday morning the series fixtures schedule from.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start}
}

// Now reports the pinned instant.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Current is an alias for Now used by assertions that read the clock without
// implying time passed.
func (c *Clock) Current() time.Time {
	return c.Now()
}

// NowFunc adapts the clock to the now-func parameter the services take. A
// nil clock degrades to the real time source.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

// Set pins the clock to an absolute instant.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

// Advance moves the pinned instant forward by d and returns the new value.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
	return c.current
}
