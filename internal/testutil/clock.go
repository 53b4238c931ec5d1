package testutil

import (
	"sync"
	"time"
)

// Epoch is the default start time of FixedClock.
var Epoch = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

// FixedClock is a manually advanced clock.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FixedClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewFixedClock creates a clock at start. A zero start uses Epoch.
func NewFixedClock(start time.Time) *FixedClock {
	if start.IsZero() {
		start = Epoch
	}
	return &FixedClock{now: start}
}

// NewTickingClock creates a clock that advances by step after every Now
// call, so successive writes get distinct timestamps.
func NewTickingClock(start time.Time, step time.Duration) *FixedClock {
	c := NewFixedClock(start)
	c.step = step
	return c
}

// Now returns the current time, then advances by the tick step if set.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(c.step)
	return now
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
