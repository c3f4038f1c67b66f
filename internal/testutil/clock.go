package testutil

import (
	"sync"
	"time"
)

// Epoch is the default start time for test clocks: 2024-03-01 09:00:00 UTC.
var Epoch = time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)

// DeterministicClock provides a thread-safe, stepping wall clock for tests.
//
// Each call to Now() returns the current instant and then advances it by
// the configured step, so successive decisions get strictly increasing
// timestamps without touching the real clock.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	start time.Time
	now   time.Time
	step  time.Duration
}

// NewDeterministicClock creates a clock starting at start that advances by
// step after every Now() call. A zero step freezes the clock, which is how
// tests produce timestamp collisions.
func NewDeterministicClock(start time.Time, step time.Duration) *DeterministicClock {
	return &DeterministicClock{start: start, now: start, step: step}
}

// Now returns the current instant and advances the clock by one step.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Current returns the instant the next Now() call will return.
func (c *DeterministicClock) Current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d without consuming a step.
func (c *DeterministicClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Reset moves the clock back to its start time.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start
}
