package agent

import (
	"sync"
	"time"
)

// Counters accumulates raw input counts between reports. Input callbacks
// fire from the OS hook thread while the reporter drains on its own ticker,
// so every access is mutex guarded.
type Counters struct {
	mu        sync.Mutex
	mouse     int
	keyboard  int
	lastInput time.Time
}

func NewCounters() *Counters {
	return &Counters{lastInput: time.Now()}
}

func (c *Counters) RecordMouse(n int) {
	c.mu.Lock()
	c.mouse += n
	c.lastInput = time.Now()
	c.mu.Unlock()
}

func (c *Counters) RecordKeyboard(n int) {
	c.mu.Lock()
	c.keyboard += n
	c.lastInput = time.Now()
	c.mu.Unlock()
}

// Drain snapshots and resets the accumulated counts. The interval reports as
// fully idle when no input arrived within the idle threshold, otherwise as
// fully active.
func (c *Counters) Drain(now time.Time, interval, idleThreshold time.Duration) (mouse, keyboard, idleSeconds int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	mouse = c.mouse
	keyboard = c.keyboard
	c.mouse = 0
	c.keyboard = 0

	if now.Sub(c.lastInput) > idleThreshold {
		idleSeconds = int(interval.Seconds())
	}
	return mouse, keyboard, idleSeconds
}

// LastInput reports when input was last seen.
func (c *Counters) LastInput() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastInput
}
