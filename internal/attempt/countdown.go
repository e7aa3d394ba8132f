package attempt

import "sync"

// Countdown holds the remaining seconds of an attempt. Remaining time never
// increases and never drops below zero; reaching zero is reported once.
type Countdown struct {
	mu        sync.Mutex
	remaining int
	expired   bool
}

// NewCountdown creates a countdown with the given number of seconds left.
func NewCountdown(seconds int) *Countdown {
	if seconds < 0 {
		seconds = 0
	}
	return &Countdown{remaining: seconds}
}

// Remaining returns the seconds left.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Expired reports whether zero has been reached.
func (c *Countdown) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired
}

// Tick removes one second. fired is true only on the tick that reaches zero,
// or on the first tick of a countdown that started at zero.
func (c *Countdown) Tick() (remaining int, fired bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.expired {
		return 0, false
	}
	if c.remaining > 0 {
		c.remaining--
	}
	if c.remaining == 0 {
		c.expired = true
		return 0, true
	}
	return c.remaining, false
}
