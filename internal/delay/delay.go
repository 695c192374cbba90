// Package delay provides the busy-wait delays used by bit-banged protocols.
package delay

import (
	"sync"
	"time"
)

// Delayer blocks the caller for d.
type Delayer interface {
	Delay(d time.Duration)
}

// spinLimit is the longest delay served by spinning; longer delays sleep.
const spinLimit = time.Millisecond

// Spin busy-waits for short delays so the caller keeps the CPU between
// pin polls. The scheduler's sleep granularity is far coarser than the
// microsecond delays a single-wire bus needs.
type Spin struct{}

// Delay waits for d.
func (Spin) Delay(d time.Duration) {
	if d <= 0 {
		return
	}
	if d >= spinLimit {
		time.Sleep(d)
		return
	}
	end := time.Now().Add(d)
	for time.Now().Before(end) {
	}
}

// Clock is a virtual clock that advances only when Delay is called.
// Simulated lines read it to decide their level.
type Clock struct {
	mu  sync.Mutex
	now time.Duration
}

// Delay advances the clock by d.
func (c *Clock) Delay(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}

// Now returns the virtual time since the clock was created.
func (c *Clock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}
