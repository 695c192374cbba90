package ticker

import (
	"sync"
	"time"
)

// Manual is a Timer for tests. Ticks are only produced by Fire.
type Manual struct {
	mu      sync.Mutex
	c       chan time.Time
	running bool
	period  time.Duration

	// Starts and Stops count effective state changes.
	Starts int
	Stops  int
}

// NewManual returns a stopped manual timer.
func NewManual() *Manual {
	return &Manual{c: make(chan time.Time, 1)}
}

func (m *Manual) Start(period time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.period = period
	m.Starts++
}

func (m *Manual) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	m.Stops++
}

func (m *Manual) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Period returns the period passed to the last effective Start.
func (m *Manual) Period() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.period
}

func (m *Manual) C() <-chan time.Time { return m.c }

// Fire queues a tick if the timer is running and reports whether it did.
func (m *Manual) Fire(t time.Time) bool {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()
	if !running {
		return false
	}
	select {
	case m.c <- t:
		return true
	default:
		return false
	}
}
