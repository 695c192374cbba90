// Package ticker provides the periodic sampling timer.
package ticker

import (
	"sync"
	"time"
)

// Timer is a periodic timer that can be started and stopped at any time,
// including from interrupt handlers. Ticks are delivered on C.
type Timer interface {
	Start(period time.Duration)
	Stop()
	Running() bool
	C() <-chan time.Time
}

// Periodic is a Timer backed by time.Ticker. At most one tick is queued:
// a slow consumer loses ticks instead of receiving a burst.
type Periodic struct {
	mu      sync.Mutex
	c       chan time.Time
	t       *time.Ticker
	done    chan struct{}
	exited  chan struct{}
	running bool
}

// NewPeriodic returns a stopped timer.
func NewPeriodic() *Periodic {
	return &Periodic{c: make(chan time.Time, 1)}
}

// Start begins ticking every period. Starting a running timer is a no-op.
func (p *Periodic) Start(period time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running || period <= 0 {
		return
	}
	p.t = time.NewTicker(period)
	p.done = make(chan struct{})
	p.exited = make(chan struct{})
	p.running = true
	go forward(p.t.C, p.c, p.done, p.exited)
}

// Stop halts the timer and discards a queued tick. It returns once the
// forwarding goroutine has exited, so no tick can arrive after it. Stopping
// a stopped timer is a no-op.
func (p *Periodic) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.t.Stop()
	close(p.done)
	<-p.exited
	p.running = false
	select {
	case <-p.c:
	default:
	}
}

// Running reports whether the timer is started.
func (p *Periodic) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// C returns the tick channel. It stays valid across Start/Stop cycles.
func (p *Periodic) C() <-chan time.Time { return p.c }

func forward(in <-chan time.Time, out chan<- time.Time, done <-chan struct{}, exited chan<- struct{}) {
	defer close(exited)
	for {
		select {
		case <-done:
			return
		case t := <-in:
			select {
			case out <- t:
			case <-done:
				return
			default:
			}
		}
	}
}
