// Package trigger gates sampling on the coordinator's request line and the
// operator button.
package trigger

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sweeney/occupancy-node/internal/gpio"
	"github.com/sweeney/occupancy-node/internal/indicator"
	"github.com/sweeney/occupancy-node/internal/ticker"
)

// Controller owns the sampling timer and the enable flag. Its edge methods
// run in interrupt context: they never block and never touch a bus.
type Controller struct {
	mu     sync.Mutex
	timer  ticker.Timer
	period time.Duration
	state  *SharedSamplingState
}

// NewController creates a disabled controller. display may be nil.
func NewController(timer ticker.Timer, period time.Duration, display indicator.Display) *Controller {
	return &Controller{
		timer:  timer,
		period: period,
		state:  newShared(display),
	}
}

// Shared returns the state shared with the tick.
func (c *Controller) Shared() *SharedSamplingState { return c.state }

// Period returns the sampling period.
func (c *Controller) Period() time.Duration { return c.period }

// OnExternalEdge handles an edge on the request line: high enables
// sampling, low disables it. Repeated identical edges are no-ops.
func (c *Controller) OnExternalEdge(active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if active {
		c.enable()
	} else {
		c.disable()
	}
}

// OnManualButton toggles sampling.
func (c *Controller) OnManualButton() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Enabled() {
		c.disable()
	} else {
		c.enable()
	}
}

// TickEnabled reports whether a tick should do any work.
func (c *Controller) TickEnabled() bool {
	return c.state.Enabled()
}

func (c *Controller) enable() {
	if c.state.setEnabled(true) {
		c.timer.Start(c.period)
	}
}

func (c *Controller) disable() {
	if c.state.setEnabled(false) {
		c.timer.Stop()
	}
}

// Attach registers the edge handlers: both edges of the request line
// (pulled down, so a disconnected radio reads as disabled) and the falling
// edge of the button (pulled up, active low).
func (c *Controller) Attach(w gpio.Watcher, requestPin, buttonPin int) (io.Closer, error) {
	req, err := w.Watch(requestPin, gpio.EdgeBoth, gpio.PullDown, func(ev gpio.Event) {
		c.OnExternalEdge(ev.High())
	})
	if err != nil {
		return nil, fmt.Errorf("watch request line: %w", err)
	}
	btn, err := w.Watch(buttonPin, gpio.EdgeFalling, gpio.PullUp, func(gpio.Event) {
		c.OnManualButton()
	})
	if err != nil {
		req.Close()
		return nil, fmt.Errorf("watch button: %w", err)
	}
	return closers{req, btn}, nil
}

type closers []io.Closer

func (cs closers) Close() error {
	var errs []error
	for _, c := range cs {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
