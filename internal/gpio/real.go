//go:build linux

package gpio

import (
	"fmt"
	"io"

	"github.com/warthog618/go-gpiocdev"
)

// Chip hands out lines from a Linux GPIO character device.
type Chip struct {
	chip *gpiocdev.Chip
}

// OpenChip opens the named GPIO chip, e.g. "gpiochip0".
func OpenChip(name string) (*Chip, error) {
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &Chip{chip: chip}, nil
}

// Close releases the chip. Lines must be closed separately.
func (c *Chip) Close() error {
	return c.chip.Close()
}

// RealLine is a requested GPIO line.
type RealLine struct {
	line   *gpiocdev.Line
	offset int
}

// Input requests offset as an input with the given bias.
func (c *Chip) Input(offset int, pull Pull) (*RealLine, error) {
	l, err := c.chip.RequestLine(offset, gpiocdev.AsInput, biasOption(pull))
	if err != nil {
		return nil, fmt.Errorf("request input pin %d: %w", offset, err)
	}
	return &RealLine{line: l, offset: offset}, nil
}

// Output requests offset as an output driven low.
func (c *Chip) Output(offset int) (*RealLine, error) {
	l, err := c.chip.RequestLine(offset, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request output pin %d: %w", offset, err)
	}
	return &RealLine{line: l, offset: offset}, nil
}

// Line requests offset as a bidirectional line, initially an input with
// pull-up (single-wire buses idle high).
func (c *Chip) Line(offset int) (*RealLine, error) {
	l, err := c.chip.RequestLine(offset, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		return nil, fmt.Errorf("request line %d: %w", offset, err)
	}
	return &RealLine{line: l, offset: offset}, nil
}

// Watch requests offset as an input and calls handler on each edge.
// gpiocdev runs handlers on its own event goroutine.
func (c *Chip) Watch(offset int, edge Edge, pull Pull, handler func(Event)) (io.Closer, error) {
	eh := func(evt gpiocdev.LineEvent) {
		e := EdgeFalling
		if evt.Type == gpiocdev.LineEventRisingEdge {
			e = EdgeRising
		}
		handler(Event{Offset: evt.Offset, Edge: e})
	}
	l, err := c.chip.RequestLine(offset,
		gpiocdev.AsInput,
		biasOption(pull),
		edgeOption(edge),
		gpiocdev.WithEventHandler(eh),
	)
	if err != nil {
		return nil, fmt.Errorf("watch pin %d: %w", offset, err)
	}
	return &RealLine{line: l, offset: offset}, nil
}

// Get returns true when the line is high.
func (l *RealLine) Get() (bool, error) {
	v, err := l.line.Value()
	if err != nil {
		return false, fmt.Errorf("read pin %d: %w", l.offset, err)
	}
	return v != 0, nil
}

// Set drives the line. The line must be an output.
func (l *RealLine) Set(high bool) error {
	v := 0
	if high {
		v = 1
	}
	if err := l.line.SetValue(v); err != nil {
		return fmt.Errorf("write pin %d: %w", l.offset, err)
	}
	return nil
}

// SetDirection switches the line between input (pull-up) and output.
// Switching to output drives the line high so the bus does not glitch low.
func (l *RealLine) SetDirection(d Direction) error {
	var err error
	if d == Out {
		err = l.line.Reconfigure(gpiocdev.AsOutput(1))
	} else {
		err = l.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullUp)
	}
	if err != nil {
		return fmt.Errorf("set pin %d %s: %w", l.offset, d, err)
	}
	return nil
}

// Close returns the line to an input with pull-down (the Pi boot default)
// before releasing it.
func (l *RealLine) Close() error {
	var errs []error
	if err := l.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", l.offset, err))
	}
	if err := l.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close pin %d: %w", l.offset, err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func biasOption(p Pull) gpiocdev.LineReqOption {
	switch p {
	case PullUp:
		return gpiocdev.WithPullUp
	case PullDown:
		return gpiocdev.WithPullDown
	}
	return gpiocdev.WithBiasDisabled
}

func edgeOption(e Edge) gpiocdev.LineReqOption {
	switch e {
	case EdgeRising:
		return gpiocdev.WithRisingEdge
	case EdgeFalling:
		return gpiocdev.WithFallingEdge
	}
	return gpiocdev.WithBothEdges
}
