// Package indicator drives the node's tri-colour status LED.
package indicator

import (
	"errors"

	"github.com/sweeney/occupancy-node/internal/gpio"
	"github.com/sweeney/occupancy-node/internal/logic"
)

// Color is an indicator colour.
type Color int

const (
	Off Color = iota
	Red
	Green
	Blue
)

func (c Color) String() string {
	switch c {
	case Red:
		return "red"
	case Green:
		return "green"
	case Blue:
		return "blue"
	}
	return "off"
}

// ColorFor returns the colour flashed in state s.
func ColorFor(s logic.State) Color {
	switch s {
	case logic.StateActive:
		return Blue
	case logic.StateInactiveTiming:
		return Green
	case logic.StateInactiveIdle:
		return Red
	}
	return Off
}

// Display shows one colour at a time.
type Display interface {
	Show(c Color) error
}

// LED is a common-cathode RGB LED on three outputs.
type LED struct {
	red, green, blue gpio.Output
}

// NewLED creates an LED from its three channels.
func NewLED(red, green, blue gpio.Output) *LED {
	return &LED{red: red, green: green, blue: blue}
}

// Show lights c alone. Off turns every channel off.
func (l *LED) Show(c Color) error {
	return errors.Join(
		l.red.Set(c == Red),
		l.green.Set(c == Green),
		l.blue.Set(c == Blue),
	)
}

// Recorder is a Display that remembers what it was asked to show.
type Recorder struct {
	Shown []Color
}

// Show records c.
func (r *Recorder) Show(c Color) error {
	r.Shown = append(r.Shown, c)
	return nil
}

// Last returns the most recent colour, or Off.
func (r *Recorder) Last() Color {
	if len(r.Shown) == 0 {
		return Off
	}
	return r.Shown[len(r.Shown)-1]
}
