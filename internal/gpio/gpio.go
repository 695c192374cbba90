// Package gpio provides the node's digital I/O with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "io"

// Input reads the level of a digital input.
type Input interface {
	// Get returns true when the line is high.
	Get() (bool, error)
}

// Output drives a digital output.
type Output interface {
	Set(high bool) error
}

// Direction of a bidirectional line.
type Direction int

const (
	In Direction = iota
	Out
)

func (d Direction) String() string {
	if d == Out {
		return "out"
	}
	return "in"
}

// Line is a pin whose direction is switched at runtime, such as a
// single-wire sensor data line.
type Line interface {
	Input
	Output
	SetDirection(d Direction) error
}

// Edge selects which transitions raise an edge event.
type Edge int

const (
	EdgeRising Edge = iota + 1
	EdgeFalling
	EdgeBoth
)

func (e Edge) String() string {
	switch e {
	case EdgeRising:
		return "rising"
	case EdgeFalling:
		return "falling"
	case EdgeBoth:
		return "both"
	}
	return "none"
}

// Event is delivered to an edge handler.
type Event struct {
	Offset int
	Edge   Edge // EdgeRising or EdgeFalling
}

// High reports the line level right after the edge.
func (e Event) High() bool { return e.Edge == EdgeRising }

// Watcher registers edge interrupt handlers on input lines.
// Handlers run in interrupt context: they must not block.
type Watcher interface {
	Watch(offset int, edge Edge, pull Pull, handler func(Event)) (io.Closer, error)
}

// Pull selects the input bias.
type Pull int

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// Default line offsets (BCM numbering).
const (
	DefaultPinPIR     = 22
	DefaultPinRequest = 23 // radio DIO line asserted by the coordinator
	DefaultPinButton  = 24
	DefaultPinRHT     = 4
	DefaultPinRed     = 17
	DefaultPinGreen   = 27
	DefaultPinBlue    = 5
)
