//go:build !linux

package gpio

import (
	"errors"
	"io"
)

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// Chip is not available on non-Linux platforms.
type Chip struct{}

// OpenChip returns an error on non-Linux platforms.
func OpenChip(name string) (*Chip, error) {
	return nil, errUnsupported
}

// Close is a no-op on non-Linux platforms.
func (c *Chip) Close() error { return nil }

// RealLine is not available on non-Linux platforms.
type RealLine struct{}

func (c *Chip) Input(offset int, pull Pull) (*RealLine, error) { return nil, errUnsupported }
func (c *Chip) Output(offset int) (*RealLine, error)           { return nil, errUnsupported }
func (c *Chip) Line(offset int) (*RealLine, error)             { return nil, errUnsupported }

func (c *Chip) Watch(offset int, edge Edge, pull Pull, handler func(Event)) (io.Closer, error) {
	return nil, errUnsupported
}

func (l *RealLine) Get() (bool, error)             { return false, errUnsupported }
func (l *RealLine) Set(high bool) error            { return errUnsupported }
func (l *RealLine) SetDirection(d Direction) error { return errUnsupported }
func (l *RealLine) Close() error                   { return nil }
