// Package transport hands encoded frames to the radio link.
package transport

import (
	"errors"
	"sync"
)

// Sender sends one encoded frame. Delivery is fire-and-forget: a nil error
// means the bytes left the node, not that the collector received them.
type Sender interface {
	Send(frame []byte) error
	Close() error
}

// Tee sends every frame to each of its senders. A failing sender does not
// stop the others.
type Tee []Sender

// Send forwards frame to every sender and joins their errors.
func (t Tee) Send(frame []byte) error {
	var errs []error
	for _, s := range t {
		errs = append(errs, s.Send(frame))
	}
	return errors.Join(errs...)
}

// Close closes every sender.
func (t Tee) Close() error {
	var errs []error
	for _, s := range t {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

// Fake records sent frames for test assertions.
type Fake struct {
	mu sync.Mutex

	// Frames contains a copy of every frame sent.
	Frames [][]byte

	// SendError, if set, will be returned by Send.
	SendError error

	// Closed tracks if Close was called.
	Closed bool
}

// Send records a copy of frame.
func (f *Fake) Send(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendError != nil {
		return f.SendError
	}
	f.Frames = append(f.Frames, append([]byte(nil), frame...))
	return nil
}

// Close marks the sender closed.
func (f *Fake) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Sent returns a copy of the recorded frames.
func (f *Fake) Sent() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.Frames...)
}
