// Package i2cbus wraps an I2C bus so that no transaction can block forever.
//
// Every transaction runs against a deadline. When the underlying bus fails
// to complete in time, Tx returns ErrTimeout and the bus is marked stalled:
// later transactions fail fast with ErrStalled until the hung transaction
// finally returns.
package i2cbus

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"tinygo.org/x/drivers"
)

// Errors returned by the bus.
var (
	ErrTimeout = errors.New("i2cbus: timeout")
	ErrStalled = errors.New("i2cbus: stalled")
)

// DefaultTimeout bounds a single transaction.
const DefaultTimeout = 25 * time.Millisecond

// Write is a single register write.
type Write struct {
	Reg   byte
	Value byte
}

// Bus is a timeout-bounded I2C bus.
type Bus struct {
	bus     drivers.I2C
	timeout time.Duration

	mu      sync.Mutex // serialises transactions
	stalled chan struct{}
}

// New wraps bus. A timeout <= 0 selects DefaultTimeout.
func New(bus drivers.I2C, timeout time.Duration) *Bus {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Bus{bus: bus, timeout: timeout}
}

// Timeout returns the per-transaction bound.
func (b *Bus) Timeout() time.Duration { return b.timeout }

// Tx writes w then reads len(r) bytes from addr, bounded by the timeout.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stalled != nil {
		select {
		case <-b.stalled:
			b.stalled = nil
		default:
			return ErrStalled
		}
	}

	// The transaction writes into its own buffer so that a late completion
	// cannot touch r after we have returned.
	var rb []byte
	if len(r) > 0 {
		rb = make([]byte, len(r))
	}
	done := make(chan error, 1)
	finished := make(chan struct{})
	go func() {
		done <- b.bus.Tx(addr, w, rb)
		close(finished)
	}()

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		if err != nil {
			return err
		}
		copy(r, rb)
		return nil
	case <-timer.C:
		b.stalled = finished
		return fmt.Errorf("tx 0x%02x after %v: %w", addr, b.timeout, ErrTimeout)
	}
}

// ReadRegister reads one register.
func (b *Bus) ReadRegister(addr uint16, reg byte) (byte, error) {
	var v [1]byte
	if err := b.Tx(addr, []byte{reg}, v[:]); err != nil {
		return 0, err
	}
	return v[0], nil
}

// WriteRegisters performs writes in order. Runs of consecutive registers are
// sent as one auto-increment burst; anything else is a single two-byte write.
func (b *Bus) WriteRegisters(addr uint16, writes []Write) error {
	for _, tx := range coalesce(writes) {
		if err := b.Tx(addr, tx, nil); err != nil {
			return fmt.Errorf("write reg 0x%02x: %w", tx[0], err)
		}
	}
	return nil
}

// coalesce groups writes into transactions of the form [reg, v0, v1, ...].
func coalesce(writes []Write) [][]byte {
	var out [][]byte
	for i := 0; i < len(writes); {
		tx := []byte{writes[i].Reg, writes[i].Value}
		j := i + 1
		for j < len(writes) && writes[j].Reg == writes[j-1].Reg+1 {
			tx = append(tx, writes[j].Value)
			j++
		}
		out = append(out, tx)
		i = j
	}
	return out
}
