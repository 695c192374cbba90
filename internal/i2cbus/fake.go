package i2cbus

import (
	"sync"
)

// FakeBus emulates register-addressed devices for tests. Each device has a
// 256-byte register file with auto-increment on both reads and writes.
type FakeBus struct {
	mu   sync.Mutex
	regs map[uint16]*[256]byte

	// Txs counts transactions per address.
	Txs map[uint16]int

	// Writes records every write payload per address.
	Writes map[uint16][][]byte

	// Err, if set, is returned by every transaction.
	Err error

	// Hang, if set, blocks every transaction until it is closed.
	Hang chan struct{}
}

// NewFakeBus creates a bus with no devices.
func NewFakeBus() *FakeBus {
	return &FakeBus{
		regs:   map[uint16]*[256]byte{},
		Txs:    map[uint16]int{},
		Writes: map[uint16][][]byte{},
	}
}

// Set stores value in register reg of device addr.
func (f *FakeBus) Set(addr uint16, reg byte, value byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.device(addr)[reg] = value
}

// Get returns register reg of device addr.
func (f *FakeBus) Get(addr uint16, reg byte) byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.device(addr)[reg]
}

// Count returns the number of transactions sent to addr.
func (f *FakeBus) Count(addr uint16) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Txs[addr]
}

func (f *FakeBus) device(addr uint16) *[256]byte {
	d := f.regs[addr]
	if d == nil {
		d = &[256]byte{}
		f.regs[addr] = d
	}
	return d
}

// Tx implements drivers.I2C.
func (f *FakeBus) Tx(addr uint16, w, r []byte) error {
	if f.Hang != nil {
		<-f.Hang
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Txs[addr]++
	if f.Err != nil {
		return f.Err
	}
	if len(w) == 0 {
		return nil
	}
	d := f.device(addr)
	reg := w[0]
	if len(w) > 1 {
		f.Writes[addr] = append(f.Writes[addr], append([]byte(nil), w...))
		for i, v := range w[1:] {
			d[reg+byte(i)] = v
		}
	}
	for i := range r {
		r[i] = d[reg+byte(i)]
	}
	return nil
}
