package transport

import (
	"fmt"
	"io"
	"sync"

	"go.bug.st/serial"
)

// DefaultBaud is the XBee's factory UART rate.
const DefaultBaud = 9600

// XBee writes API frames to an XBee radio in API mode over a UART.
type XBee struct {
	mu   sync.Mutex
	port io.WriteCloser
	name string
}

// OpenXBee opens the serial port at baud, 8N1.
func OpenXBee(name string, baud int) (*XBee, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open xbee port %s: %w", name, err)
	}
	return &XBee{port: port, name: name}, nil
}

// NewXBee wraps an already open port.
func NewXBee(port io.WriteCloser, name string) *XBee {
	return &XBee{port: port, name: name}
}

// Send writes the whole frame.
func (x *XBee) Send(frame []byte) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	for len(frame) > 0 {
		n, err := x.port.Write(frame)
		if err != nil {
			return fmt.Errorf("write %s: %w", x.name, err)
		}
		if n == 0 {
			return fmt.Errorf("write %s: %w", x.name, io.ErrShortWrite)
		}
		frame = frame[n:]
	}
	return nil
}

// Close closes the port.
func (x *XBee) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.port.Close()
}
