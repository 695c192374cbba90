package frame

import "fmt"

// HeaderSize is the length of the transmit-request header before the RF data.
const HeaderSize = 17

const (
	startDelimiter = 0x7E
	transmitReq    = 0x10
	// apiOverhead counts the frame type through options: bytes covered by
	// the length field that are not RF data.
	apiOverhead = HeaderSize - 3
)

// Envelope is the XBee API transmit-request header.
type Envelope struct {
	FrameID byte
	Dest64  [8]byte
	Dest16  [2]byte
	Radius  byte
	Options byte
}

// DefaultEnvelope addresses the coordinator with no delivery ack.
func DefaultEnvelope() Envelope {
	return Envelope{Dest16: [2]byte{0xFF, 0xFE}}
}

// header appends the transmit-request header for rfLen bytes of RF data.
func (e Envelope) header(b []byte, rfLen int) []byte {
	n := apiOverhead + rfLen
	b = append(b, startDelimiter, byte(n>>8), byte(n), transmitReq, e.FrameID)
	b = append(b, e.Dest64[:]...)
	b = append(b, e.Dest16[:]...)
	return append(b, e.Radius, e.Options)
}

func parseHeader(b []byte) (Envelope, int, error) {
	var e Envelope
	if len(b) < HeaderSize+1 {
		return e, 0, fmt.Errorf("%w: %d bytes", ErrMalformed, len(b))
	}
	if b[0] != startDelimiter || b[3] != transmitReq {
		return e, 0, fmt.Errorf("%w: header % x", ErrMalformed, b[:4])
	}
	n := int(b[1])<<8 | int(b[2])
	if n+4 != len(b) {
		return e, 0, fmt.Errorf("%w: length field %d for %d bytes", ErrMalformed, n, len(b))
	}
	e.FrameID = b[4]
	copy(e.Dest64[:], b[5:13])
	copy(e.Dest16[:], b[13:15])
	e.Radius = b[15]
	e.Options = b[16]
	return e, n - apiOverhead, nil
}
