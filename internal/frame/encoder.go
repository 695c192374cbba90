package frame

import "fmt"

// Encoder builds frames. It is pure: it keeps no state between calls.
type Encoder struct {
	Envelope Envelope
	Scope    Scope

	// Lenient clamps a wrong-length thermal payload instead of returning
	// ErrPayloadLength.
	Lenient bool
}

// NewEncoder returns a strict encoder with the default envelope.
func NewEncoder() Encoder {
	return Encoder{Envelope: DefaultEnvelope()}
}

func (e Encoder) thermal(b []byte) ([]byte, error) {
	if len(b) == ThermalSize {
		return b, nil
	}
	if e.Lenient {
		return Clamp(b), nil
	}
	return nil, fmt.Errorf("%w: got %d", ErrPayloadLength, len(b))
}

// EncodeLive builds a live reading frame.
func (e Encoder) EncodeLive(node, duty byte, ht [HTSize]byte, pir bool, thermal []byte) ([]byte, error) {
	thermal, err := e.thermal(thermal)
	if err != nil {
		return nil, err
	}
	b := make([]byte, 0, LiveSize)
	b = e.Envelope.header(b, LiveData)
	start := len(b)
	b = append(b, node, duty)
	b = append(b, ht[:]...)
	b = append(b, boolByte(pir))
	b = append(b, thermal...)
	payload := b[start:]
	b = append(b, Terminator, Terminator)
	return append(b, e.sum(b, payload)), nil
}

// EncodeBackground builds an idle or active background frame.
func (e Encoder) EncodeBackground(node byte, kind Background, thermal []byte) ([]byte, error) {
	thermal, err := e.thermal(thermal)
	if err != nil {
		return nil, err
	}
	marker, sub := kind.marker()
	b := make([]byte, 0, BackgroundSize)
	b = e.Envelope.header(b, BackgroundRF)
	start := len(b)
	b = append(b, marker, node, sub)
	b = append(b, thermal...)
	return append(b, e.sum(b, b[start:])), nil
}

func (e Encoder) sum(frame, payload []byte) byte {
	if e.Scope == ScopeAPI {
		return Checksum(frame[3:])
	}
	return Checksum(payload)
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
