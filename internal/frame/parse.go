package frame

import "fmt"

// Frame is a parsed frame. Duty, HT and PIR are set only for KindLive.
type Frame struct {
	Kind     Kind
	Envelope Envelope
	Node     byte
	Duty     byte
	HT       [HTSize]byte
	PIR      bool
	Thermal  [ThermalSize]byte
	Checksum byte
}

// Parse decodes and verifies a frame built by an encoder with the same
// checksum scope.
func (e Encoder) Parse(b []byte) (Frame, error) {
	var f Frame
	env, rfLen, err := parseHeader(b)
	if err != nil {
		return f, err
	}
	f.Envelope = env
	rf := b[HeaderSize : len(b)-1]
	f.Checksum = b[len(b)-1]

	var payload []byte
	switch rfLen {
	case LiveData:
		if rf[len(rf)-2] != Terminator || rf[len(rf)-1] != Terminator {
			return f, fmt.Errorf("%w: missing terminator", ErrMalformed)
		}
		payload = rf[:len(rf)-2]
		f.Kind = KindLive
		f.Node = payload[0]
		f.Duty = payload[1]
		copy(f.HT[:], payload[2:6])
		if payload[6] > 1 {
			return f, fmt.Errorf("%w: pir flag %#x", ErrMalformed, payload[6])
		}
		f.PIR = payload[6] == 1
		copy(f.Thermal[:], payload[liveFields:])
	case BackgroundRF:
		payload = rf
		switch {
		case rf[0] == MarkerIdle && rf[2] == SubIdle:
			f.Kind = KindIdleBackground
		case rf[0] == MarkerActive && rf[2] == SubActive:
			f.Kind = KindActiveBackground
		default:
			return f, fmt.Errorf("%w: marker %#x sub-type %#x", ErrMalformed, rf[0], rf[2])
		}
		f.Node = rf[1]
		copy(f.Thermal[:], rf[bgFields:])
	default:
		return f, fmt.Errorf("%w: %d bytes of RF data", ErrMalformed, rfLen)
	}

	want := Checksum(payload)
	if e.Scope == ScopeAPI {
		want = Checksum(b[3 : len(b)-1])
	}
	if f.Checksum != want {
		return f, fmt.Errorf("%w: got %#02x, want %#02x", ErrChecksum, f.Checksum, want)
	}
	return f, nil
}
