// Package frame encodes sensor readings into the XBee transmit-request
// frames sent to the collector, and parses them back.
package frame

import (
	"errors"
	"fmt"
)

// Payload sizes.
const (
	ThermalSize  = 128
	HTSize       = 4
	liveFields   = 7 // node, duty, 4x humidity/temp, pir
	bgFields     = 3 // marker, node, sub-type
	LiveData     = liveFields + ThermalSize + 2
	BackgroundRF = bgFields + ThermalSize
)

// Wire constants.
const (
	MarkerIdle   byte = 0xDF
	MarkerActive byte = 0xEF
	SubIdle      byte = 0x00
	SubActive    byte = 0x01
	Terminator   byte = 0xDF
)

// Frame sizes on the wire.
const (
	LiveSize       = HeaderSize + LiveData + 1
	BackgroundSize = HeaderSize + BackgroundRF + 1
)

var (
	// ErrPayloadLength means the thermal payload was not ThermalSize bytes.
	ErrPayloadLength = errors.New("frame: thermal payload must be 128 bytes")
	// ErrChecksum means a parsed frame failed checksum verification.
	ErrChecksum = errors.New("frame: checksum mismatch")
	// ErrMalformed means a parsed frame has the wrong shape.
	ErrMalformed = errors.New("frame: malformed")
)

// Kind identifies the frame variant.
type Kind int

const (
	KindLive Kind = iota
	KindIdleBackground
	KindActiveBackground
)

func (k Kind) String() string {
	switch k {
	case KindLive:
		return "live"
	case KindIdleBackground:
		return "idle_background"
	case KindActiveBackground:
		return "active_background"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Background selects the background frame variant.
type Background int

const (
	Idle Background = iota
	Active
)

func (b Background) String() string {
	if b == Active {
		return "active"
	}
	return "idle"
}

// Kind returns the frame kind b is sent as.
func (b Background) Kind() Kind {
	if b == Active {
		return KindActiveBackground
	}
	return KindIdleBackground
}

func (b Background) marker() (byte, byte) {
	if b == Active {
		return MarkerActive, SubActive
	}
	return MarkerIdle, SubIdle
}

// Scope selects the bytes covered by the trailing checksum.
type Scope int

const (
	// ScopePayload sums the reading fields and thermal payload only.
	ScopePayload Scope = iota
	// ScopeAPI sums everything after the length field, as the XBee API
	// frame checksum does.
	ScopeAPI
)

// ParseScope maps a config value to a Scope.
func ParseScope(s string) (Scope, error) {
	switch s {
	case "", "payload":
		return ScopePayload, nil
	case "api":
		return ScopeAPI, nil
	}
	return 0, fmt.Errorf("frame: unknown checksum scope %q", s)
}

func (s Scope) String() string {
	if s == ScopeAPI {
		return "api"
	}
	return "payload"
}

// Checksum returns 0xFF minus the low byte of the sum of b.
func Checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return 0xFF - sum
}

// Clamp truncates or zero-pads thermal to ThermalSize bytes.
func Clamp(thermal []byte) []byte {
	if len(thermal) == ThermalSize {
		return thermal
	}
	out := make([]byte, ThermalSize)
	copy(out, thermal)
	return out
}
