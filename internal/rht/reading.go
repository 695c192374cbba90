// Package rht reads the RHT03 (DHT22) humidity/temperature sensor over its
// single-wire, pulse-width encoded bus.
package rht

// Length is the number of bytes in a transaction: four data bytes and a
// checksum.
const Length = 5

// Reading is the raw transaction: humidity high/low, temperature high/low,
// checksum.
type Reading [Length]byte

// Sentinel replaces a reading that failed validation. It travels in-band so
// the collector can tell a bad read from a genuine low value.
var Sentinel = Reading{0xFF, 0xFF, 0xFF, 0xFF, 0xFC}

// Checksum is the low byte of the sum of the four data bytes.
func Checksum(data [4]byte) byte {
	return data[0] + data[1] + data[2] + data[3]
}

// Data returns the four data bytes.
func (r Reading) Data() [4]byte {
	return [4]byte{r[0], r[1], r[2], r[3]}
}

// Valid reports whether the checksum byte matches the data. The sentinel
// is itself checksum-consistent; use IsSentinel to detect it.
func (r Reading) Valid() bool {
	return r[4] == Checksum(r.Data())
}

// IsSentinel reports whether r marks a failed read.
func (r Reading) IsSentinel() bool {
	return r == Sentinel
}

// Humidity returns relative humidity in percent.
func (r Reading) Humidity() float32 {
	return float32(uint16(r[0])<<8|uint16(r[1])) / 10
}

// Temperature returns °C. Bit 15 is a sign flag, not two's complement.
func (r Reading) Temperature() float32 {
	v := uint16(r[2])<<8 | uint16(r[3])
	t := float32(v&0x7FFF) / 10
	if v&0x8000 != 0 {
		return -t
	}
	return t
}

// NewReading builds a reading with the matching checksum.
func NewReading(data [4]byte) Reading {
	return Reading{data[0], data[1], data[2], data[3], Checksum(data)}
}
