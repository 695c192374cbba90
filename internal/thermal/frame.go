package thermal

import "github.com/chewxy/math32"

// RawFrame holds one reading per pixel exactly as composed from the high and
// low registers. Only the low 12 bits are significant (two's complement,
// 0.25 °C per LSB).
type RawFrame [Pixels]int16

// Bytes returns the wire payload: high byte then low byte for each pixel.
func (f RawFrame) Bytes() []byte {
	b := make([]byte, PayloadSize)
	for i, v := range f {
		b[2*i] = byte(uint16(v) >> 8)
		b[2*i+1] = byte(v)
	}
	return b
}

// FrameFromBytes is the inverse of Bytes. Missing trailing bytes read as zero.
func FrameFromBytes(b []byte) RawFrame {
	var f RawFrame
	for i := 0; i < Pixels && 2*i+1 < len(b); i++ {
		f[i] = int16(uint16(b[2*i])<<8 | uint16(b[2*i+1]))
	}
	return f
}

// Celsius returns pixel i in °C.
func (f RawFrame) Celsius(i int) float32 {
	v := f[i] << 4 >> 4 // sign-extend bit 11
	return float32(v) * 0.25
}

// Stats summarises a frame in °C.
type Stats struct {
	Min    float32
	Max    float32
	Mean   float32
	StdDev float32
}

// Stats computes the frame summary.
func (f RawFrame) Stats() Stats {
	s := Stats{Min: math32.Inf(1), Max: math32.Inf(-1)}
	var sum float32
	for i := range f {
		c := f.Celsius(i)
		s.Min = math32.Min(s.Min, c)
		s.Max = math32.Max(s.Max, c)
		sum += c
	}
	s.Mean = sum / Pixels
	var sq float32
	for i := range f {
		d := f.Celsius(i) - s.Mean
		sq += d * d
	}
	s.StdDev = math32.Sqrt(sq / Pixels)
	return s
}
