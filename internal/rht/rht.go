package rht

import (
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/occupancy-node/internal/delay"
	"github.com/sweeney/occupancy-node/internal/gpio"
)

var (
	// ErrStuck means a level outlasted the timeout before 40 bits arrived.
	ErrStuck = errors.New("rht: line stuck")
	// ErrShort means the transition budget ran out before 40 bits arrived.
	ErrShort = errors.New("rht: short read")
	// ErrChecksum means the checksum byte did not match the data.
	ErrChecksum = errors.New("rht: checksum mismatch")
)

// bits is the number of bits in a transaction.
const bits = Length * 8

// preamble is the number of transitions before the first data bit: the
// host release, the sensor's 80 µs low and 80 µs high, and the first
// bit's 50 µs low.
const preamble = 4

// Decoder performs RHT03 transactions on a bidirectional line.
type Decoder struct {
	line   gpio.Line
	delay  delay.Delayer
	timing Timing
}

// NewDecoder creates a decoder. timing must pass Validate.
func NewDecoder(line gpio.Line, d delay.Delayer, timing Timing) (*Decoder, error) {
	if err := timing.Validate(); err != nil {
		return nil, err
	}
	return &Decoder{line: line, delay: d, timing: timing}, nil
}

// Timing returns the decoder's timing.
func (d *Decoder) Timing() Timing { return d.timing }

// Decode performs a transaction and returns the reading, or Sentinel if it
// failed for any reason.
func (d *Decoder) Decode() Reading {
	r, _ := d.Read()
	return r
}

// Read performs a transaction. On failure it returns Sentinel along with
// the reason.
func (d *Decoder) Read() (Reading, error) {
	if err := d.request(); err != nil {
		return Sentinel, err
	}

	var buf Reading
	n, err := d.measure(&buf)
	if err != nil {
		return Sentinel, err
	}
	if n < bits {
		return Sentinel, fmt.Errorf("%w: %d bits", ErrShort, n)
	}
	if !buf.Valid() {
		return Sentinel, fmt.Errorf("%w: got %#02x, want %#02x", ErrChecksum, buf[4], Checksum(buf.Data()))
	}
	return buf, nil
}

// request wakes the sensor: hold the line low for Settle, release it high
// for Request, then listen.
func (d *Decoder) request() error {
	if err := d.line.SetDirection(gpio.Out); err != nil {
		return err
	}
	if err := d.line.Set(false); err != nil {
		return err
	}
	d.delay.Delay(d.timing.Settle)
	if err := d.line.Set(true); err != nil {
		return err
	}
	d.delay.Delay(d.timing.Request)
	return d.line.SetDirection(gpio.In)
}

// measure times each level and shifts one bit per high pulse into buf,
// MSB first. It returns the number of bits decoded.
func (d *Decoder) measure(buf *Reading) (int, error) {
	threshold := d.timing.ThresholdCounts()
	limit := d.timing.LimitCounts()
	poll := d.timing.PollDelay()

	last := true
	n := 0
	for i := 0; i < d.timing.Transitions; i++ {
		count := 0
		level := last
		for {
			v, err := d.line.Get()
			if err != nil {
				return n, err
			}
			if v != last {
				level = v
				break
			}
			count++
			if count >= limit {
				break
			}
			d.delay.Delay(poll)
		}
		if count >= limit {
			if n < bits {
				return n, fmt.Errorf("%w after %d transitions", ErrStuck, i)
			}
			break
		}
		last = level

		if i >= preamble && i%2 == 0 && n < bits {
			buf[n/8] <<= 1
			if count > threshold {
				buf[n/8] |= 1
			}
			n++
		}
	}
	return n, nil
}

// Calibrate measures the real duration of one poll iteration (a pin read
// plus a nominal delay) over n iterations. now reports elapsed time on the
// same clock that drives d.
func Calibrate(in gpio.Input, d delay.Delayer, nominal time.Duration, n int, now func() time.Duration) (time.Duration, error) {
	if n <= 0 {
		return 0, errors.New("rht: calibration needs at least one iteration")
	}
	start := now()
	for i := 0; i < n; i++ {
		if _, err := in.Get(); err != nil {
			return 0, err
		}
		d.Delay(nominal)
	}
	unit := (now() - start) / time.Duration(n)
	if unit <= 0 {
		unit = nominal
	}
	return unit, nil
}
