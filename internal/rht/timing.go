package rht

import (
	"errors"
	"fmt"
	"time"
)

// Timing holds the bus timing. Poll counts are derived from durations and
// the calibrated poll unit, never assumed from a clock frequency.
type Timing struct {
	// Unit is the real duration of one poll iteration (pin read + delay).
	Unit time.Duration `yaml:"unit"`
	// Poll is the delay between pin reads. Zero uses Unit, which assumes
	// the read itself is free.
	Poll time.Duration `yaml:"poll,omitempty"`
	// Threshold separates a 0 bit (26-28 µs high) from a 1 bit (70 µs high).
	Threshold time.Duration `yaml:"threshold"`
	// Timeout is how long a level may persist before the line is presumed stuck.
	Timeout time.Duration `yaml:"timeout"`
	// Settle is how long the host holds the line low to wake the sensor.
	Settle time.Duration `yaml:"settle"`
	// Request is how long the host releases the line high before listening.
	Request time.Duration `yaml:"request"`
	// Transitions bounds the number of level changes measured.
	Transitions int `yaml:"transitions"`
}

// DefaultTiming matches the sensor datasheet with a 2 µs poll unit: a
// threshold of 25 counts and a stuck bound of 255 counts.
func DefaultTiming() Timing {
	return Timing{
		Unit:        2 * time.Microsecond,
		Threshold:   50 * time.Microsecond,
		Timeout:     510 * time.Microsecond,
		Settle:      5 * time.Millisecond,
		Request:     30 * time.Microsecond,
		Transitions: 85,
	}
}

// WithUnit returns a copy of t using a calibrated poll unit. The delay
// between reads keeps its previous value.
func (t Timing) WithUnit(unit time.Duration) Timing {
	t.Poll = t.PollDelay()
	t.Unit = unit
	return t
}

// PollDelay is the delay the decoder waits between pin reads.
func (t Timing) PollDelay() time.Duration {
	if t.Poll > 0 {
		return t.Poll
	}
	return t.Unit
}

// ThresholdCounts is the poll count above which a high pulse is a 1 bit.
func (t Timing) ThresholdCounts() int {
	return int(t.Threshold / t.Unit)
}

// LimitCounts is the poll count at which the line is presumed stuck.
func (t Timing) LimitCounts() int {
	return int((t.Timeout + t.Unit - 1) / t.Unit)
}

// Validate checks that the derived counts are usable.
func (t Timing) Validate() error {
	if t.Unit <= 0 {
		return errors.New("rht: unit must be positive")
	}
	if t.ThresholdCounts() < 1 {
		return fmt.Errorf("rht: threshold %v shorter than unit %v", t.Threshold, t.Unit)
	}
	if t.LimitCounts() <= t.ThresholdCounts() {
		return fmt.Errorf("rht: timeout %v not above threshold %v", t.Timeout, t.Threshold)
	}
	if t.Transitions < 4+2*bits {
		return fmt.Errorf("rht: %d transitions cannot carry %d bits", t.Transitions, bits)
	}
	return nil
}
