// Package logic contains the pure occupancy logic of the node.
// This package has NO external dependencies (no GPIO, I2C, radio, or time.Sleep).
// Everything it needs from the outside world is passed in per tick.
package logic

import "errors"

// State is the occupancy state derived from the PIR sensor.
type State string

const (
	StateActive         State = "ACTIVE"
	StateInactiveTiming State = "INACTIVE_TIMING"
	StateInactiveIdle   State = "INACTIVE_IDLE"
)

// Config holds the state machine's policy knobs, all in ticks.
type Config struct {
	// HoldTicks is how long the node keeps sampling after the last motion.
	HoldTicks int
	// IdleRecalibrationTicks is the run of inactive ticks after which an
	// idle background frame is sent.
	IdleRecalibrationTicks int
	// PeriodicRecalibrationTicks is the background timer value at which an
	// active background frame is sent.
	PeriodicRecalibrationTicks int
}

// DefaultConfig returns the thresholds the collector was tuned against.
func DefaultConfig() Config {
	return Config{
		HoldTicks:                  10,
		IdleRecalibrationTicks:     15,
		PeriodicRecalibrationTicks: 15,
	}
}

// Validate checks that every threshold is positive.
func (c Config) Validate() error {
	if c.HoldTicks <= 0 || c.IdleRecalibrationTicks <= 0 || c.PeriodicRecalibrationTicks <= 0 {
		return errors.New("logic: tick thresholds must be positive")
	}
	return nil
}

// Shared is the state the machine shares with interrupt handlers. The
// implementation must make each call atomic with respect to a disable.
type Shared interface {
	// AdvanceBackground increments the background timer and returns it.
	AdvanceBackground() int
	// ResetBackground sets the background timer to zero.
	ResetBackground()
	// ToggleIndicator flips the indicator for s and returns whether it is
	// now lit.
	ToggleIndicator(s State) bool
}

// Decision is the outcome of one tick.
type Decision struct {
	State State
	PIR   bool

	// Acquire is set while the hold timer is running: the tick should
	// read the sensors and send a live frame.
	Acquire bool

	RecalibrateIdle   bool
	RecalibrateActive bool

	IndicatorOn bool

	// Counters after the step, for reporting.
	PIRTimer    int
	PIRInactive int
	Background  int
}

// Counts tracks ticks per state and recalibrations since startup.
type Counts struct {
	Ticks                int
	Active               int
	InactiveTiming       int
	InactiveIdle         int
	IdleRecalibrations   int
	ActiveRecalibrations int
}
