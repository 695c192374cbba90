package rht

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/occupancy-node/internal/delay"
	"github.com/sweeney/occupancy-node/internal/gpio"
)

func newSim(t *testing.T, segs []Segment) (*Decoder, *SimLine) {
	t.Helper()
	clock := &delay.Clock{}
	line := NewSimLine(clock, segs)
	d, err := NewDecoder(line, clock, DefaultTiming())
	require.NoError(t, err)
	return d, line
}

func TestDecodeValidTrain(t *testing.T) {
	want := NewReading([4]byte{0x02, 0x8C, 0x01, 0x5F})
	d, line := newSim(t, Train(want))

	got, err := d.Read()
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 1, line.Requests)
	assert.InDelta(t, 65.2, got.Humidity(), 0.001)
	assert.InDelta(t, 35.1, got.Temperature(), 0.001)
}

func TestDecodeAllBitPatterns(t *testing.T) {
	for _, data := range [][4]byte{
		{0x00, 0x00, 0x00, 0x00},
		{0xFF, 0x00, 0xFF, 0x00},
		{0xAA, 0x55, 0x0F, 0xF0},
		{10, 20, 30, 40},
	} {
		want := NewReading(data)
		d, _ := newSim(t, Train(want))
		assert.Equal(t, want, d.Decode(), "data % x", data)
	}
}

func TestDecodeCorruptChecksum(t *testing.T) {
	d, _ := newSim(t, Train(Reading{10, 20, 30, 40, 0}))

	got, err := d.Read()
	assert.ErrorIs(t, err, ErrChecksum)
	assert.Equal(t, Reading{0xFF, 0xFF, 0xFF, 0xFF, 0xFC}, got)
	assert.True(t, got.IsSentinel())
}

func TestDecodeSilentSensor(t *testing.T) {
	d, _ := newSim(t, nil)

	got, err := d.Read()
	assert.ErrorIs(t, err, ErrStuck)
	assert.Equal(t, Sentinel, got)
}

func TestDecodeStuckLow(t *testing.T) {
	d, _ := newSim(t, []Segment{{High: false, For: 10 * time.Millisecond}})

	got, err := d.Read()
	assert.ErrorIs(t, err, ErrStuck)
	assert.Equal(t, Sentinel, got)
}

func TestDecodeTruncatedTrain(t *testing.T) {
	full := Train(NewReading([4]byte{1, 2, 3, 4}))
	// Drop the last ten bits.
	d, _ := newSim(t, full[:len(full)-21])

	assert.Equal(t, Sentinel, d.Decode())
}

func TestDecodeShortTransitionBudget(t *testing.T) {
	clock := &delay.Clock{}
	line := NewSimLine(clock, Train(NewReading([4]byte{1, 2, 3, 4})))
	timing := DefaultTiming()
	timing.Transitions = 84
	d, err := NewDecoder(line, clock, timing)
	require.NoError(t, err)

	// 84 transitions still reach bit 40 at transition 82.
	assert.True(t, d.Decode().Valid())
}

func TestDecodeRequiresWakePulse(t *testing.T) {
	clock := &delay.Clock{}
	line := NewSimLine(clock, Train(NewReading([4]byte{1, 2, 3, 4})))
	timing := DefaultTiming()
	timing.Settle = 500 * time.Microsecond
	d, err := NewDecoder(line, clock, timing)
	require.NoError(t, err)

	_, err = d.Read()
	assert.ErrorIs(t, err, ErrStuck)
	assert.Zero(t, line.Requests)
}

func TestDecodeLineError(t *testing.T) {
	line := &errLine{err: errors.New("gpio gone")}
	d, err := NewDecoder(line, &delay.Clock{}, DefaultTiming())
	require.NoError(t, err)

	got, err := d.Read()
	assert.EqualError(t, err, "gpio gone")
	assert.Equal(t, Sentinel, got)
}

func TestThresholdScalesWithUnit(t *testing.T) {
	timing := DefaultTiming()
	assert.Equal(t, 25, timing.ThresholdCounts())
	assert.Equal(t, 255, timing.LimitCounts())

	calibrated := timing.WithUnit(5 * time.Microsecond)
	assert.Equal(t, 10, calibrated.ThresholdCounts())
	assert.Equal(t, 102, calibrated.LimitCounts())
	assert.Equal(t, 2*time.Microsecond, calibrated.PollDelay())

	// A slower poll loop still separates 0 and 1 bits.
	slow := timing
	slow.Unit = 5 * time.Microsecond
	assert.Equal(t, 5*time.Microsecond, slow.PollDelay())
	want := NewReading([4]byte{0xA5, 0x5A, 0x81, 0x18})
	clock := &delay.Clock{}
	d, err := NewDecoder(NewSimLine(clock, Train(want)), clock, slow)
	require.NoError(t, err)
	assert.Equal(t, want, d.Decode())
}

func TestTimingValidate(t *testing.T) {
	bad := DefaultTiming()
	bad.Unit = 0
	assert.Error(t, bad.Validate())

	bad = DefaultTiming()
	bad.Timeout = bad.Threshold
	assert.Error(t, bad.Validate())

	bad = DefaultTiming()
	bad.Transitions = 40
	assert.Error(t, bad.Validate())

	assert.NoError(t, DefaultTiming().Validate())
}

func TestCalibrate(t *testing.T) {
	clock := &delay.Clock{}
	in := gpio.NewFakeInput(true)

	unit, err := Calibrate(in, clock, 3*time.Microsecond, 100, clock.Now)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Microsecond, unit)
	assert.Equal(t, 100, in.Reads)

	_, err = Calibrate(in, clock, time.Microsecond, 0, clock.Now)
	assert.Error(t, err)
}

func TestReadingScaling(t *testing.T) {
	r := NewReading([4]byte{0x01, 0xF4, 0x80, 0x65})
	assert.InDelta(t, 50.0, r.Humidity(), 0.001)
	assert.InDelta(t, -10.1, r.Temperature(), 0.001)
	assert.True(t, r.Valid())
	assert.True(t, Sentinel.Valid())
	assert.False(t, r.IsSentinel())
}

type errLine struct{ err error }

func (e *errLine) Get() (bool, error) { return false, e.err }
func (e *errLine) Set(bool) error { return nil }
func (e *errLine) SetDirection(gpio.Direction) error { return nil }
