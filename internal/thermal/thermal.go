// Package thermal drives the 8x8 thermal-array imager (Panasonic Grid-EYE)
// over I2C.
package thermal

import (
	"errors"
	"fmt"

	"github.com/sweeney/occupancy-node/internal/i2cbus"
)

// I2C addresses (AD_SELECT low / high).
const (
	Address    uint16 = 0x68
	AltAddress uint16 = 0x69
)

// Register map.
const (
	regPowerControl   = 0x00
	regFrameRate      = 0x02
	regThermistorLow  = 0x0E
	regThermistorHigh = 0x0F
	regPixelLow       = 0x80 // pixel i low byte at regPixelLow + 2i
	regPixelHigh      = 0x81 // pixel i high byte at regPixelHigh + 2i
)

// Pixels is the number of imager pixels.
const Pixels = 64

// PayloadSize is the wire size of one frame: a high and low byte per pixel.
const PayloadSize = 2 * Pixels

// Mode is the sensor operating mode.
type Mode byte

const (
	ModeNormal    Mode = 0x00
	ModeSleep     Mode = 0x10
	ModeStandby60 Mode = 0x20 // 60 s intermittent
	ModeStandby10 Mode = 0x21 // 10 s intermittent
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeSleep:
		return "sleep"
	case ModeStandby60:
		return "standby60"
	case ModeStandby10:
		return "standby10"
	}
	return fmt.Sprintf("mode(0x%02x)", byte(m))
}

// FrameRate is the sensor register refresh rate.
type FrameRate byte

const (
	FPS10 FrameRate = 0
	FPS1  FrameRate = 1
)

// ErrSleeping is returned when configuration is attempted while the sensor
// sleeps; it must be returned to normal mode first.
var ErrSleeping = errors.New("thermal: sensor asleep, set normal mode first")

// Bus is the subset of i2cbus.Bus the driver needs.
type Bus interface {
	ReadRegister(addr uint16, reg byte) (byte, error)
	WriteRegisters(addr uint16, writes []i2cbus.Write) error
}

// Driver reads frames from one imager.
type Driver struct {
	bus  Bus
	addr uint16
	mode Mode
}

// New returns a driver for the imager at addr (zero selects Address). It
// does not touch the device.
func New(bus Bus, addr uint16) *Driver {
	if addr == 0 {
		addr = Address
	}
	return &Driver{bus: bus, addr: addr}
}

// Mode returns the last mode successfully configured.
func (d *Driver) Mode() Mode { return d.mode }

// Configure sets the operating mode and frame rate. Call it before sampling
// starts. A sleeping sensor only accepts a switch back to normal mode.
func (d *Driver) Configure(mode Mode, rate FrameRate) error {
	if d.mode == ModeSleep && mode != ModeNormal {
		return ErrSleeping
	}
	writes := []i2cbus.Write{{Reg: regPowerControl, Value: byte(mode)}}
	if mode != ModeSleep {
		writes = append(writes, i2cbus.Write{Reg: regFrameRate, Value: byte(rate)})
	}
	if err := d.bus.WriteRegisters(d.addr, writes); err != nil {
		return fmt.Errorf("configure %s: %w", mode, err)
	}
	d.mode = mode
	return nil
}

// ReadFrame fetches all 64 pixels, two single-register reads each. There is
// no retry: the first bus error aborts the frame.
func (d *Driver) ReadFrame() (RawFrame, error) {
	var f RawFrame
	for i := 0; i < Pixels; i++ {
		off := byte(2 * i)
		hi, err := d.bus.ReadRegister(d.addr, regPixelHigh+off)
		if err != nil {
			return RawFrame{}, fmt.Errorf("read pixel %d high: %w", i, err)
		}
		lo, err := d.bus.ReadRegister(d.addr, regPixelLow+off)
		if err != nil {
			return RawFrame{}, fmt.Errorf("read pixel %d low: %w", i, err)
		}
		f[i] = int16(uint16(hi)<<8 | uint16(lo))
	}
	return f, nil
}

// Thermistor returns the on-chip thermistor temperature in °C. The register
// pair is 12-bit sign-magnitude at 0.0625 °C per LSB.
func (d *Driver) Thermistor() (float32, error) {
	hi, err := d.bus.ReadRegister(d.addr, regThermistorHigh)
	if err != nil {
		return 0, fmt.Errorf("read thermistor high: %w", err)
	}
	lo, err := d.bus.ReadRegister(d.addr, regThermistorLow)
	if err != nil {
		return 0, fmt.Errorf("read thermistor low: %w", err)
	}
	raw := uint16(hi&0x0F)<<8 | uint16(lo)
	mag := float32(raw&0x7FF) * 0.0625
	if raw&0x800 != 0 {
		return -mag, nil
	}
	return mag, nil
}
