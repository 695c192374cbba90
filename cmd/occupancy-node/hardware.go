package main

import (
	"errors"
	"io"
	"sync"
	"time"

	"tinygo.org/x/drivers"

	"github.com/sweeney/occupancy-node/internal/config"
	"github.com/sweeney/occupancy-node/internal/delay"
	"github.com/sweeney/occupancy-node/internal/gpio"
	"github.com/sweeney/occupancy-node/internal/i2cbus"
	"github.com/sweeney/occupancy-node/internal/indicator"
	"github.com/sweeney/occupancy-node/internal/rht"
	"github.com/sweeney/occupancy-node/internal/thermal"
)

// hardware is everything the node touches outside the process.
type hardware struct {
	pir     gpio.Input
	watcher gpio.Watcher
	display indicator.Display
	bus     drivers.I2C
	rhtLine gpio.Line
	delay   delay.Delayer
	elapsed func() time.Duration // clock driving delay

	closers []io.Closer
}

// Close releases every line and bus in reverse order of opening.
func (h *hardware) Close() error {
	var errs []error
	for i := len(h.closers) - 1; i >= 0; i-- {
		if err := h.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func openHardware(cfg *config.Config, simulate bool) (*hardware, error) {
	if simulate {
		return simulatedHardware(), nil
	}
	return realHardware(cfg)
}

func realHardware(cfg *config.Config) (*hardware, error) {
	h := &hardware{delay: delay.Spin{}}
	start := time.Now()
	h.elapsed = func() time.Duration { return time.Since(start) }

	fail := func(err error) (*hardware, error) {
		h.Close()
		return nil, err
	}

	chip, err := gpio.OpenChip(cfg.Pins.Chip)
	if err != nil {
		return nil, err
	}
	h.closers = append(h.closers, chip)
	h.watcher = chip

	pir, err := chip.Input(cfg.Pins.PIR, gpio.PullDown)
	if err != nil {
		return fail(err)
	}
	h.closers = append(h.closers, pir)
	h.pir = pir

	var leds [3]*gpio.RealLine
	for i, pin := range []int{cfg.Pins.Red, cfg.Pins.Green, cfg.Pins.Blue} {
		l, err := chip.Output(pin)
		if err != nil {
			return fail(err)
		}
		h.closers = append(h.closers, l)
		leds[i] = l
	}
	h.display = indicator.NewLED(leds[0], leds[1], leds[2])

	line, err := chip.Line(cfg.Pins.RHT)
	if err != nil {
		return fail(err)
	}
	h.closers = append(h.closers, line)
	h.rhtLine = line

	bus, err := i2cbus.OpenHost(cfg.Thermal.Bus)
	if err != nil {
		return fail(err)
	}
	h.closers = append(h.closers, bus)
	h.bus = bus

	return h, nil
}

// Simulated room: a 20 °C background with a warm body over two pixels,
// occupied for simOccupied ticks out of every simCycle.
const (
	simBackground = 80  // 20 °C in quarter degrees
	simBody       = 130 // 32.5 °C
	simCycle      = 120
	simOccupied   = 30
)

func simulatedHardware() *hardware {
	bus := i2cbus.NewFakeBus()
	for i := 0; i < thermal.Pixels; i++ {
		raw := uint16(simBackground)
		if i == 27 || i == 28 {
			raw = simBody
		}
		bus.Set(thermal.Address, byte(0x81+2*i), byte(raw>>8))
		bus.Set(thermal.Address, byte(0x80+2*i), byte(raw))
	}
	// Thermistor at 22 °C, 1/16 °C per LSB.
	therm := uint16(22 * 16)
	bus.Set(thermal.Address, 0x0E, byte(therm))
	bus.Set(thermal.Address, 0x0F, byte(therm>>8))

	clock := &delay.Clock{}
	line := rht.NewSimLine(clock, nil)
	line.Respond(rht.NewReading([4]byte{0x01, 0xC2, 0x00, 0xD7})) // 45.0 %, 21.5 °C

	return &hardware{
		pir:     &simPIR{cycle: simCycle, on: simOccupied},
		watcher: gpio.NewFakeWatcher(),
		display: &simDisplay{},
		bus:     bus,
		rhtLine: line,
		delay:   clock,
		elapsed: clock.Now,
	}
}

// simPIR reports motion for the first on reads of every cycle.
type simPIR struct {
	mu        sync.Mutex
	n         int
	cycle, on int
}

func (p *simPIR) Get() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	motion := p.n%p.cycle < p.on
	p.n++
	return motion, nil
}

// simDisplay keeps only the colour currently shown.
type simDisplay struct {
	mu sync.Mutex
	c  indicator.Color
}

func (d *simDisplay) Show(c indicator.Color) error {
	d.mu.Lock()
	d.c = c
	d.mu.Unlock()
	return nil
}
