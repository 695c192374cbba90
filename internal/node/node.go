// Package node runs the per-tick acquisition sequence: decide, acquire,
// encode, send.
package node

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sweeney/occupancy-node/internal/frame"
	"github.com/sweeney/occupancy-node/internal/gpio"
	"github.com/sweeney/occupancy-node/internal/logic"
	"github.com/sweeney/occupancy-node/internal/rht"
	"github.com/sweeney/occupancy-node/internal/status"
	"github.com/sweeney/occupancy-node/internal/thermal"
	"github.com/sweeney/occupancy-node/internal/transport"
)

// Gate reports whether sampling is enabled.
type Gate interface {
	TickEnabled() bool
}

// ThermalSensor is the thermal-array driver.
type ThermalSensor interface {
	ReadFrame() (thermal.RawFrame, error)
	Thermistor() (float32, error)
}

// HTSensor is the humidity/temperature decoder.
type HTSensor interface {
	Read() (rht.Reading, error)
}

// Config is the node identity carried in every frame.
type Config struct {
	ID   byte
	Duty byte
}

// Deps are the collaborators a Node drives. Tracker and Metrics are optional.
type Deps struct {
	PIR     gpio.Input
	Gate    Gate
	Machine *logic.Machine
	Thermal ThermalSensor
	RHT     HTSensor
	Encoder frame.Encoder
	Sender  transport.Sender
	Tracker *status.Tracker
	Metrics *Metrics
	Now     func() time.Time
}

// Result describes what one tick did.
type Result struct {
	Enabled  bool
	Decision logic.Decision
	Sent     []frame.Kind
	Err      error
}

// Node is the acquisition orchestrator. Tick must only be called from one
// goroutine.
type Node struct {
	cfg    Config
	d      Deps
	frames status.FrameCounts

	thermistor float32
}

// New creates a node.
func New(cfg Config, d Deps) *Node {
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Node{cfg: cfg, d: d}
}

// Frames returns the frame counters.
func (n *Node) Frames() status.FrameCounts { return n.frames }

// Run calls Tick for every value on tick until ctx is done or tick is
// closed.
func (n *Node) Run(ctx context.Context, tick <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-tick:
			if !ok {
				return nil
			}
			n.Tick()
		}
	}
}

// Tick runs one sampling tick. A disabled tick does nothing. Sensor and
// transport failures are logged and counted; they never stop the node.
func (n *Node) Tick() Result {
	start := n.d.Now()
	if !n.d.Gate.TickEnabled() {
		if n.d.Metrics != nil {
			n.d.Metrics.disabled.Inc()
		}
		if n.d.Tracker != nil {
			n.d.Tracker.SetEnabled(false)
		}
		return Result{}
	}

	res := Result{Enabled: true}
	pir, err := n.d.PIR.Get()
	if err != nil {
		log.Printf("pir read error: %v", err)
		n.frames.PIRErrors++
		if m := n.d.Metrics; m != nil {
			m.pirErrors.Inc()
			m.observe(start)
		}
		if t := n.d.Tracker; t != nil {
			t.SetEnabled(true)
			t.SetFrames(n.frames)
		}
		res.Err = fmt.Errorf("read pir: %w", err)
		return res
	}

	d := n.d.Machine.Step(pir)
	res.Decision = d

	var errs []error
	switch {
	case d.RecalibrateIdle:
		errs = append(errs, n.background(frame.Idle, &res))
	case d.RecalibrateActive:
		errs = append(errs, n.background(frame.Active, &res))
	}
	if d.Acquire {
		errs = append(errs, n.live(pir, &res))
	}
	res.Err = errors.Join(errs...)

	if m := n.d.Metrics; m != nil {
		m.ticks.Inc()
		m.state(d.State)
		m.observe(start)
	}
	if t := n.d.Tracker; t != nil {
		t.SetEnabled(true)
		t.Update(start, d, n.d.Machine.Counts(), n.frames)
	}
	return res
}

// background reads the array and sends a background frame.
func (n *Node) background(kind frame.Background, res *Result) error {
	f, err := n.readThermal()
	if err != nil {
		log.Printf("%s background skipped: %v", kind, err)
		return err
	}
	if t, err := n.d.Thermal.Thermistor(); err == nil {
		n.thermistor = t
	}
	n.recordThermal(f)

	b, err := n.d.Encoder.EncodeBackground(n.cfg.ID, kind, f.Bytes())
	if err != nil {
		return fmt.Errorf("encode %s background: %w", kind, err)
	}
	return n.send(b, kind.Kind(), res)
}

// live reads both sensors and sends a live frame. A failed humidity read
// still sends, with the sentinel in place of the reading.
func (n *Node) live(pir bool, res *Result) error {
	f, err := n.readThermal()
	if err != nil {
		log.Printf("live frame skipped: %v", err)
		return err
	}
	n.recordThermal(f)

	ht, err := n.d.RHT.Read()
	if err != nil {
		n.frames.SensorErrors++
		if n.d.Metrics != nil {
			n.d.Metrics.sensorErrors.Inc()
		}
		log.Printf("rht read error, sending sentinel: %v", err)
		ht = rht.Sentinel
	}
	if n.d.Tracker != nil {
		n.d.Tracker.SetRHT(status.RHTInfo{Reading: ht, At: n.d.Now()})
	}

	b, err := n.d.Encoder.EncodeLive(n.cfg.ID, n.cfg.Duty, ht.Data(), pir, f.Bytes())
	if err != nil {
		return fmt.Errorf("encode live: %w", err)
	}
	return n.send(b, frame.KindLive, res)
}

func (n *Node) readThermal() (thermal.RawFrame, error) {
	f, err := n.d.Thermal.ReadFrame()
	if err != nil {
		n.frames.BusErrors++
		if n.d.Metrics != nil {
			n.d.Metrics.busErrors.Inc()
		}
		return f, fmt.Errorf("read thermal frame: %w", err)
	}
	return f, nil
}

func (n *Node) recordThermal(f thermal.RawFrame) {
	if n.d.Tracker != nil {
		n.d.Tracker.SetThermal(status.ThermalInfo{Stats: f.Stats(), Thermistor: n.thermistor, At: n.d.Now()})
	}
}

func (n *Node) send(b []byte, kind frame.Kind, res *Result) error {
	if err := n.d.Sender.Send(b); err != nil {
		n.frames.SendErrors++
		if n.d.Metrics != nil {
			n.d.Metrics.sendErrors.Inc()
		}
		log.Printf("send %s frame error: %v", kind, err)
		return fmt.Errorf("send %s frame: %w", kind, err)
	}
	switch kind {
	case frame.KindLive:
		n.frames.Live++
	case frame.KindIdleBackground:
		n.frames.IdleBackground++
	case frame.KindActiveBackground:
		n.frames.ActiveBackground++
	}
	if n.d.Metrics != nil {
		n.d.Metrics.frame(kind)
	}
	res.Sent = append(res.Sent, kind)
	return nil
}
