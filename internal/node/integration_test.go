package node

import (
	"errors"
	"testing"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/sweeney/occupancy-node/internal/delay"
	"github.com/sweeney/occupancy-node/internal/frame"
	"github.com/sweeney/occupancy-node/internal/gpio"
	"github.com/sweeney/occupancy-node/internal/i2cbus"
	"github.com/sweeney/occupancy-node/internal/indicator"
	"github.com/sweeney/occupancy-node/internal/logic"
	"github.com/sweeney/occupancy-node/internal/mqtt"
	"github.com/sweeney/occupancy-node/internal/rht"
	"github.com/sweeney/occupancy-node/internal/status"
	"github.com/sweeney/occupancy-node/internal/thermal"
	"github.com/sweeney/occupancy-node/internal/ticker"
	"github.com/sweeney/occupancy-node/internal/transport"
	"github.com/sweeney/occupancy-node/internal/trigger"
)

// stack is a complete node over fake hardware.
type stack struct {
	node    *Node
	ctrl    *trigger.Controller
	timer   *ticker.Manual
	watcher *gpio.FakeWatcher
	led     *indicator.Recorder
	pir     *gpio.FakeInput
	bus     *i2cbus.FakeBus
	line    *rht.SimLine
	radio   *transport.Fake
	broker  *mqtt.FakePublisher
	tracker *status.Tracker
}

func newStack(t *testing.T, pir ...bool) *stack {
	t.Helper()
	s := &stack{
		timer:   ticker.NewManual(),
		watcher: gpio.NewFakeWatcher(),
		led:     &indicator.Recorder{},
		pir:     gpio.NewFakeInput(pir...),
		bus:     i2cbus.NewFakeBus(),
		radio:   &transport.Fake{},
		broker:  mqtt.NewFakePublisher(),
		tracker: status.NewTracker(time.Now(), status.Config{Node: 1}),
	}

	s.ctrl = trigger.NewController(s.timer, time.Second, s.led)
	if _, err := s.ctrl.Attach(s.watcher, gpio.DefaultPinRequest, gpio.DefaultPinButton); err != nil {
		t.Fatalf("attach: %v", err)
	}

	// A warm body in the middle of a 20 °C room.
	for i := 0; i < thermal.Pixels; i++ {
		raw := uint16(80)
		if i == 27 || i == 28 {
			raw = 130
		}
		s.bus.Set(thermal.Address, byte(0x81+2*i), byte(raw>>8))
		s.bus.Set(thermal.Address, byte(0x80+2*i), byte(raw))
	}
	driver := thermal.New(i2cbus.New(s.bus, 20*time.Millisecond), thermal.Address)

	clock := &delay.Clock{}
	s.line = rht.NewSimLine(clock, nil)
	s.line.Respond(rht.NewReading([4]byte{0x01, 0xC2, 0x00, 0xD7}))
	decoder, err := rht.NewDecoder(s.line, clock, rht.DefaultTiming())
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	s.node = New(Config{ID: 1}, Deps{
		PIR:     s.pir,
		Gate:    s.ctrl,
		Machine: logic.NewMachine(logic.DefaultConfig(), s.ctrl.Shared()),
		Thermal: driver,
		RHT:     decoder,
		Encoder: frame.NewEncoder(),
		Sender:  transport.Tee{s.radio, s.broker},
		Tracker: s.tracker,
		Metrics: NewMetrics(metrics.NewSet(), 1),
	})
	return s
}

func parseAll(t *testing.T, frames [][]byte) []frame.Frame {
	t.Helper()
	var out []frame.Frame
	for i, b := range frames {
		f, err := frame.NewEncoder().Parse(b)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		out = append(out, f)
	}
	return out
}

// TestIntegrationOccupancyCycle drives a node through an occupied period,
// the hold countdown and a periodic recalibration.
func TestIntegrationOccupancyCycle(t *testing.T) {
	s := newStack(t, true, true, true, false)

	if res := s.node.Tick(); res.Enabled {
		t.Fatal("tick before the request line rose should be disabled")
	}

	s.watcher.Fire(gpio.DefaultPinRequest, gpio.EdgeRising)
	if !s.timer.Running() {
		t.Fatal("expected timer running after request edge")
	}

	for i := 1; i <= 20; i++ {
		s.node.Tick()
	}

	frames := parseAll(t, s.radio.Sent())
	var live, active, idle int
	for _, f := range frames {
		switch f.Kind {
		case frame.KindLive:
			live++
		case frame.KindActiveBackground:
			active++
		case frame.KindIdleBackground:
			idle++
		}
	}
	// 3 occupied ticks plus 9 ticks of hold countdown.
	if live != 12 {
		t.Errorf("expected 12 live frames, got %d", live)
	}
	if active != 1 || idle != 0 {
		t.Errorf("expected 1 active background and no idle, got %d/%d", active, idle)
	}
	if len(s.broker.Frames) != len(frames) {
		t.Errorf("broker got %d frames, radio %d", len(s.broker.Frames), len(frames))
	}

	first := frames[0]
	if !first.PIR || first.HT != [4]byte{0x01, 0xC2, 0x00, 0xD7} {
		t.Errorf("unexpected first live frame: pir=%v ht=% x", first.PIR, first.HT)
	}
	if got := thermal.FrameFromBytes(first.Thermal[:]).Celsius(27); got != 32.5 {
		t.Errorf("pixel 27: expected 32.5 °C, got %v", got)
	}
	if s.line.Requests != 12 {
		t.Errorf("expected 12 humidity transactions, got %d", s.line.Requests)
	}

	if s.led.Shown[0] != indicator.Blue {
		t.Errorf("first flash should be blue, got %s", s.led.Shown[0])
	}

	snap := s.tracker.Snapshot()
	if snap.State() != logic.StateInactiveIdle || snap.Frames.Live != 12 || snap.Frames.ActiveBackground != 1 {
		t.Errorf("unexpected status: state=%s frames=%+v", snap.State(), snap.Frames)
	}
	if snap.RHT == nil || snap.RHT.Reading.Humidity() != 45 {
		t.Errorf("unexpected humidity in status: %+v", snap.RHT)
	}
}

// TestIntegrationDisableMidRun checks that dropping the request line stops
// sampling and clears shared state, and that the button re-enables it.
func TestIntegrationDisableMidRun(t *testing.T) {
	s := newStack(t, true)
	s.watcher.Fire(gpio.DefaultPinRequest, gpio.EdgeRising)
	s.node.Tick()
	s.node.Tick()

	s.watcher.Fire(gpio.DefaultPinRequest, gpio.EdgeFalling)
	snap := s.ctrl.Shared().Snapshot()
	if snap.Enabled || snap.Background != 0 || snap.IndicatorOn {
		t.Errorf("disable did not reset shared state: %+v", snap)
	}
	if s.led.Last() != indicator.Off {
		t.Errorf("indicator should be off, got %s", s.led.Last())
	}

	sent := len(s.radio.Sent())
	if res := s.node.Tick(); res.Enabled {
		t.Error("tick after disable should do nothing")
	}
	if len(s.radio.Sent()) != sent {
		t.Error("no frames expected while disabled")
	}

	s.watcher.Fire(gpio.DefaultPinButton, gpio.EdgeFalling)
	if res := s.node.Tick(); !res.Enabled || len(res.Sent) != 1 {
		t.Errorf("expected a live frame after button enable, got %+v", res)
	}
}

// TestIntegrationBusHang checks that a stuck I2C bus costs one frame, not
// the node.
func TestIntegrationBusHang(t *testing.T) {
	s := newStack(t, true)
	s.watcher.Fire(gpio.DefaultPinRequest, gpio.EdgeRising)

	hang := make(chan struct{})
	s.bus.Hang = hang

	start := time.Now()
	res := s.node.Tick()
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("tick blocked for %v", elapsed)
	}
	if !errors.Is(res.Err, i2cbus.ErrTimeout) {
		t.Fatalf("expected bus timeout, got %v", res.Err)
	}
	if s.line.Requests != 0 {
		t.Error("humidity sensor should not be read when the frame is skipped")
	}

	close(hang)

	// The bus reports stalled until the hung transaction drains.
	deadline := time.Now().Add(2 * time.Second)
	for {
		res = s.node.Tick()
		if res.Err == nil {
			break
		}
		if !errors.Is(res.Err, i2cbus.ErrStalled) || time.Now().After(deadline) {
			t.Fatalf("bus did not recover: %v", res.Err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(res.Sent) != 1 {
		t.Errorf("expected a live frame after recovery, got %v", res.Sent)
	}
	if s.tracker.Snapshot().Frames.BusErrors < 1 {
		t.Error("bus error not counted")
	}
}

// TestIntegrationIdleRoom checks the idle path: after the hold expires no
// sensor is touched until the idle recalibration.
func TestIntegrationIdleRoom(t *testing.T) {
	s := newStack(t, false)
	s.watcher.Fire(gpio.DefaultPinRequest, gpio.EdgeRising)

	for i := 0; i < 10; i++ {
		s.node.Tick()
	}
	txs := s.bus.Count(thermal.Address)
	for i := 11; i <= 14; i++ {
		s.node.Tick()
	}
	if got := s.bus.Count(thermal.Address); got != txs {
		t.Errorf("idle ticks touched the bus: %d -> %d transactions", txs, got)
	}

	res := s.node.Tick()
	if !res.Decision.RecalibrateIdle || len(res.Sent) != 1 || res.Sent[0] != frame.KindIdleBackground {
		t.Fatalf("expected idle background on tick 15, got %+v", res)
	}
	if s.line.Requests != 9 {
		t.Errorf("expected 9 humidity reads during hold, got %d", s.line.Requests)
	}
}
