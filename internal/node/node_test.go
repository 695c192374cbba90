package node

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/occupancy-node/internal/frame"
	"github.com/sweeney/occupancy-node/internal/gpio"
	"github.com/sweeney/occupancy-node/internal/logic"
	"github.com/sweeney/occupancy-node/internal/rht"
	"github.com/sweeney/occupancy-node/internal/status"
	"github.com/sweeney/occupancy-node/internal/thermal"
	"github.com/sweeney/occupancy-node/internal/transport"
)

type gate bool

func (g *gate) TickEnabled() bool { return bool(*g) }

type fakeThermal struct {
	frame thermal.RawFrame
	err   error
	reads int
}

func (f *fakeThermal) ReadFrame() (thermal.RawFrame, error) {
	f.reads++
	return f.frame, f.err
}

func (f *fakeThermal) Thermistor() (float32, error) { return 24.5, nil }

type fakeRHT struct {
	reading rht.Reading
	err     error
	reads   int
}

func (f *fakeRHT) Read() (rht.Reading, error) {
	f.reads++
	if f.err != nil {
		return rht.Sentinel, f.err
	}
	return f.reading, nil
}

type fixture struct {
	node    *Node
	gate    *gate
	pir     *gpio.FakeInput
	thermal *fakeThermal
	rht     *fakeRHT
	sender  *transport.Fake
	tracker *status.Tracker
	set     *metrics.Set
}

func newFixture(t *testing.T, cfg logic.Config, pir ...bool) *fixture {
	t.Helper()
	on := gate(true)
	f := &fixture{
		gate:    &on,
		pir:     gpio.NewFakeInput(pir...),
		thermal: &fakeThermal{},
		rht:     &fakeRHT{reading: rht.NewReading([4]byte{10, 20, 30, 40})},
		sender:  &transport.Fake{},
		tracker: status.NewTracker(time.Now(), status.Config{}),
		set:     metrics.NewSet(),
	}
	for i := range f.thermal.frame {
		f.thermal.frame[i] = int16(80 + i) // 20 °C and up
	}
	f.node = New(Config{ID: 3, Duty: 0}, Deps{
		PIR:     f.pir,
		Gate:    f.gate,
		Machine: logic.NewMachine(cfg, &memShared{}),
		Thermal: f.thermal,
		RHT:     f.rht,
		Encoder: frame.NewEncoder(),
		Sender:  f.sender,
		Tracker: f.tracker,
		Metrics: NewMetrics(f.set, 3),
	})
	return f
}

// memShared is a logic.Shared without interrupt concerns.
type memShared struct {
	bg int
	on bool
}

func (s *memShared) AdvanceBackground() int {
	s.bg++
	return s.bg
}

func (s *memShared) ResetBackground() { s.bg = 0 }

func (s *memShared) ToggleIndicator(logic.State) bool {
	s.on = !s.on
	return s.on
}

func quiet() logic.Config {
	return logic.Config{HoldTicks: 10, IdleRecalibrationTicks: 1000, PeriodicRecalibrationTicks: 1000}
}

func TestDisabledTickDoesNothing(t *testing.T) {
	f := newFixture(t, quiet(), true)
	*f.gate = false

	res := f.node.Tick()
	assert.False(t, res.Enabled)
	assert.Zero(t, f.pir.Reads)
	assert.Zero(t, f.thermal.reads)
	assert.Empty(t, f.sender.Sent())
}

func TestActiveTickSendsLiveFrame(t *testing.T) {
	f := newFixture(t, quiet(), true)

	res := f.node.Tick()
	require.NoError(t, res.Err)
	assert.Equal(t, []frame.Kind{frame.KindLive}, res.Sent)

	sent := f.sender.Sent()
	require.Len(t, sent, 1)
	got, err := frame.NewEncoder().Parse(sent[0])
	require.NoError(t, err)
	assert.Equal(t, byte(3), got.Node)
	assert.True(t, got.PIR)
	assert.Equal(t, [4]byte{10, 20, 30, 40}, got.HT)
	assert.Equal(t, f.thermal.frame.Bytes(), got.Thermal[:])
}

func TestIdleTickSkipsAcquisition(t *testing.T) {
	f := newFixture(t, quiet(), false)

	// Drain the hold timer.
	for i := 0; i < 10; i++ {
		f.node.Tick()
	}
	thermalReads, rhtReads := f.thermal.reads, f.rht.reads
	sent := len(f.sender.Sent())

	for i := 0; i < 5; i++ {
		res := f.node.Tick()
		assert.Equal(t, logic.StateInactiveIdle, res.Decision.State)
		assert.Zero(t, res.Decision.PIRTimer)
	}
	assert.Equal(t, thermalReads, f.thermal.reads, "idle ticks must not read the array")
	assert.Equal(t, rhtReads, f.rht.reads, "idle ticks must not read the humidity sensor")
	assert.Len(t, f.sender.Sent(), sent)
}

func TestIdleRecalibrationSendsBackground(t *testing.T) {
	f := newFixture(t, logic.DefaultConfig(), false)

	var res Result
	for i := 0; i < 15; i++ {
		res = f.node.Tick()
	}
	require.True(t, res.Decision.RecalibrateIdle)
	assert.Equal(t, []frame.Kind{frame.KindIdleBackground}, res.Sent)

	sent := f.sender.Sent()
	got, err := frame.NewEncoder().Parse(sent[len(sent)-1])
	require.NoError(t, err)
	assert.Equal(t, frame.KindIdleBackground, got.Kind)
	assert.Equal(t, 1, f.node.Frames().IdleBackground)
	assert.Equal(t, 9, f.node.Frames().Live)
}

func TestActiveRecalibrationWithLiveFrame(t *testing.T) {
	f := newFixture(t, logic.DefaultConfig(), true)

	var res Result
	for i := 0; i < 15; i++ {
		res = f.node.Tick()
	}
	require.True(t, res.Decision.RecalibrateActive)
	assert.Equal(t, []frame.Kind{frame.KindActiveBackground, frame.KindLive}, res.Sent)
	assert.Equal(t, 2, f.thermal.reads-14)
}

func TestRHTFailureSendsSentinel(t *testing.T) {
	f := newFixture(t, quiet(), true)
	f.rht.err = rht.ErrChecksum

	res := f.node.Tick()
	require.NoError(t, res.Err)

	got, err := frame.NewEncoder().Parse(f.sender.Sent()[0])
	require.NoError(t, err)
	assert.Equal(t, [4]byte{0xFF, 0xFF, 0xFF, 0xFF}, got.HT)
	assert.Equal(t, 1, f.node.Frames().SensorErrors)

	snap := f.tracker.Snapshot()
	require.NotNil(t, snap.RHT)
	assert.True(t, snap.RHT.Reading.IsSentinel())
}

func TestBusErrorSkipsFrameOnly(t *testing.T) {
	f := newFixture(t, quiet(), true)
	f.thermal.err = errors.New("tx 0x68: i2cbus: timeout")

	res := f.node.Tick()
	assert.Error(t, res.Err)
	assert.Empty(t, res.Sent)
	assert.Zero(t, f.rht.reads, "no humidity read without a thermal frame")
	assert.Equal(t, 1, f.node.Frames().BusErrors)

	f.thermal.err = nil
	res = f.node.Tick()
	require.NoError(t, res.Err)
	assert.Len(t, res.Sent, 1)
}

func TestSendErrorIsNotFatal(t *testing.T) {
	f := newFixture(t, quiet(), true)
	f.sender.SendError = errors.New("radio busy")

	res := f.node.Tick()
	assert.ErrorContains(t, res.Err, "radio busy")
	assert.Equal(t, 1, f.node.Frames().SendErrors)
	assert.Zero(t, f.node.Frames().Live)
}

func TestPIRErrorSkipsTick(t *testing.T) {
	f := newFixture(t, quiet(), true)
	f.pir.ReadError = errors.New("gpio gone")

	res := f.node.Tick()
	assert.Error(t, res.Err)
	assert.Zero(t, f.thermal.reads)

	assert.Equal(t, 1, f.node.Frames().PIRErrors)
	assert.Equal(t, 1, f.tracker.Snapshot().Frames.PIRErrors)
	var buf bytes.Buffer
	f.set.WritePrometheus(&buf)
	assert.Contains(t, buf.String(), `occupancy_pir_errors_total{node="3"} 1`)

	f.pir.ReadError = nil
	res = f.node.Tick()
	assert.Equal(t, 1, f.tracker.Snapshot().Counts.Ticks, "failed tick must not step the machine")
	assert.Equal(t, logic.StateActive, res.Decision.State)
	assert.Equal(t, 1, f.tracker.Snapshot().Frames.PIRErrors)
}

func TestTrackerAndMetrics(t *testing.T) {
	f := newFixture(t, quiet(), true)
	f.node.Tick()
	f.node.Tick()

	snap := f.tracker.Snapshot()
	assert.True(t, snap.Enabled)
	assert.Equal(t, logic.StateActive, snap.State())
	assert.Equal(t, 2, snap.Frames.Live)
	require.NotNil(t, snap.Thermal)
	assert.InDelta(t, 20.0, snap.Thermal.Stats.Min, 0.001)

	var buf bytes.Buffer
	f.set.WritePrometheus(&buf)
	out := buf.String()
	assert.Contains(t, out, `occupancy_ticks_total{node="3"} 2`)
	assert.Contains(t, out, `occupancy_frames_total{node="3",kind="live"} 2`)
	assert.Contains(t, out, `occupancy_state_ticks_total{node="3",state="ACTIVE"} 2`)
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t, quiet(), true)
	tick := make(chan time.Time)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.node.Run(ctx, tick) }()

	tick <- time.Now()
	tick <- time.Now()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.GreaterOrEqual(t, len(f.sender.Sent()), 1)
}

func TestRunStopsWhenTickClosed(t *testing.T) {
	f := newFixture(t, quiet(), true)
	tick := make(chan time.Time, 1)
	tick <- time.Now()
	close(tick)

	done := make(chan error, 1)
	go func() { done <- f.node.Run(context.Background(), tick) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after the tick channel closed")
	}
	assert.GreaterOrEqual(t, len(f.sender.Sent()), 1)
}
