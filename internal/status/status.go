// Package status provides a thread-safe status tracker for the occupancy node.
// It is read by HTTP handlers and MQTT lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/occupancy-node/internal/logic"
	"github.com/sweeney/occupancy-node/internal/rht"
	"github.com/sweeney/occupancy-node/internal/thermal"
)

// NetworkInfo contains network state.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains node configuration for display.
type Config struct {
	Node                       int
	PeriodMs                   int64
	HoldTicks                  int
	IdleRecalibrationTicks     int
	PeriodicRecalibrationTicks int
	Transport                  string
	SerialPort                 string
	Broker                     string
	HTTPAddr                   string
}

// IdleRecalibrationInterval is the idle recalibration threshold as wall time.
func (c Config) IdleRecalibrationInterval() time.Duration {
	return time.Duration(c.IdleRecalibrationTicks) * time.Duration(c.PeriodMs) * time.Millisecond
}

// PeriodicRecalibrationInterval is the periodic recalibration threshold as
// wall time.
func (c Config) PeriodicRecalibrationInterval() time.Duration {
	return time.Duration(c.PeriodicRecalibrationTicks) * time.Duration(c.PeriodMs) * time.Millisecond
}

// FrameCounts tracks frames sent and failures since startup.
type FrameCounts struct {
	Live             int
	IdleBackground   int
	ActiveBackground int
	SendErrors       int
	BusErrors        int
	SensorErrors     int
	PIRErrors        int
}

// ThermalInfo is the last thermal frame summary.
type ThermalInfo struct {
	Stats      thermal.Stats
	Thermistor float32
	At         time.Time
}

// RHTInfo is the last humidity/temperature reading.
type RHTInfo struct {
	Reading rht.Reading
	At      time.Time
}

// Snapshot is a point-in-time view of node state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Enabled       bool
	Decision      logic.Decision
	Counts        logic.Counts
	Frames        FrameCounts
	Thermal       *ThermalInfo
	RHT           *RHTInfo
	LastTick      time.Time
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the node started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// State returns the activity state, or an empty state before the first tick.
func (s Snapshot) State() logic.State {
	return s.Decision.State
}

// Tracker holds mutable node state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// SetEnabled records the sampling enable flag.
func (t *Tracker) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.snap.Enabled = enabled
	t.mu.Unlock()
}

// Update records the outcome of a tick.
func (t *Tracker) Update(at time.Time, d logic.Decision, counts logic.Counts, frames FrameCounts) {
	t.mu.Lock()
	t.snap.LastTick = at
	t.snap.Decision = d
	t.snap.Counts = counts
	t.snap.Frames = frames
	t.mu.Unlock()
}

// SetFrames records frame counters outside a tick.
func (t *Tracker) SetFrames(frames FrameCounts) {
	t.mu.Lock()
	t.snap.Frames = frames
	t.mu.Unlock()
}

// SetThermal records the last thermal frame summary.
func (t *Tracker) SetThermal(info ThermalInfo) {
	t.mu.Lock()
	t.snap.Thermal = &info
	t.mu.Unlock()
}

// SetRHT records the last humidity/temperature reading.
func (t *Tracker) SetRHT(info RHTInfo) {
	t.mu.Lock()
	t.snap.RHT = &info
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the node state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
