// Package config loads the node configuration from YAML.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/occupancy-node/internal/frame"
	"github.com/sweeney/occupancy-node/internal/gpio"
	"github.com/sweeney/occupancy-node/internal/logic"
	"github.com/sweeney/occupancy-node/internal/mqtt"
	"github.com/sweeney/occupancy-node/internal/rht"
	"github.com/sweeney/occupancy-node/internal/thermal"
	"github.com/sweeney/occupancy-node/internal/transport"
)

// Transport kinds.
const (
	TransportXBee = "xbee"
	TransportMQTT = "mqtt"
	TransportBoth = "both"
)

// Config represents the node configuration.
type Config struct {
	Node      NodeConfig      `yaml:"node"`
	Sampling  SamplingConfig  `yaml:"sampling"`
	Pins      PinsConfig      `yaml:"pins"`
	Thermal   ThermalConfig   `yaml:"thermal"`
	RHT       RHTConfig       `yaml:"rht"`
	Frame     FrameConfig     `yaml:"frame"`
	Transport TransportConfig `yaml:"transport"`
	HTTP      HTTPConfig      `yaml:"http"`
}

// NodeConfig identifies the node on the wire.
type NodeConfig struct {
	ID   int `yaml:"id"`
	Duty int `yaml:"duty"` // CO2 duty-cycle byte carried in live frames
}

// SamplingConfig contains the tick period and the activity thresholds.
// Thresholds count ticks, so their wall-clock length scales with Period.
// A recalibration interval given as a duration overrides its tick count.
type SamplingConfig struct {
	Period                     time.Duration `yaml:"period"`
	HoldTicks                  int           `yaml:"hold_ticks"`
	IdleRecalibrationTicks     int           `yaml:"idle_recalibration_ticks"`
	PeriodicRecalibrationTicks int           `yaml:"periodic_recalibration_ticks"`
	IdleRecalibration          time.Duration `yaml:"idle_recalibration,omitempty"`
	PeriodicRecalibration      time.Duration `yaml:"periodic_recalibration,omitempty"`
	StartEnabled               bool          `yaml:"start_enabled"` // sample without waiting for a request edge
}

// ticks converts d to whole ticks of the sampling period, rounding up.
func (s SamplingConfig) ticks(d time.Duration) int {
	return int((d + s.Period - 1) / s.Period)
}

// PinsConfig contains GPIO line offsets.
type PinsConfig struct {
	Chip    string `yaml:"chip"`
	PIR     int    `yaml:"pir"`
	Request int    `yaml:"request"`
	Button  int    `yaml:"button"`
	Red     int    `yaml:"red"`
	Green   int    `yaml:"green"`
	Blue    int    `yaml:"blue"`
	RHT     int    `yaml:"rht"`
}

// ThermalConfig contains the imager bus settings.
type ThermalConfig struct {
	Bus       string        `yaml:"bus"`
	Address   uint16        `yaml:"address"`
	FrameRate int           `yaml:"frame_rate"` // 1 or 10 fps
	Timeout   time.Duration `yaml:"timeout"`
}

// RHTConfig contains the humidity sensor timing.
type RHTConfig struct {
	rht.Timing `yaml:",inline"`
	// Calibrate measures the poll unit at start-up instead of trusting Unit.
	Calibrate bool `yaml:"calibrate"`
}

// FrameConfig contains the telemetry frame options.
type FrameConfig struct {
	Scope   string `yaml:"checksum_scope"` // payload or api
	Lenient bool   `yaml:"lenient"`
	FrameID int    `yaml:"frame_id"`
	Dest64  string `yaml:"dest64"` // 16 hex digits, empty for the coordinator
}

// TransportConfig selects where frames go.
type TransportConfig struct {
	Kind       string `yaml:"kind"`
	Port       string `yaml:"port"`
	Baud       int    `yaml:"baud"`
	Broker     string `yaml:"broker"`
	BufferSize int    `yaml:"buffer_size"`
}

// HTTPConfig contains the status server settings.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration of a deployed node: a 2 Hz tick and the
// 10/15/15 tick thresholds.
func Default() *Config {
	return &Config{
		Node: NodeConfig{ID: 1},
		Sampling: SamplingConfig{
			Period:                     500 * time.Millisecond,
			HoldTicks:                  10,
			IdleRecalibrationTicks:     15,
			PeriodicRecalibrationTicks: 15,
		},
		Pins: PinsConfig{
			Chip:    "gpiochip0",
			PIR:     gpio.DefaultPinPIR,
			Request: gpio.DefaultPinRequest,
			Button:  gpio.DefaultPinButton,
			Red:     gpio.DefaultPinRed,
			Green:   gpio.DefaultPinGreen,
			Blue:    gpio.DefaultPinBlue,
			RHT:     gpio.DefaultPinRHT,
		},
		Thermal: ThermalConfig{
			Bus:       "1",
			Address:   thermal.Address,
			FrameRate: 10,
			Timeout:   25 * time.Millisecond,
		},
		RHT: RHTConfig{Timing: rht.DefaultTiming()},
		Frame: FrameConfig{
			Scope: "payload",
		},
		Transport: TransportConfig{
			Kind:       TransportXBee,
			Port:       "/dev/ttyAMA0",
			Baud:       transport.DefaultBaud,
			Broker:     "tcp://localhost:1883",
			BufferSize: mqtt.DefaultBufferSize,
		},
		HTTP: HTTPConfig{Addr: ":8080"},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()
	cfg.resolveIntervals()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}
	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults fills fields a file set to zero.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Sampling.Period == 0 {
		c.Sampling.Period = def.Sampling.Period
	}
	if c.Sampling.HoldTicks == 0 {
		c.Sampling.HoldTicks = def.Sampling.HoldTicks
	}
	if c.Sampling.IdleRecalibrationTicks == 0 {
		c.Sampling.IdleRecalibrationTicks = def.Sampling.IdleRecalibrationTicks
	}
	if c.Sampling.PeriodicRecalibrationTicks == 0 {
		c.Sampling.PeriodicRecalibrationTicks = def.Sampling.PeriodicRecalibrationTicks
	}

	if c.Pins.Chip == "" {
		c.Pins.Chip = def.Pins.Chip
	}

	if c.Thermal.Address == 0 {
		c.Thermal.Address = def.Thermal.Address
	}
	if c.Thermal.FrameRate == 0 {
		c.Thermal.FrameRate = def.Thermal.FrameRate
	}
	if c.Thermal.Timeout == 0 {
		c.Thermal.Timeout = def.Thermal.Timeout
	}

	dt := def.RHT.Timing
	if c.RHT.Unit == 0 {
		c.RHT.Unit = dt.Unit
	}
	if c.RHT.Threshold == 0 {
		c.RHT.Threshold = dt.Threshold
	}
	if c.RHT.Timeout == 0 {
		c.RHT.Timeout = dt.Timeout
	}
	if c.RHT.Settle == 0 {
		c.RHT.Settle = dt.Settle
	}
	if c.RHT.Request == 0 {
		c.RHT.Request = dt.Request
	}
	if c.RHT.Transitions == 0 {
		c.RHT.Transitions = dt.Transitions
	}

	if c.Frame.Scope == "" {
		c.Frame.Scope = def.Frame.Scope
	}

	if c.Transport.Kind == "" {
		c.Transport.Kind = def.Transport.Kind
	}
	if c.Transport.Baud == 0 {
		c.Transport.Baud = def.Transport.Baud
	}
	if c.Transport.BufferSize == 0 {
		c.Transport.BufferSize = def.Transport.BufferSize
	}
}

// resolveIntervals turns recalibration durations into tick counts.
func (c *Config) resolveIntervals() {
	s := &c.Sampling
	if s.Period <= 0 {
		return
	}
	if s.IdleRecalibration > 0 {
		s.IdleRecalibrationTicks = s.ticks(s.IdleRecalibration)
	}
	if s.PeriodicRecalibration > 0 {
		s.PeriodicRecalibrationTicks = s.ticks(s.PeriodicRecalibration)
	}
}

// Validate reports the first setting the node cannot run with.
func (c *Config) Validate() error {
	if c.Node.ID < 0 || c.Node.ID > 0xFF {
		return fmt.Errorf("node id %d out of range 0-255", c.Node.ID)
	}
	if c.Node.Duty < 0 || c.Node.Duty > 0xFF {
		return fmt.Errorf("duty %d out of range 0-255", c.Node.Duty)
	}
	if c.Sampling.Period <= 0 {
		return errors.New("sampling period must be positive")
	}
	if err := c.Logic().Validate(); err != nil {
		return err
	}
	if _, err := c.FrameRate(); err != nil {
		return err
	}
	if err := c.RHT.Validate(); err != nil {
		return err
	}
	if _, err := c.Encoder(); err != nil {
		return err
	}
	switch c.Transport.Kind {
	case TransportXBee:
		if c.Transport.Port == "" {
			return errors.New("xbee transport needs a serial port")
		}
	case TransportMQTT:
		if c.Transport.Broker == "" {
			return errors.New("mqtt transport needs a broker")
		}
	case TransportBoth:
		if c.Transport.Port == "" || c.Transport.Broker == "" {
			return errors.New("both transports need a serial port and a broker")
		}
	default:
		return fmt.Errorf("unknown transport %q", c.Transport.Kind)
	}
	return nil
}

// Logic returns the activity state machine thresholds.
func (c *Config) Logic() logic.Config {
	return logic.Config{
		HoldTicks:                  c.Sampling.HoldTicks,
		IdleRecalibrationTicks:     c.Sampling.IdleRecalibrationTicks,
		PeriodicRecalibrationTicks: c.Sampling.PeriodicRecalibrationTicks,
	}
}

// FrameRate maps the configured fps to the imager setting.
func (c *Config) FrameRate() (thermal.FrameRate, error) {
	switch c.Thermal.FrameRate {
	case 10:
		return thermal.FPS10, nil
	case 1:
		return thermal.FPS1, nil
	}
	return 0, fmt.Errorf("thermal frame rate %d not 1 or 10", c.Thermal.FrameRate)
}

// Encoder builds the frame encoder: checksum scope, lenient payloads and the
// radio envelope.
func (c *Config) Encoder() (frame.Encoder, error) {
	enc := frame.NewEncoder()
	scope, err := frame.ParseScope(c.Frame.Scope)
	if err != nil {
		return enc, err
	}
	enc.Scope = scope
	enc.Lenient = c.Frame.Lenient

	if c.Frame.FrameID < 0 || c.Frame.FrameID > 0xFF {
		return enc, fmt.Errorf("frame id %d out of range 0-255", c.Frame.FrameID)
	}
	enc.Envelope.FrameID = byte(c.Frame.FrameID)

	if c.Frame.Dest64 != "" {
		b, err := hex.DecodeString(c.Frame.Dest64)
		if err != nil || len(b) != len(enc.Envelope.Dest64) {
			return enc, fmt.Errorf("dest64 %q is not 16 hex digits", c.Frame.Dest64)
		}
		copy(enc.Envelope.Dest64[:], b)
	}
	return enc, nil
}
