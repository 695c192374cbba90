package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Node          int          `json:"node"`
	Enabled       bool         `json:"enabled"`
	State         string       `json:"state"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	LastTick      string       `json:"last_tick,omitempty"`
	Machine       MachineJSON  `json:"machine"`
	Frames        FramesJSON   `json:"frames"`
	Thermal       *ThermalJSON `json:"thermal,omitempty"`
	RHT           *RHTJSON     `json:"rht,omitempty"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// MachineJSON reports the activity state machine counters.
type MachineJSON struct {
	PIR                  bool `json:"pir"`
	PIRTimer             int  `json:"pir_timer"`
	PIRInactive          int  `json:"pir_inactive"`
	Background           int  `json:"background_timer"`
	IndicatorOn          bool `json:"indicator_on"`
	Ticks                int  `json:"ticks"`
	IdleRecalibrations   int  `json:"idle_recalibrations"`
	ActiveRecalibrations int  `json:"active_recalibrations"`
}

// FramesJSON is the JSON representation of frame counters.
type FramesJSON struct {
	Live             int `json:"live"`
	IdleBackground   int `json:"idle_background"`
	ActiveBackground int `json:"active_background"`
	SendErrors       int `json:"send_errors"`
	BusErrors        int `json:"bus_errors"`
	SensorErrors     int `json:"sensor_errors"`
	PIRErrors        int `json:"pir_errors"`
}

// ThermalJSON summarises the last thermal frame in °C.
type ThermalJSON struct {
	Min        float32 `json:"min_c"`
	Max        float32 `json:"max_c"`
	Mean       float32 `json:"mean_c"`
	StdDev     float32 `json:"stddev_c"`
	Thermistor float32 `json:"thermistor_c"`
	Timestamp  string  `json:"timestamp"`
}

// RHTJSON is the last humidity/temperature reading.
type RHTJSON struct {
	Valid       bool    `json:"valid"`
	Humidity    float32 `json:"humidity_pct"`
	Temperature float32 `json:"temperature_c"`
	Raw         []int   `json:"raw"`
	Timestamp   string  `json:"timestamp"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker,omitempty"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of node config.
type ConfigJSON struct {
	PeriodMs                   int64  `json:"period_ms"`
	HoldTicks                  int    `json:"hold_ticks"`
	IdleRecalibrationTicks     int    `json:"idle_recalibration_ticks"`
	IdleRecalibrationMs        int64  `json:"idle_recalibration_ms"`
	PeriodicRecalibrationTicks int    `json:"periodic_recalibration_ticks"`
	PeriodicRecalibrationMs    int64  `json:"periodic_recalibration_ms"`
	Transport                  string `json:"transport"`
	SerialPort                 string `json:"serial_port,omitempty"`
	HTTPAddr                   string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	state := string(snap.State())
	if state == "" {
		state = "UNKNOWN"
	}

	inner := StatusInner{
		Node:          snap.Config.Node,
		Enabled:       snap.Enabled,
		State:         state,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Machine: MachineJSON{
			PIR:                  snap.Decision.PIR,
			PIRTimer:             snap.Decision.PIRTimer,
			PIRInactive:          snap.Decision.PIRInactive,
			Background:           snap.Decision.Background,
			IndicatorOn:          snap.Decision.IndicatorOn,
			Ticks:                snap.Counts.Ticks,
			IdleRecalibrations:   snap.Counts.IdleRecalibrations,
			ActiveRecalibrations: snap.Counts.ActiveRecalibrations,
		},
		Frames: FramesJSON{
			Live:             snap.Frames.Live,
			IdleBackground:   snap.Frames.IdleBackground,
			ActiveBackground: snap.Frames.ActiveBackground,
			SendErrors:       snap.Frames.SendErrors,
			BusErrors:        snap.Frames.BusErrors,
			SensorErrors:     snap.Frames.SensorErrors,
			PIRErrors:        snap.Frames.PIRErrors,
		},
		MQTT: MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			PeriodMs:                   snap.Config.PeriodMs,
			HoldTicks:                  snap.Config.HoldTicks,
			IdleRecalibrationTicks:     snap.Config.IdleRecalibrationTicks,
			IdleRecalibrationMs:        snap.Config.IdleRecalibrationInterval().Milliseconds(),
			PeriodicRecalibrationTicks: snap.Config.PeriodicRecalibrationTicks,
			PeriodicRecalibrationMs:    snap.Config.PeriodicRecalibrationInterval().Milliseconds(),
			Transport:                  snap.Config.Transport,
			SerialPort:                 snap.Config.SerialPort,
			HTTPAddr:                   snap.Config.HTTPAddr,
		},
	}
	if !snap.LastTick.IsZero() {
		inner.LastTick = snap.LastTick.UTC().Format(time.RFC3339)
	}
	if th := snap.Thermal; th != nil {
		inner.Thermal = &ThermalJSON{
			Min:        th.Stats.Min,
			Max:        th.Stats.Max,
			Mean:       th.Stats.Mean,
			StdDev:     th.Stats.StdDev,
			Thermistor: th.Thermistor,
			Timestamp:  th.At.UTC().Format(time.RFC3339),
		}
	}
	if r := snap.RHT; r != nil {
		raw := make([]int, len(r.Reading))
		for i, b := range r.Reading {
			raw[i] = int(b)
		}
		inner.RHT = &RHTJSON{
			Valid:     !r.Reading.IsSentinel(),
			Raw:       raw,
			Timestamp: r.At.UTC().Format(time.RFC3339),
		}
		if inner.RHT.Valid {
			inner.RHT.Humidity = r.Reading.Humidity()
			inner.RHT.Temperature = r.Reading.Temperature()
		}
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
