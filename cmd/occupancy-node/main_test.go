package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/occupancy-node/internal/config"
	"github.com/sweeney/occupancy-node/internal/i2cbus"
	"github.com/sweeney/occupancy-node/internal/mqtt"
	"github.com/sweeney/occupancy-node/internal/rht"
	"github.com/sweeney/occupancy-node/internal/status"
	"github.com/sweeney/occupancy-node/internal/thermal"
)

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env. If pi-helper changes its var names, this test fails
// and we update the constants, not the other way around.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		if got != canonical {
			t.Errorf("env var constant: got %q, want %q", got, canonical)
		}
	}
}

func TestReadNetworkInfoAllSet(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "MyNetwork")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo")
	}
	want := status.NetworkInfo{
		Type:       "wifi",
		IP:         "192.168.1.100",
		Status:     "connected",
		Gateway:    "192.168.1.1",
		WifiStatus: "connected",
		SSID:       "MyNetwork",
	}
	if *info != want {
		t.Errorf("got %+v, want %+v", *info, want)
	}
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	t.Setenv(envNetworkStatus, "")
	if info := readNetworkInfo(); info != nil {
		t.Errorf("expected nil when NETWORK_STATUS is unset, got %+v", info)
	}
}

func TestApplyFlags(t *testing.T) {
	var opts options
	cmd := newRootCmd(&opts)
	for name, value := range map[string]string{
		"node":      "9",
		"transport": "mqtt",
		"http":      "off",
		"simulate":  "true",
	} {
		if err := cmd.Flags().Set(name, value); err != nil {
			t.Fatalf("set --%s: %v", name, err)
		}
	}

	cfg := config.Default()
	if err := applyFlags(cmd, cfg, opts); err != nil {
		t.Fatalf("applyFlags: %v", err)
	}
	if cfg.Node.ID != 9 {
		t.Errorf("node: got %d, want 9", cfg.Node.ID)
	}
	if cfg.Transport.Kind != config.TransportMQTT {
		t.Errorf("transport: got %q, want mqtt", cfg.Transport.Kind)
	}
	if cfg.HTTP.Addr != "" {
		t.Errorf("http: got %q, want disabled", cfg.HTTP.Addr)
	}
	if !cfg.Sampling.StartEnabled {
		t.Error("simulation should start enabled")
	}
}

func TestApplyFlagsUnsetKeepsConfig(t *testing.T) {
	var opts options
	cmd := newRootCmd(&opts)

	cfg := config.Default()
	cfg.Node.ID = 4
	if err := applyFlags(cmd, cfg, opts); err != nil {
		t.Fatalf("applyFlags: %v", err)
	}
	if cfg.Node.ID != 4 {
		t.Errorf("node: got %d, want 4 from config", cfg.Node.ID)
	}
	if cfg.HTTP.Addr != config.Default().HTTP.Addr {
		t.Errorf("http: got %q", cfg.HTTP.Addr)
	}
}

func TestApplyFlagsRejectsInvalid(t *testing.T) {
	var opts options
	cmd := newRootCmd(&opts)
	cmd.Flags().Set("node", "256")

	if err := applyFlags(cmd, config.Default(), opts); err == nil {
		t.Error("expected node 256 to be rejected")
	}
}

func TestShutdownReason(t *testing.T) {
	tests := []struct {
		cause error
		want  string
	}{
		{signalError{sig: syscall.SIGINT}, "SIGINT"},
		{signalError{sig: syscall.SIGTERM}, "SIGTERM"},
		{signalError{sig: syscall.SIGHUP}, "UNKNOWN"},
		{context.Canceled, "CANCELLED"},
		{nil, "CANCELLED"},
		{errors.New("bus gone"), "bus gone"},
	}
	for _, tt := range tests {
		if got := shutdownReason(tt.cause); got != tt.want {
			t.Errorf("shutdownReason(%v): got %q, want %q", tt.cause, got, tt.want)
		}
	}
}

func TestWatchSignalsCancelsWithSignal(t *testing.T) {
	ctx, cancel := context.WithCancelCause(context.Background())
	sig := make(chan os.Signal, 1)
	sig <- syscall.SIGTERM

	watchSignals(ctx, cancel, sig)

	if ctx.Err() == nil {
		t.Fatal("expected context cancelled")
	}
	if got := shutdownReason(context.Cause(ctx)); got != "SIGTERM" {
		t.Errorf("reason: got %q, want SIGTERM", got)
	}
}

func TestPublishLifecycle(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	tracker := status.NewTracker(time.Now(), status.Config{Node: 2})

	publishLifecycle(pub, tracker, "SHUTDOWN", "SIGTERM")

	if len(pub.SystemEvents) != 1 {
		t.Fatalf("expected 1 event, got %d", len(pub.SystemEvents))
	}
	ev := pub.SystemEvents[0]
	if ev.Event != "SHUTDOWN" || ev.Reason != "SIGTERM" || !ev.Retained {
		t.Errorf("unexpected event: %+v", ev)
	}
	var sj status.StatusJSON
	if err := json.Unmarshal(ev.RawPayload, &sj); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if sj.Status.Event != "SHUTDOWN" || sj.Status.Reason != "SIGTERM" || sj.Status.Node != 2 {
		t.Errorf("unexpected payload: %+v", sj.Status)
	}

	// No broker, nothing to publish.
	publishLifecycle(nil, tracker, "STARTUP", "")
}

func TestRefreshStatusCopiesConnection(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	pub.Connected = true
	tracker := status.NewTracker(time.Now(), status.Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	refreshStatus(ctx, tracker, pub, time.Hour)

	if !tracker.Snapshot().MQTTConnected {
		t.Error("expected MQTT connected copied into tracker")
	}
}

func TestStatusConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Sampling.Period = 2 * time.Second

	sc := statusConfig(cfg)
	if sc.PeriodMs != 2000 {
		t.Errorf("period: got %d, want 2000", sc.PeriodMs)
	}
	if sc.SerialPort != cfg.Transport.Port || sc.Broker != "" {
		t.Errorf("xbee config: port=%q broker=%q", sc.SerialPort, sc.Broker)
	}
	if got := sc.IdleRecalibrationInterval(); got != 30*time.Second {
		t.Errorf("idle interval: got %v, want 30s", got)
	}

	cfg.Transport.Kind = config.TransportMQTT
	sc = statusConfig(cfg)
	if sc.SerialPort != "" || sc.Broker != cfg.Transport.Broker {
		t.Errorf("mqtt config: port=%q broker=%q", sc.SerialPort, sc.Broker)
	}
}

func TestOpenTransportSimulatedRadio(t *testing.T) {
	cfg := config.Default()
	sender, pub, err := openTransport(cfg, true)
	if err != nil {
		t.Fatalf("openTransport: %v", err)
	}
	if pub != nil {
		t.Error("xbee transport should have no publisher")
	}
	if _, ok := sender.(logSender); !ok {
		t.Errorf("expected simulated radio, got %T", sender)
	}
	if err := sender.Send([]byte{0x7E}); err != nil {
		t.Errorf("send: %v", err)
	}
}

func TestOpenTransportUnknown(t *testing.T) {
	cfg := config.Default()
	cfg.Transport.Kind = "lora"
	if _, _, err := openTransport(cfg, true); err == nil {
		t.Error("expected error for unknown transport")
	}
}

func TestSimPIRCycle(t *testing.T) {
	p := &simPIR{cycle: 4, on: 1}
	want := []bool{true, false, false, false, true, false}
	for i, w := range want {
		got, _ := p.Get()
		if got != w {
			t.Errorf("read %d: got %v, want %v", i, got, w)
		}
	}
}

func TestSimulatedHardware(t *testing.T) {
	hw := simulatedHardware()
	defer hw.Close()

	imager := thermal.New(i2cbus.New(hw.bus, 0), thermal.Address)
	if err := imager.Configure(thermal.ModeNormal, thermal.FPS10); err != nil {
		t.Fatalf("configure: %v", err)
	}
	f, err := imager.ReadFrame()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	st := f.Stats()
	if st.Min != 20 || st.Max != 32.5 {
		t.Errorf("stats: got min=%v max=%v, want 20/32.5", st.Min, st.Max)
	}
	therm, err := imager.Thermistor()
	if err != nil || therm != 22 {
		t.Errorf("thermistor: got %v (%v), want 22", therm, err)
	}

	dec, err := rht.NewDecoder(hw.rhtLine, hw.delay, rht.DefaultTiming())
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	r, err := dec.Read()
	if err != nil {
		t.Fatalf("rht read: %v", err)
	}
	if r.Humidity() != 45 || r.Temperature() != 21.5 {
		t.Errorf("rht: got %v%% %v°C, want 45%% 21.5°C", r.Humidity(), r.Temperature())
	}

	unit, err := rht.Calibrate(hw.rhtLine, hw.delay, 2*time.Microsecond, 100, hw.elapsed)
	if err != nil || unit != 2*time.Microsecond {
		t.Errorf("calibrate: got %v (%v), want 2µs", unit, err)
	}
}
