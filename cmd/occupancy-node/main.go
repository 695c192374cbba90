// Command occupancy-node samples a thermal-array imager, a PIR sensor and an
// RHT03 humidity sensor, and sends telemetry frames over an XBee radio or MQTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/sweeney/occupancy-node/internal/config"
	"github.com/sweeney/occupancy-node/internal/i2cbus"
	"github.com/sweeney/occupancy-node/internal/logic"
	"github.com/sweeney/occupancy-node/internal/mqtt"
	"github.com/sweeney/occupancy-node/internal/node"
	"github.com/sweeney/occupancy-node/internal/rht"
	"github.com/sweeney/occupancy-node/internal/status"
	"github.com/sweeney/occupancy-node/internal/thermal"
	"github.com/sweeney/occupancy-node/internal/ticker"
	"github.com/sweeney/occupancy-node/internal/transport"
	"github.com/sweeney/occupancy-node/internal/trigger"
	"github.com/sweeney/occupancy-node/internal/web"
)

var version = "dev"

// statusRefresh is how often MQTT and network state are copied into the
// status tracker.
const statusRefresh = 5 * time.Second

// calibrationPolls is the number of pin reads timed by the RHT calibration.
const calibrationPolls = 10000

type options struct {
	configPath string
	simulate   bool
	printState bool
	node       int
	transport  string
	httpAddr   string
}

func main() {
	var opts options
	if err := fang.Execute(context.Background(), newRootCmd(&opts)); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "occupancy-node",
		Short: "Occupancy sensing node",
		Long: `occupancy-node watches a PIR sensor and samples an 8x8 thermal imager
while a room is occupied. Live frames carry the thermal payload, humidity
and temperature; background frames recalibrate the collector's baseline.

Sampling starts when the coordinator raises the request line or the
button is pressed.`,
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if err := applyFlags(cmd, cfg, *opts); err != nil {
				return err
			}
			return run(cmd.Context(), cfg, *opts)
		},
		SilenceUsage: true,
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "/etc/occupancy-node.yaml", "YAML config file")
	f.BoolVar(&opts.simulate, "simulate", false, "Run against simulated sensors instead of hardware")
	f.BoolVar(&opts.printState, "print-state", false, "Read every sensor once, print the readings and exit")
	f.IntVar(&opts.node, "node", 0, "Node id (overrides config)")
	f.StringVar(&opts.transport, "transport", "", "Frame transport: xbee, mqtt or both (overrides config)")
	f.StringVar(&opts.httpAddr, "http", "", `HTTP status address (overrides config, "off" disables)`)
	return cmd
}

// applyFlags copies explicitly set flags over the loaded config.
func applyFlags(cmd *cobra.Command, cfg *config.Config, opts options) error {
	f := cmd.Flags()
	if f.Changed("node") {
		cfg.Node.ID = opts.node
	}
	if f.Changed("transport") {
		cfg.Transport.Kind = opts.transport
	}
	if f.Changed("http") {
		cfg.HTTP.Addr = opts.httpAddr
		if opts.httpAddr == "off" {
			cfg.HTTP.Addr = ""
		}
	}
	if opts.simulate {
		cfg.Sampling.StartEnabled = true
	}
	return cfg.Validate()
}

func run(ctx context.Context, cfg *config.Config, opts options) error {
	hw, err := openHardware(cfg, opts.simulate)
	if err != nil {
		return fmt.Errorf("init hardware: %w", err)
	}
	defer hw.Close()

	rate, err := cfg.FrameRate()
	if err != nil {
		return err
	}
	imager := thermal.New(i2cbus.New(hw.bus, cfg.Thermal.Timeout), cfg.Thermal.Address)
	if err := imager.Configure(thermal.ModeNormal, rate); err != nil {
		return fmt.Errorf("configure thermal imager: %w", err)
	}
	if t, err := imager.Thermistor(); err != nil {
		log.Printf("thermistor read error: %v", err)
	} else {
		log.Printf("thermal imager ready: mode=%s thermistor=%.2f°C", imager.Mode(), t)
	}

	timing := cfg.RHT.Timing
	if cfg.RHT.Calibrate {
		unit, err := rht.Calibrate(hw.rhtLine, hw.delay, timing.PollDelay(), calibrationPolls, hw.elapsed)
		if err != nil {
			return fmt.Errorf("calibrate rht: %w", err)
		}
		timing = timing.WithUnit(unit)
		log.Printf("rht calibrated: unit=%v threshold=%d limit=%d", unit, timing.ThresholdCounts(), timing.LimitCounts())
	}
	decoder, err := rht.NewDecoder(hw.rhtLine, hw.delay, timing)
	if err != nil {
		return fmt.Errorf("init rht: %w", err)
	}

	if opts.printState {
		return printState(hw, imager, decoder)
	}

	sender, publisher, err := openTransport(cfg, opts.simulate)
	if err != nil {
		return fmt.Errorf("init transport: %w", err)
	}
	defer sender.Close()

	timer := ticker.NewPeriodic()
	ctrl := trigger.NewController(timer, cfg.Sampling.Period, hw.display)
	edges, err := ctrl.Attach(hw.watcher, cfg.Pins.Request, cfg.Pins.Button)
	if err != nil {
		return fmt.Errorf("attach triggers: %w", err)
	}
	defer edges.Close()
	defer timer.Stop()

	encoder, err := cfg.Encoder()
	if err != nil {
		return err
	}

	tracker := status.NewTracker(time.Now(), statusConfig(cfg))
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	id := byte(cfg.Node.ID)
	set := metrics.NewSet()
	n := node.New(node.Config{ID: id, Duty: byte(cfg.Node.Duty)}, node.Deps{
		PIR:     hw.pir,
		Gate:    ctrl,
		Machine: logic.NewMachine(cfg.Logic(), ctrl.Shared()),
		Thermal: imager,
		RHT:     decoder,
		Encoder: encoder,
		Sender:  sender,
		Tracker: tracker,
		Metrics: node.NewMetrics(set, id),
	})

	publishLifecycle(publisher, tracker, "STARTUP", "")

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, set)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTP.Addr)
	}

	if cfg.Sampling.StartEnabled {
		ctrl.OnExternalEdge(true)
	}

	log.Printf("started: node=%d period=%v hold=%d idle=%d (%v) periodic=%d (%v) transport=%s",
		cfg.Node.ID, cfg.Sampling.Period, cfg.Sampling.HoldTicks,
		cfg.Sampling.IdleRecalibrationTicks, time.Duration(cfg.Sampling.IdleRecalibrationTicks)*cfg.Sampling.Period,
		cfg.Sampling.PeriodicRecalibrationTicks, time.Duration(cfg.Sampling.PeriodicRecalibrationTicks)*cfg.Sampling.Period,
		cfg.Transport.Kind)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go watchSignals(ctx, cancel, sigCh)
	go refreshStatus(ctx, tracker, publisher, statusRefresh)

	if err := n.Run(ctx, timer.C()); err != nil {
		return err
	}

	reason := shutdownReason(context.Cause(ctx))
	log.Printf("shutting down: %s", reason)
	if c, ok := publisher.(mqtt.ConnectionStatus); ok {
		tracker.SetMQTTConnected(c.IsConnected())
	}
	tracker.SetFrames(n.Frames())
	publishLifecycle(publisher, tracker, "SHUTDOWN", reason)
	return nil
}

// signalError carries the signal that stopped the node as a context cause.
type signalError struct {
	sig os.Signal
}

func (e signalError) Error() string { return "received " + signalName(e.sig) }

func watchSignals(ctx context.Context, cancel context.CancelCauseFunc, sig <-chan os.Signal) {
	select {
	case s := <-sig:
		cancel(signalError{sig: s})
	case <-ctx.Done():
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// shutdownReason names what stopped the run loop.
func shutdownReason(cause error) string {
	var se signalError
	if errors.As(cause, &se) {
		return signalName(se.sig)
	}
	if cause == nil || errors.Is(cause, context.Canceled) {
		return "CANCELLED"
	}
	return cause.Error()
}

// publishLifecycle publishes a retained status snapshot. It is a no-op
// without an MQTT publisher.
func publishLifecycle(p mqtt.Publisher, tracker *status.Tracker, event, reason string) {
	if p == nil {
		return
	}
	snap := tracker.Snapshot()
	ev := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := p.PublishSystem(ev); err != nil {
		log.Printf("failed to publish %s event: %v", event, err)
		return
	}
	log.Printf("published %s event", event)
}

// refreshStatus copies MQTT connection and network state into tracker until
// ctx is done.
func refreshStatus(ctx context.Context, tracker *status.Tracker, p mqtt.Publisher, every time.Duration) {
	conn, _ := p.(mqtt.ConnectionStatus)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		if conn != nil {
			tracker.SetMQTTConnected(conn.IsConnected())
		}
		if net := readNetworkInfo(); net != nil {
			tracker.SetNetwork(net)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// openTransport builds the frame sender for cfg. The returned publisher is
// nil unless MQTT is in use.
func openTransport(cfg *config.Config, simulate bool) (transport.Sender, mqtt.Publisher, error) {
	openRadio := func() (transport.Sender, error) {
		if simulate {
			return logSender{}, nil
		}
		x, err := transport.OpenXBee(cfg.Transport.Port, cfg.Transport.Baud)
		if err != nil {
			return nil, err
		}
		return x, nil
	}
	openBroker := func() (*mqtt.RealPublisher, error) {
		return mqtt.NewRealPublisher(cfg.Transport.Broker, byte(cfg.Node.ID), cfg.Transport.BufferSize)
	}

	switch cfg.Transport.Kind {
	case config.TransportXBee:
		radio, err := openRadio()
		if err != nil {
			return nil, nil, err
		}
		return radio, nil, nil
	case config.TransportMQTT:
		pub, err := openBroker()
		if err != nil {
			return nil, nil, err
		}
		return pub, pub, nil
	case config.TransportBoth:
		radio, err := openRadio()
		if err != nil {
			return nil, nil, err
		}
		pub, err := openBroker()
		if err != nil {
			radio.Close()
			return nil, nil, err
		}
		return transport.Tee{radio, pub}, pub, nil
	}
	return nil, nil, fmt.Errorf("unknown transport %q", cfg.Transport.Kind)
}

// logSender stands in for the radio in simulation.
type logSender struct{}

func (logSender) Send(b []byte) error {
	log.Printf("xbee: % X", b)
	return nil
}

func (logSender) Close() error { return nil }

func statusConfig(cfg *config.Config) status.Config {
	sc := status.Config{
		Node:                       cfg.Node.ID,
		PeriodMs:                   cfg.Sampling.Period.Milliseconds(),
		HoldTicks:                  cfg.Sampling.HoldTicks,
		IdleRecalibrationTicks:     cfg.Sampling.IdleRecalibrationTicks,
		PeriodicRecalibrationTicks: cfg.Sampling.PeriodicRecalibrationTicks,
		Transport:                  cfg.Transport.Kind,
		HTTPAddr:                   cfg.HTTP.Addr,
	}
	if cfg.Transport.Kind != config.TransportMQTT {
		sc.SerialPort = cfg.Transport.Port
	}
	if cfg.Transport.Kind != config.TransportXBee {
		sc.Broker = cfg.Transport.Broker
	}
	return sc
}

func printState(hw *hardware, imager *thermal.Driver, decoder *rht.Decoder) error {
	pir, err := hw.pir.Get()
	if err != nil {
		return fmt.Errorf("read pir: %w", err)
	}
	f, err := imager.ReadFrame()
	if err != nil {
		return fmt.Errorf("read thermal frame: %w", err)
	}
	therm, err := imager.Thermistor()
	if err != nil {
		return fmt.Errorf("read thermistor: %w", err)
	}
	st := f.Stats()
	fmt.Printf("PIR: %s\n", motionString(pir))
	fmt.Printf("Thermal: min=%.2f max=%.2f mean=%.2f sd=%.2f thermistor=%.2f\n", st.Min, st.Max, st.Mean, st.StdDev, therm)

	r, err := decoder.Read()
	if err != nil {
		fmt.Printf("RHT: read failed: %v\n", err)
		return nil
	}
	fmt.Printf("RHT: humidity=%.1f%% temperature=%.1f\n", r.Humidity(), r.Temperature())
	return nil
}

func motionString(pir bool) string {
	if pir {
		return "MOTION"
	}
	return "QUIET"
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
