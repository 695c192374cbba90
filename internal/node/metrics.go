package node

import (
	"fmt"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/sweeney/occupancy-node/internal/frame"
	"github.com/sweeney/occupancy-node/internal/logic"
)

// Metrics are the node's Prometheus counters, registered on their own set so
// tests can create as many nodes as they like.
type Metrics struct {
	set  *metrics.Set
	node byte

	ticks        *metrics.Counter
	disabled     *metrics.Counter
	sendErrors   *metrics.Counter
	busErrors    *metrics.Counter
	sensorErrors *metrics.Counter
	pirErrors    *metrics.Counter
	tickDuration *metrics.Histogram
}

// NewMetrics registers the node's metrics on set.
func NewMetrics(set *metrics.Set, node byte) *Metrics {
	return &Metrics{
		set:          set,
		node:         node,
		ticks:        set.NewCounter(fmt.Sprintf(`occupancy_ticks_total{node="%d"}`, node)),
		disabled:     set.NewCounter(fmt.Sprintf(`occupancy_ticks_disabled_total{node="%d"}`, node)),
		sendErrors:   set.NewCounter(fmt.Sprintf(`occupancy_send_errors_total{node="%d"}`, node)),
		busErrors:    set.NewCounter(fmt.Sprintf(`occupancy_bus_errors_total{node="%d"}`, node)),
		sensorErrors: set.NewCounter(fmt.Sprintf(`occupancy_rht_errors_total{node="%d"}`, node)),
		pirErrors:    set.NewCounter(fmt.Sprintf(`occupancy_pir_errors_total{node="%d"}`, node)),
		tickDuration: set.NewHistogram(fmt.Sprintf(`occupancy_tick_duration_seconds{node="%d"}`, node)),
	}
}

// Set returns the underlying metrics set.
func (m *Metrics) Set() *metrics.Set { return m.set }

func (m *Metrics) state(s logic.State) {
	m.set.GetOrCreateCounter(fmt.Sprintf(`occupancy_state_ticks_total{node="%d",state="%s"}`, m.node, s)).Inc()
}

func (m *Metrics) frame(k frame.Kind) {
	m.set.GetOrCreateCounter(fmt.Sprintf(`occupancy_frames_total{node="%d",kind="%s"}`, m.node, k)).Inc()
}

func (m *Metrics) observe(start time.Time) {
	m.tickDuration.UpdateDuration(start)
}
