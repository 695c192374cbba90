package logic

// Machine is the activity state machine. It is driven from the tick
// goroutine only; anything shared with interrupt handlers goes through
// Shared.
type Machine struct {
	cfg    Config
	shared Shared

	state       State
	pirTimer    int
	pirInactive int
	counts      Counts
}

// NewMachine creates a machine in INACTIVE_IDLE with a full hold timer, so
// the first ticks after power-up still sample.
func NewMachine(cfg Config, shared Shared) *Machine {
	return &Machine{
		cfg:      cfg,
		shared:   shared,
		state:    StateInactiveIdle,
		pirTimer: cfg.HoldTicks,
	}
}

// Step advances the machine by one tick with the raw PIR level.
func (m *Machine) Step(pir bool) Decision {
	switch {
	case pir:
		m.state = StateActive
		m.pirInactive = 0
		m.pirTimer = m.cfg.HoldTicks
		m.counts.Active++
	case m.pirTimer > 0:
		m.state = StateInactiveTiming
		m.pirInactive++
		m.pirTimer--
		m.counts.InactiveTiming++
	default:
		m.state = StateInactiveIdle
		m.pirInactive++
		m.counts.InactiveIdle++
	}
	m.counts.Ticks++

	d := Decision{
		State:       m.state,
		PIR:         pir,
		IndicatorOn: m.shared.ToggleIndicator(m.state),
	}

	bg := m.shared.AdvanceBackground()
	switch {
	case m.pirInactive >= m.cfg.IdleRecalibrationTicks:
		d.RecalibrateIdle = true
		m.counts.IdleRecalibrations++
	case bg >= m.cfg.PeriodicRecalibrationTicks:
		d.RecalibrateActive = true
		m.counts.ActiveRecalibrations++
	}
	if d.RecalibrateIdle || d.RecalibrateActive {
		m.shared.ResetBackground()
		m.pirInactive = 0
		bg = 0
	}

	d.Acquire = m.pirTimer > 0
	d.PIRTimer = m.pirTimer
	d.PIRInactive = m.pirInactive
	d.Background = bg
	return d
}

// State returns the state after the last step.
func (m *Machine) State() State {
	return m.state
}

// Counts returns the tick and recalibration counts since startup.
func (m *Machine) Counts() Counts {
	return m.counts
}
