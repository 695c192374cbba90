package trigger

import (
	"sync"

	"github.com/sweeney/occupancy-node/internal/indicator"
	"github.com/sweeney/occupancy-node/internal/logic"
)

// SharedSamplingState is the state written by edge handlers and read by the
// tick. Every method is a critical section, so a tick never observes half
// of an enable or disable.
type SharedSamplingState struct {
	mu      sync.Mutex
	display indicator.Display

	enabled     bool
	background  int
	indicatorOn bool
	color       indicator.Color
	enables     int
	disables    int
}

// Snapshot is a consistent copy of SharedSamplingState.
type Snapshot struct {
	Enabled     bool
	Background  int
	IndicatorOn bool
	Color       indicator.Color
	Enables     int
	Disables    int
}

func newShared(display indicator.Display) *SharedSamplingState {
	return &SharedSamplingState{display: display}
}

// Enabled reports whether sampling is enabled.
func (s *SharedSamplingState) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Snapshot returns a copy of the state.
func (s *SharedSamplingState) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Enabled:     s.enabled,
		Background:  s.background,
		IndicatorOn: s.indicatorOn,
		Color:       s.color,
		Enables:     s.enables,
		Disables:    s.disables,
	}
}

// AdvanceBackground increments the background timer. A tick that completes
// after a disable does not advance it.
func (s *SharedSamplingState) AdvanceBackground() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enabled {
		s.background++
	}
	return s.background
}

// ResetBackground sets the background timer to zero.
func (s *SharedSamplingState) ResetBackground() {
	s.mu.Lock()
	s.background = 0
	s.mu.Unlock()
}

// ToggleIndicator flips the indicator and shows the colour for st while it
// is lit. While disabled the indicator stays dark.
func (s *SharedSamplingState) ToggleIndicator(st logic.State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled {
		return false
	}
	s.indicatorOn = !s.indicatorOn
	s.color = indicator.Off
	if s.indicatorOn {
		s.color = indicator.ColorFor(st)
	}
	s.show()
	return s.indicatorOn
}

// setEnabled changes the flag and reports whether it changed. Disabling
// also resets the background timer and clears the indicator.
func (s *SharedSamplingState) setEnabled(on bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enabled == on {
		return false
	}
	s.enabled = on
	if on {
		s.enables++
		return true
	}
	s.disables++
	s.background = 0
	s.indicatorOn = false
	s.color = indicator.Off
	s.show()
	return true
}

// show writes the current colour. Indicator failures are not reported from
// interrupt context.
func (s *SharedSamplingState) show() {
	if s.display != nil {
		_ = s.display.Show(s.color)
	}
}
