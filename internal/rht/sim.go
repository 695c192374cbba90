package rht

import (
	"sync"
	"time"

	"github.com/sweeney/occupancy-node/internal/delay"
	"github.com/sweeney/occupancy-node/internal/gpio"
)

// Segment is a level held on the line for a duration.
type Segment struct {
	High bool
	For  time.Duration
}

// Sensor response timings.
const (
	simRelease = 20 * time.Microsecond
	simAck     = 80 * time.Microsecond
	simBitLow  = 50 * time.Microsecond
	simZero    = 26 * time.Microsecond
	simOne     = 70 * time.Microsecond
	simWake    = time.Millisecond
)

// Train returns the pulse train a sensor sends for r, starting when the
// host switches the line to input.
func Train(r Reading) []Segment {
	segs := []Segment{
		{High: true, For: simRelease},
		{High: false, For: simAck},
		{High: true, For: simAck},
	}
	for _, b := range r {
		for bit := 7; bit >= 0; bit-- {
			high := simZero
			if b&(1<<bit) != 0 {
				high = simOne
			}
			segs = append(segs, Segment{High: false, For: simBitLow}, Segment{High: true, For: high})
		}
	}
	return append(segs, Segment{High: false, For: simBitLow})
}

// SimLine is a simulated single-wire line driven by a virtual clock. After
// each host request it plays Segments, then idles high.
type SimLine struct {
	mu    sync.Mutex
	clock *delay.Clock

	// Segments is replayed after every valid wake request.
	Segments []Segment

	// Requests counts wake requests the simulated sensor answered.
	Requests int

	dir     gpio.Direction
	out     bool
	lowAt   time.Duration
	start   time.Duration
	playing bool
}

// NewSimLine creates a line idling high on clock.
func NewSimLine(clock *delay.Clock, segs []Segment) *SimLine {
	return &SimLine{clock: clock, Segments: segs, out: true}
}

// Respond sets the reading sent on the next request.
func (s *SimLine) Respond(r Reading) {
	s.mu.Lock()
	s.Segments = Train(r)
	s.mu.Unlock()
}

// Get returns the line level at the current virtual time.
func (s *SimLine) Get() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dir == gpio.Out {
		return s.out, nil
	}
	if !s.playing {
		return true, nil
	}
	t := s.clock.Now() - s.start
	for _, seg := range s.Segments {
		if t < seg.For {
			return seg.High, nil
		}
		t -= seg.For
	}
	s.playing = false
	return true, nil
}

// Set drives the line while it is an output.
func (s *SimLine) Set(high bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out && !high {
		s.lowAt = s.clock.Now()
	}
	s.out = high
	return nil
}

// SetDirection switches the line. Releasing the line after a low pulse of
// at least a millisecond starts the response.
func (s *SimLine) SetDirection(d gpio.Direction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dir == gpio.Out && d == gpio.In && s.out {
		now := s.clock.Now()
		if now-s.lowAt >= simWake {
			s.start = now
			s.playing = true
			s.Requests++
		}
	}
	if d == gpio.Out {
		s.playing = false
	}
	s.dir = d
	return nil
}
