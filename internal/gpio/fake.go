package gpio

import (
	"errors"
	"io"
	"sync"
)

// FakeInput is a test double that returns scripted levels.
type FakeInput struct {
	mu sync.Mutex

	// Levels contains the scripted values to return.
	// Each call to Get() consumes the next level.
	Levels []bool

	// index tracks current position in Levels
	index int

	// Reads counts calls to Get.
	Reads int

	// ReadError, if set, will be returned by Get().
	ReadError error
}

// NewFakeInput creates a FakeInput with the given levels.
func NewFakeInput(levels ...bool) *FakeInput {
	return &FakeInput{Levels: levels}
}

// Get returns the next scripted level.
// If levels are exhausted, returns the last level repeatedly.
func (f *FakeInput) Get() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reads++
	if f.ReadError != nil {
		return false, f.ReadError
	}
	if len(f.Levels) == 0 {
		return false, errors.New("no levels configured")
	}
	level := f.Levels[f.index]
	if f.index < len(f.Levels)-1 {
		f.index++
	}
	return level, nil
}

// Reset rewinds the input to the first level.
func (f *FakeInput) Reset() {
	f.mu.Lock()
	f.index = 0
	f.Reads = 0
	f.mu.Unlock()
}

// FakeOutput records every level written to it.
type FakeOutput struct {
	mu      sync.Mutex
	level   bool
	History []bool

	// WriteError, if set, will be returned by Set().
	WriteError error
}

// Set records the level.
func (f *FakeOutput) Set(high bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteError != nil {
		return f.WriteError
	}
	f.level = high
	f.History = append(f.History, high)
	return nil
}

// Level returns the last level written.
func (f *FakeOutput) Level() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.level
}

// FakeWatcher records edge registrations and lets tests fire edges.
type FakeWatcher struct {
	mu       sync.Mutex
	handlers map[int]func(Event)
	edges    map[int]Edge

	// WatchError, if set, will be returned by Watch().
	WatchError error
}

// NewFakeWatcher creates an empty FakeWatcher.
func NewFakeWatcher() *FakeWatcher {
	return &FakeWatcher{
		handlers: map[int]func(Event){},
		edges:    map[int]Edge{},
	}
}

// Watch registers handler for offset.
func (w *FakeWatcher) Watch(offset int, edge Edge, pull Pull, handler func(Event)) (io.Closer, error) {
	if w.WatchError != nil {
		return nil, w.WatchError
	}
	w.mu.Lock()
	w.handlers[offset] = handler
	w.edges[offset] = edge
	w.mu.Unlock()
	return closerFunc(func() error {
		w.mu.Lock()
		delete(w.handlers, offset)
		delete(w.edges, offset)
		w.mu.Unlock()
		return nil
	}), nil
}

// Fire delivers an edge on offset, as an interrupt would. It reports whether
// a handler was registered and the edge matched its configuration.
func (w *FakeWatcher) Fire(offset int, edge Edge) bool {
	w.mu.Lock()
	h := w.handlers[offset]
	want := w.edges[offset]
	w.mu.Unlock()
	if h == nil || (want != EdgeBoth && want != edge) {
		return false
	}
	h(Event{Offset: offset, Edge: edge})
	return true
}

// Watching reports whether offset has a registered handler.
func (w *FakeWatcher) Watching(offset int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.handlers[offset] != nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
