// Package lifecycle tracks whether a content surface is loading, ready or
// errored. It is the only writer of that state; the router reads it to decide
// whether inbound messages may be dispatched.
package lifecycle

import (
	"errors"
	"fmt"
	"sync"
)

// State of the content surface.
type State int

const (
	Loading State = iota
	Ready
	Errored
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

// ErrInvalidTransition is returned for transitions the state machine does
// not allow, such as retrying a surface that is already ready.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// Transition describes one state change.
type Transition struct {
	From       State
	To         State
	Generation uint64
	Err        *LoadError
}

// Observer is notified after every transition, outside the machine's lock.
type Observer func(Transition)

// Machine is the content lifecycle state machine. Every entry into Loading
// starts a new load generation; completion events carrying an older
// generation are ignored, so a slow failure from a previous load cannot
// overwrite a fresh one.
type Machine struct {
	mu         sync.RWMutex
	state      State
	generation uint64
	err        *LoadError
	observers  []Observer
}

// New returns a machine in the initial Loading state, generation 0.
func New() *Machine {
	return &Machine{state: Loading}
}

// OnTransition registers an observer.
func (m *Machine) OnTransition(fn Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Generation returns the current load generation.
func (m *Machine) Generation() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generation
}

// Err returns the error of the last failed load while Errored.
func (m *Machine) Err() *LoadError {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

// Begin starts a load from any state and returns its generation.
func (m *Machine) Begin() uint64 {
	gen, _ := m.enterLoading(func(State) bool { return true })
	return gen
}

// Retry re-enters Loading from Errored.
func (m *Machine) Retry() (uint64, error) {
	return m.enterLoading(func(s State) bool { return s == Errored })
}

// Reload re-enters Loading from Ready, for an explicit reload or a changed
// developer URL.
func (m *Machine) Reload() (uint64, error) {
	return m.enterLoading(func(s State) bool { return s == Ready })
}

// Loaded completes load gen successfully. It reports false when gen is stale
// or the machine is not loading.
func (m *Machine) Loaded(gen uint64) bool {
	return m.complete(gen, Ready, nil)
}

// Failed completes load gen with an error. It reports false when gen is
// stale or the machine is not loading.
func (m *Machine) Failed(gen uint64, err error) bool {
	return m.complete(gen, Errored, AsLoadError(err))
}

func (m *Machine) enterLoading(allowed func(State) bool) (uint64, error) {
	m.mu.Lock()
	from := m.state
	if !allowed(from) {
		m.mu.Unlock()
		return 0, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, Loading)
	}

	// The error is cleared before the generation moves on.
	m.err = nil
	m.state = Loading
	m.generation++
	t := Transition{From: from, To: Loading, Generation: m.generation}
	observers := m.snapshotObservers()
	m.mu.Unlock()

	notify(observers, t)
	return t.Generation, nil
}

func (m *Machine) complete(gen uint64, to State, loadErr *LoadError) bool {
	m.mu.Lock()
	if gen != m.generation || m.state != Loading {
		m.mu.Unlock()
		return false
	}

	m.state = to
	m.err = loadErr
	t := Transition{From: Loading, To: to, Generation: gen, Err: loadErr}
	observers := m.snapshotObservers()
	m.mu.Unlock()

	notify(observers, t)
	return true
}

func (m *Machine) snapshotObservers() []Observer {
	return append([]Observer(nil), m.observers...)
}

func notify(observers []Observer, t Transition) {
	for _, fn := range observers {
		fn(t)
	}
}
