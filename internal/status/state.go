package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/swaply/exchat/internal/dispatch"
	"github.com/swaply/exchat/internal/event"
)

// State represents the transport connection state.
type State string

const (
	Disconnected State = "DISCONNECTED"
	Connecting   State = "CONNECTING"
	Connected    State = "CONNECTED"
	Reconnecting State = "RECONNECTING"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Disconnected: {Connecting},
	Connecting:   {Connected, Disconnected},
	Connected:    {Reconnecting, Disconnected},
	Reconnecting: {Connecting, Connected, Disconnected},
}

// Machine tracks and enforces connection state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	disp    *dispatch.Dispatcher
}

// NewMachine creates a new state machine starting in Disconnected state.
func NewMachine(d *dispatch.Dispatcher) *Machine {
	return &Machine{
		current: Disconnected,
		disp:    d,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is
// invalid; the state is left untouched in that case.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		m.mu.Unlock()
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.mu.Unlock()

	if m.disp != nil {
		m.disp.Publish(event.Event{
			Kind:      event.KindStateChanged,
			Timestamp: time.Now(),
			Payload: event.StateChange{
				From: string(from),
				To:   string(to),
			},
		})
	}
	return nil
}
