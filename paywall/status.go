package paywall

import "sync"

// Status is the externally observable paywall state.
type Status string

const (
	StatusConnect    Status = "connect"
	StatusConnected  Status = "connected"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
)

// State is a snapshot of the status machine.
type State struct {
	Status         Status
	ErrorMessage   string
	ProcessingText string
}

// StatusMachine holds the paywall state and notifies subscribers of every
// transition. Subscribers run synchronously, outside the lock.
type StatusMachine struct {
	mu     sync.Mutex
	state  State
	nextID int
	subs   map[int]func(State)
}

// NewStatusMachine returns a machine in StatusConnect.
func NewStatusMachine() *StatusMachine {
	return &StatusMachine{
		state: State{Status: StatusConnect},
		subs:  make(map[int]func(State)),
	}
}

// State returns the current state.
func (m *StatusMachine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers fn for state changes and returns its unsubscribe func.
func (m *StatusMachine) Subscribe(fn func(State)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// Connected marks the wallet connected and clears any message.
func (m *StatusMachine) Connected() {
	m.set(State{Status: StatusConnected})
}

// Processing marks an action in progress with a progress text.
func (m *StatusMachine) Processing(text string) {
	m.set(State{Status: StatusProcessing, ProcessingText: text})
}

// Succeeded marks the payment accepted.
func (m *StatusMachine) Succeeded() {
	m.set(State{Status: StatusSuccess})
}

// Failed records a terminal error.
func (m *StatusMachine) Failed(message string) {
	m.set(State{Status: StatusError, ErrorMessage: message})
}

// Retry returns from an error to StatusConnected so the user can try again.
// It does nothing in any other state.
func (m *StatusMachine) Retry() {
	m.mu.Lock()
	if m.state.Status != StatusError {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.Connected()
}

// Reset returns to StatusConnect, as after a disconnect.
func (m *StatusMachine) Reset() {
	m.set(State{Status: StatusConnect})
}

func (m *StatusMachine) set(state State) {
	m.mu.Lock()
	m.state = state
	subs := make([]func(State), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
}
