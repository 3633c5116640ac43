package status

import (
	"errors"
	"sync"

	"github.com/airenas/tflow/internal/pkg/api"
)

var (
	// ErrStale ticket belongs to a job that was reset or finished
	ErrStale = errors.New("stale job ticket")
	// ErrBusy a job is already in flight
	ErrBusy = errors.New("job in progress")
	// ErrNotIdle previous job result must be reset first
	ErrNotIdle = errors.New("not idle")
)

// Ticket identifies a started job, it is invalidated by Reset
type Ticket uint64

// State is a snapshot of the machine
type State struct {
	Status Status                `json:"status"`
	Result *api.ProcessingResult `json:"result,omitempty"`
	Error  string                `json:"error,omitempty"`
}

// Machine drives Idle -> Uploading -> Processing -> Ready|Error -> Idle.
// Listener is called after the state lock is released, in transition order.
// It may read the machine but must not change it.
type Machine struct {
	lock       sync.Mutex
	notifyLock sync.Mutex
	state      State
	epoch      uint64
	listener   func(State)
}

// NewMachine creates a machine in Idle state
func NewMachine(listener func(State)) *Machine {
	return &Machine{state: State{Status: Idle}, listener: listener}
}

// State returns current snapshot
func (m *Machine) State() State {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.state
}

// Start moves Idle to Uploading
func (m *Machine) Start() (Ticket, error) {
	m.lock.Lock()
	if m.state.Status.InFlight() {
		m.lock.Unlock()
		return 0, ErrBusy
	}
	if m.state.Status.Terminal() {
		m.lock.Unlock()
		return 0, ErrNotIdle
	}
	m.epoch++
	res := Ticket(m.epoch)
	m.setAndUnlock(State{Status: Uploading})
	return res, nil
}

// Acknowledge moves Uploading to Processing, it is a no-op in any other state
func (m *Machine) Acknowledge(t Ticket) error {
	m.lock.Lock()
	if err := m.check(t); err != nil {
		m.lock.Unlock()
		return err
	}
	if m.state.Status != Uploading {
		m.lock.Unlock()
		return nil
	}
	m.setAndUnlock(State{Status: Processing})
	return nil
}

// Complete finishes the job with result
func (m *Machine) Complete(t Ticket, res *api.ProcessingResult) error {
	m.lock.Lock()
	if err := m.check(t); err != nil {
		m.lock.Unlock()
		return err
	}
	m.setAndUnlock(State{Status: Ready, Result: res})
	return nil
}

// Fail finishes the job with error message
func (m *Machine) Fail(t Ticket, msg string) error {
	m.lock.Lock()
	if err := m.check(t); err != nil {
		m.lock.Unlock()
		return err
	}
	m.setAndUnlock(State{Status: Error, Error: msg})
	return nil
}

// Reset returns to Idle and invalidates all tickets. Returns false if already idle.
func (m *Machine) Reset() bool {
	m.lock.Lock()
	m.epoch++
	if m.state.Status == Idle {
		m.lock.Unlock()
		return false
	}
	m.setAndUnlock(State{Status: Idle})
	return true
}

func (m *Machine) check(t Ticket) error {
	if uint64(t) != m.epoch || !m.state.Status.InFlight() {
		return ErrStale
	}
	return nil
}

// setAndUnlock must be called holding lock. notifyLock is taken before lock is released
// so listeners see the transitions in order.
func (m *Machine) setAndUnlock(st State) {
	m.state = st
	m.notifyLock.Lock()
	defer m.notifyLock.Unlock()
	m.lock.Unlock()
	if m.listener != nil {
		m.listener(st)
	}
}
