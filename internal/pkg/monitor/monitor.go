package monitor

import (
	"context"
	"sync"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/tflow/internal/pkg/api"
	"github.com/airenas/tflow/internal/pkg/events"
	"github.com/airenas/tflow/internal/pkg/logchannel"
	"github.com/airenas/tflow/internal/pkg/status"
)

// Observer is notified about every visible change
type Observer interface {
	OnLog(ev events.LogEvent)
	OnProgress(v int)
	OnState(st status.State)
}

// Clearer removes data on the server
type Clearer interface {
	Clear(ctx context.Context, IDs ...string) error
}

// Snapshot of the monitor
type Snapshot struct {
	State    status.State      `json:"state"`
	Progress int               `json:"progress"`
	Channel  string            `json:"channel,omitempty"`
	Logs     []events.LogEvent `json:"logs"`
}

// Monitor keeps the observable job surface: state, progress, log and the current channel
type Monitor struct {
	machine  *status.Machine
	logs     *events.Ring
	progress events.Tracker
	clearer  Clearer

	lock      sync.Mutex
	channel   *logchannel.Channel
	serverIDs []string

	obsLock   sync.RWMutex
	observers []Observer
}

// New creates monitor keeping capacity log events
func New(capacity int, clearer Clearer) *Monitor {
	res := &Monitor{logs: events.NewRing(capacity), clearer: clearer}
	res.machine = status.NewMachine(res.notifyState)
	return res
}

// Machine returns the state machine
func (m *Monitor) Machine() *status.Machine {
	return m.machine
}

// Subscribe adds observer
func (m *Monitor) Subscribe(o Observer) {
	m.obsLock.Lock()
	defer m.obsLock.Unlock()
	m.observers = append(m.observers, o)
}

// Log appends event and infers progress from its text
func (m *Monitor) Log(ev events.LogEvent) {
	m.logs.Add(ev)
	goapp.Log.Debug().Str("level", ev.Level.ZeroLevel().String()).Msg(goapp.Sanitize(ev.Message))
	m.each(func(o Observer) { o.OnLog(ev) })
	if p, ok := events.Infer(ev.Message); ok {
		m.Progress(p)
	}
}

// Progress applies value if it does not decrease the displayed one
func (m *Monitor) Progress(v int) {
	d, changed := m.progress.Apply(v)
	if changed {
		m.each(func(o Observer) { o.OnProgress(d) })
	}
}

// Attach makes ch the current channel and closes the previous one
func (m *Monitor) Attach(ch *logchannel.Channel) {
	m.lock.Lock()
	old := m.channel
	m.channel = ch
	m.lock.Unlock()
	if old != nil && old != ch {
		old.Close()
	}
}

// Remember keeps server ID of a finished job for ClearAll
func (m *Monitor) Remember(res *api.ProcessingResult) {
	if res == nil || res.IDString() == "" {
		return
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	m.serverIDs = append(m.serverIDs, res.IDString())
}

// Prepare readies the monitor for the next batch item: the log is kept
// and the previous item's channel is closed.
func (m *Monitor) Prepare() {
	m.closeChannel()
	m.machine.Reset()
	m.resetProgress()
}

// Reset clears log, progress, closes the channel and moves to Idle.
// Returns false if there was nothing to reset.
func (m *Monitor) Reset() bool {
	res := m.closeChannel()
	if m.machine.Reset() {
		res = true
	}
	if m.logs.Len() > 0 {
		m.logs.Clear()
		res = true
	}
	if m.resetProgress() {
		res = true
	}
	if res {
		goapp.Log.Info().Msg("monitor reset")
	}
	return res
}

// ClearAll asks the server to remove data and resets local state even if the call fails
func (m *Monitor) ClearAll(ctx context.Context) error {
	m.lock.Lock()
	ids := m.serverIDs
	m.serverIDs = nil
	m.lock.Unlock()
	var err error
	if m.clearer != nil {
		if err = m.clearer.Clear(ctx, ids...); err != nil {
			goapp.Log.Warn().Err(err).Msg("server clear failed")
		}
	}
	m.Reset()
	return err
}

// Snapshot returns current view
func (m *Monitor) Snapshot() Snapshot {
	res := Snapshot{State: m.machine.State(), Progress: m.progress.Value(), Logs: m.logs.Events()}
	m.lock.Lock()
	ch := m.channel
	m.lock.Unlock()
	if ch != nil {
		res.Channel = ch.Mode().String()
	}
	return res
}

func (m *Monitor) closeChannel() bool {
	m.lock.Lock()
	ch := m.channel
	m.channel = nil
	m.lock.Unlock()
	if ch == nil {
		return false
	}
	ch.Close()
	return true
}

func (m *Monitor) resetProgress() bool {
	if m.progress.Value() == 0 {
		return false
	}
	m.progress.Reset()
	m.each(func(o Observer) { o.OnProgress(0) })
	return true
}

func (m *Monitor) notifyState(st status.State) {
	goapp.Log.Info().Str("status", st.Status.String()).Msg("state")
	m.each(func(o Observer) { o.OnState(st) })
}

func (m *Monitor) each(f func(o Observer)) {
	m.obsLock.RLock()
	obs := m.observers
	m.obsLock.RUnlock()
	for _, o := range obs {
		f(o)
	}
}
