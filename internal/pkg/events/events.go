package events

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Level of a job log line
type Level string

const (
	Info    Level = "info"
	Success Level = "success"
	Warning Level = "warning"
	Error   Level = "error"
)

// ParseLevel returns level from string, unknown values map to Info
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "success":
		return Success
	case "warning", "warn":
		return Warning
	case "error":
		return Error
	}
	return Info
}

// ZeroLevel maps level to a zerolog level
func (l Level) ZeroLevel() zerolog.Level {
	switch l {
	case Warning:
		return zerolog.WarnLevel
	case Error:
		return zerolog.ErrorLevel
	}
	return zerolog.InfoLevel
}

// LogEvent is one user visible log line of a job
type LogEvent struct {
	Time    time.Time `json:"timestamp"`
	Message string    `json:"message"`
	Level   Level     `json:"level"`
}

// New makes event with current time
func New(msg string, l Level) LogEvent {
	return LogEvent{Time: time.Now(), Message: msg, Level: l}
}

// Ring keeps last N events
type Ring struct {
	lock  sync.Mutex
	data  []LogEvent
	start int
	count int
}

// NewRing creates ring, capacity < 1 is treated as 1
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{data: make([]LogEvent, capacity)}
}

// Add appends event evicting the oldest one if full
func (r *Ring) Add(ev LogEvent) {
	r.lock.Lock()
	defer r.lock.Unlock()
	c := len(r.data)
	if r.count < c {
		r.data[(r.start+r.count)%c] = ev
		r.count++
		return
	}
	r.data[r.start] = ev
	r.start = (r.start + 1) % c
}

// Events returns a copy in arrival order
func (r *Ring) Events() []LogEvent {
	r.lock.Lock()
	defer r.lock.Unlock()
	res := make([]LogEvent, 0, r.count)
	for i := 0; i < r.count; i++ {
		res = append(res, r.data[(r.start+i)%len(r.data)])
	}
	return res
}

// Len returns stored event count
func (r *Ring) Len() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.count
}

// Clear drops all events
func (r *Ring) Clear() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.start, r.count = 0, 0
	for i := range r.data {
		r.data[i] = LogEvent{}
	}
}

// Tracker keeps displayed progress, it never goes down until Reset
type Tracker struct {
	lock  sync.Mutex
	value int
}

// Apply sets v if it is not lower than the displayed value and returns the displayed value
func (t *Tracker) Apply(v int) (int, bool) {
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	if v < t.value {
		return t.value, false
	}
	changed := v != t.value
	t.value = v
	return t.value, changed
}

// Value returns the displayed value
func (t *Tracker) Value() int {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.value
}

// Reset sets progress to 0
func (t *Tracker) Reset() {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.value = 0
}

// Milestone maps a log substring to a progress value
type Milestone struct {
	Substr  string
	Percent int
}

// Milestones is checked in order, the first match wins
var Milestones = []Milestone{
	{Substr: "uploading", Percent: 10},
	{Substr: "analyzing audio quality", Percent: 20},
	{Substr: "segmenting", Percent: 30},
	{Substr: "duration detected", Percent: 50},
	{Substr: "language detected", Percent: 60},
	{Substr: "transcribing", Percent: 65},
	{Substr: "transcribed", Percent: 75},
	{Substr: "formatting", Percent: 80},
	{Substr: "generating summary", Percent: 85},
	{Substr: "summary generated", Percent: 90},
	{Substr: "complete", Percent: 95},
}

// Infer returns milestone progress for the message
func Infer(msg string) (int, bool) {
	lm := strings.ToLower(msg)
	for _, m := range Milestones {
		if strings.Contains(lm, m.Substr) {
			return m.Percent, true
		}
	}
	return 0, false
}
