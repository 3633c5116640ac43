package task

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/tflow/internal/pkg/api"
	"github.com/airenas/tflow/internal/pkg/events"
	"github.com/airenas/tflow/internal/pkg/logchannel"
	"github.com/airenas/tflow/internal/pkg/monitor"
	"github.com/airenas/tflow/internal/pkg/status"
	"github.com/airenas/tflow/internal/pkg/transcriber"
	"github.com/google/uuid"
)

// ErrNoFile request has no file
var ErrNoFile = api.ErrNoFile

// Uploader submits audio and waits for the result
type Uploader interface {
	Upload(ctx context.Context, requestID string, data *api.UploadRequest, onSent func()) (*api.ProcessingResult, error)
}

// ChannelOpener opens log channel for a request
type ChannelOpener interface {
	Open(ctx context.Context, ID string, sink logchannel.Sink) *logchannel.Channel
}

// Archiver stores successful results
type Archiver interface {
	SaveResult(ctx context.Context, requestID string, res *api.ProcessingResult) error
}

// Task runs one file upload lifecycle
type Task struct {
	Uploader   Uploader
	Channels   ChannelOpener
	Monitor    *monitor.Monitor
	NewID      func() string
	CloseGrace time.Duration
	ArmDelay   time.Duration
	// Archiver is optional
	Archiver Archiver
}

// Validate checks if task is configured
func (t *Task) Validate() error {
	if t.Uploader == nil {
		return fmt.Errorf("no Uploader")
	}
	if t.Channels == nil {
		return fmt.Errorf("no ChannelOpener")
	}
	if t.Monitor == nil {
		return fmt.Errorf("no Monitor")
	}
	if t.CloseGrace < 2*time.Second || t.CloseGrace > 5*time.Second {
		return fmt.Errorf("close grace %v not in [2s, 5s]", t.CloseGrace)
	}
	return nil
}

// Run processes the request
func (t *Task) Run(ctx context.Context, req *api.UploadRequest) (*api.ProcessingResult, error) {
	_, res, err := t.Execute(ctx, req)
	return res, err
}

// Execute processes the request and returns the generated request ID
func (t *Task) Execute(ctx context.Context, req *api.UploadRequest) (string, *api.ProcessingResult, error) {
	if err := req.Validate(); err != nil {
		return "", nil, err
	}
	defer goapp.Estimate("task")()
	name := req.Name()
	t.Monitor.Log(events.New(fmt.Sprintf("File selected: %s (%.2f MB)", name, float64(req.SizeBytes)/(1024*1024)), events.Info))

	ID := t.newID()
	sink := &ackSink{Sink: t.Monitor, machine: t.Monitor.Machine()}
	ch := t.Channels.Open(ctx, ID, sink)
	t.Monitor.Attach(ch)
	goapp.Log.Info().Str("ID", ID).Str("file", name).Str("channel", ch.Mode().String()).Msg("channel opened")

	if err := sleep(ctx, t.ArmDelay); err != nil {
		ch.Close()
		return ID, nil, err
	}
	tk, err := t.Monitor.Machine().Start()
	if err != nil {
		ch.Close()
		return ID, nil, fmt.Errorf("can't start: %w", err)
	}
	sink.arm(tk)
	defer ch.CloseAfter(t.CloseGrace)

	t.Monitor.Log(events.New(fmt.Sprintf("Uploading %s...", name), events.Info))
	res, err := t.Uploader.Upload(ctx, ID, req, func() { _ = t.Monitor.Machine().Acknowledge(tk) })
	if err != nil {
		msg := errorMessage(err)
		goapp.Log.Error().Err(err).Str("ID", ID).Msg("upload failed")
		if errF := t.Monitor.Machine().Fail(tk, msg); errF != nil {
			return ID, nil, fmt.Errorf("%v: %w", err, errF)
		}
		t.Monitor.Log(events.New(fmt.Sprintf("Failed %s: %s", name, msg), events.Error))
		return ID, nil, err
	}
	if err := t.Monitor.Machine().Complete(tk, res); err != nil {
		goapp.Log.Warn().Err(err).Str("ID", ID).Msg("result ignored")
		return ID, nil, fmt.Errorf("result ignored: %w", err)
	}
	t.Monitor.Remember(res)
	t.Monitor.Progress(100)
	t.Monitor.Log(events.New(fmt.Sprintf("Processing complete: %s", name), events.Success))
	goapp.Log.Info().Str("ID", ID).Str("serverID", res.IDString()).Msg("done")
	if t.Archiver != nil {
		if err := t.Archiver.SaveResult(ctx, ID, res); err != nil {
			goapp.Log.Warn().Err(err).Str("ID", ID).Msg("can't archive result")
		}
	}
	return ID, res, nil
}

func (t *Task) newID() string {
	if t.NewID != nil {
		return t.NewID()
	}
	return uuid.NewString()
}

func errorMessage(err error) string {
	var te *transcriber.TransportError
	if errors.As(err, &te) {
		return te.Message()
	}
	return fmt.Sprintf("upload failed: %v", err)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ackSink forwards channel events and treats the first live one as server acknowledgment
type ackSink struct {
	logchannel.Sink
	machine *status.Machine
	ticket  atomic.Uint64
}

func (s *ackSink) arm(tk status.Ticket) {
	s.ticket.Store(uint64(tk))
}

func (s *ackSink) OnLiveEvent() {
	if tk := s.ticket.Load(); tk > 0 {
		_ = s.machine.Acknowledge(status.Ticket(tk))
	}
}
