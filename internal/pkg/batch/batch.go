package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/tflow/internal/pkg/api"
	"github.com/airenas/tflow/internal/pkg/events"
	"github.com/airenas/tflow/internal/pkg/monitor"
	"go.uber.org/multierr"
)

// ErrCanceled marks items not started because the batch was canceled
var ErrCanceled = errors.New("canceled")

// Runner executes one upload
type Runner interface {
	Execute(ctx context.Context, req *api.UploadRequest) (string, *api.ProcessingResult, error)
}

// ItemStatus of a batch item
type ItemStatus string

const (
	Pending    ItemStatus = "pending"
	Processing ItemStatus = "processing"
	Success    ItemStatus = "success"
	Failed     ItemStatus = "error"
)

// ItemResult is the state of one batch file
type ItemResult struct {
	Name      string                `json:"name"`
	Status    ItemStatus            `json:"status"`
	RequestID string                `json:"requestId,omitempty"`
	Result    *api.ProcessingResult `json:"-"`
	Error     string                `json:"error,omitempty"`

	err error
}

// Outcome of the whole batch
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFailed  Outcome = "failed"
)

// Summary is the final batch tally
type Summary struct {
	Items     []ItemResult          `json:"items"`
	Succeeded int                   `json:"succeeded"`
	Failed    int                   `json:"failed"`
	Total     int                   `json:"total"`
	Current   *api.ProcessingResult `json:"-"`
}

// Outcome classifies the batch, it is successful only with zero failures
func (s *Summary) Outcome() Outcome {
	if s.Failed == 0 {
		return OutcomeSuccess
	}
	if s.Succeeded == 0 {
		return OutcomeFailed
	}
	return OutcomePartial
}

// Err combines item errors
func (s *Summary) Err() error {
	var res error
	for _, it := range s.Items {
		if it.err != nil {
			res = multierr.Append(res, fmt.Errorf("%s: %w", it.Name, it.err))
		}
	}
	return res
}

// Coordinator runs uploads strictly one after another
type Coordinator struct {
	Runner  Runner
	Monitor *monitor.Monitor
	// OnFinish hooks are called with the final summary
	OnFinish []func(ctx context.Context, s *Summary)

	lock      sync.Mutex
	items     []ItemResult
	observers []func([]ItemResult)
	running   bool
}

// Subscribe adds items observer, it gets a copy after every item change
func (c *Coordinator) Subscribe(f func([]ItemResult)) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.observers = append(c.observers, f)
}

// Items returns a copy of current items
func (c *Coordinator) Items() []ItemResult {
	c.lock.Lock()
	defer c.lock.Unlock()
	return append([]ItemResult(nil), c.items...)
}

// Run processes all requests. One failure does not stop the rest.
func (c *Coordinator) Run(ctx context.Context, reqs []*api.UploadRequest) (*Summary, error) {
	if err := c.start(reqs); err != nil {
		return nil, err
	}
	defer c.stop()
	goapp.Log.Info().Int("files", len(reqs)).Msg("batch start")
	res := &Summary{Total: len(reqs)}
	for i, r := range reqs {
		if err := ctx.Err(); err != nil {
			c.update(i, func(it *ItemResult) { it.Status, it.Error, it.err = Failed, ErrCanceled.Error(), ErrCanceled })
			continue
		}
		c.update(i, func(it *ItemResult) { it.Status = Processing })
		if c.Monitor != nil {
			c.Monitor.Prepare()
			c.Monitor.Log(events.New(fmt.Sprintf("Batch file %d/%d: %s", i+1, len(reqs), r.Name()), events.Info))
		}
		ID, pr, err := c.Runner.Execute(ctx, r)
		if err != nil {
			goapp.Log.Warn().Err(err).Str("file", r.Name()).Msg("batch item failed")
			c.update(i, func(it *ItemResult) { it.Status, it.RequestID, it.Error, it.err = Failed, ID, itemMessage(err), err })
			continue
		}
		res.Current = pr
		c.update(i, func(it *ItemResult) { it.Status, it.RequestID, it.Result = Success, ID, pr })
	}
	res.Items = c.Items()
	for _, it := range res.Items {
		if it.Status == Success {
			res.Succeeded++
		} else {
			res.Failed++
		}
	}
	goapp.Log.Info().Int("ok", res.Succeeded).Int("failed", res.Failed).Int("total", res.Total).Msg("batch done")
	if c.Monitor != nil {
		l := events.Success
		if res.Failed > 0 {
			l = events.Warning
		}
		c.Monitor.Log(events.New(fmt.Sprintf("Batch finished: %d succeeded, %d failed, %d total",
			res.Succeeded, res.Failed, res.Total), l))
	}
	for _, f := range c.OnFinish {
		f(ctx, res)
	}
	return res, nil
}

func (c *Coordinator) start(reqs []*api.UploadRequest) error {
	if c.Runner == nil {
		return fmt.Errorf("no Runner")
	}
	if len(reqs) == 0 {
		return fmt.Errorf("no files")
	}
	c.lock.Lock()
	if c.running {
		c.lock.Unlock()
		return fmt.Errorf("batch in progress")
	}
	c.running = true
	c.items = make([]ItemResult, len(reqs))
	for i, r := range reqs {
		c.items[i] = ItemResult{Name: r.Name(), Status: Pending}
	}
	c.lock.Unlock()
	c.notify()
	return nil
}

func (c *Coordinator) stop() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.running = false
}

func (c *Coordinator) update(i int, f func(it *ItemResult)) {
	c.lock.Lock()
	f(&c.items[i])
	c.lock.Unlock()
	c.notify()
}

func (c *Coordinator) notify() {
	c.lock.Lock()
	obs := c.observers
	items := append([]ItemResult(nil), c.items...)
	c.lock.Unlock()
	for _, f := range obs {
		f(items)
	}
}

func itemMessage(err error) string {
	var um interface{ Message() string }
	if errors.As(err, &um) {
		return um.Message()
	}
	return err.Error()
}
