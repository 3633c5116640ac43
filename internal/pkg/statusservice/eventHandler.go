package statusservice

import (
	"fmt"
	"sync"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/tflow/internal/pkg/batch"
	"github.com/airenas/tflow/internal/pkg/events"
	"github.com/airenas/tflow/internal/pkg/status"
)

type event struct {
	Type    string             `json:"type"`
	Message string             `json:"message,omitempty"`
	Level   events.Level       `json:"level,omitempty"`
	Time    *time.Time         `json:"timestamp,omitempty"`
	Value   *int               `json:"value,omitempty"`
	State   *status.State      `json:"state,omitempty"`
	Items   []batch.ItemResult `json:"items,omitempty"`
}

// Publisher pushes monitor and batch changes to subscribed websockets
type Publisher struct {
	wsHandler WSConnHandler
	// gorilla connections allow one writer at a time
	lock sync.Mutex
}

// NewPublisher creates publisher
func NewPublisher(h WSConnHandler) (*Publisher, error) {
	if h == nil {
		return nil, fmt.Errorf("no WSHandler")
	}
	return &Publisher{wsHandler: h}, nil
}

// OnLog sends log event
func (p *Publisher) OnLog(ev events.LogEvent) {
	t := ev.Time
	p.publish(TopicStatus, &event{Type: "log", Message: ev.Message, Level: ev.Level, Time: &t})
}

// OnProgress sends progress event
func (p *Publisher) OnProgress(v int) {
	p.publish(TopicStatus, &event{Type: "progress", Value: &v})
}

// OnState sends state event
func (p *Publisher) OnState(st status.State) {
	p.publish(TopicStatus, &event{Type: "state", State: &st})
}

// OnItems sends batch items
func (p *Publisher) OnItems(items []batch.ItemResult) {
	p.publish(TopicBatch, &event{Type: "batch", Items: items})
}

func (p *Publisher) publish(topic string, ev *event) {
	conns, found := p.wsHandler.GetConnections(topic)
	if !found {
		return
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	for _, c := range conns {
		if err := sendMsg(c, ev); err != nil {
			goapp.Log.Warn().Err(err).Str("topic", topic).Send()
		}
	}
}

func sendMsg(c WsConn, ev *event) error {
	err := c.WriteJSON(ev)
	if err != nil {
		return fmt.Errorf("cannot write to websockket: %w", err)
	}
	return nil
}
