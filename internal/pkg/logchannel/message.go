package logchannel

import (
	"encoding/json"
	"fmt"
	"math"
)

const (
	msgTypeLog      = "log"
	msgTypeProgress = "progress"
)

type message struct {
	Type    string   `json:"type"`
	Message string   `json:"message,omitempty"`
	Level   string   `json:"level,omitempty"`
	Value   *float64 `json:"value,omitempty"`
}

func decode(b []byte) (*message, error) {
	var res message
	if err := json.Unmarshal(b, &res); err != nil {
		return nil, fmt.Errorf("can't unmarshal: %w", err)
	}
	switch res.Type {
	case msgTypeLog:
		return &res, nil
	case msgTypeProgress:
		if res.Value == nil || math.IsNaN(*res.Value) {
			return nil, fmt.Errorf("no progress value")
		}
		return &res, nil
	}
	return nil, fmt.Errorf("unknown message type '%s'", res.Type)
}

func (m *message) percent() int {
	return int(math.Round(*m.Value))
}
