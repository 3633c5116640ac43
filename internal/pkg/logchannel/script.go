package logchannel

import (
	"time"

	"github.com/airenas/tflow/internal/pkg/events"
)

// Step is one line of the offline progress script
type Step struct {
	After   time.Duration
	Message string
	Level   events.Level
}

// DefaultScript replays processing stages when no live logs are available.
// Offsets are counted from the moment the fallback starts.
var DefaultScript = []Step{
	{After: time.Second, Message: "Uploading audio file...", Level: events.Info},
	{After: 3 * time.Second, Message: "Analyzing audio quality...", Level: events.Info},
	{After: 6 * time.Second, Message: "Segmenting audio...", Level: events.Info},
	{After: 9 * time.Second, Message: "Transcribing audio...", Level: events.Info},
	{After: 12 * time.Second, Message: "Formatting transcript...", Level: events.Info},
	{After: 15 * time.Second, Message: "Generating summary...", Level: events.Info},
	{After: 18 * time.Second, Message: "Finalizing results...", Level: events.Info},
}
