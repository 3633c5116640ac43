package setup

import (
	"fmt"
	"io"
	"sync"

	"github.com/airenas/tflow/internal/pkg/batch"
	"github.com/airenas/tflow/internal/pkg/events"
	"github.com/airenas/tflow/internal/pkg/status"
	"github.com/labstack/gommon/color"
)

// Console prints job logs, progress and state to a terminal
type Console struct {
	out  io.Writer
	cl   *color.Color
	lock sync.Mutex
}

// NewConsole creates console observer
func NewConsole(out io.Writer, colored bool) *Console {
	cl := color.New()
	cl.SetOutput(out)
	if !colored {
		cl.Disable()
	}
	return &Console{out: out, cl: cl}
}

// OnLog prints log line
func (c *Console) OnLog(ev events.LogEvent) {
	c.printf("%s %s %s\n", ev.Time.Format("15:04:05"), c.level(ev.Level), ev.Message)
}

// OnProgress prints progress
func (c *Console) OnProgress(v int) {
	c.printf("%s %d%%\n", c.cl.Blue("progress"), v)
}

// OnState prints state changes
func (c *Console) OnState(st status.State) {
	switch st.Status {
	case status.Ready:
		c.printf("%s\n", c.cl.Green(st.Status.String()))
	case status.Error:
		c.printf("%s %s\n", c.cl.Red(st.Status.String()), st.Error)
	default:
		c.printf("%s\n", c.cl.Cyan(st.Status.String()))
	}
}

// Summary prints final batch tally
func (c *Console) Summary(s *batch.Summary) {
	for _, it := range s.Items {
		line := fmt.Sprintf("%-8s %s", it.Status, it.Name)
		if it.Error != "" {
			line += ": " + it.Error
		}
		if it.Status == batch.Success {
			c.printf("%s\n", c.cl.Green(line))
		} else {
			c.printf("%s\n", c.cl.Red(line))
		}
	}
	c.printf("%d succeeded, %d failed, %d total (%s)\n", s.Succeeded, s.Failed, s.Total, s.Outcome())
}

func (c *Console) level(l events.Level) string {
	switch l {
	case events.Success:
		return c.cl.Green("SUCC")
	case events.Warning:
		return c.cl.Yellow("WARN")
	case events.Error:
		return c.cl.Red("ERR ")
	default:
		return c.cl.Grey("INFO")
	}
}

func (c *Console) printf(format string, a ...interface{}) {
	c.lock.Lock()
	defer c.lock.Unlock()
	fmt.Fprintf(c.out, format, a...)
}
