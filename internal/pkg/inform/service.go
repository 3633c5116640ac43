package inform

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/tflow/internal/pkg/batch"
	"github.com/jordan-wright/email"
)

// Sender send emails
type Sender interface {
	Send(email *email.Email) error
}

// Notifier sends a batch tally email when a batch finishes
type Notifier struct {
	Sender   Sender
	To       string
	From     string
	Location *time.Location

	now func() time.Time
}

// NewNotifier creates notifier
func NewNotifier(sender Sender, to, from string) (*Notifier, error) {
	res := &Notifier{Sender: sender, To: to, From: from, now: time.Now}
	if err := validate(res); err != nil {
		return nil, err
	}
	goapp.Log.Info().Str("to", to).Msg("inform")
	return res, nil
}

// OnFinish is a batch finish hook, failures are only logged
func (n *Notifier) OnFinish(ctx context.Context, s *batch.Summary) {
	if err := n.Notify(ctx, s); err != nil {
		goapp.Log.Error().Err(err).Msg("can't inform")
	}
}

// Notify makes and sends the email
func (n *Notifier) Notify(ctx context.Context, s *batch.Summary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	em := n.make(s)
	if err := n.Sender.Send(em); err != nil {
		return fmt.Errorf("can't send email: %w", err)
	}
	goapp.Log.Info().Str("to", n.To).Str("outcome", string(s.Outcome())).Msg("sent")
	return nil
}

func (n *Notifier) make(s *batch.Summary) *email.Email {
	res := email.NewEmail()
	res.From = n.From
	res.To = []string{n.To}
	res.Subject = fmt.Sprintf("Transcription batch finished: %d/%d succeeded", s.Succeeded, s.Total)
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "Batch finished at %s\n", n.localTime().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(sb, "Outcome: %s\nSucceeded: %d\nFailed: %d\nTotal: %d\n\n", s.Outcome(), s.Succeeded, s.Failed, s.Total)
	for _, it := range s.Items {
		fmt.Fprintf(sb, "%s - %s", it.Name, it.Status)
		if it.Error != "" {
			fmt.Fprintf(sb, ": %s", it.Error)
		}
		sb.WriteString("\n")
	}
	res.Text = []byte(sb.String())
	return res
}

func (n *Notifier) localTime() time.Time {
	now := time.Now
	if n.now != nil {
		now = n.now
	}
	if n.Location != nil {
		return now().In(n.Location)
	}
	return now()
}

func validate(data *Notifier) error {
	if data.Sender == nil {
		return fmt.Errorf("no email sender")
	}
	if data.To == "" {
		return fmt.Errorf("no email")
	}
	return nil
}
