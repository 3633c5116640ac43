package inform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jordan-wright/email"
	"github.com/spf13/viper"
)

// FakeEmailSender posts the email as JSON to an http url instead of sending it
type FakeEmailSender struct {
	url        string
	httpclient *http.Client
	timeout    time.Duration
}

// NewFakeEmailSender initiates fake sender from `smtp.fakeUrl`
func NewFakeEmailSender(c *viper.Viper) (*FakeEmailSender, error) {
	res := &FakeEmailSender{url: c.GetString("smtp.fakeUrl"), httpclient: &http.Client{}, timeout: 5 * time.Second}
	if res.url == "" {
		return nil, fmt.Errorf("no URL")
	}
	goapp.Log.Info().Str("URL", res.url).Msg("Fake sender")
	return res, nil
}

// Send posts the email
func (s *FakeEmailSender) Send(em *email.Email) error {
	body, err := json.Marshal(em)
	if err != nil {
		return fmt.Errorf("can't marshal email: %w", err)
	}
	ctx, cf := context.WithTimeout(context.Background(), s.timeout)
	defer cf()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	goapp.Log.Info().Str("url", req.URL.String()).Str("method", req.Method).Msg("call")
	resp, err := s.httpclient.Do(req)
	if err != nil {
		return fmt.Errorf("can't invoke '%s': %w", req.URL.String(), err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
		_ = resp.Body.Close()
	}()
	if err := goapp.ValidateHTTPResp(resp, 100); err != nil {
		return fmt.Errorf("can't invoke '%s': %w", req.URL.String(), err)
	}
	return nil
}
