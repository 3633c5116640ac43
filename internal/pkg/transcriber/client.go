package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/tflow/internal/pkg/api"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/multierr"
)

// HeaderRequestID correlates upload with its log channel
const HeaderRequestID = "X-Request-ID"

// TransportError is returned when the server can't be reached or responds with non 2xx code
type TransportError struct {
	Code   int
	Detail string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("can't upload, status %d: %s", e.Code, e.Message())
	}
	return fmt.Sprintf("can't upload: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Message returns text for the user
func (e *TransportError) Message() string {
	if e.Detail != "" {
		return e.Detail
	}
	if e.Code > 0 {
		return fmt.Sprintf("upload failed (status %d)", e.Code)
	}
	return "upload failed: network error"
}

// Client comunicates with transcription server
type Client struct {
	httpclient    *http.Client
	uploadURL     string
	clearURL      string
	token         string
	uploadTimeout time.Duration
	timeout       time.Duration
	backoff       func() backoff.BackOff
}

// NewClient creates a transcription server client
func NewClient(uploadURL, clearURL, token string) (*Client, error) {
	res := Client{}
	if uploadURL == "" {
		return nil, fmt.Errorf("no uploadURL")
	}
	if clearURL == "" {
		return nil, fmt.Errorf("no clearURL")
	}
	if !strings.HasPrefix(uploadURL, "http") {
		return nil, fmt.Errorf("no http in uploadURL")
	}
	res.uploadURL = uploadURL
	res.clearURL = strings.TrimSuffix(clearURL, "/")
	res.token = token
	res.uploadTimeout = time.Minute * 30
	res.timeout = time.Second * 20
	res.httpclient = asrHTTPClient()
	res.backoff = newSimpleBackoff
	return &res, nil
}

// WithUploadTimeout sets max duration of the upload call
func (sp *Client) WithUploadTimeout(d time.Duration) *Client {
	if d > 0 {
		sp.uploadTimeout = d
	}
	return sp
}

// Upload sends audio with parameters and waits for the processing result.
// It makes a single attempt. onSent is called when the request body is fully read by the transport.
func (sp *Client) Upload(ctx context.Context, requestID string, data *api.UploadRequest, onSent func()) (*api.ProcessingResult, error) {
	body, contentType, err := makeBody(data)
	if err != nil {
		return nil, err
	}
	ctx, cancelF := context.WithTimeout(ctx, sp.uploadTimeout)
	defer cancelF()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sp.uploadURL, &sentReader{r: body, f: onSent})
	if err != nil {
		return nil, fmt.Errorf("can't prepare request: %w", err)
	}
	req.ContentLength = int64(body.Len())
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(HeaderRequestID, requestID)
	sp.auth(req)

	goapp.Log.Info().Str("url", req.URL.String()).Str("ID", requestID).Str("method", req.Method).Msg("call")
	resp, err := sp.httpclient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("can't call: %w", err)}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
		_ = resp.Body.Close()
	}()
	br, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("can't read body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{Code: resp.StatusCode, Detail: parseDetail(br),
			Err: fmt.Errorf("resp code %d", resp.StatusCode)}
	}
	res := &api.ProcessingResult{}
	if err := json.Unmarshal(br, res); err != nil {
		return nil, &TransportError{Code: resp.StatusCode, Detail: "upload failed: invalid server response",
			Err: fmt.Errorf("can't decode response: %w", err)}
	}
	res.Raw = json.RawMessage(br)
	return res, nil
}

func makeBody(data *api.UploadRequest) (*bytes.Buffer, string, error) {
	if data.Path == "" {
		return nil, "", fmt.Errorf("no file")
	}
	f, err := os.Open(data.Path)
	if err != nil {
		return nil, "", fmt.Errorf("can't open '%s': %w", data.Path, err)
	}
	defer f.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range data.Params() {
		if err := writer.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("can't add param: %w", err)
		}
	}
	name := data.DisplayName
	if name == "" {
		name = filepath.Base(data.Path)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, api.PrmFile, escapeQuotes(name)))
	ct := data.MIMEHint
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("can't add file to request: %w", err)
	}
	if _, err = io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("can't add file content to request: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("can't finish request: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

type sentReader struct {
	r    io.Reader
	f    func()
	once sync.Once
}

func (s *sentReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if errors.Is(err, io.EOF) && s.f != nil {
		s.once.Do(s.f)
	}
	return n, err
}

func parseDetail(b []byte) string {
	var d struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(b, &d); err != nil || len(d.Detail) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(d.Detail, &s); err == nil {
		return s
	}
	var l []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(d.Detail, &l); err == nil {
		var msgs []string
		for _, m := range l {
			if m.Msg != "" {
				msgs = append(msgs, m.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return string(d.Detail)
}

// Clear removes server data. Without IDs it calls the bulk endpoint.
func (sp *Client) Clear(ctx context.Context, IDs ...string) error {
	if len(IDs) == 0 {
		return sp.delete(ctx, sp.clearURL)
	}
	var res error
	for _, id := range IDs {
		u, err := url.JoinPath(sp.clearURL, url.PathEscape(id))
		if err != nil {
			res = multierr.Append(res, fmt.Errorf("can't prepare url: %w", err))
			continue
		}
		res = multierr.Append(res, sp.delete(ctx, u))
	}
	return res
}

func (sp *Client) delete(ctx context.Context, urlStr string) error {
	goapp.Log.Info().Str("url", urlStr).Msg("delete")
	_, err := goapp.InvokeWithBackoff(ctx,
		func() (interface{}, bool, error) {
			ctx, cancelF := context.WithTimeout(ctx, sp.timeout)
			defer cancelF()
			req, err := http.NewRequest(http.MethodDelete, urlStr, nil)
			if err != nil {
				return nil, false, err
			}
			req = req.WithContext(ctx)
			sp.auth(req)

			resp, err := sp.httpclient.Do(req)
			if err != nil {
				return nil, goapp.IsRetryableErr(err), fmt.Errorf("can't call: %w", err)
			}
			defer func() {
				_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
				_ = resp.Body.Close()
			}()
			if err := goapp.ValidateHTTPResp(resp, 100); err != nil {
				err = fmt.Errorf("can't invoke '%s': %w", req.URL.String(), err)
				return nil, goapp.IsRetryableCode(resp.StatusCode), err
			}
			return nil, false, nil
		}, sp.backoff())
	return err
}

func (sp *Client) auth(req *http.Request) {
	if sp.token != "" {
		req.Header.Set("Authorization", "Bearer "+sp.token)
	}
}

func asrHTTPClient() *http.Client {
	return &http.Client{Transport: newTransport()}
}

func newTransport() http.RoundTripper {
	res := http.DefaultTransport.(*http.Transport).Clone()
	res.MaxIdleConns = 10
	res.MaxIdleConnsPerHost = 5
	res.IdleConnTimeout = 90 * time.Second
	return res
}

func newSimpleBackoff() backoff.BackOff {
	res := backoff.NewExponentialBackOff()
	return backoff.WithMaxRetries(res, 3)
}
