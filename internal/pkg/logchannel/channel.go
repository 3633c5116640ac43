package logchannel

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/tflow/internal/pkg/events"
	"github.com/gorilla/websocket"
)

// Sink receives channel events
type Sink interface {
	Log(ev events.LogEvent)
	Progress(v int)
}

// LiveObserver may be implemented by a Sink to learn about real server events
type LiveObserver interface {
	OnLiveEvent()
}

// Mode of the channel
type Mode int

const (
	// Live - events come from the server
	Live Mode = iota + 1
	// Fallback - events come from the local script
	Fallback
	// Closed - nothing is delivered
	Closed
)

var modeName = map[Mode]string{Live: "live", Fallback: "fallback", Closed: "closed"}

func (m Mode) String() string {
	return modeName[m]
}

// Dialer opens per request log channels
type Dialer struct {
	BaseURL     string
	DialTimeout time.Duration
	KeepAlive   time.Duration
	Script      []Step
	Header      http.Header

	dialer *websocket.Dialer
}

// NewDialer creates dialer, http(s) URLs are switched to ws(s)
func NewDialer(baseURL string) (*Dialer, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("no logs URL")
	}
	if !strings.HasPrefix(baseURL, "http") && !strings.HasPrefix(baseURL, "ws") {
		return nil, fmt.Errorf("no http or ws in logs URL '%s'", baseURL)
	}
	res := &Dialer{}
	res.BaseURL = strings.Replace(baseURL, "http", "ws", 1)
	res.DialTimeout = 3 * time.Second
	res.KeepAlive = 20 * time.Second
	res.Script = DefaultScript
	res.dialer = websocket.DefaultDialer
	return res, nil
}

// Open connects channel for ID. It always returns a usable channel:
// if connection fails the channel works in fallback mode.
func (d *Dialer) Open(ctx context.Context, ID string, sink Sink) *Channel {
	res := newChannel(ID, sink, d.Script)
	urlStr, err := url.JoinPath(d.BaseURL, url.PathEscape(ID))
	if err != nil {
		res.startFallback(fmt.Errorf("can't prepare url: %w", err))
		return res
	}
	goapp.Log.Info().Str("url", urlStr).Str("ID", ID).Msg("connect")
	dl := d.dialer
	if dl == nil {
		dl = websocket.DefaultDialer
	}
	dCtx, cf := context.WithTimeout(ctx, d.DialTimeout)
	defer cf()
	c, _, err := dl.DialContext(dCtx, urlStr, d.Header)
	if err != nil {
		res.startFallback(fmt.Errorf("can't dial: %w", err))
		return res
	}
	res.conn = c
	res.wg.Add(2)
	go res.readLoop()
	go res.writeLoop(d.KeepAlive)
	return res
}

// Channel delivers log and progress events of one request
type Channel struct {
	id     string
	sink   Sink
	script []Step

	lock sync.Mutex
	mode Mode

	conn      *websocket.Conn
	ctx       context.Context
	cancel    func()
	wg        sync.WaitGroup
	closeOnce sync.Once
	done      chan struct{}
}

func newChannel(ID string, sink Sink, script []Step) *Channel {
	res := &Channel{id: ID, sink: sink, script: script, mode: Live, done: make(chan struct{})}
	res.ctx, res.cancel = context.WithCancel(context.Background())
	return res
}

// ID returns request ID
func (c *Channel) ID() string {
	return c.id
}

// Mode returns current mode
func (c *Channel) Mode() Mode {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.mode
}

// Done is closed after the channel is closed
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Close stops all delivery. It can be called many times.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		c.lock.Lock()
		c.mode = Closed
		c.lock.Unlock()
		c.cancel()
		if c.conn != nil {
			waitCh := make(chan struct{})
			go func() {
				c.wg.Wait()
				close(waitCh)
			}()
			go func() {
				// the writer sends close frame, the reader exits on the server reply
				select {
				case <-waitCh:
				case <-time.After(time.Second * 5):
				}
				if err := c.conn.Close(); err != nil {
					goapp.Log.Debug().Err(err).Str("ID", c.id).Msg("socket close")
				}
			}()
		}
		goapp.Log.Info().Str("ID", c.id).Msg("channel closed")
		close(c.done)
	})
}

// CloseAfter schedules Close
func (c *Channel) CloseAfter(d time.Duration) {
	if d <= 0 {
		c.Close()
		return
	}
	go func() {
		select {
		case <-time.After(d):
			c.Close()
		case <-c.done:
		}
	}()
}

func (c *Channel) readLoop() {
	defer c.wg.Done()
	goapp.Log.Debug().Str("ID", c.id).Msg("enter read loop")
	for {
		_, b, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				goapp.Log.Debug().Str("ID", c.id).Msg("closed by server")
				c.cancel()
			} else if c.ctx.Err() == nil {
				c.startFallback(fmt.Errorf("read: %w", err))
			}
			break
		}
		m, err := decode(b)
		if err != nil {
			goapp.Log.Warn().Err(err).Str("ID", c.id).Msg("skip message")
			continue
		}
		c.deliverLive(m)
	}
	goapp.Log.Debug().Str("ID", c.id).Msg("exit read loop")
}

func (c *Channel) writeLoop(keepAlive time.Duration) {
	defer c.wg.Done()
	if keepAlive <= 0 {
		keepAlive = 20 * time.Second
	}
	t := time.NewTicker(keepAlive)
	defer t.Stop()
	for {
		select {
		case <-c.ctx.Done():
			err := c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			if err != nil {
				goapp.Log.Debug().Err(err).Str("ID", c.id).Msg("socket close write")
			}
			return
		case <-t.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(keepAlive))
			if err := c.conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
				if c.ctx.Err() == nil {
					c.startFallback(fmt.Errorf("keep-alive: %w", err))
				}
				return
			}
		}
	}
}

func (c *Channel) deliverLive(m *message) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.mode != Live {
		return
	}
	if lo, ok := c.sink.(LiveObserver); ok {
		lo.OnLiveEvent()
	}
	switch m.Type {
	case msgTypeLog:
		goapp.Log.Debug().Str("ID", c.id).Str("msg", goapp.Sanitize(m.Message)).Msg("received log")
		c.sink.Log(events.LogEvent{Time: time.Now(), Message: m.Message, Level: events.ParseLevel(m.Level)})
	case msgTypeProgress:
		c.sink.Progress(m.percent())
	}
}

func (c *Channel) startFallback(reason error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.mode != Live {
		return
	}
	goapp.Log.Warn().Err(reason).Str("ID", c.id).Msg("log channel failed, switch to fallback")
	c.mode = Fallback
	steps := append([]Step(nil), c.script...)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		start := time.Now()
		for _, s := range steps {
			select {
			case <-time.After(time.Until(start.Add(s.After))):
				c.deliverScript(s)
			case <-c.ctx.Done():
				return
			}
		}
	}()
}

func (c *Channel) deliverScript(s Step) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.mode != Fallback {
		return
	}
	c.sink.Log(events.LogEvent{Time: time.Now(), Message: s.Message, Level: s.Level})
}
