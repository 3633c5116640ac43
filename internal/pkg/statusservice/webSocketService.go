package statusservice

import (
	"strings"
	"sync"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
)

// WsConn is interface for websocket handling in status service
type WsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	WriteJSON(v interface{}) error
}

const (
	// TopicStatus - job log, progress and state changes
	TopicStatus = "status"
	// TopicBatch - batch item changes
	TopicBatch = "batch"
)

var topics = map[string]bool{TopicStatus: true, TopicBatch: true}

// WSConnKeeper keeps subscribed connections by topic
type WSConnKeeper struct {
	topicConnMap map[string]map[WsConn]struct{}
	connTopicMap map[WsConn]string
	mapLock      *sync.Mutex
	timeOut      time.Duration
}

// NewWSConnKeeper creates manager
func NewWSConnKeeper() *WSConnKeeper {
	res := &WSConnKeeper{}
	res.topicConnMap = make(map[string]map[WsConn]struct{})
	res.connTopicMap = make(map[WsConn]string)
	res.mapLock = &sync.Mutex{}
	res.timeOut = time.Hour * 2
	return res
}

// HandleConnection loops until connection is active, a message sets the connection topic
func (kp *WSConnKeeper) HandleConnection(conn WsConn) error {
	defer kp.deleteConnection(conn)
	defer conn.Close()
	readCh := make(chan string)
	doneCh := make(chan struct{})
	defer close(doneCh)
	go func() {
		defer close(readCh)
		defer goapp.Log.Debug().Msg("read routine ended")
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				goapp.Log.Debug().Err(err).Msg("read")
				return
			}
			msg := strings.TrimSpace(string(message))
			goapp.Log.Debug().Str("msg", goapp.Sanitize(msg)).Msg("got msg")
			if msg != "" {
				select {
				case readCh <- msg:
				case <-doneCh:
					return
				}
			} else {
				time.Sleep(20 * time.Millisecond)
			}
		}
	}()

	ta := time.After(kp.timeOut)
loop:
	for {
		select {
		case <-ta:
			goapp.Log.Debug().Msg("conn timeouted")
			break loop
		case msg, ok := <-readCh:
			if !ok {
				goapp.Log.Debug().Msg("conn read closed?")
				break loop
			}
			if msg == "ping" {
				ta = time.After(kp.timeOut)
				continue
			}
			if !topics[msg] {
				goapp.Log.Warn().Str("topic", goapp.Sanitize(msg)).Msg("unknown topic")
				continue
			}
			kp.saveConnection(conn, msg)
			ta = time.After(kp.timeOut)
		}
	}
	goapp.Log.Info().Msg("handleConnection finish")
	return nil
}

func (kp *WSConnKeeper) deleteConnection(conn WsConn) {
	kp.mapLock.Lock()
	defer kp.mapLock.Unlock()
	kp.deleteConnectionNoSync(conn)
}

func (kp *WSConnKeeper) deleteConnectionNoSync(conn WsConn) {
	topic, found := kp.connTopicMap[conn]
	if found {
		conns, found := kp.topicConnMap[topic]
		if found {
			delete(conns, conn)
			if len(conns) == 0 {
				delete(kp.topicConnMap, topic)
			}
		}
	}
	delete(kp.connTopicMap, conn)
	goapp.Log.Debug().Int("active", len(kp.connTopicMap)).Msg("unsubscribe")
}

func (kp *WSConnKeeper) saveConnection(conn WsConn, topic string) {
	goapp.Log.Info().Str("topic", topic).Msg("subscribe")
	kp.mapLock.Lock()
	defer kp.mapLock.Unlock()
	kp.deleteConnectionNoSync(conn)
	kp.connTopicMap[conn] = topic
	conns, found := kp.topicConnMap[topic]
	if !found {
		conns = map[WsConn]struct{}{}
		kp.topicConnMap[topic] = conns
	}
	conns[conn] = struct{}{}
	goapp.Log.Info().Int("active", len(kp.connTopicMap)).Msg("subscribe finish")
}

// GetConnections returns connections subscribed to the topic
func (kp *WSConnKeeper) GetConnections(topic string) ([]WsConn, bool) {
	kp.mapLock.Lock()
	defer kp.mapLock.Unlock()
	cm, found := kp.topicConnMap[topic]
	if found {
		res := make([]WsConn, 0, len(cm))
		for c := range cm {
			res = append(res, c)
		}
		return res, true
	}
	return nil, false
}
