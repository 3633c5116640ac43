package statusservice

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/airenas/tflow/internal/pkg/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	wsService *WSConnKeeper
)

func initWSTest(t *testing.T) {
	wsService = NewWSConnKeeper()
}

func createTestConn(t *testing.T, topic string, closeChan <-chan struct{}) *mockWSConn {
	t.Helper()
	connWSMock := &mockWSConn{}
	connWSMock.On("WriteJSON", mock.Anything).Return(nil)
	connWSMock.On("ReadMessage").Return(1, []byte(topic), nil).Once()
	connWSMock.On("ReadMessage").Return(1, []byte(topic), fmt.Errorf("err")).Run(func(args mock.Arguments) {
		<-closeChan
	})
	connWSMock.On("Close").Return(nil)
	return connWSMock
}

func Test_HandleConnection(t *testing.T) {
	initWSTest(t)
	closeCtx, cf := context.WithCancel(test.Ctx(t))
	go func() {
		err := wsService.HandleConnection(createTestConn(t, TopicStatus, closeCtx.Done()))
		assert.Nil(t, err)
	}()
	testHas(t, TopicStatus, 1)
	cf()
}

func testHas(t *testing.T, s string, i int) {
	t.Helper()
	ctx := test.Ctx(t)
	for {
		cn, ok := wsService.GetConnections(s)
		if ok == (i > 0) && len(cn) == i {
			break
		}
		select {
		case <-ctx.Done():
			require.Failf(t, "timeouted", "not found connection %s", s)
		case <-time.After(time.Millisecond * 100):
		}
	}
}

func Test_HandleConnection_Several(t *testing.T) {
	initWSTest(t)
	closeCtx, cf := context.WithCancel(test.Ctx(t))
	for i := 0; i < 10; i++ {
		go func() {
			err := wsService.HandleConnection(createTestConn(t, TopicStatus, closeCtx.Done()))
			assert.Nil(t, err)
		}()
	}
	testHas(t, TopicStatus, 10)
	cf()
}

func Test_HandleConnection_SeveralTopics(t *testing.T) {
	initWSTest(t)
	closeCtx, cf := context.WithCancel(test.Ctx(t))
	for i := 0; i < 10; i++ {
		topic := TopicStatus
		if i%2 == 0 {
			topic = TopicBatch
		}
		go func() {
			err := wsService.HandleConnection(createTestConn(t, topic, closeCtx.Done()))
			assert.Nil(t, err)
		}()
	}
	testHas(t, TopicStatus, 5)
	testHas(t, TopicBatch, 5)
	cf()
}

func Test_HandleConnection_UnknownTopic(t *testing.T) {
	initWSTest(t)
	closeCtx, cf := context.WithCancel(test.Ctx(t))
	defer cf()
	c := createTestConn(t, "olia", closeCtx.Done())
	go func() {
		_ = wsService.HandleConnection(c)
	}()
	require.Eventually(t, func() bool { return len(c.Calls) >= 2 }, time.Second, time.Millisecond*10)
	_, ok := wsService.GetConnections("olia")
	assert.False(t, ok)
}

func Test_HandleConnection_Cleans(t *testing.T) {
	initWSTest(t)
	closeCtx, cf := context.WithCancel(test.Ctx(t))
	for i := 0; i < 10; i++ {
		go func() {
			err := wsService.HandleConnection(createTestConn(t, TopicBatch, closeCtx.Done()))
			assert.Nil(t, err)
		}()
	}
	testHas(t, TopicBatch, 10)
	cf()
	testHas(t, TopicBatch, 0)
}
