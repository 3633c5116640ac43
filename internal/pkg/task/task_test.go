package task

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/airenas/tflow/internal/pkg/api"
	"github.com/airenas/tflow/internal/pkg/events"
	"github.com/airenas/tflow/internal/pkg/logchannel"
	"github.com/airenas/tflow/internal/pkg/monitor"
	"github.com/airenas/tflow/internal/pkg/status"
	"github.com/airenas/tflow/internal/pkg/test"
	"github.com/airenas/tflow/internal/pkg/test/mocks"
	"github.com/airenas/tflow/internal/pkg/transcriber"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	uploaderMock *mocks.Uploader
	archiverMock *mocks.Archiver
	tMonitor     *monitor.Monitor
	tTask        *Task
	idCalls      int
)

func initTest(t *testing.T) {
	t.Helper()
	uploaderMock = &mocks.Uploader{}
	archiverMock = &mocks.Archiver{}
	tMonitor = monitor.New(100, nil)
	idCalls = 0
	d, err := logchannel.NewDialer("ws://127.0.0.1:1/ws/logs")
	require.Nil(t, err)
	tTask = &Task{Uploader: uploaderMock, Channels: d, Monitor: tMonitor, Archiver: archiverMock,
		NewID:      func() string { idCalls++; return "rq1" },
		CloseGrace: 2 * time.Second, ArmDelay: time.Millisecond}
	t.Cleanup(func() { tMonitor.Reset() })
}

func logs(m *monitor.Monitor) []string {
	var res []string
	for _, l := range m.Snapshot().Logs {
		res = append(res, l.Message)
	}
	return res
}

func hasLog(m *monitor.Monitor, s string) bool {
	for _, l := range logs(m) {
		if strings.Contains(l, s) {
			return true
		}
	}
	return false
}

func lecture() *api.UploadRequest {
	return &api.UploadRequest{Path: "/tmp/lecture.mp3", DisplayName: "lecture.mp3", SizeBytes: 10 * 1024 * 1024,
		Language: "en"}
}

func TestRun(t *testing.T) {
	initTest(t)
	archiverMock.On("SaveResult", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	uploaderMock.On("Upload", mock.Anything, "rq1", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		assert.Equal(t, status.Uploading, tMonitor.Machine().State().Status)
		args.Get(3).(func())()
		assert.Equal(t, status.Processing, tMonitor.Machine().State().Status)
	}).Return(&api.ProcessingResult{Transcript: "X", ID: []byte(`"1"`)}, nil)
	req := lecture()

	res, err := tTask.Run(test.Ctx(t), req)

	require.Nil(t, err)
	assert.Equal(t, "X", res.Transcript)
	st := tMonitor.Machine().State()
	assert.Equal(t, status.Ready, st.Status)
	assert.Equal(t, "X", st.Result.Transcript)
	assert.Equal(t, 100, tMonitor.Snapshot().Progress)
	assert.Equal(t, "File selected: lecture.mp3 (10.00 MB)", logs(tMonitor)[0])
	assert.True(t, hasLog(tMonitor, "Uploading lecture.mp3..."))
	assert.True(t, hasLog(tMonitor, "Processing complete: lecture.mp3"))
	assert.Same(t, req, uploaderMock.Calls[0].Arguments[2])
	archiverMock.AssertCalled(t, "SaveResult", mock.Anything, "rq1", res)
}

func TestRun_NoChannel_StillGetsFallbackLog(t *testing.T) {
	initTest(t)
	d, _ := logchannel.NewDialer("ws://127.0.0.1:1/ws/logs")
	tTask.Channels = d
	tTask.Archiver = nil
	uploaderMock.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&api.ProcessingResult{Transcript: "X"}, nil)

	_, err := tTask.Run(test.Ctx(t), lecture())

	require.Nil(t, err)
	assert.Equal(t, status.Ready, tMonitor.Machine().State().Status)
	require.Eventually(t, func() bool { return hasLog(tMonitor, logchannel.DefaultScript[0].Message) },
		time.Second*3, time.Millisecond*20)
	assert.Equal(t, 100, tMonitor.Snapshot().Progress)
}

func TestRun_TransportError(t *testing.T) {
	initTest(t)
	uploaderMock.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &transcriber.TransportError{Code: 413, Detail: "File too large", Err: fmt.Errorf("olia")})

	res, err := tTask.Run(test.Ctx(t), lecture())

	assert.Nil(t, res)
	assert.NotNil(t, err)
	st := tMonitor.Machine().State()
	assert.Equal(t, status.Error, st.Status)
	assert.Equal(t, "File too large", st.Error)
	assert.True(t, hasLog(tMonitor, "Failed lecture.mp3: File too large"))
	assert.Equal(t, events.Error, tMonitor.Snapshot().Logs[len(tMonitor.Snapshot().Logs)-1].Level)
	archiverMock.AssertNotCalled(t, "SaveResult", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_OtherError(t *testing.T) {
	initTest(t)
	uploaderMock.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("olia"))

	_, err := tTask.Run(test.Ctx(t), lecture())

	assert.NotNil(t, err)
	assert.Equal(t, "upload failed: olia", tMonitor.Machine().State().Error)
}

func TestRun_NoFile(t *testing.T) {
	initTest(t)

	_, err := tTask.Run(test.Ctx(t), &api.UploadRequest{DisplayName: "bad.txt"})
	assert.ErrorIs(t, err, ErrNoFile)
	_, err = tTask.Run(test.Ctx(t), nil)
	assert.ErrorIs(t, err, ErrNoFile)

	assert.Equal(t, 0, idCalls)
	uploaderMock.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 0, len(logs(tMonitor)))
	assert.Equal(t, status.Idle, tMonitor.Machine().State().Status)
}

func TestRun_ResetDuringUpload(t *testing.T) {
	initTest(t)
	uploaderMock.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		tMonitor.Reset()
	}).Return(&api.ProcessingResult{Transcript: "X"}, nil)

	res, err := tTask.Run(test.Ctx(t), lecture())

	assert.Nil(t, res)
	assert.ErrorIs(t, err, status.ErrStale)
	assert.Equal(t, status.Idle, tMonitor.Machine().State().Status)
	assert.Equal(t, 0, len(logs(tMonitor)))
	archiverMock.AssertNotCalled(t, "SaveResult", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_ArchiveFails_StillReady(t *testing.T) {
	initTest(t)
	archiverMock.On("SaveResult", mock.Anything, mock.Anything, mock.Anything).Return(fmt.Errorf("olia"))
	uploaderMock.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&api.ProcessingResult{Transcript: "X"}, nil)

	_, err := tTask.Run(test.Ctx(t), lecture())

	assert.Nil(t, err)
	assert.Equal(t, status.Ready, tMonitor.Machine().State().Status)
}

func TestRun_Canceled(t *testing.T) {
	initTest(t)
	tTask.ArmDelay = time.Second
	ctx, cf := context.WithCancel(test.Ctx(t))
	cf()

	_, err := tTask.Run(ctx, lecture())

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, status.Idle, tMonitor.Machine().State().Status)
	uploaderMock.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_LiveChannel(t *testing.T) {
	initTest(t)
	connected := make(chan string, 1)
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		c, err := upgrader.Upgrade(rw, req, nil)
		if err != nil {
			return
		}
		defer c.Close()
		connected <- req.URL.Path
		time.Sleep(time.Millisecond * 50)
		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"type":"log","message":"Duration detected: 3 min","level":"info"}`))
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()
	d, err := logchannel.NewDialer(server.URL + "/ws/logs")
	require.Nil(t, err)
	tTask.Channels = d
	tTask.Archiver = nil
	uploaderMock.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		select {
		case p := <-connected:
			assert.Equal(t, "/ws/logs/rq1", p)
		case <-time.After(time.Second):
			assert.Fail(t, "channel not opened before upload")
		}
		assert.Eventually(t, func() bool {
			return tMonitor.Machine().State().Status == status.Processing && tMonitor.Snapshot().Progress == 50
		}, time.Second, time.Millisecond*5)
	}).Return(&api.ProcessingResult{Transcript: "X"}, nil)

	_, err = tTask.Run(test.Ctx(t), lecture())

	require.Nil(t, err)
	assert.True(t, hasLog(tMonitor, "Duration detected: 3 min"))
}

func TestValidate(t *testing.T) {
	initTest(t)
	assert.Nil(t, tTask.Validate())
	tTask.CloseGrace = time.Second
	assert.NotNil(t, tTask.Validate())
	tTask.CloseGrace = 3 * time.Second
	tTask.Monitor = nil
	assert.NotNil(t, tTask.Validate())
}
