package inform

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/airenas/tflow/internal/pkg/batch"
	"github.com/airenas/tflow/internal/pkg/test"
	"github.com/airenas/tflow/internal/pkg/test/mocks"
	"github.com/jordan-wright/email"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	senderMock *mocks.EmailSender
	tNotifier  *Notifier
	tSummary   *batch.Summary
)

func initTest(t *testing.T) {
	t.Helper()
	senderMock = &mocks.EmailSender{}
	var err error
	tNotifier, err = NewNotifier(senderMock, "o@o.lt", "from@o.lt")
	require.Nil(t, err)
	tNotifier.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	senderMock.On("Send", mock.Anything).Return(nil)
	tSummary = &batch.Summary{Items: []batch.ItemResult{{Name: "a.mp3", Status: batch.Success},
		{Name: "b.mp3", Status: batch.Failed, Error: "File too large"}}, Succeeded: 1, Failed: 1, Total: 2}
}

func TestNotify(t *testing.T) {
	initTest(t)

	err := tNotifier.Notify(test.Ctx(t), tSummary)

	require.Nil(t, err)
	require.Equal(t, 1, len(senderMock.Calls))
	em := senderMock.Calls[0].Arguments[0].(*email.Email)
	assert.Equal(t, []string{"o@o.lt"}, em.To)
	assert.Equal(t, "from@o.lt", em.From)
	assert.Equal(t, "Transcription batch finished: 1/2 succeeded", em.Subject)
	assert.Contains(t, string(em.Text), "2024-01-02 03:04:05")
	assert.Contains(t, string(em.Text), "Outcome: partial")
	assert.Contains(t, string(em.Text), "a.mp3 - success\n")
	assert.Contains(t, string(em.Text), "b.mp3 - error: File too large\n")
}

func TestNotify_Location(t *testing.T) {
	initTest(t)
	tNotifier.Location = time.FixedZone("olia", 3600*2)

	require.Nil(t, tNotifier.Notify(test.Ctx(t), tSummary))

	em := senderMock.Calls[0].Arguments[0].(*email.Email)
	assert.Contains(t, string(em.Text), "2024-01-02 05:04:05")
}

func TestNotify_Fail(t *testing.T) {
	initTest(t)
	senderMock.ExpectedCalls = nil
	senderMock.On("Send", mock.Anything).Return(fmt.Errorf("olia"))

	err := tNotifier.Notify(test.Ctx(t), tSummary)

	assert.NotNil(t, err)
	assert.NotPanics(t, func() { tNotifier.OnFinish(test.Ctx(t), tSummary) })
}

func TestNotify_Canceled(t *testing.T) {
	initTest(t)
	ctx, cf := context.WithCancel(context.Background())
	cf()

	err := tNotifier.Notify(ctx, tSummary)

	assert.NotNil(t, err)
	assert.Equal(t, 0, len(senderMock.Calls))
}

func TestNewNotifier_Fails(t *testing.T) {
	_, err := NewNotifier(nil, "o@o.lt", "")
	assert.NotNil(t, err)
	_, err = NewNotifier(&mocks.EmailSender{}, "", "")
	assert.NotNil(t, err)
}
