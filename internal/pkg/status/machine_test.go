package status

import (
	"testing"

	"github.com/airenas/tflow/internal/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachine_Success(t *testing.T) {
	var got []Status
	m := NewMachine(func(s State) { got = append(got, s.Status) })
	assert.Equal(t, Idle, m.State().Status)

	tk, err := m.Start()
	require.Nil(t, err)
	require.Nil(t, m.Acknowledge(tk))
	require.Nil(t, m.Acknowledge(tk))
	require.Nil(t, m.Complete(tk, &api.ProcessingResult{Transcript: "olia"}))

	st := m.State()
	assert.Equal(t, Ready, st.Status)
	assert.Equal(t, "olia", st.Result.Transcript)
	assert.Equal(t, []Status{Uploading, Processing, Ready}, got)
}

func TestMachine_FailFromUploading(t *testing.T) {
	m := NewMachine(nil)
	tk, _ := m.Start()

	require.Nil(t, m.Fail(tk, "upload failed (status 500)"))

	st := m.State()
	assert.Equal(t, Error, st.Status)
	assert.Equal(t, "upload failed (status 500)", st.Error)
	assert.Nil(t, st.Result)
}

func TestMachine_Start_Errors(t *testing.T) {
	m := NewMachine(nil)
	tk, _ := m.Start()
	_, err := m.Start()
	assert.ErrorIs(t, err, ErrBusy)
	_ = m.Complete(tk, &api.ProcessingResult{})
	_, err = m.Start()
	assert.ErrorIs(t, err, ErrNotIdle)
	assert.True(t, m.Reset())
	_, err = m.Start()
	assert.Nil(t, err)
}

func TestMachine_StaleTicket(t *testing.T) {
	m := NewMachine(nil)
	tk, _ := m.Start()
	assert.True(t, m.Reset())

	assert.ErrorIs(t, m.Complete(tk, &api.ProcessingResult{}), ErrStale)
	assert.ErrorIs(t, m.Acknowledge(tk), ErrStale)
	assert.Equal(t, Idle, m.State().Status)

	tk2, err := m.Start()
	require.Nil(t, err)
	assert.ErrorIs(t, m.Fail(tk, "olia"), ErrStale)
	assert.Equal(t, Uploading, m.State().Status)
	assert.Nil(t, m.Fail(tk2, "olia"))
}

func TestMachine_TerminalIsFinal(t *testing.T) {
	m := NewMachine(nil)
	tk, _ := m.Start()
	_ = m.Fail(tk, "olia")

	assert.ErrorIs(t, m.Complete(tk, &api.ProcessingResult{}), ErrStale)
	assert.Equal(t, Error, m.State().Status)
}

func TestMachine_ResetTwice(t *testing.T) {
	calls := 0
	m := NewMachine(func(s State) { calls++ })

	assert.False(t, m.Reset())
	assert.False(t, m.Reset())
	assert.Equal(t, 0, calls)
	assert.Equal(t, Idle, m.State().Status)
}

func TestMachine_ListenerReadsState(t *testing.T) {
	var m *Machine
	var got []Status
	m = NewMachine(func(s State) { got = append(got, m.State().Status) })

	tk, err := m.Start()
	require.Nil(t, err)
	require.Nil(t, m.Fail(tk, "olia"))
	assert.True(t, m.Reset())

	assert.Equal(t, []Status{Uploading, Error, Idle}, got)
}
