package worker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubProcess struct{ pid int }

func (p *stubProcess) Pid() int    { return p.pid }
func (p *stubProcess) Kill() error { return nil }
func (p *stubProcess) Wait() error { return nil }

func TestHandle_LivenessTransitions(t *testing.T) {
	h := NewHandle("room1", 7, &stubProcess{pid: 42})
	assert.Equal(t, 42, h.Pid)
	assert.NotEmpty(t, h.InstanceID)
	assert.Equal(t, LivenessStarting, h.Liveness())

	h.MarkRunning()
	assert.Equal(t, LivenessRunning, h.Liveness())

	assert.True(t, h.MarkTerminating())
	assert.Equal(t, LivenessTerminating, h.Liveness())
	assert.True(t, h.IsLive())

	h.MarkRunning()
	assert.Equal(t, LivenessTerminating, h.Liveness(), "running never overrides terminating")

	h.MarkExited(nil)
	assert.False(t, h.IsLive())
	assert.False(t, h.MarkTerminating())
	assert.Equal(t, 0, h.ExitCode())
}

func TestHandle_MarkExitedIsIdempotent(t *testing.T) {
	h := NewHandle("room1", 7, &stubProcess{pid: 1})
	h.MarkExited(errors.New("boom"))
	h.MarkExited(nil)

	select {
	case <-h.Done():
	default:
		t.Fatal("done not closed")
	}
	assert.Equal(t, -1, h.ExitCode())
	assert.EqualError(t, h.ExitErr(), "boom")
}

func TestHandle_DistinctInstanceIDs(t *testing.T) {
	a := NewHandle("room1", 7, &stubProcess{pid: 1})
	b := NewHandle("room1", 7, &stubProcess{pid: 1})
	assert.NotEqual(t, a.InstanceID, b.InstanceID)
}

func TestHandle_Snapshot(t *testing.T) {
	h := NewHandle("room1", 7, &stubProcess{pid: 9})
	h.MarkRunning()
	s := h.Snapshot()
	assert.Equal(t, "room1", s.ChannelName)
	assert.Equal(t, int64(7), s.UID)
	assert.Equal(t, 9, s.Pid)
	assert.Equal(t, LivenessRunning, s.Liveness)
}
