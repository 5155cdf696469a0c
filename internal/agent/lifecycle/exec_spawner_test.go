//go:build unix

package lifecycle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/voicectl/internal/agent/registry"
	"github.com/kandev/voicectl/internal/agent/worker"
	"github.com/kandev/voicectl/internal/common/logger"
	"github.com/kandev/voicectl/internal/realtime"
)

// newExecManager runs workers as a shell script that sleeps, in place of voicectl agent.
func newExecManager(t *testing.T) (*Manager, *registry.Registry) {
	t.Helper()
	script := filepath.Join(t.TempDir(), "fake-voicectl")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nexec sleep 30\n"), 0o755))

	spawner := worker.NewExecSpawner(worker.ExecConfig{BinaryPath: script, AppID: "app-1"}, logger.NewNop())
	reg := registry.New()
	m := NewManager(reg, spawner, realtime.DefaultTemplates(), nil, Config{ShutdownTimeout: 5 * time.Second}, logger.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m, reg
}

func processGone(pid int) bool {
	return syscall.Kill(pid, 0) == syscall.ESRCH
}

func TestExecManager_StopReapRestart(t *testing.T) {
	m, reg := newExecManager(t)

	first, err := m.StartAgent(context.Background(), startReq("room1"))
	require.NoError(t, err)
	assert.False(t, processGone(first.Pid))

	_, err = m.StartAgent(context.Background(), startReq("room1"))
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	require.NoError(t, m.StopAgent(context.Background(), "room1"))
	waitUntilGone(t, reg, "room1")
	assert.True(t, processGone(first.Pid))

	second, err := m.StartAgent(context.Background(), startReq("room1"))
	require.NoError(t, err)
	assert.NotEqual(t, first.Pid, second.Pid)
	assert.NotEqual(t, first.InstanceID, second.InstanceID)
}

func TestExecManager_ShutdownLeavesNoWorker(t *testing.T) {
	m, reg := newExecManager(t)

	var pids []int
	for i := 0; i < 3; i++ {
		res, err := m.StartAgent(context.Background(), startReq(fmt.Sprintf("room%d", i)))
		require.NoError(t, err)
		pids = append(pids, res.Pid)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	assert.Equal(t, 0, reg.Len())
	for _, pid := range pids {
		assert.True(t, processGone(pid), "worker %d survived shutdown", pid)
	}
}
