//go:build unix

package realtime

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/voicectl/internal/common/logger"
)

func TestInstallSignalRelay_ExitsZeroOnTerm(t *testing.T) {
	codes := make(chan int, 1)
	exitFunc = func(code int) { codes <- code }
	t.Cleanup(func() { exitFunc = os.Exit })

	stop := InstallSignalRelay(logger.NewNop())

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))

	select {
	case code := <-codes:
		assert.Equal(t, 0, code)
	case <-time.After(2 * time.Second):
		t.Fatal("signal relay did not exit")
	}
	stop()
}

func TestInstallSignalRelay_StopDetaches(t *testing.T) {
	called := make(chan int, 1)
	exitFunc = func(code int) { called <- code }
	t.Cleanup(func() { exitFunc = os.Exit })

	stop := InstallSignalRelay(logger.NewNop())
	stop()

	select {
	case <-called:
		t.Fatal("exit called without a signal")
	case <-time.After(50 * time.Millisecond):
	}
}
