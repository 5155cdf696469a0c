package realtime

import (
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/kandev/voicectl/internal/common/logger"
)

// exitFunc is swapped in tests.
var exitFunc = os.Exit

// InstallSignalRelay makes SIGINT and SIGTERM end the worker at once with
// status 0. Deferred functions do not run. It must be the first thing a worker does.
// The returned func detaches the relay.
func InstallSignalRelay(log *logger.Logger) (stop func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	quit := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			log.Info("Agent process received signal, exiting", zap.String("signal", sig.String()))
			_ = log.Sync()
			exitFunc(0)
		case <-quit:
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(quit)
	}
}
