package lifecycle

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kandev/voicectl/internal/agent/worker"
	"github.com/kandev/voicectl/internal/events"
)

func (m *Manager) startReaper(h *worker.Handle) {
	m.reapers.Add(1)
	go func() {
		defer m.reapers.Done()
		m.reap(h)
	}()
}

// reap waits, without a timeout, for the worker to exit and then drops its
// registry entry. Workers are never restarted.
func (m *Manager) reap(h *worker.Handle) {
	waitErr := h.Wait()
	h.MarkExited(waitErr)

	removed := m.registry.RemoveIf(h.ChannelName, h)
	log := m.logger.WithChannel(h.ChannelName)
	log.Info("Process for channel has finished",
		zap.Int("pid", h.Pid),
		zap.String("instance_id", h.InstanceID),
		zap.Int("exit_code", h.ExitCode()),
		zap.Duration("uptime", time.Since(h.StartedAt)),
		zap.Bool("removed", removed))
	log.Info("Remaining active processes", zap.Int("count", m.registry.Len()))

	m.publish(context.Background(), events.AgentExited, h, map[string]interface{}{
		"exit_code": h.ExitCode(),
		"exited_at": time.Now().UTC(),
	})
}
