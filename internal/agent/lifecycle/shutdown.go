package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kandev/voicectl/internal/agent/worker"
	"github.com/kandev/voicectl/internal/tracing"
)

// Shutdown kills every registered worker and returns once each one has been
// confirmed exited, or its wait timed out. Starts are rejected from the moment
// it begins. Only the first call does any work; later calls return its result.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.shutdownOnce.Do(func() {
		m.shutdownErr = m.shutdown(ctx)
	})
	return m.shutdownErr
}

func (m *Manager) shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.registry.Seal()
	m.mu.Unlock()

	var errs []error
	if err := waitGroup(ctx, &m.starting); err != nil {
		errs = append(errs, fmt.Errorf("waiting for in-flight starts: %w", err))
	}

	handles := m.registry.Snapshot()
	ctx, span := tracing.TraceShutdown(ctx, len(handles))
	m.logger.Info("Shutting down, cleaning up processes", zap.Int("count", len(handles)))

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, h := range handles {
		g.Go(func() error {
			if err := m.terminateAndJoin(ctx, h); err != nil {
				m.logger.WithChannel(h.ChannelName).Error("Worker did not exit during shutdown",
					zap.Int("pid", h.Pid), zap.Error(err))
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := waitGroup(ctx, &m.reapers); err != nil {
		errs = append(errs, fmt.Errorf("waiting for reapers: %w", err))
	}
	m.registry.Clear()

	err := errors.Join(errs...)
	tracing.EndSpan(span, err)
	if err == nil {
		m.logger.Info("All processes terminated")
	}
	return err
}

// terminateAndJoin kills h and blocks until its reaper has observed the exit.
func (m *Manager) terminateAndJoin(ctx context.Context, h *worker.Handle) error {
	if !h.MarkTerminating() {
		return nil
	}
	m.logger.WithChannel(h.ChannelName).Info("Terminating process for channel",
		zap.Int("pid", h.Pid),
		zap.String("instance_id", h.InstanceID))
	if err := h.Kill(); err != nil {
		m.logger.WithChannel(h.ChannelName).Warn("Kill failed, waiting for exit anyway", zap.Error(err))
	}

	if m.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.ShutdownTimeout)
		defer cancel()
	}
	select {
	case <-h.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("agent for channel %s (pid %d) not confirmed exited: %w", h.ChannelName, h.Pid, ctx.Err())
	}
}

func waitGroup(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
