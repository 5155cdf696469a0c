// Package lifecycle starts, stops and reaps agent workers, and shuts them all
// down with the controller.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kandev/voicectl/internal/agent/registry"
	"github.com/kandev/voicectl/internal/agent/worker"
	"github.com/kandev/voicectl/internal/common/logger"
	"github.com/kandev/voicectl/internal/events"
	"github.com/kandev/voicectl/internal/events/bus"
	"github.com/kandev/voicectl/internal/realtime"
	"github.com/kandev/voicectl/internal/tracing"
)

// Config tunes the manager.
type Config struct {
	// ShutdownTimeout bounds the wait for each worker during Shutdown. Zero waits forever.
	ShutdownTimeout time.Duration
}

// Manager owns the registry and every worker process in it.
type Manager struct {
	registry  *registry.Registry
	spawner   worker.Spawner
	templates *realtime.Templates
	eventBus  bus.EventBus
	logger    *logger.Logger
	cfg       Config

	// mu orders start reservations against Shutdown sealing the registry.
	mu       sync.Mutex
	starting sync.WaitGroup
	reapers  sync.WaitGroup

	shutdownOnce sync.Once
	shutdownErr  error
}

// NewManager creates a manager. eventBus may be nil.
func NewManager(reg *registry.Registry, spawner worker.Spawner, templates *realtime.Templates, eventBus bus.EventBus, cfg Config, log *logger.Logger) *Manager {
	if templates == nil {
		templates = realtime.DefaultTemplates()
	}
	return &Manager{
		registry:  reg,
		spawner:   spawner,
		templates: templates,
		eventBus:  eventBus,
		logger:    log.WithFields(zap.String("component", "lifecycle")),
		cfg:       cfg,
	}
}

// StartRequest asks for a worker on a channel.
type StartRequest struct {
	ChannelName       string
	UID               *int64
	Language          string
	SystemInstruction string
	Voice             string
}

// StartResult identifies the spawned worker.
type StartResult struct {
	ChannelName string
	InstanceID  string
	Pid         int
}

// Validate applies defaults and checks every field. It touches no state.
func (r *StartRequest) Validate() (realtime.Voice, error) {
	if r.Language == "" {
		r.Language = realtime.DefaultLanguage
	}
	if r.Voice == "" {
		r.Voice = string(realtime.DefaultVoice)
	}

	if r.ChannelName == "" {
		return "", invalidField("channel_name", "channel_name is required")
	}
	if r.UID == nil {
		return "", invalidField("uid", "uid is required")
	}
	if *r.UID < 0 {
		return "", invalidField("uid", "uid must not be negative")
	}
	voice, err := realtime.ParseVoice(r.Voice)
	if err != nil {
		return "", &FieldError{Field: "voice", Message: fmt.Sprintf("Invalid voice: %s.", r.Voice), Err: err}
	}
	return voice, nil
}

// StartAgent validates req, spawns a worker for the channel and returns without
// waiting for it to become ready.
func (m *Manager) StartAgent(ctx context.Context, req StartRequest) (*StartResult, error) {
	voice, err := req.Validate()
	if err != nil {
		return nil, err
	}

	ctx, span := tracing.TraceAgentStart(ctx, req.ChannelName, *req.UID, string(voice))
	result, err := m.startAgent(ctx, req, voice)
	tracing.EndSpan(span, err)
	return result, err
}

func (m *Manager) startAgent(ctx context.Context, req StartRequest, voice realtime.Voice) (*StartResult, error) {
	channel := req.ChannelName
	log := m.logger.WithChannel(channel)
	cfg := realtime.NewInferenceConfig(m.templates.Resolve(req.Language, req.SystemInstruction), voice)

	if err := m.reserve(channel); err != nil {
		return nil, fmt.Errorf("channel %s: %w", channel, err)
	}
	defer m.starting.Done()

	proc, err := m.spawner.Spawn(ctx, worker.Spec{ChannelName: channel, UID: *req.UID, Config: cfg})
	if err != nil {
		m.registry.Release(channel)
		log.Error("Failed to start agent process", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	h := worker.NewHandle(channel, *req.UID, proc)
	if err := m.registry.Insert(h); err != nil {
		// Shutdown gave up waiting for this start and cleared the reservation.
		// The process must not outlive the controller.
		m.registry.Release(channel)
		_ = h.Kill()
		m.startReaper(h)
		return nil, fmt.Errorf("channel %s: %w", channel, err)
	}
	h.MarkRunning()
	m.startReaper(h)

	log.Info("Agent started",
		zap.String("instance_id", h.InstanceID),
		zap.Int("pid", h.Pid),
		zap.Int64("uid", h.UID),
		zap.String("language", req.Language),
		zap.String("voice", string(voice)))
	m.publish(ctx, events.AgentStarted, h, map[string]interface{}{
		"language": req.Language,
		"voice":    string(voice),
	})

	return &StartResult{ChannelName: channel, InstanceID: h.InstanceID, Pid: h.Pid}, nil
}

// reserve claims the channel and counts the start as in flight, atomically
// with respect to Shutdown sealing the registry.
func (m *Manager) reserve(channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.registry.Reserve(channel); err != nil {
		return err
	}
	m.starting.Add(1)
	return nil
}

// StopAgent sends the kill to the channel's worker. The reaper removes the
// registry entry once the process is gone.
func (m *Manager) StopAgent(ctx context.Context, channel string) error {
	if channel == "" {
		return invalidField("channel_name", "channel_name is required")
	}
	ctx, span := tracing.TraceAgentStop(ctx, channel)
	err := m.stopAgent(ctx, channel)
	tracing.EndSpan(span, err)
	return err
}

func (m *Manager) stopAgent(ctx context.Context, channel string) error {
	h, ok := m.registry.Lookup(channel)
	if !ok || !h.MarkTerminating() {
		return fmt.Errorf("channel %s: %w", channel, ErrNotFound)
	}

	m.logger.WithChannel(channel).Info("Terminating process for channel",
		zap.Int("pid", h.Pid),
		zap.String("instance_id", h.InstanceID))
	if err := h.Kill(); err != nil {
		return fmt.Errorf("kill agent for channel %s: %w", channel, err)
	}
	m.publish(ctx, events.AgentStopRequested, h, nil)
	return nil
}

// List returns the registered workers ordered by channel.
func (m *Manager) List() []worker.Snapshot {
	handles := m.registry.Snapshot()
	out := make([]worker.Snapshot, len(handles))
	for i, h := range handles {
		out[i] = h.Snapshot()
	}
	return out
}

// ShuttingDown reports whether Shutdown has begun.
func (m *Manager) ShuttingDown() bool {
	return m.registry.Sealed()
}

// ActiveCount is the number of registered workers.
func (m *Manager) ActiveCount() int {
	return m.registry.Len()
}

func (m *Manager) publish(ctx context.Context, eventType string, h *worker.Handle, extra map[string]interface{}) {
	if m.eventBus == nil {
		return
	}
	data := map[string]interface{}{
		"channel_name": h.ChannelName,
		"instance_id":  h.InstanceID,
		"uid":          h.UID,
		"pid":          h.Pid,
		"started_at":   h.StartedAt,
	}
	for k, v := range extra {
		data[k] = v
	}
	if err := m.eventBus.Publish(ctx, eventType, bus.NewEvent(eventType, events.Source, data)); err != nil {
		m.logger.Warn("Failed to publish lifecycle event",
			zap.String("event_type", eventType),
			zap.String("channel_name", h.ChannelName),
			zap.Error(err))
	}
}
