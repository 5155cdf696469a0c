package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kandev/voicectl/internal/common/logger"
	"github.com/kandev/voicectl/internal/events"
	"github.com/kandev/voicectl/internal/events/bus"
)

// recorderQueue makes controllers sharing a NATS server and database write each event once.
const recorderQueue = "voicectl-history"

// Recorder writes lifecycle events into a Store.
type Recorder struct {
	store    *Store
	eventBus bus.EventBus
	logger   *logger.Logger
	sub      bus.Subscription
}

func NewRecorder(store *Store, eventBus bus.EventBus, log *logger.Logger) *Recorder {
	return &Recorder{
		store:    store,
		eventBus: eventBus,
		logger:   log.WithFields(zap.String("component", "history")),
	}
}

// Start subscribes to agent events.
func (r *Recorder) Start() error {
	sub, err := r.eventBus.QueueSubscribe(events.AllAgentEvents, recorderQueue, r.handle)
	if err != nil {
		return fmt.Errorf("subscribe history recorder: %w", err)
	}
	r.sub = sub
	return nil
}

// Stop detaches from the bus and writes every event it already received.
// It gives up, leaving those rows incomplete, when ctx is done.
func (r *Recorder) Stop(ctx context.Context) error {
	if r.sub == nil {
		return nil
	}
	if err := r.sub.Drain(ctx); err != nil {
		_ = r.sub.Unsubscribe()
		return fmt.Errorf("drain history recorder: %w", err)
	}
	return nil
}

func (r *Recorder) handle(ctx context.Context, e *bus.Event) error {
	instanceID := asString(e.Data["instance_id"])
	if instanceID == "" {
		return fmt.Errorf("event %s has no instance_id", e.ID)
	}

	switch e.Type {
	case events.AgentStarted:
		startedAt, ok := asTime(e.Data["started_at"])
		if !ok {
			startedAt = e.Timestamp
		}
		return r.store.RecordStart(ctx, Session{
			InstanceID:  instanceID,
			ChannelName: asString(e.Data["channel_name"]),
			UID:         asInt64(e.Data["uid"]),
			Pid:         int(asInt64(e.Data["pid"])),
			Voice:       asString(e.Data["voice"]),
			Language:    asString(e.Data["language"]),
			StartedAt:   startedAt,
		})
	case events.AgentStopRequested:
		return r.store.RecordStopRequested(ctx, instanceID, e.Timestamp)
	case events.AgentExited:
		exitedAt, ok := asTime(e.Data["exited_at"])
		if !ok {
			exitedAt = e.Timestamp
		}
		return r.store.RecordExit(ctx, instanceID, int(asInt64(e.Data["exit_code"])), exitedAt)
	default:
		r.logger.Debug("Ignoring event", zap.String("event_type", e.Type))
		return nil
	}
}

// Event data arrives as Go values from the in-memory bus and as decoded JSON
// from NATS; these helpers accept both.

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	default:
		return 0
	}
}

func asTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		return parsed, err == nil
	default:
		return time.Time{}, false
	}
}
