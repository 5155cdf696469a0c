// Package worker represents one agent worker process and how it is started.
package worker

import (
	"errors"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Liveness is the advisory state of a worker. Only the reaper sets LivenessExited.
type Liveness string

const (
	LivenessStarting    Liveness = "starting"
	LivenessRunning     Liveness = "running"
	LivenessTerminating Liveness = "terminating"
	LivenessExited      Liveness = "exited"
)

// Handle is the controller's record of one worker process.
type Handle struct {
	InstanceID  string
	ChannelName string
	UID         int64
	Pid         int
	StartedAt   time.Time

	process Process

	mu       sync.RWMutex
	liveness Liveness
	exitCode int
	exitErr  error
	done     chan struct{}
}

// Snapshot is a point-in-time, JSON-friendly view of a Handle.
type Snapshot struct {
	InstanceID  string    `json:"instance_id"`
	ChannelName string    `json:"channel_name"`
	UID         int64     `json:"uid"`
	Pid         int       `json:"pid"`
	StartedAt   time.Time `json:"started_at"`
	Liveness    Liveness  `json:"liveness"`
}

// NewHandle wraps a freshly spawned process. Every handle gets a new instance ID.
func NewHandle(channelName string, uid int64, proc Process) *Handle {
	return &Handle{
		InstanceID:  uuid.New().String(),
		ChannelName: channelName,
		UID:         uid,
		Pid:         proc.Pid(),
		StartedAt:   time.Now().UTC(),
		process:     proc,
		liveness:    LivenessStarting,
		done:        make(chan struct{}),
	}
}

func (h *Handle) Liveness() Liveness {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.liveness
}

// IsLive reports whether the process has not been observed to exit.
func (h *Handle) IsLive() bool {
	return h.Liveness() != LivenessExited
}

// MarkRunning moves a starting handle to running.
func (h *Handle) MarkRunning() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.liveness == LivenessStarting {
		h.liveness = LivenessRunning
	}
}

// MarkTerminating records that a kill was sent. It returns false once the
// process has exited.
func (h *Handle) MarkTerminating() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.liveness == LivenessExited {
		return false
	}
	h.liveness = LivenessTerminating
	return true
}

// MarkExited records the result of waiting on the process and closes Done.
// Later calls are ignored.
func (h *Handle) MarkExited(waitErr error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.liveness == LivenessExited {
		return
	}
	h.liveness = LivenessExited
	h.exitErr = waitErr
	h.exitCode = exitCodeOf(waitErr)
	close(h.done)
}

// Done is closed once the process has been reaped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// ExitCode is the process exit status, -1 when it was ended by a signal.
// It is only meaningful after Done is closed.
func (h *Handle) ExitCode() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.exitCode
}

// ExitErr is the error Wait returned, if any.
func (h *Handle) ExitErr() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.exitErr
}

// Kill sends the unconditional kill to the process.
func (h *Handle) Kill() error {
	return h.process.Kill()
}

// Wait blocks until the process exits. Only the reaper calls it.
func (h *Handle) Wait() error {
	return h.process.Wait()
}

func (h *Handle) Snapshot() Snapshot {
	return Snapshot{
		InstanceID:  h.InstanceID,
		ChannelName: h.ChannelName,
		UID:         h.UID,
		Pid:         h.Pid,
		StartedAt:   h.StartedAt,
		Liveness:    h.Liveness(),
	}
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
