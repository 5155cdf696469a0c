package worker

import (
	"context"

	"github.com/kandev/voicectl/internal/realtime"
)

// Process is an OS process the controller can kill and wait on.
type Process interface {
	Pid() int
	// Kill ends the process unconditionally. Killing an exited process is not an error.
	Kill() error
	// Wait blocks until the process exits. It is called exactly once.
	Wait() error
}

// Spec describes the worker to start.
type Spec struct {
	ChannelName string
	UID         int64
	Config      realtime.InferenceConfig
}

// Spawner starts worker processes.
type Spawner interface {
	Spawn(ctx context.Context, spec Spec) (Process, error)
}
