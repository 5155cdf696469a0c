package lifecycle

import (
	"errors"
	"fmt"

	"github.com/kandev/voicectl/internal/agent/registry"
	"github.com/kandev/voicectl/internal/realtime"
)

var (
	ErrAlreadyRunning = registry.ErrAlreadyRunning
	ErrShuttingDown   = registry.ErrShuttingDown
	ErrInvalidVoice   = realtime.ErrInvalidVoice

	ErrNotFound       = errors.New("no active agent found")
	ErrInvalidRequest = errors.New("invalid request")
	ErrSpawnFailed    = errors.New("failed to start agent")
)

// FieldError reports which request field was rejected.
type FieldError struct {
	Field   string
	Message string
	Err     error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

func invalidField(field, message string) error {
	return &FieldError{Field: field, Message: message, Err: ErrInvalidRequest}
}
