package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/kandev/voicectl/internal/common/logger"
)

// ToolFunc runs a locally executed tool with its decoded arguments.
// The result must be JSON-encodable.
type ToolFunc func(ctx context.Context, args map[string]any) (any, error)

// ToolDeclaration describes one tool offered to the model. A declaration
// without a function is passed through to the client for execution.
type ToolDeclaration struct {
	Name        string
	Description string
	Parameters  map[string]any
	fn          ToolFunc
}

// Local reports whether the tool runs inside the worker.
func (d ToolDeclaration) Local() bool {
	return d.fn != nil
}

// ModelDescription is the function schema sent to the inference backend.
func (d ToolDeclaration) ModelDescription() map[string]any {
	return map[string]any{
		"type":        "function",
		"name":        d.Name,
		"description": d.Description,
		"parameters":  d.Parameters,
	}
}

// ToolCallResult is either LocalToolCallExecuted or ShouldPassThroughToolCall.
type ToolCallResult interface {
	toolCallResult()
}

// LocalToolCallExecuted carries the JSON output of a tool run in the worker.
type LocalToolCallExecuted struct {
	JSONOutput string
}

// ShouldPassThroughToolCall tells the caller to forward the call to the client.
type ShouldPassThroughToolCall struct {
	Args map[string]any
}

func (LocalToolCallExecuted) toolCallResult()     {}
func (ShouldPassThroughToolCall) toolCallResult() {}

// ToolContext is the set of tools a worker exposes, kept in registration order.
type ToolContext struct {
	mu     sync.RWMutex
	order  []string
	tools  map[string]ToolDeclaration
	logger *logger.Logger
}

// NewToolContext creates an empty tool context.
func NewToolContext(log *logger.Logger) *ToolContext {
	return &ToolContext{
		tools:  make(map[string]ToolDeclaration),
		logger: log.WithFields(zap.String("component", "tools")),
	}
}

// RegisterFunction adds a tool executed inside the worker. Registering an
// existing name replaces it and keeps its position.
func (t *ToolContext) RegisterFunction(name, description string, parameters map[string]any, fn ToolFunc) {
	t.register(ToolDeclaration{Name: name, Description: description, Parameters: parameters, fn: fn})
}

// RegisterClientFunction adds a tool whose calls are handed back to the client.
func (t *ToolContext) RegisterClientFunction(name, description string, parameters map[string]any) {
	t.register(ToolDeclaration{Name: name, Description: description, Parameters: parameters})
}

func (t *ToolContext) register(d ToolDeclaration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.tools[d.Name]; !exists {
		t.order = append(t.order, d.Name)
	}
	t.tools[d.Name] = d
}

// ExecuteTool runs or passes through the named tool. It returns (nil, nil)
// for an unknown tool. encodedArgs must be a JSON object.
func (t *ToolContext) ExecuteTool(ctx context.Context, name, encodedArgs string) (ToolCallResult, error) {
	t.mu.RLock()
	tool, ok := t.tools[name]
	t.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(encodedArgs), &args); err != nil {
		return nil, fmt.Errorf("tool %s: arguments must be a JSON object: %w", name, err)
	}
	if args == nil {
		return nil, fmt.Errorf("tool %s: arguments must be a JSON object", name)
	}

	if !tool.Local() {
		return ShouldPassThroughToolCall{Args: args}, nil
	}

	t.logger.Info("Executing tool", zap.String("tool", name), zap.Any("args", args))
	result, err := tool.fn(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", name, err)
	}
	out, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("tool %s: encode result: %w", name, err)
	}
	t.logger.Info("Tool executed", zap.String("tool", name), zap.ByteString("result", out))
	return LocalToolCallExecuted{JSONOutput: string(out)}, nil
}

// ModelDescription lists every tool schema in registration order.
func (t *ToolContext) ModelDescription() []map[string]any {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]map[string]any, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, t.tools[name].ModelDescription())
	}
	return out
}
