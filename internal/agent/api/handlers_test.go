package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/voicectl/internal/agent/history"
	"github.com/kandev/voicectl/internal/agent/lifecycle"
	"github.com/kandev/voicectl/internal/agent/worker"
	"github.com/kandev/voicectl/internal/common/errors"
	"github.com/kandev/voicectl/internal/common/logger"
	"github.com/kandev/voicectl/internal/events"
	"github.com/kandev/voicectl/internal/events/bus"
)

type mockLifecycle struct {
	StartFn  func(ctx context.Context, req lifecycle.StartRequest) (*lifecycle.StartResult, error)
	StopFn   func(ctx context.Context, channel string) error
	agents   []worker.Snapshot
	stopping bool
}

func (m *mockLifecycle) StartAgent(ctx context.Context, req lifecycle.StartRequest) (*lifecycle.StartResult, error) {
	return m.StartFn(ctx, req)
}

func (m *mockLifecycle) StopAgent(ctx context.Context, channel string) error {
	return m.StopFn(ctx, channel)
}

func (m *mockLifecycle) List() []worker.Snapshot { return m.agents }
func (m *mockLifecycle) ActiveCount() int        { return len(m.agents) }
func (m *mockLifecycle) ShuttingDown() bool      { return m.stopping }

type mockHistory struct {
	sessions []history.Session
	filter   history.Filter
}

func (m *mockHistory) List(_ context.Context, f history.Filter) ([]history.Session, error) {
	m.filter = f
	return m.sessions, nil
}

func newTestRouter(lc Lifecycle, hist HistoryReader, eventBus bus.EventBus) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	SetupRoutes(router, NewHandler(lc, hist, eventBus, logger.NewNop()))
	return router
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeAppError(t *testing.T, w *httptest.ResponseRecorder) errors.AppError {
	t.Helper()
	var appErr errors.AppError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &appErr))
	return appErr
}

func TestStartAgent_Success(t *testing.T) {
	var got lifecycle.StartRequest
	lc := &mockLifecycle{StartFn: func(_ context.Context, req lifecycle.StartRequest) (*lifecycle.StartResult, error) {
		got = req
		return &lifecycle.StartResult{ChannelName: req.ChannelName, InstanceID: "i-1", Pid: 321}, nil
	}}
	router := newTestRouter(lc, nil, nil)

	w := doJSON(t, router, http.MethodPost, "/start_agent", `{"channel_name":"room1","uid":0,"voice":"echo"}`)

	require.Equal(t, http.StatusOK, w.Code)
	var resp StartAgentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, StatusAgentStarted, resp.Status)
	assert.Equal(t, "room1", resp.ChannelName)
	assert.Equal(t, "i-1", resp.InstanceID)
	assert.Equal(t, 321, resp.Pid)

	require.NotNil(t, got.UID)
	assert.Equal(t, int64(0), *got.UID)
	assert.Equal(t, "echo", got.Voice)
}

func TestStartAgent_BindValidation(t *testing.T) {
	lc := &mockLifecycle{StartFn: func(context.Context, lifecycle.StartRequest) (*lifecycle.StartResult, error) {
		t.Fatal("lifecycle must not be called for an invalid body")
		return nil, nil
	}}
	router := newTestRouter(lc, nil, nil)

	tests := []struct {
		name  string
		body  string
		field string
		tag   string
	}{
		{"missing channel", `{"uid":1}`, "channel_name", "required"},
		{"missing uid", `{"channel_name":"room1"}`, "uid", "required"},
		{"negative uid", `{"channel_name":"room1","uid":-1}`, "uid", "min"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, http.MethodPost, "/start_agent", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code)

			appErr := decodeAppError(t, w)
			assert.Equal(t, errors.ErrCodeValidationError, appErr.Code)
			require.Len(t, appErr.Details, 1)
			assert.Equal(t, tt.field, appErr.Details[0].Field)
			assert.Equal(t, tt.tag, appErr.Details[0].Tag)
		})
	}

	w := doJSON(t, router, http.MethodPost, "/start_agent", `{"channel_name":`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errors.ErrCodeBadRequest, decodeAppError(t, w).Code)
}

func TestStartAgent_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
		msg    string
	}{
		{
			name:   "invalid voice",
			err:    &lifecycle.FieldError{Field: "voice", Message: "Invalid voice: robot.", Err: lifecycle.ErrInvalidVoice},
			status: http.StatusBadRequest,
			code:   errors.ErrCodeValidationError,
			msg:    "Invalid voice: robot.",
		},
		{
			name:   "already running",
			err:    fmt.Errorf("channel room1: %w", lifecycle.ErrAlreadyRunning),
			status: http.StatusConflict,
			code:   errors.ErrCodeConflict,
			msg:    "Agent already running for channel: room1",
		},
		{
			name:   "shutting down",
			err:    fmt.Errorf("channel room1: %w", lifecycle.ErrShuttingDown),
			status: http.StatusServiceUnavailable,
			code:   errors.ErrCodeServiceUnavailable,
		},
		{
			name:   "spawn failure",
			err:    fmt.Errorf("%w: exec: not found", lifecycle.ErrSpawnFailed),
			status: http.StatusInternalServerError,
			code:   errors.ErrCodeInternalError,
			msg:    "Failed to start agent",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lc := &mockLifecycle{StartFn: func(context.Context, lifecycle.StartRequest) (*lifecycle.StartResult, error) {
				return nil, tt.err
			}}
			router := newTestRouter(lc, nil, nil)

			w := doJSON(t, router, http.MethodPost, "/start_agent", `{"channel_name":"room1","uid":7,"voice":"robot"}`)
			require.Equal(t, tt.status, w.Code)
			appErr := decodeAppError(t, w)
			assert.Equal(t, tt.code, appErr.Code)
			if tt.msg != "" {
				assert.Equal(t, tt.msg, appErr.Message)
			}
		})
	}
}

func TestStopAgent(t *testing.T) {
	lc := &mockLifecycle{StopFn: func(_ context.Context, channel string) error {
		if channel == "room1" {
			return nil
		}
		return fmt.Errorf("channel %s: %w", channel, lifecycle.ErrNotFound)
	}}
	router := newTestRouter(lc, nil, nil)

	w := doJSON(t, router, http.MethodPost, "/stop_agent", `{"channel_name":"room1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var resp StopAgentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, StatusAgentTerminated, resp.Status)
	assert.Equal(t, "room1", resp.ChannelName)

	w = doJSON(t, router, http.MethodPost, "/stop_agent", `{"channel_name":"ghost"}`)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "no active agent found for 'ghost'", decodeAppError(t, w).Message)

	w = doJSON(t, router, http.MethodPost, "/stop_agent", `{}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListAgentsAndHealth(t *testing.T) {
	lc := &mockLifecycle{agents: []worker.Snapshot{
		{InstanceID: "i-1", ChannelName: "room1", Pid: 10, Liveness: worker.LivenessRunning},
		{InstanceID: "i-2", ChannelName: "room2", Pid: 11, Liveness: worker.LivenessTerminating},
	}}
	router := newTestRouter(lc, nil, nil)

	w := doJSON(t, router, http.MethodGet, "/agents", "")
	require.Equal(t, http.StatusOK, w.Code)
	var agents AgentsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &agents))
	assert.Equal(t, 2, agents.Total)
	assert.Equal(t, "room2", agents.Agents[1].ChannelName)

	w = doJSON(t, router, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, 2, health.ActiveAgents)
	assert.False(t, health.ShuttingDown)

	lc.stopping = true
	w = doJSON(t, router, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.True(t, health.ShuttingDown)
}

func TestListHistory(t *testing.T) {
	router := newTestRouter(&mockLifecycle{}, nil, nil)
	w := doJSON(t, router, http.MethodGet, "/agents/history", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	hist := &mockHistory{sessions: []history.Session{{InstanceID: "i-1", ChannelName: "room1"}}}
	router = newTestRouter(&mockLifecycle{}, hist, nil)

	w = doJSON(t, router, http.MethodGet, "/agents/history?channel_name=room1&limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, history.Filter{ChannelName: "room1", Limit: 5}, hist.filter)
	var resp HistoryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)

	w = doJSON(t, router, http.MethodGet, "/agents/history?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStreamEvents(t *testing.T) {
	eventBus := bus.NewMemoryEventBus(logger.NewNop())
	defer eventBus.Close()

	server := httptest.NewServer(newTestRouter(&mockLifecycle{}, nil, eventBus))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/agents/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	event := bus.NewEvent(events.AgentStarted, events.Source, map[string]interface{}{"channel_name": "room1"})
	require.NoError(t, eventBus.Publish(context.Background(), events.AgentStarted, event))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var got bus.Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, event.ID, got.ID)
	assert.Equal(t, events.AgentStarted, got.Type)
	assert.Equal(t, "room1", got.Data["channel_name"])
}

func TestStreamEvents_DisabledWithoutBus(t *testing.T) {
	router := newTestRouter(&mockLifecycle{}, nil, nil)
	w := doJSON(t, router, http.MethodGet, "/agents/stream", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
