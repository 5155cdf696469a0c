// Package api exposes the agent lifecycle over HTTP.
package api

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kandev/voicectl/internal/agent/history"
	"github.com/kandev/voicectl/internal/agent/lifecycle"
	"github.com/kandev/voicectl/internal/agent/worker"
	"github.com/kandev/voicectl/internal/common/errors"
	"github.com/kandev/voicectl/internal/common/logger"
	"github.com/kandev/voicectl/internal/events/bus"
)

// Lifecycle is the part of lifecycle.Manager the handlers drive.
type Lifecycle interface {
	StartAgent(ctx context.Context, req lifecycle.StartRequest) (*lifecycle.StartResult, error)
	StopAgent(ctx context.Context, channel string) error
	List() []worker.Snapshot
	ActiveCount() int
	ShuttingDown() bool
}

// HistoryReader serves GET /agents/history.
type HistoryReader interface {
	List(ctx context.Context, f history.Filter) ([]history.Session, error)
}

// Handler contains HTTP handlers for the agent control API
type Handler struct {
	lifecycle Lifecycle
	history   HistoryReader
	eventBus  bus.EventBus
	logger    *logger.Logger
}

// NewHandler creates a handler. history and eventBus may be nil, which
// disables the history and stream routes.
func NewHandler(lc Lifecycle, hist HistoryReader, eventBus bus.EventBus, log *logger.Logger) *Handler {
	return &Handler{
		lifecycle: lc,
		history:   hist,
		eventBus:  eventBus,
		logger:    log.WithFields(zap.String("component", "agent-api")),
	}
}

// StartAgent spawns a worker for a channel
// POST /start_agent
func (h *Handler) StartAgent(c *gin.Context) {
	var req StartAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, bindError(err))
		return
	}

	result, err := h.lifecycle.StartAgent(c.Request.Context(), lifecycle.StartRequest{
		ChannelName:       req.ChannelName,
		UID:               req.UID,
		Language:          req.Language,
		SystemInstruction: req.SystemInstruction,
		Voice:             req.Voice,
	})
	if err != nil {
		h.logger.WithContext(c.Request.Context()).Warn("Start agent failed",
			zap.String("channel_name", req.ChannelName), zap.Error(err))
		respond(c, lifecycleError(req.ChannelName, err))
		return
	}

	c.JSON(http.StatusOK, StartAgentResponse{
		Status:      StatusAgentStarted,
		ChannelName: result.ChannelName,
		InstanceID:  result.InstanceID,
		Pid:         result.Pid,
	})
}

// StopAgent kills the worker for a channel
// POST /stop_agent
func (h *Handler) StopAgent(c *gin.Context) {
	var req StopAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, bindError(err))
		return
	}

	if err := h.lifecycle.StopAgent(c.Request.Context(), req.ChannelName); err != nil {
		h.logger.WithContext(c.Request.Context()).Warn("Stop agent failed",
			zap.String("channel_name", req.ChannelName), zap.Error(err))
		respond(c, lifecycleError(req.ChannelName, err))
		return
	}

	c.JSON(http.StatusOK, StopAgentResponse{
		Status:      StatusAgentTerminated,
		ChannelName: req.ChannelName,
	})
}

// ListAgents returns the registered workers
// GET /agents
func (h *Handler) ListAgents(c *gin.Context) {
	agents := h.lifecycle.List()
	c.JSON(http.StatusOK, AgentsResponse{Agents: agents, Total: len(agents)})
}

// ListHistory returns past and current sessions, newest first
// GET /agents/history?channel_name=&limit=
func (h *Handler) ListHistory(c *gin.Context) {
	if h.history == nil {
		respond(c, errors.ServiceUnavailable("session history is not enabled"))
		return
	}

	filter := history.Filter{ChannelName: c.Query("channel_name")}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			respond(c, errors.ValidationError("Invalid query",
				errors.FieldError{Field: "limit", Tag: "min", Message: "limit must be a positive integer"}))
			return
		}
		filter.Limit = limit
	}

	sessions, err := h.history.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.WithContext(c.Request.Context()).Error("Failed to list session history", zap.Error(err))
		respond(c, errors.InternalError("failed to list session history", err))
		return
	}
	c.JSON(http.StatusOK, HistoryResponse{Sessions: sessions, Total: len(sessions)})
}

// Health reports liveness and the number of registered workers
// GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:       "healthy",
		ActiveAgents: h.lifecycle.ActiveCount(),
		ShuttingDown: h.lifecycle.ShuttingDown(),
		Time:         time.Now().UTC(),
	})
}

func respond(c *gin.Context, appErr *errors.AppError) {
	c.AbortWithStatusJSON(errors.GetHTTPStatus(appErr), appErr)
}

// lifecycleError maps lifecycle sentinel errors to API errors.
func lifecycleError(channel string, err error) *errors.AppError {
	var fieldErr *lifecycle.FieldError
	switch {
	case stderrors.As(err, &fieldErr):
		return errors.ValidationError(fieldErr.Message, errors.FieldError{
			Field:   fieldErr.Field,
			Tag:     fieldTag(fieldErr),
			Message: fieldErr.Message,
		})
	case stderrors.Is(err, lifecycle.ErrAlreadyRunning):
		return errors.Conflict(fmt.Sprintf("Agent already running for channel: %s", channel))
	case stderrors.Is(err, lifecycle.ErrShuttingDown):
		return errors.ServiceUnavailable("Controller is shutting down")
	case stderrors.Is(err, lifecycle.ErrNotFound):
		return errors.NotFound("agent", channel)
	case stderrors.Is(err, lifecycle.ErrSpawnFailed):
		return errors.InternalError("Failed to start agent", err)
	default:
		return errors.InternalError("agent operation failed", err)
	}
}

func fieldTag(fe *lifecycle.FieldError) string {
	if stderrors.Is(fe, lifecycle.ErrInvalidVoice) {
		return "oneof"
	}
	return "required"
}

// bindError turns a gin binding failure into a validation error with per-field details.
func bindError(err error) *errors.AppError {
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return errors.BadRequest("Invalid request body")
	}
	details := make([]errors.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, errors.FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Message: fieldMessage(fe),
		})
	}
	return errors.ValidationError("Invalid request", details...)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
