package api

import (
	"time"

	"github.com/kandev/voicectl/internal/agent/history"
	"github.com/kandev/voicectl/internal/agent/worker"
)

// StartAgentRequest is the body of POST /start_agent.
type StartAgentRequest struct {
	ChannelName       string `json:"channel_name" binding:"required"`
	UID               *int64 `json:"uid" binding:"required,min=0"`
	Language          string `json:"language"`
	SystemInstruction string `json:"system_instruction"`
	Voice             string `json:"voice"`
}

// StopAgentRequest is the body of POST /stop_agent.
type StopAgentRequest struct {
	ChannelName string `json:"channel_name" binding:"required"`
}

const (
	StatusAgentStarted    = "Agent started!"
	StatusAgentTerminated = "Agent process terminated"
)

type StartAgentResponse struct {
	Status      string `json:"status"`
	ChannelName string `json:"channel_name"`
	InstanceID  string `json:"instance_id"`
	Pid         int    `json:"pid"`
}

type StopAgentResponse struct {
	Status      string `json:"status"`
	ChannelName string `json:"channel_name"`
}

type AgentsResponse struct {
	Agents []worker.Snapshot `json:"agents"`
	Total  int               `json:"total"`
}

type HistoryResponse struct {
	Sessions []history.Session `json:"sessions"`
	Total    int               `json:"total"`
}

type HealthResponse struct {
	Status       string    `json:"status"`
	ActiveAgents int       `json:"active_agents"`
	ShuttingDown bool      `json:"shutting_down"`
	Time         time.Time `json:"time"`
}
