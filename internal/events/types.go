// Package events names the lifecycle events the controller publishes.
package events

// Event types for agent workers. The subject of each event is its type.
const (
	AgentStarted       = "agent.started"
	AgentStopRequested = "agent.stop_requested"
	AgentExited        = "agent.exited"
)

// AllAgentEvents is the wildcard subject matching every agent event.
const AllAgentEvents = "agent.>"

// Source identifies the controller as the producer of an event.
const Source = "voicectl"
