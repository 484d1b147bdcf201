package stream

import "time"

// EventType identifies a named event on the run push-stream.
type EventType string

// Event types carried by the push-stream connection.
const (
	// EventTypeContent carries a chunk of text produced by one agent.
	EventTypeContent EventType = "content"

	// EventTypeAgentError indicates one agent failed; other agents are unaffected.
	EventTypeAgentError EventType = "agent_error"

	// EventTypeAgentComplete indicates one agent finished producing output.
	EventTypeAgentComplete EventType = "agent_complete"

	// EventTypeRunComplete indicates every agent in the run has finished.
	EventTypeRunComplete EventType = "run_complete"

	// EventTypeHeartbeat proves the connection is alive; it carries no state.
	EventTypeHeartbeat EventType = "heartbeat"
)

// Event represents a decoded push-stream event.
type Event interface {
	Type() EventType
}

// ContentEvent is emitted when an agent produces text.
type ContentEvent struct {
	AgentID   int
	Text      string
	Timestamp time.Time
}

func (e *ContentEvent) Type() EventType {
	return EventTypeContent
}

// AgentErrorEvent is emitted when one agent fails.
type AgentErrorEvent struct {
	AgentID int
	Message string
}

func (e *AgentErrorEvent) Type() EventType {
	return EventTypeAgentError
}

// AgentCompleteEvent is emitted when one agent finishes.
type AgentCompleteEvent struct {
	AgentID int
}

func (e *AgentCompleteEvent) Type() EventType {
	return EventTypeAgentComplete
}

// RunCompleteEvent is emitted when the whole run finishes.
type RunCompleteEvent struct{}

func (e *RunCompleteEvent) Type() EventType {
	return EventTypeRunComplete
}

// HeartbeatEvent is emitted periodically to prove connection liveness.
type HeartbeatEvent struct{}

func (e *HeartbeatEvent) Type() EventType {
	return EventTypeHeartbeat
}
