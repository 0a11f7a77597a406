// Package domain defines the core domain models for the streamer.
package domain

// RunStatus represents the status of a run.
type RunStatus string

const (
	RunStatusPending     RunStatus = "pending"
	RunStatusRunning     RunStatus = "running"
	RunStatusInterrupted RunStatus = "interrupted"
	RunStatusComplete    RunStatus = "complete"
	RunStatusError       RunStatus = "error"
)

// IsTerminal reports whether no further transition is expected for the status.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusComplete || s == RunStatusError
}

// ActivityStatus represents the status of a tool activity.
type ActivityStatus string

const (
	ActivityStatusRunning  ActivityStatus = "running"
	ActivityStatusComplete ActivityStatus = "complete"
)

// ToolUpdateStatus is carried by tool_update events.
type ToolUpdateStatus string

const (
	ToolUpdateStart    ToolUpdateStatus = "start"
	ToolUpdateComplete ToolUpdateStatus = "complete"
)

// EventType represents the type of an event delivered to clients.
type EventType string

const (
	EventTypeInterrupt        EventType = "interrupt"
	EventTypeNodeUpdate       EventType = "node_update"
	EventTypeMessagesComplete EventType = "messages_complete"
	EventTypeMessagesMetadata EventType = "messages_metadata"
	EventTypeMessageToken     EventType = "message_token"
	EventTypeMetadata         EventType = "metadata"
	// Synthetic events derived from raw payloads
	EventTypeToolUpdate    EventType = "tool_update"
	EventTypeAgentTransfer EventType = "agent_transfer"
	EventTypeError         EventType = "error"
)
