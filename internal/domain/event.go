package domain

import "encoding/json"

// RawEvent is one event as produced by the upstream runtime.
type RawEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// WireEvent is the JSON object written to clients, one per SSE frame.
type WireEvent struct {
	Type       EventType       `json:"type"`
	Data       any             `json:"data"`
	Interrupt  json.RawMessage `json:"interrupt,omitempty"`
	StreamMode string          `json:"streamMode,omitempty"`
	NodeName   string          `json:"nodeName,omitempty"`
	Metadata   any             `json:"metadata,omitempty"`
}

// ToolUpdateData is the data of a tool_update event.
type ToolUpdateData struct {
	ToolName string           `json:"toolName"`
	Status   ToolUpdateStatus `json:"status"`
}

// AgentTransferData is the data of an agent_transfer event.
type AgentTransferData struct {
	ToAgent string `json:"toAgent"`
}

// ErrorData is the data of an error event.
type ErrorData struct {
	Message string `json:"message"`
}

// ToolUpdate builds a tool_update wire event.
func ToolUpdate(toolName string, status ToolUpdateStatus) WireEvent {
	return WireEvent{Type: EventTypeToolUpdate, Data: ToolUpdateData{ToolName: toolName, Status: status}}
}

// AgentTransfer builds an agent_transfer wire event.
func AgentTransfer(toAgent string) WireEvent {
	return WireEvent{Type: EventTypeAgentTransfer, Data: AgentTransferData{ToAgent: toAgent}}
}

// ErrorEvent builds an error wire event.
func ErrorEvent(message string) WireEvent {
	return WireEvent{Type: EventTypeError, Data: ErrorData{Message: message}}
}
