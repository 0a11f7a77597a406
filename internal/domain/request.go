package domain

import "encoding/json"

// Command carries control instructions for the upstream runtime.
type Command struct {
	Resume json.RawMessage `json:"resume,omitempty"`
}

// Configurable is forwarded to the runtime as config.configurable.
type Configurable struct {
	UserID    string `json:"user_id,omitempty"`
	AccountID string `json:"account_id,omitempty"`
}

// RunConfig is the runtime config block of a stream request.
type RunConfig struct {
	Configurable Configurable `json:"configurable"`
}

// StreamRequest is the body of an upstream stream call.
type StreamRequest struct {
	AssistantID string          `json:"assistant_id"`
	Input       json.RawMessage `json:"input,omitempty"`
	Command     *Command        `json:"command,omitempty"`
	Config      RunConfig       `json:"config"`
	StreamMode  []string        `json:"stream_mode,omitempty"`
}

// StreamConfig describes what to stream for one orchestrator invocation.
type StreamConfig struct {
	AssistantID    string
	Input          json.RawMessage
	Command        *Command
	StreamMode     []string
	InitialMessage *WireEvent
}

// StreamRunRequest is the client request to start a run.
type StreamRunRequest struct {
	Input      json.RawMessage `json:"input"`
	UserID     string          `json:"user_id,omitempty"`
	AccountID  string          `json:"account_id,omitempty"`
	StreamMode []string        `json:"stream_mode,omitempty"`
}

// ResumeRunRequest is the client request to resume an interrupted thread.
type ResumeRunRequest struct {
	Resume    json.RawMessage `json:"resume"`
	UserID    string          `json:"user_id,omitempty"`
	AccountID string          `json:"account_id,omitempty"`
}
