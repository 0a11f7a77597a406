package domain

import (
	"encoding/json"
	"time"
)

// Run represents one execution of the upstream runtime against a thread.
type Run struct {
	RunID     string          `json:"run_id"`
	ThreadID  string          `json:"thread_id"`
	UserID    string          `json:"user_id,omitempty"`
	AccountID string          `json:"account_id,omitempty"`
	Status    RunStatus       `json:"status"`
	Interrupt json.RawMessage `json:"interrupt,omitempty"` // pending interrupt payload, if any
	ResumedBy string          `json:"resumed_by,omitempty"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   *time.Time      `json:"ended_at,omitempty"`
}

// ToolActivity records that a tool started or completed within a run.
// Identity is (RunID, ToolName).
type ToolActivity struct {
	ID          string         `json:"id"`
	RunID       string         `json:"run_id"`
	ToolName    string         `json:"tool_name"` // normalized key
	Label       string         `json:"label,omitempty"`
	Agent       string         `json:"agent,omitempty"`
	Status      ActivityStatus `json:"status"`
	StartedAt   int64          `json:"started_at"` // Unix milliseconds
	CompletedAt *int64         `json:"completed_at,omitempty"`
}

// TimelineStep is a rendering-ready projection of a tool activity.
type TimelineStep struct {
	Label     string `json:"label"`
	IsLast    bool   `json:"isLast"`
	IsRunning bool   `json:"isRunning"`
}

// TimelineStats summarizes a collection of tool activities.
type TimelineStats struct {
	TotalActivities     int    `json:"totalActivities"`
	CompletedActivities int    `json:"completedActivities"`
	RunningActivities   int    `json:"runningActivities"`
	UniqueTools         int    `json:"uniqueTools"`
	Timespan            *int64 `json:"timespan,omitempty"` // nil when fewer than 2 activities
}
