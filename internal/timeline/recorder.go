package timeline

import (
	"context"
	"sync"
	"time"

	"github.com/xiaot623/gogo/streamer/internal/domain"
)

// Recorder keeps the tool activities of runs in memory. It satisfies the
// orchestrator's hook contract and is used when no database is involved.
type Recorder struct {
	mu         sync.Mutex
	activities []domain.ToolActivity
	index      map[string]int // run_id + "/" + tool_name
	statuses   map[string]domain.RunStatus
	now        func() time.Time
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		index:    make(map[string]int),
		statuses: make(map[string]domain.RunStatus),
		now:      time.Now,
	}
}

func (r *Recorder) OnRunStart(_ context.Context, runID, _, _, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.statuses[runID]; !ok {
		r.statuses[runID] = domain.RunStatusRunning
	}
	return nil
}

func (r *Recorder) OnToolStart(_ context.Context, runID, toolKey, toolLabel, agent string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := runID + "/" + toolKey
	if _, ok := r.index[key]; ok {
		return nil
	}
	r.index[key] = len(r.activities)
	r.activities = append(r.activities, domain.ToolActivity{
		ID:        key,
		RunID:     runID,
		ToolName:  toolKey,
		Label:     toolLabel,
		Agent:     agent,
		Status:    domain.ActivityStatusRunning,
		StartedAt: r.now().UnixMilli(),
	})
	return nil
}

func (r *Recorder) OnToolComplete(_ context.Context, runID, toolKey string, status domain.ActivityStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now().UnixMilli()
	key := runID + "/" + toolKey
	if i, ok := r.index[key]; ok {
		r.activities[i].Status = status
		r.activities[i].CompletedAt = &now
		return nil
	}
	r.index[key] = len(r.activities)
	r.activities = append(r.activities, domain.ToolActivity{
		ID:          key,
		RunID:       runID,
		ToolName:    toolKey,
		Status:      status,
		StartedAt:   now,
		CompletedAt: &now,
	})
	return nil
}

func (r *Recorder) OnRunFinalize(_ context.Context, runID string, status domain.RunStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[runID] = status
	return nil
}

// Activities returns a copy of the recorded activities in arrival order.
func (r *Recorder) Activities() []domain.ToolActivity {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ToolActivity, len(r.activities))
	copy(out, r.activities)
	return out
}

// Status returns the last recorded status of a run.
func (r *Recorder) Status(runID string) (domain.RunStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.statuses[runID]
	return s, ok
}
