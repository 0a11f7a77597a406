// Package timeline rebuilds renderable tool timelines from activity records.
// Builder does no I/O of its own and never panics on odd input; tool
// visibility comes from the mapper, which may consult a cached policy.
// Recorder keeps activities in memory for runs without a database.
package timeline

import (
	"sort"

	"github.com/xiaot623/gogo/streamer/internal/domain"
	"github.com/xiaot623/gogo/streamer/internal/toolname"
)

// DoneLabel is the label of the synthetic completion step.
const DoneLabel = "Done"

// Config controls timeline construction.
type Config struct {
	MinimumActivities int
	AddDoneStep       bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{MinimumActivities: 1, AddDoneStep: true}
}

// Builder builds timelines using a mapper for labels and filtering.
type Builder struct {
	mapper *toolname.Mapper
}

// NewBuilder creates a builder.
func NewBuilder(mapper *toolname.Mapper) *Builder {
	return &Builder{mapper: mapper}
}

// BuildForRun returns the ordered steps for one run.
func (b *Builder) BuildForRun(activities []domain.ToolActivity, runID string, cfg Config) []domain.TimelineStep {
	var visible []domain.ToolActivity
	handedBack := false
	for _, a := range activities {
		if a.RunID != runID {
			continue
		}
		if toolname.NormalizeKey(a.ToolName) == toolname.SentinelTransferBack && a.Status == domain.ActivityStatusComplete {
			handedBack = true
		}
		if b.mapper.ShouldFilterTool(a.ToolName) {
			continue
		}
		visible = append(visible, a)
	}

	if len(visible) == 0 || len(visible) < cfg.MinimumActivities {
		return []domain.TimelineStep{}
	}

	sort.SliceStable(visible, func(i, j int) bool {
		return visible[i].StartedAt < visible[j].StartedAt
	})

	steps := make([]domain.TimelineStep, 0, len(visible)+1)
	allComplete := true
	for _, a := range visible {
		running := a.Status == domain.ActivityStatusRunning
		if a.Status != domain.ActivityStatusComplete {
			allComplete = false
		}
		steps = append(steps, domain.TimelineStep{
			Label:     b.mapper.MapToolName(a.ToolName),
			IsRunning: running,
		})
	}

	if !cfg.AddDoneStep || !(allComplete || handedBack) {
		return steps
	}

	if handedBack {
		for i := range steps {
			steps[i].IsRunning = false
		}
	}
	return append(steps, domain.TimelineStep{Label: DoneLabel, IsLast: true})
}

// BuildFromAll groups activities by run in encounter order and concatenates
// the per-run timelines.
func (b *Builder) BuildFromAll(activities []domain.ToolActivity, cfg Config) []domain.TimelineStep {
	var order []string
	seen := make(map[string]bool)
	for _, a := range activities {
		if !seen[a.RunID] {
			seen[a.RunID] = true
			order = append(order, a.RunID)
		}
	}

	steps := []domain.TimelineStep{}
	for _, runID := range order {
		steps = append(steps, b.BuildForRun(activities, runID, cfg)...)
	}
	return steps
}
