package timeline

import "github.com/xiaot623/gogo/streamer/internal/domain"

// Stats summarizes activities, optionally restricted to one run. Filtered
// tools are counted too.
func Stats(activities []domain.ToolActivity, runID string) domain.TimelineStats {
	var stats domain.TimelineStats
	tools := make(map[string]struct{})
	var minStart, maxStart int64

	for _, a := range activities {
		if runID != "" && a.RunID != runID {
			continue
		}
		if stats.TotalActivities == 0 || a.StartedAt < minStart {
			minStart = a.StartedAt
		}
		if stats.TotalActivities == 0 || a.StartedAt > maxStart {
			maxStart = a.StartedAt
		}
		stats.TotalActivities++
		switch a.Status {
		case domain.ActivityStatusComplete:
			stats.CompletedActivities++
		case domain.ActivityStatusRunning:
			stats.RunningActivities++
		}
		tools[a.ToolName] = struct{}{}
	}

	stats.UniqueTools = len(tools)
	if stats.TotalActivities >= 2 {
		span := maxStart - minStart
		stats.Timespan = &span
	}
	return stats
}
