package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xiaot623/gogo/streamer/internal/domain"
	"github.com/xiaot623/gogo/streamer/internal/timeline"
)

// GetRun returns a run by ID.
func (s *Service) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return nil, ErrRunNotFound
	}
	return run, nil
}

// GetRunTimeline rebuilds the timeline of one run from stored activities.
func (s *Service) GetRunTimeline(ctx context.Context, runID string, cfg timeline.Config) ([]domain.TimelineStep, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	activities, err := s.store.ListToolActivitiesByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	return s.builder.BuildForRun(activities, runID, cfg), nil
}

// GetRunStats summarizes the stored activities of one run.
func (s *Service) GetRunStats(ctx context.Context, runID string) (domain.TimelineStats, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return domain.TimelineStats{}, err
	}
	activities, err := s.store.ListToolActivitiesByRun(ctx, runID)
	if err != nil {
		return domain.TimelineStats{}, fmt.Errorf("failed to list activities: %w", err)
	}
	return timeline.Stats(activities, runID), nil
}

// GetThreadTimeline concatenates the timelines of every run of a thread.
func (s *Service) GetThreadTimeline(ctx context.Context, threadID string, cfg timeline.Config) ([]domain.TimelineStep, error) {
	if strings.TrimSpace(threadID) == "" {
		return nil, &ValidationError{Field: "thread_id", Message: "is required"}
	}
	activities, err := s.store.ListToolActivitiesByThread(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	return s.builder.BuildFromAll(activities, cfg), nil
}

// GetThreadStats summarizes the stored activities of every run of a thread.
func (s *Service) GetThreadStats(ctx context.Context, threadID string) (domain.TimelineStats, error) {
	activities, err := s.store.ListToolActivitiesByThread(ctx, threadID)
	if err != nil {
		return domain.TimelineStats{}, fmt.Errorf("failed to list activities: %w", err)
	}
	return timeline.Stats(activities, ""), nil
}
