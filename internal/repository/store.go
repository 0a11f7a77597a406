// Package repository persists runs and tool activities.
package repository

import (
	"context"
	"encoding/json"

	"github.com/xiaot623/gogo/streamer/internal/domain"
)

// Store defines the persistence operations used by the service.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, runID string) (*domain.Run, error)
	ListRunsByThread(ctx context.Context, threadID string) ([]domain.Run, error)
	SetRunInterrupt(ctx context.Context, runID string, payload json.RawMessage) error
	FinalizeRun(ctx context.Context, runID string, status domain.RunStatus) (domain.RunStatus, error)
	MarkRunResumed(ctx context.Context, runID, resumedBy string) error
	LatestInterruptedRun(ctx context.Context, threadID string) (*domain.Run, error)

	// Tool activities
	StartToolActivity(ctx context.Context, activity *domain.ToolActivity) (bool, error)
	CompleteToolActivity(ctx context.Context, activity *domain.ToolActivity) error
	ListToolActivitiesByRun(ctx context.Context, runID string) ([]domain.ToolActivity, error)
	ListToolActivitiesByThread(ctx context.Context, threadID string) ([]domain.ToolActivity, error)

	Close() error
}
