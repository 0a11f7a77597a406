package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"goa.design/clue/log"

	"github.com/xiaot623/gogo/streamer/internal/domain"
	"github.com/xiaot623/gogo/streamer/internal/repository"
	"github.com/xiaot623/gogo/streamer/internal/streaming"
)

// storeHooks persists the progress of one run.
type storeHooks struct {
	store   repository.Store
	run     domain.Run
	resumes string // interrupted run closed once this one finishes cleanly
	now     func() time.Time
}

var (
	_ streaming.Hooks             = (*storeHooks)(nil)
	_ streaming.InterruptRecorder = (*storeHooks)(nil)
)

func (s *Service) hooksFor(p *PreparedRun) *storeHooks {
	return &storeHooks{store: s.store, run: p.run, resumes: p.Resumes, now: s.now}
}

func (h *storeHooks) OnRunStart(ctx context.Context, runID, threadID, userID, accountID string) error {
	run := h.run
	run.RunID, run.ThreadID, run.UserID, run.AccountID = runID, threadID, userID, accountID
	run.Status = domain.RunStatusRunning
	if err := h.store.CreateRun(ctx, &run); err != nil {
		return fmt.Errorf("failed to record run start: %w", err)
	}
	return nil
}

func (h *storeHooks) OnToolStart(ctx context.Context, runID, toolKey, toolLabel, agent string) error {
	inserted, err := h.store.StartToolActivity(ctx, &domain.ToolActivity{
		ID:        "act_" + uuid.New().String(),
		RunID:     runID,
		ToolName:  toolKey,
		Label:     toolLabel,
		Agent:     agent,
		Status:    domain.ActivityStatusRunning,
		StartedAt: h.now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("failed to record tool start: %w", err)
	}
	if !inserted {
		log.Debugf(ctx, "tool %s already recorded for run %s", toolKey, runID)
	}
	return nil
}

func (h *storeHooks) OnToolComplete(ctx context.Context, runID, toolKey string, status domain.ActivityStatus) error {
	now := h.now().UnixMilli()
	err := h.store.CompleteToolActivity(ctx, &domain.ToolActivity{
		ID:          "act_" + uuid.New().String(),
		RunID:       runID,
		ToolName:    toolKey,
		Status:      status,
		StartedAt:   now,
		CompletedAt: &now,
	})
	if err != nil {
		return fmt.Errorf("failed to record tool completion: %w", err)
	}
	return nil
}

func (h *storeHooks) OnRunFinalize(ctx context.Context, runID string, status domain.RunStatus) error {
	// The start hook may have lost the race with an early failure.
	if err := h.ensureRun(ctx); err != nil {
		return err
	}
	final, err := h.store.FinalizeRun(ctx, runID, status)
	if err != nil {
		return fmt.Errorf("failed to finalize run: %w", err)
	}
	log.Print(ctx, log.KV{K: "msg", V: "run finalized"}, log.KV{K: "status", V: string(final)})

	if h.resumes == "" || final == domain.RunStatusError {
		return nil
	}
	if err := h.store.MarkRunResumed(ctx, h.resumes, runID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Warnf(ctx, "run %s was already resumed by another run", h.resumes)
			return nil
		}
		return fmt.Errorf("failed to mark run resumed: %w", err)
	}
	log.Info(ctx, log.KV{K: "msg", V: "interrupted run resumed"}, log.KV{K: "resumed_run", V: h.resumes})
	return nil
}

func (h *storeHooks) OnInterrupt(ctx context.Context, runID string, payload json.RawMessage) error {
	if err := h.ensureRun(ctx); err != nil {
		return err
	}
	if err := h.store.SetRunInterrupt(ctx, runID, payload); err != nil {
		return fmt.Errorf("failed to record interrupt: %w", err)
	}
	return nil
}

func (h *storeHooks) ensureRun(ctx context.Context) error {
	run := h.run
	run.Status = domain.RunStatusRunning
	if err := h.store.CreateRun(ctx, &run); err != nil {
		return fmt.Errorf("failed to ensure run: %w", err)
	}
	return nil
}
