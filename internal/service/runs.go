package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"goa.design/clue/log"

	"github.com/xiaot623/gogo/streamer/internal/domain"
	"github.com/xiaot623/gogo/streamer/internal/streaming"
)

// PreparedRun is a validated run that has not started streaming yet.
type PreparedRun struct {
	RunID    string
	ThreadID string
	Resumes  string // run continued by this one, if any

	run    domain.Run
	params streaming.Params
}

// PrepareRun validates a stream request and assigns a run ID.
func (s *Service) PrepareRun(ctx context.Context, threadID string, req domain.StreamRunRequest) (*PreparedRun, error) {
	if strings.TrimSpace(threadID) == "" {
		return nil, &ValidationError{Field: "thread_id", Message: "is required"}
	}
	if len(req.Input) == 0 || string(req.Input) == "null" {
		return nil, &ValidationError{Field: "input", Message: "is required"}
	}
	if !json.Valid(req.Input) {
		return nil, &ValidationError{Field: "input", Message: "must be valid JSON"}
	}

	p := s.newPrepared(threadID, req.UserID, req.AccountID)
	p.params.Stream.Input = req.Input
	if len(req.StreamMode) > 0 {
		p.params.Stream.StreamMode = req.StreamMode
	}
	return p, nil
}

// PrepareResume finds the latest interrupted run of the thread and prepares
// a new run that continues it. The interrupted run stays resumable until the
// new run finishes without error.
func (s *Service) PrepareResume(ctx context.Context, threadID string, req domain.ResumeRunRequest) (*PreparedRun, error) {
	if strings.TrimSpace(threadID) == "" {
		return nil, &ValidationError{Field: "thread_id", Message: "is required"}
	}
	if len(req.Resume) == 0 {
		return nil, &ValidationError{Field: "resume", Message: "is required"}
	}
	if !json.Valid(req.Resume) {
		return nil, &ValidationError{Field: "resume", Message: "must be valid JSON"}
	}

	prev, err := s.store.LatestInterruptedRun(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to find interrupted run: %w", err)
	}
	if prev == nil {
		return nil, ErrNothingToResume
	}

	userID, accountID := req.UserID, req.AccountID
	if userID == "" {
		userID = prev.UserID
	}
	if accountID == "" {
		accountID = prev.AccountID
	}

	p := s.newPrepared(threadID, userID, accountID)
	p.Resumes = prev.RunID
	p.params.Stream.Command = &domain.Command{Resume: req.Resume}

	log.Info(ctx, log.KV{K: "msg", V: "resuming run"}, log.KV{K: "run_id", V: prev.RunID}, log.KV{K: "resumed_by", V: p.RunID})
	return p, nil
}

func (s *Service) newPrepared(threadID, userID, accountID string) *PreparedRun {
	runID := "run_" + uuid.New().String()
	initial := domain.WireEvent{
		Type: domain.EventTypeMetadata,
		Data: map[string]string{"run_id": runID, "thread_id": threadID},
	}
	return &PreparedRun{
		RunID:    runID,
		ThreadID: threadID,
		run: domain.Run{
			RunID:     runID,
			ThreadID:  threadID,
			UserID:    userID,
			AccountID: accountID,
			Status:    domain.RunStatusRunning,
			StartedAt: s.now(),
		},
		params: streaming.Params{
			RunID:     runID,
			ThreadID:  threadID,
			UserID:    userID,
			AccountID: accountID,
			Stream: domain.StreamConfig{
				AssistantID:    s.config.AssistantID,
				StreamMode:     s.config.StreamModes,
				InitialMessage: &initial,
			},
		},
	}
}

// Execute streams a prepared run to transport and returns its final status.
// Thread watchers receive a copy of every delivered event.
func (s *Service) Execute(ctx context.Context, p *PreparedRun, transport streaming.Transport) domain.RunStatus {
	if s.watchers != nil {
		threadID := p.ThreadID
		transport = streaming.NewTee(transport, func(ev domain.WireEvent) {
			if !s.watchers.HasWatchers(threadID) {
				return
			}
			if err := s.watchers.BroadcastJSON(threadID, ev); err != nil {
				log.Debugf(ctx, "dropped watch event for thread %s: %v", threadID, err)
			}
		})
	}
	return s.orchestrator.Run(ctx, p.params, s.hooksFor(p), transport)
}

// StreamRun starts a new run on the thread and streams it to transport.
func (s *Service) StreamRun(ctx context.Context, threadID string, req domain.StreamRunRequest, transport streaming.Transport) (domain.RunStatus, error) {
	p, err := s.PrepareRun(ctx, threadID, req)
	if err != nil {
		return "", err
	}
	return s.Execute(ctx, p, transport), nil
}

// ResumeRun continues the latest interrupted run of the thread.
func (s *Service) ResumeRun(ctx context.Context, threadID string, req domain.ResumeRunRequest, transport streaming.Transport) (domain.RunStatus, error) {
	p, err := s.PrepareResume(ctx, threadID, req)
	if err != nil {
		return "", err
	}
	return s.Execute(ctx, p, transport), nil
}
