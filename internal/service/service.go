// Package service implements the streamer's use cases on top of the
// orchestrator, the timeline builder and the store.
package service

import (
	"errors"
	"time"

	"github.com/xiaot623/gogo/streamer/internal/config"
	"github.com/xiaot623/gogo/streamer/internal/hub"
	"github.com/xiaot623/gogo/streamer/internal/repository"
	"github.com/xiaot623/gogo/streamer/internal/streaming"
	"github.com/xiaot623/gogo/streamer/internal/timeline"
	"github.com/xiaot623/gogo/streamer/internal/toolname"
)

var (
	// ErrRunNotFound is returned when a run does not exist.
	ErrRunNotFound = errors.New("run not found")
	// ErrNothingToResume is returned when a thread has no interrupted run.
	ErrNothingToResume = errors.New("no interrupted run to resume")
)

// ValidationError reports a bad client request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + " " + e.Message
}

// Service holds the business logic.
type Service struct {
	store        repository.Store
	orchestrator *streaming.Orchestrator
	builder      *timeline.Builder
	watchers     *hub.Hub
	config       *config.Config
	now          func() time.Time
}

// New creates a new service. watchers may be nil.
func New(store repository.Store, source streaming.Source, mapper *toolname.Mapper, watchers *hub.Hub, cfg *config.Config) *Service {
	return &Service{
		store:        store,
		orchestrator: streaming.New(source, mapper, streaming.WithHookTimeout(cfg.HookTimeout)),
		builder:      timeline.NewBuilder(mapper),
		watchers:     watchers,
		config:       cfg,
		now:          time.Now,
	}
}

// TimelineConfig returns the configured timeline defaults.
func (s *Service) TimelineConfig() timeline.Config {
	return timeline.Config{
		MinimumActivities: s.config.TimelineMinimumActivities,
		AddDoneStep:       s.config.TimelineAddDoneStep,
	}
}
