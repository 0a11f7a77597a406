// Package streaming drives the consumption loop of a single run: it pulls raw
// events from the runtime, classifies them, derives tool activity, pushes the
// results to a transport and reports progress to persistence hooks.
package streaming

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/xiaot623/gogo/streamer/internal/adapter/runtime"
	"github.com/xiaot623/gogo/streamer/internal/domain"
)

// ErrTransportClosed is returned by a Transport whose client went away.
var ErrTransportClosed = errors.New("transport closed")

// Source produces the raw events of a run.
type Source interface {
	Stream(ctx context.Context, threadID string, req domain.StreamRequest, handler runtime.EventHandler) error
}

// Transport delivers wire events to one client. Send blocks while the client
// is slow.
type Transport interface {
	Send(ctx context.Context, ev domain.WireEvent) error
	Close() error
}

// Hooks receive run progress. Calls for one run arrive in detection order on
// a goroutine other than the loop's, and their errors are only logged.
type Hooks interface {
	OnRunStart(ctx context.Context, runID, threadID, userID, accountID string) error
	OnToolStart(ctx context.Context, runID, toolKey, toolLabel, agent string) error
	OnToolComplete(ctx context.Context, runID, toolKey string, status domain.ActivityStatus) error
	OnRunFinalize(ctx context.Context, runID string, status domain.RunStatus) error
}

// InterruptRecorder is implemented by hooks that keep the pending interrupt
// so the run can be resumed later.
type InterruptRecorder interface {
	OnInterrupt(ctx context.Context, runID string, payload json.RawMessage) error
}

// Params identify the run to consume.
type Params struct {
	RunID     string
	ThreadID  string
	UserID    string
	AccountID string
	Stream    domain.StreamConfig
}

func (p Params) request() domain.StreamRequest {
	return domain.StreamRequest{
		AssistantID: p.Stream.AssistantID,
		Input:       p.Stream.Input,
		Command:     p.Stream.Command,
		Config: domain.RunConfig{Configurable: domain.Configurable{
			UserID:    p.UserID,
			AccountID: p.AccountID,
		}},
		StreamMode: p.Stream.StreamMode,
	}
}
