package streaming

import (
	"context"
	"errors"
	"fmt"
	"time"

	"goa.design/clue/log"

	"github.com/xiaot623/gogo/streamer/internal/domain"
	"github.com/xiaot623/gogo/streamer/internal/events"
	"github.com/xiaot623/gogo/streamer/internal/toolname"
)

const defaultHookTimeout = 10 * time.Second

// errUpstreamReported stops the loop once the runtime's own error event has
// been forwarded to the client.
var errUpstreamReported = errors.New("runtime reported an error")

// Orchestrator runs consumption loops. One Orchestrator serves any number of
// concurrent runs; all per-run state is local to Run.
type Orchestrator struct {
	source      Source
	mapper      *toolname.Mapper
	detector    *events.Detector
	hookTimeout time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithHookTimeout bounds each hook call.
func WithHookTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.hookTimeout = d
		}
	}
}

// New creates an orchestrator reading runs from source.
func New(source Source, mapper *toolname.Mapper, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		source:      source,
		mapper:      mapper,
		detector:    events.NewDetector(mapper),
		hookTimeout: defaultHookTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run holds the state of one consumption loop.
type run struct {
	o         *Orchestrator
	params    Params
	hooks     Hooks
	transport Transport
	state     *events.State
	queue     *hookQueue

	interrupted bool
}

// Run consumes one run to the end. It closes the transport, drains the hook
// queue and calls OnRunFinalize exactly once before returning the final
// status. Hooks run in the order their events were detected, off the loop's
// goroutine. hooks may be nil.
func (o *Orchestrator) Run(ctx context.Context, p Params, hooks Hooks, transport Transport) domain.RunStatus {
	ctx = log.With(ctx, log.KV{K: "run_id", V: p.RunID}, log.KV{K: "thread_id", V: p.ThreadID})
	r := &run{
		o:         o,
		params:    p,
		hooks:     hooks,
		transport: transport,
		state:     events.NewState(),
	}
	if hooks != nil {
		r.queue = newHookQueue()
	}

	r.fire(ctx, "run_start", func(hctx context.Context, h Hooks) error {
		return h.OnRunStart(hctx, p.RunID, p.ThreadID, p.UserID, p.AccountID)
	})

	err := r.consume(ctx)
	status := domain.RunStatusComplete
	switch {
	case err == nil:
	case errors.Is(err, errUpstreamReported):
		status = domain.RunStatusError
	case isDisconnect(ctx, err):
		log.Info(ctx, log.KV{K: "msg", V: "client disconnected"}, log.KV{K: "err", V: err.Error()})
		status = domain.RunStatusError
	default:
		log.Error(ctx, err, log.KV{K: "msg", V: "run stream failed"})
		status = domain.RunStatusError
		if sendErr := transport.Send(ctx, domain.ErrorEvent(events.GenericErrorMessage)); sendErr != nil {
			log.Debugf(ctx, "failed to deliver error event: %v", sendErr)
		}
	}

	if err := transport.Close(); err != nil {
		log.Errorf(ctx, err, "failed to close transport")
	}

	if r.queue != nil {
		r.queue.close()
	}
	r.call(ctx, "run_finalize", func(hctx context.Context, h Hooks) error {
		return h.OnRunFinalize(hctx, p.RunID, status)
	})

	log.Info(ctx, log.KV{K: "msg", V: "run finished"}, log.KV{K: "status", V: string(status)},
		log.KV{K: "tools", V: r.state.StartedCount()}, log.KV{K: "interrupted", V: r.interrupted})
	return status
}

func (r *run) consume(ctx context.Context) error {
	if msg := r.params.Stream.InitialMessage; msg != nil {
		if err := r.transport.Send(ctx, *msg); err != nil {
			return fmt.Errorf("failed to send initial message: %w", err)
		}
	}

	return r.o.source.Stream(ctx, r.params.ThreadID, r.params.request(), func(raw domain.RawEvent) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return r.handle(ctx, raw)
	})
}

func (r *run) handle(ctx context.Context, raw domain.RawEvent) error {
	if ev, ok := events.Classify(raw); ok {
		if ev.Type == domain.EventTypeInterrupt {
			r.interrupted = true
			r.recordInterrupt(ctx, ev)
		}
		if err := r.transport.Send(ctx, ev); err != nil {
			return fmt.Errorf("failed to send %s event: %w", ev.Type, err)
		}
		if ev.Type == domain.EventTypeError {
			log.Warnf(ctx, "runtime reported an error: %s", truncate(string(raw.Data), 512))
			return errUpstreamReported
		}
	}

	ev, ok := r.o.detector.Detect(raw, r.state)
	if !ok {
		return nil
	}
	if err := r.transport.Send(ctx, ev); err != nil {
		return fmt.Errorf("failed to send %s event: %w", ev.Type, err)
	}

	if update, ok := ev.Data.(domain.ToolUpdateData); ok {
		runID, key := r.params.RunID, update.ToolName
		switch update.Status {
		case domain.ToolUpdateStart:
			label, agent := r.o.mapper.MapToolName(key), r.state.CurrentAgent()
			r.fire(ctx, "tool_start", func(hctx context.Context, h Hooks) error {
				return h.OnToolStart(hctx, runID, key, label, agent)
			})
		case domain.ToolUpdateComplete:
			r.fire(ctx, "tool_complete", func(hctx context.Context, h Hooks) error {
				return h.OnToolComplete(hctx, runID, key, domain.ActivityStatusComplete)
			})
		}
	}
	return nil
}

func (r *run) recordInterrupt(ctx context.Context, ev domain.WireEvent) {
	payload := ev.Interrupt
	r.fire(ctx, "interrupt", func(hctx context.Context, h Hooks) error {
		rec, ok := h.(InterruptRecorder)
		if !ok {
			return nil
		}
		return rec.OnInterrupt(hctx, r.params.RunID, payload)
	})
}

// fire queues a hook call behind the ones already fired for this run.
func (r *run) fire(ctx context.Context, name string, fn func(context.Context, Hooks) error) {
	if r.queue == nil {
		return
	}
	r.queue.push(func() { r.call(ctx, name, fn) })
}

// call invokes a hook with a bounded context that outlives client cancellation.
func (r *run) call(ctx context.Context, name string, fn func(context.Context, Hooks) error) {
	if r.hooks == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			log.Error(ctx, fmt.Errorf("hook panic: %v", rec), log.KV{K: "hook", V: name})
		}
	}()

	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.o.hookTimeout)
	defer cancel()
	if err := fn(hctx, r.hooks); err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "hook failed"}, log.KV{K: "hook", V: name})
	}
}

func isDisconnect(ctx context.Context, err error) bool {
	return errors.Is(err, ErrTransportClosed) || errors.Is(err, context.Canceled) || ctx.Err() != nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
