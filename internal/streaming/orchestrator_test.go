package streaming

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/streamer/internal/adapter/runtime"
	"github.com/xiaot623/gogo/streamer/internal/domain"
	"github.com/xiaot623/gogo/streamer/internal/events"
	"github.com/xiaot623/gogo/streamer/internal/timeline"
	"github.com/xiaot623/gogo/streamer/internal/toolname"
)

type fakeSource struct {
	events  []domain.RawEvent
	err     error
	gotReq  domain.StreamRequest
	blockOn chan struct{}
}

func (s *fakeSource) Stream(ctx context.Context, threadID string, req domain.StreamRequest, handler runtime.EventHandler) error {
	s.gotReq = req
	for _, ev := range s.events {
		if err := handler(ev); err != nil {
			return err
		}
	}
	if s.blockOn != nil {
		select {
		case <-s.blockOn:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.err
}

type fakeTransport struct {
	mu      sync.Mutex
	sent    []domain.WireEvent
	closed  bool
	failAt  int // Send number (1-based) that reports a disconnect; 0 never
	onClose func()
}

func (t *fakeTransport) Send(_ context.Context, ev domain.WireEvent) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransportClosed
	}
	if t.failAt > 0 && len(t.sent)+1 == t.failAt {
		t.closed = true
		return ErrTransportClosed
	}
	t.sent = append(t.sent, ev)
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	if t.onClose != nil {
		t.onClose()
	}
	return nil
}

func (t *fakeTransport) types() []domain.EventType {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.EventType, len(t.sent))
	for i, ev := range t.sent {
		out[i] = ev.Type
	}
	return out
}

func (t *fakeTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}

type recordingHooks struct {
	mu         sync.Mutex
	calls      []string
	finalized  []domain.RunStatus
	interrupts []json.RawMessage
	fail       bool
	panicOn    string
	release    chan struct{}
}

func (h *recordingHooks) record(call string) error {
	if h.release != nil && strings.HasPrefix(call, "tool_start") {
		<-h.release
	}
	h.mu.Lock()
	h.calls = append(h.calls, call)
	h.mu.Unlock()
	if h.panicOn != "" && strings.HasPrefix(call, h.panicOn) {
		panic("boom")
	}
	if h.fail {
		return errors.New("db down")
	}
	return nil
}

func (h *recordingHooks) OnRunStart(_ context.Context, runID, threadID, userID, accountID string) error {
	return h.record("run_start:" + runID + ":" + threadID + ":" + userID + ":" + accountID)
}

func (h *recordingHooks) OnToolStart(_ context.Context, runID, toolKey, toolLabel, agent string) error {
	return h.record("tool_start:" + toolKey + ":" + toolLabel + ":" + agent)
}

func (h *recordingHooks) OnToolComplete(_ context.Context, runID, toolKey string, status domain.ActivityStatus) error {
	return h.record("tool_complete:" + toolKey + ":" + string(status))
}

func (h *recordingHooks) OnRunFinalize(_ context.Context, runID string, status domain.RunStatus) error {
	h.mu.Lock()
	h.finalized = append(h.finalized, status)
	h.mu.Unlock()
	return h.record("finalize:" + string(status))
}

func (h *recordingHooks) OnInterrupt(_ context.Context, runID string, payload json.RawMessage) error {
	h.mu.Lock()
	h.interrupts = append(h.interrupts, payload)
	h.mu.Unlock()
	return nil
}

func (h *recordingHooks) snapshot() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

func rawEvent(event, data string) domain.RawEvent {
	return domain.RawEvent{Event: event, Data: json.RawMessage(data)}
}

func params() Params {
	return Params{
		RunID:     "r1",
		ThreadID:  "t1",
		UserID:    "u1",
		AccountID: "a1",
		Stream:    domain.StreamConfig{AssistantID: "agent", StreamMode: []string{"updates", "messages"}},
	}
}

func TestRunStreamsEventsAndCallsHooks(t *testing.T) {
	source := &fakeSource{events: []domain.RawEvent{
		rawEvent("metadata", `{"run_id":"upstream"}`),
		rawEvent("updates", `{"financial_analyst_agent":{"messages":[]}}`),
		rawEvent("updates", `{"tool_node":{"name":"web_search"}}`),
		rawEvent("updates", `{"tool_node":{"name":"web_search"}}`),
		rawEvent("messages", `[{"type":"tool","name":"web_search","status":"success"}]`),
	}}
	transport := &fakeTransport{}
	hooks := &recordingHooks{}

	status := New(source, toolname.New()).Run(context.Background(), params(), hooks, transport)

	assert.Equal(t, domain.RunStatusComplete, status)
	assert.Equal(t, []domain.EventType{
		domain.EventTypeMetadata,
		domain.EventTypeNodeUpdate, domain.EventTypeAgentTransfer,
		domain.EventTypeNodeUpdate, domain.EventTypeToolUpdate,
		domain.EventTypeNodeUpdate,
		domain.EventTypeMessagesMetadata, domain.EventTypeToolUpdate,
	}, transport.types())
	assert.True(t, transport.closed)

	assert.Equal(t, []string{
		"run_start:r1:t1:u1:a1",
		"tool_start:web_search:Researching market information:financial_analyst_agent",
		"tool_complete:web_search:complete",
		"finalize:complete",
	}, hooks.snapshot())

	assert.Equal(t, "agent", source.gotReq.AssistantID)
	assert.Equal(t, "u1", source.gotReq.Config.Configurable.UserID)
	assert.Equal(t, "a1", source.gotReq.Config.Configurable.AccountID)
}

func TestRunSendsInitialMessageFirst(t *testing.T) {
	source := &fakeSource{events: []domain.RawEvent{rawEvent("metadata", `{}`)}}
	transport := &fakeTransport{}
	p := params()
	p.Stream.InitialMessage = &domain.WireEvent{Type: domain.EventTypeMetadata, Data: map[string]string{"run_id": "r1"}}

	New(source, toolname.New()).Run(context.Background(), p, nil, transport)

	require.Equal(t, 2, transport.count())
	assert.Equal(t, map[string]string{"run_id": "r1"}, transport.sent[0].Data)
}

func TestRunUpstreamFailure(t *testing.T) {
	source := &fakeSource{
		events: []domain.RawEvent{rawEvent("updates", `{"tool_node":{"name":"web_search"}}`)},
		err:    errors.New("connection reset by peer at 10.0.0.3:8123"),
	}
	transport := &fakeTransport{}
	hooks := &recordingHooks{}

	status := New(source, toolname.New()).Run(context.Background(), params(), hooks, transport)

	assert.Equal(t, domain.RunStatusError, status)
	types := transport.types()
	require.NotEmpty(t, types)
	assert.Equal(t, domain.EventTypeError, types[len(types)-1])

	last := transport.sent[len(transport.sent)-1]
	assert.Equal(t, domain.ErrorData{Message: events.GenericErrorMessage}, last.Data)
	assert.Equal(t, []domain.RunStatus{domain.RunStatusError}, hooks.finalized)
	assert.True(t, transport.closed)
}

func TestRunUpstreamErrorEventIsNotDuplicated(t *testing.T) {
	source := &fakeSource{
		events: []domain.RawEvent{rawEvent("error", `{"error":"GraphRecursionError","message":"stack..."}`)},
		err:    errors.New("stream ended abruptly"),
	}
	transport := &fakeTransport{}
	hooks := &recordingHooks{}

	status := New(source, toolname.New()).Run(context.Background(), params(), hooks, transport)

	assert.Equal(t, domain.RunStatusError, status)
	assert.Equal(t, []domain.EventType{domain.EventTypeError}, transport.types())
	assert.Equal(t, []domain.RunStatus{domain.RunStatusError}, hooks.finalized)
}

func TestRunStopsForwardingAfterUpstreamError(t *testing.T) {
	source := &fakeSource{events: []domain.RawEvent{
		rawEvent("updates", `{"tool_node":{"name":"web_search"}}`),
		rawEvent("error", `{"message":"boom"}`),
		rawEvent("updates", `{"tool_node":{"name":"get_stock_price"}}`),
		rawEvent("messages", `[{"type":"tool","name":"web_search","status":"success"}]`),
	}}
	transport := &fakeTransport{}
	hooks := &recordingHooks{}

	status := New(source, toolname.New()).Run(context.Background(), params(), hooks, transport)

	assert.Equal(t, domain.RunStatusError, status)
	assert.Equal(t, []domain.EventType{
		domain.EventTypeNodeUpdate, domain.EventTypeToolUpdate,
		domain.EventTypeError,
	}, transport.types())
	assert.Equal(t, []string{
		"run_start:r1:t1:u1:a1",
		"tool_start:web_search:Researching market information:",
		"finalize:error",
	}, hooks.snapshot())
}

func TestRunUpstreamErrorEventThenExhaustion(t *testing.T) {
	source := &fakeSource{events: []domain.RawEvent{rawEvent("error", `{"message":"boom"}`)}}
	hooks := &recordingHooks{}

	status := New(source, toolname.New()).Run(context.Background(), params(), hooks, &fakeTransport{})

	assert.Equal(t, domain.RunStatusError, status)
	assert.Equal(t, []domain.RunStatus{domain.RunStatusError}, hooks.finalized)
}

func TestRunClientDisconnect(t *testing.T) {
	source := &fakeSource{events: []domain.RawEvent{
		rawEvent("metadata", `{}`),
		rawEvent("metadata", `{}`),
		rawEvent("metadata", `{}`),
	}}
	transport := &fakeTransport{failAt: 2}
	hooks := &recordingHooks{}

	status := New(source, toolname.New()).Run(context.Background(), params(), hooks, transport)

	assert.Equal(t, domain.RunStatusError, status)
	assert.Equal(t, 1, transport.count(), "no error event after disconnect")
	assert.Equal(t, []domain.RunStatus{domain.RunStatusError}, hooks.finalized)
}

func TestRunContextCancelled(t *testing.T) {
	source := &fakeSource{events: []domain.RawEvent{rawEvent("metadata", `{}`)}, blockOn: make(chan struct{})}
	hooks := &recordingHooks{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan domain.RunStatus)
	go func() {
		done <- New(source, toolname.New()).Run(ctx, params(), hooks, &fakeTransport{})
	}()
	cancel()

	select {
	case status := <-done:
		assert.Equal(t, domain.RunStatusError, status)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after cancellation")
	}
	assert.Equal(t, []domain.RunStatus{domain.RunStatusError}, hooks.finalized)
}

func TestRunHookFailuresDoNotStopTheLoop(t *testing.T) {
	source := &fakeSource{events: []domain.RawEvent{
		rawEvent("updates", `{"tool_node":{"name":"web_search"}}`),
		rawEvent("updates", `{"tool_node":{"name":"get_stock_price"}}`),
	}}

	t.Run("errors", func(t *testing.T) {
		transport := &fakeTransport{}
		status := New(source, toolname.New()).Run(context.Background(), params(), &recordingHooks{fail: true}, transport)
		assert.Equal(t, domain.RunStatusComplete, status)
		assert.Equal(t, 4, transport.count())
	})

	t.Run("panics", func(t *testing.T) {
		transport := &fakeTransport{}
		hooks := &recordingHooks{panicOn: "tool_start"}
		status := New(source, toolname.New()).Run(context.Background(), params(), hooks, transport)
		assert.Equal(t, domain.RunStatusComplete, status)
		assert.Equal(t, 4, transport.count())
		assert.Equal(t, []domain.RunStatus{domain.RunStatusComplete}, hooks.finalized)
	})
}

func TestRunDoesNotWaitForSlowHooks(t *testing.T) {
	source := &fakeSource{events: []domain.RawEvent{
		rawEvent("updates", `{"tool_node":{"name":"web_search"}}`),
		rawEvent("metadata", `{}`),
	}}
	transport := &fakeTransport{}
	hooks := &recordingHooks{release: make(chan struct{})}

	done := make(chan struct{})
	go func() {
		New(source, toolname.New()).Run(context.Background(), params(), hooks, transport)
		close(done)
	}()

	require.Eventually(t, func() bool { return transport.count() == 3 }, time.Second, 5*time.Millisecond)
	select {
	case <-done:
		t.Fatal("finalize must wait for outstanding hooks")
	default:
	}

	close(hooks.release)
	<-done
	calls := hooks.snapshot()
	assert.Equal(t, "finalize:complete", calls[len(calls)-1])
}

func TestRunHooksFollowDetectionOrder(t *testing.T) {
	var raws []domain.RawEvent
	var keys []string
	for i := 0; i < 40; i++ {
		key := fmt.Sprintf("lookup_%02d", i)
		keys = append(keys, key)
		raws = append(raws, rawEvent("updates", fmt.Sprintf(`{"tool_node":{"name":%q}}`, key)))
		if i%3 == 0 {
			raws = append(raws, rawEvent("messages", fmt.Sprintf(`[{"type":"tool","name":%q,"status":"success"}]`, key)))
		}
	}
	mapper := toolname.New()
	recorder := timeline.NewRecorder()

	status := New(&fakeSource{events: raws}, mapper).Run(context.Background(), params(), recorder, &fakeTransport{})
	require.Equal(t, domain.RunStatusComplete, status)

	activities := recorder.Activities()
	require.Len(t, activities, len(keys))
	for i, a := range activities {
		assert.Equal(t, keys[i], a.ToolName)
		if i%3 == 0 {
			assert.Equal(t, domain.ActivityStatusComplete, a.Status, a.ToolName)
			assert.NotEmpty(t, a.Label, "completion must not overtake its start")
		}
	}

	cfg := timeline.DefaultConfig()
	cfg.AddDoneStep = false
	steps := timeline.NewBuilder(mapper).BuildForRun(activities, "r1", cfg)
	require.Len(t, steps, len(keys))
	for i, step := range steps {
		assert.Equal(t, mapper.MapToolName(keys[i]), step.Label)
	}
	got, _ := recorder.Status("r1")
	assert.Equal(t, domain.RunStatusComplete, got)
}

func TestHookQueueRunsInOrder(t *testing.T) {
	q := newHookQueue()
	var got []int
	for i := 0; i < 100; i++ {
		q.push(func() { got = append(got, i) })
	}
	q.close()
	q.push(func() { got = append(got, -1) })

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestRunRecordsInterrupt(t *testing.T) {
	source := &fakeSource{events: []domain.RawEvent{
		rawEvent("updates", `{"__interrupt__":[{"value":"Confirm trade?"}]}`),
	}}
	transport := &fakeTransport{}
	hooks := &recordingHooks{}

	status := New(source, toolname.New()).Run(context.Background(), params(), hooks, transport)

	assert.Equal(t, domain.RunStatusComplete, status)
	assert.Equal(t, []domain.EventType{domain.EventTypeInterrupt}, transport.types())
	require.Len(t, hooks.interrupts, 1)
	assert.JSONEq(t, `[{"value":"Confirm trade?"}]`, string(hooks.interrupts[0]))
}

func TestSSETransportWritesFrames(t *testing.T) {
	var buf bytes.Buffer
	tr := NewSSETransport(&buf)

	require.NoError(t, tr.Send(context.Background(), domain.ToolUpdate("web_search", domain.ToolUpdateStart)))
	require.NoError(t, tr.Close())

	assert.Equal(t, "data: {\"type\":\"tool_update\",\"data\":{\"toolName\":\"web_search\",\"status\":\"start\"}}\n\n", buf.String())
	assert.ErrorIs(t, tr.Send(context.Background(), domain.ErrorEvent("x")), ErrTransportClosed)
}

func TestSSETransportCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewSSETransport(&bytes.Buffer{}).Send(ctx, domain.ErrorEvent("x"))
	assert.ErrorIs(t, err, ErrTransportClosed)
}

func TestTeeMirrorsDeliveredEvents(t *testing.T) {
	primary := &fakeTransport{failAt: 2}
	var mirrored []domain.EventType
	tee := NewTee(primary, func(ev domain.WireEvent) { mirrored = append(mirrored, ev.Type) })

	require.NoError(t, tee.Send(context.Background(), domain.AgentTransfer("x")))
	assert.Error(t, tee.Send(context.Background(), domain.ErrorEvent("x")))

	assert.Equal(t, []domain.EventType{domain.EventTypeAgentTransfer}, mirrored)
}
