package events

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/streamer/internal/domain"
	"github.com/xiaot623/gogo/streamer/internal/toolname"
)

func detectAll(d *Detector, state *State, in ...domain.RawEvent) []domain.WireEvent {
	var out []domain.WireEvent
	for _, r := range in {
		if ev, ok := d.Detect(r, state); ok {
			out = append(out, ev)
		}
	}
	return out
}

func countStarts(events []domain.WireEvent) int {
	n := 0
	for _, ev := range events {
		if data, ok := ev.Data.(domain.ToolUpdateData); ok && data.Status == domain.ToolUpdateStart {
			n++
		}
	}
	return n
}

func TestDetectToolStartAndComplete(t *testing.T) {
	d := NewDetector(toolname.New())

	got := detectAll(d, NewState(),
		raw("updates", `{"tool_node":{"name":"web_search"}}`),
		raw("messages", `[{"type":"tool","name":"web_search","status":"success"}]`),
	)

	assert.Equal(t, []domain.WireEvent{
		domain.ToolUpdate("web_search", domain.ToolUpdateStart),
		domain.ToolUpdate("web_search", domain.ToolUpdateComplete),
	}, got)
}

func TestDetectTransferToAgent(t *testing.T) {
	d := NewDetector(toolname.New())

	got := detectAll(d, NewState(),
		raw("updates", `{"tool_node":{"name":"transfer_to_trade_execution_agent"}}`),
	)

	require.Len(t, got, 1)
	assert.Equal(t, domain.AgentTransfer("trade_execution_agent"), got[0])
}

func TestDetectTransferPrecedenceOverToolUpdate(t *testing.T) {
	d := NewDetector(toolname.New())

	got := detectAll(d, NewState(),
		raw("updates", `{"tools":{"messages":[{"type":"tool","name":"transfer_to_portfolio_management_agent"}]}}`),
	)

	require.Len(t, got, 1)
	assert.Equal(t, domain.AgentTransfer("portfolio_management_agent"), got[0])
	assert.Equal(t, 0, countStarts(got))
}

func TestDetectTransferBackSentinel(t *testing.T) {
	d := NewDetector(toolname.New())
	state := NewState()

	_, ok := d.Detect(raw("updates", `{"tool_node":{"name":"transfer_back_to_clera"}}`), state)
	assert.False(t, ok, "start of the sentinel must stay hidden")
	assert.False(t, state.Started(toolname.SentinelTransferBack))

	ev, ok := d.Detect(raw("messages", `[{"type":"tool","name":"transfer_back_to_clera","status":"success"}]`), state)
	require.True(t, ok)
	assert.Equal(t, domain.ToolUpdate(toolname.SentinelTransferBack, domain.ToolUpdateComplete), ev)
}

func TestDetectToolNodeShapes(t *testing.T) {
	tests := []struct {
		name string
		in   domain.RawEvent
		want string
	}{
		{"name", raw("updates", `{"tools":{"name":"get_portfolio_summary"}}`), "get_portfolio_summary"},
		{"tool_name", raw("updates", `{"tool_execution":{"tool_name":"web_search"}}`), "web_search"},
		{"tool call", raw("updates", `{"action":{"tool_calls":[{"name":"get_stock_price","args":{}}]}}`), "get_stock_price"},
		{"tool message", raw("updates", `{"tools":{"messages":[{"type":"ai"},{"type":"tool","name":"Web Search"}]}}`), "web_search"},
		{"other node naming a tool", raw("updates", `{"research":{"tool_name":"get_market_news"}}`), "get_market_news"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDetector(toolname.New())
			ev, ok := d.Detect(tt.in, NewState())
			require.True(t, ok)
			assert.Equal(t, domain.ToolUpdate(tt.want, domain.ToolUpdateStart), ev)
		})
	}
}

func TestDetectIgnoresNameOnPlainNodes(t *testing.T) {
	d := NewDetector(toolname.New())

	_, ok := d.Detect(raw("updates", `{"summarizer":{"name":"web_search"}}`), NewState())
	assert.False(t, ok)
}

func TestDetectFilteredToolsProduceNothing(t *testing.T) {
	d := NewDetector(toolname.New())
	state := NewState()

	got := detectAll(d, state,
		raw("updates", `{"tool_node":{"name":"__run_completed__"}}`),
		raw("updates", `{"tool_node":{"name":"clera"}}`),
		raw("messages", `[{"type":"tool","name":"clera","status":"success"}]`),
	)
	assert.Empty(t, got)
	assert.Equal(t, 0, state.StartedCount())
}

func TestDetectAgentNode(t *testing.T) {
	d := NewDetector(toolname.New())
	state := NewState()

	got := detectAll(d, state,
		raw("updates", `{"financial_analyst_agent":{"messages":[]}}`),
		raw("updates", `{"financial_analyst_agent":{"messages":[]}}`),
		raw("updates", `{"portfolio_management_agent":{"messages":[]}}`),
	)

	assert.Equal(t, []domain.WireEvent{
		domain.AgentTransfer("financial_analyst_agent"),
		domain.AgentTransfer("financial_analyst_agent"),
		domain.AgentTransfer("portfolio_management_agent"),
	}, got)
	assert.Equal(t, "portfolio_management_agent", state.CurrentAgent())
}

func TestDetectEveryTransferObservationEmits(t *testing.T) {
	d := NewDetector(toolname.New())
	state := NewState()

	got := detectAll(d, state,
		raw("updates", `{"tool_node":{"name":"transfer_to_trade_execution_agent"}}`),
		raw("updates", `{"trade_execution_agent":{"messages":[]}}`),
		raw("messages", `[{"type":"ai","content":"Successfully transferred to trade_execution_agent"}]`),
		raw("updates", `{"tool_node":{"name":"transfer_to_trade_execution_agent"}}`),
	)

	want := domain.AgentTransfer("trade_execution_agent")
	assert.Equal(t, []domain.WireEvent{want, want, want, want}, got)
	assert.Equal(t, "trade_execution_agent", state.CurrentAgent())
}

func TestDetectTextHeuristics(t *testing.T) {
	d := NewDetector(toolname.New())
	state := NewState()

	got := detectAll(d, state,
		raw("messages", `[{"type":"tool","name":"transfer_to_financial_analyst_agent","status":"success","content":"Successfully transferred to financial_analyst_agent"}]`),
		raw("messages", `[{"type":"ai","content":"I finished web_search early"}]`),
		raw("updates", `{"tools":{"name":"web_search"}}`),
		raw("messages", `[{"type":"ai","content":"Completed web_search for you"}]`),
		raw("messages", `[{"type":"ai","content":"completed web_search again"}]`),
		raw("messages/complete", `[{"type":"ai","content":"finished transfer_back_to_clera"}]`),
	)

	assert.Equal(t, []domain.WireEvent{
		domain.AgentTransfer("financial_analyst_agent"),
		domain.ToolUpdate("web_search", domain.ToolUpdateStart),
		domain.ToolUpdate("web_search", domain.ToolUpdateComplete),
	}, got)
}

func TestDetectFirstMatchingItemWins(t *testing.T) {
	d := NewDetector(toolname.New())

	got := detectAll(d, NewState(), raw("messages", `[
		{"type":"ai","content":"thinking"},
		{"type":"tool","name":"web_search","status":"success"},
		{"type":"tool","name":"get_stock_price","status":"success"}
	]`))

	assert.Equal(t, []domain.WireEvent{domain.ToolUpdate("web_search", domain.ToolUpdateComplete)}, got)
}

func TestDetectMalformedPayloads(t *testing.T) {
	d := NewDetector(toolname.New())
	state := NewState()

	inputs := []domain.RawEvent{
		raw("updates", `{broken`),
		raw("updates", `[]`),
		raw("updates", `{"tools":null}`),
		raw("updates", `{"tools":{"name":42}}`),
		raw("messages", `{"type":"tool"}`),
		raw("messages", `[null, 1, "x"]`),
		raw("metadata", `{"run_id":"r"}`),
		{Event: "updates"},
	}
	assert.Empty(t, detectAll(d, state, inputs...))

	_, ok := d.Detect(raw("updates", `{"tools":{"name":"web_search"}}`), nil)
	assert.False(t, ok)
}

func TestDetectStateIsPerRun(t *testing.T) {
	d := NewDetector(toolname.New())
	ev := raw("updates", `{"tool_node":{"name":"web_search"}}`)

	assert.Len(t, detectAll(d, NewState(), ev, ev), 1)
	assert.Len(t, detectAll(d, NewState(), ev, ev), 1)
}

func TestDetectDedupProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	tools := []string{"web_search", "get_portfolio_summary", "get_stock_price", "calculate_investment_performance"}

	properties.Property("one start per tool key per run", prop.ForAll(
		func(picks []int, n int) bool {
			d := NewDetector(toolname.New())
			state := NewState()
			seen := map[string]bool{}
			var events []domain.RawEvent
			for i := 0; i < n; i++ {
				for _, p := range picks {
					name := tools[p%len(tools)]
					seen[name] = true
					events = append(events, raw("updates", fmt.Sprintf(`{"tool_node":{"name":%q}}`, name)))
				}
			}
			return countStarts(detectAll(d, state, events...)) == len(seen)
		},
		gen.SliceOf(gen.IntRange(0, 100)),
		gen.IntRange(1, 5),
	))

	properties.Property("same input gives same output", prop.ForAll(
		func(picks []int) bool {
			var events []domain.RawEvent
			for _, p := range picks {
				name := tools[p%len(tools)]
				if p%2 == 0 {
					events = append(events, raw("updates", fmt.Sprintf(`{"tools":{"name":%q}}`, name)))
				} else {
					events = append(events, raw("messages", fmt.Sprintf(`[{"type":"tool","name":%q,"status":"success"}]`, name)))
				}
			}
			d := NewDetector(toolname.New())
			first := detectAll(d, NewState(), events...)
			second := detectAll(d, NewState(), events...)
			return assert.ObjectsAreEqual(first, second)
		},
		gen.SliceOf(gen.IntRange(0, 100)),
	))

	properties.TestingRun(t)
}
