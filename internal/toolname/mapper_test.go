package toolname

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type hideSet map[string]bool

func (h hideSet) Hidden(name string) bool { return h[name] }

func TestMapToolName(t *testing.T) {
	m := New()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"exact match", "get_portfolio_summary", "Looking at your portfolio"},
		{"exact match web search", "web_search", "Researching market information"},
		{"normalized exact match", "Web-Search", "Researching market information"},
		{"keyword rule", "tavily_search_results", "Researching market information"},
		{"keyword rule requires all keywords", "portfolio_rebalancer", "Working out a rebalancing plan"},
		{"higher priority wins", "search_news", "Researching market information"},
		{"default transform", "get_fx_rate", "Get Fx Rate"},
		{"default transform collapses separators", "lookup__ticker--details", "Lookup Ticker Details"},
		{"unknown transfer is suppressed", "transfer_to_tax_agent", ""},
		{"transfer back is suppressed", "transfer_back_to_clera", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.MapToolName(tt.raw))
		})
	}
}

func TestShouldFilterTool(t *testing.T) {
	m := New()

	hidden := []string{
		"",
		"transfer_back_to_clera",
		"__run_completed__",
		"clera",
		"Clera",
		"AGENT",
		"portfolio_management_agent",
		"financial_analyst_agent",
	}
	for _, raw := range hidden {
		assert.True(t, m.ShouldFilterTool(raw), "expected %q to be filtered", raw)
	}

	visible := []string{
		"web_search",
		"get_portfolio_summary",
		"transfer_to_trade_execution_agent",
		"agent_lookup",
		"get_fx_rate",
	}
	for _, raw := range visible {
		assert.False(t, m.ShouldFilterTool(raw), "expected %q to be visible", raw)
	}
}

func TestShouldFilterToolWithVisibility(t *testing.T) {
	m := New(WithVisibility(hideSet{"get_fx_rate": true}))

	assert.True(t, m.ShouldFilterTool("get_fx_rate"))
	assert.False(t, m.ShouldFilterTool("web_search"))
}

func TestWithLabelsOverridesTable(t *testing.T) {
	m := New(WithLabels(map[string]string{"web_search": "Searching the web", "debug_dump": ""}))

	assert.Equal(t, "Searching the web", m.MapToolName("web_search"))
	assert.True(t, m.ShouldFilterTool("debug_dump"))
	// the package table is untouched
	assert.Equal(t, "Researching market information", New().MapToolName("web_search"))
}

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, "web_search", NormalizeKey("  Web Search "))
	assert.Equal(t, "web_search", NormalizeKey("web-search"))
	assert.Equal(t, "transfer_back_to_clera", NormalizeKey("Transfer_Back_To_Clera"))
	assert.Equal(t, "", NormalizeKey("   "))
}

func TestIsAgentNode(t *testing.T) {
	assert.True(t, IsAgentNode("portfolio_management_agent"))
	assert.False(t, IsAgentNode("transfer_to_portfolio_management_agent"))
	assert.False(t, IsAgentNode("tools"))
}
