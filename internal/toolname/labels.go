package toolname

// SentinelTransferBack is the hand-off back to the supervisor. It never shows
// as a step but its completion ends the timeline.
const SentinelTransferBack = "transfer_back_to_clera"

// SentinelRunCompleted marks the end of a run in some upstream versions.
const SentinelRunCompleted = "__run_completed__"

// exactLabels maps raw tool identifiers to user-facing labels.
// An empty label hides the tool.
var exactLabels = map[string]string{
	"get_portfolio_summary":            "Looking at your portfolio",
	"get_account_activities":           "Reviewing your account activity",
	"calculate_investment_performance": "Calculating investment performance",
	"get_stock_price":                  "Checking stock prices",
	"get_stock_quote":                  "Checking stock prices",
	"get_company_profile":              "Reading the company profile",
	"get_financial_statements":         "Reviewing financial statements",
	"get_market_news":                  "Reading the latest market news",
	"web_search":                       "Researching market information",
	"execute_buy_market_order":         "Preparing a buy order",
	"execute_sell_market_order":        "Preparing a sell order",
	"rebalance_portfolio":              "Working out a rebalancing plan",

	"transfer_to_portfolio_management_agent": "Consulting the portfolio specialist",
	"transfer_to_financial_analyst_agent":    "Consulting the financial analyst",
	"transfer_to_trade_execution_agent":      "Handing off to trade execution",
	SentinelTransferBack:                     "",
}

// keywordRule matches when every keyword is a substring of the lowercased name.
type keywordRule struct {
	Keywords []string
	Label    string
	Priority int
}

var defaultRules = []keywordRule{
	{Keywords: []string{"portfolio", "summary"}, Label: "Looking at your portfolio", Priority: 100},
	{Keywords: []string{"portfolio", "rebalanc"}, Label: "Working out a rebalancing plan", Priority: 95},
	{Keywords: []string{"search"}, Label: "Researching market information", Priority: 90},
	{Keywords: []string{"news"}, Label: "Reading the latest market news", Priority: 85},
	{Keywords: []string{"price"}, Label: "Checking stock prices", Priority: 80},
	{Keywords: []string{"quote"}, Label: "Checking stock prices", Priority: 80},
	{Keywords: []string{"buy", "order"}, Label: "Preparing a buy order", Priority: 70},
	{Keywords: []string{"sell", "order"}, Label: "Preparing a sell order", Priority: 70},
	{Keywords: []string{"performance"}, Label: "Calculating investment performance", Priority: 60},
	{Keywords: []string{"activit"}, Label: "Reviewing your account activity", Priority: 50},
	{Keywords: []string{"statement"}, Label: "Reviewing financial statements", Priority: 40},
	// Safety net for hand-off identifiers missing from the exact table.
	{Keywords: []string{"transfer_to"}, Label: "", Priority: 5},
	{Keywords: []string{"transfer_back"}, Label: "", Priority: 5},
}
