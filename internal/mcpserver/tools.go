package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the riskmesh MCP server. Descriptions are what the
// LLM reads to decide which tool to use. Every tool is read-only.

var ToolGetRiskProfile = mcp.NewTool("get_risk_profile",
	mcp.WithDescription(
		"Get the current risk profile of an asset: aggregated risk score in basis points "+
			"(0 = no risk, 10000 = maximum), the five input parameters, contributing oracle "+
			"sources and how many assessments produced it."),
	mcp.WithString("asset_id",
		mcp.Required(),
		mcp.Description("Asset identifier, e.g. 'BTC' or 'ETH-USD'")),
)

var ToolGetScoreHistory = mcp.NewTool("get_score_history",
	mcp.WithDescription(
		"Get the most recent aggregated risk scores recorded for an asset, oldest first. "+
			"Batch assessments are not recorded in this history."),
	mcp.WithString("asset_id",
		mcp.Required(),
		mcp.Description("Asset identifier")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of scores to return (default 10)")),
)

var ToolGetRiskTrend = mcp.NewTool("get_risk_trend",
	mcp.WithDescription(
		"Get the risk trend of an asset: the latest recorded score minus the one before it. "+
			"Positive means risk is rising. Zero when fewer than two scores exist."),
	mcp.WithString("asset_id",
		mcp.Required(),
		mcp.Description("Asset identifier")),
)

var ToolGetAIResult = mcp.NewTool("get_ai_result",
	mcp.WithDescription(
		"Get an AI model's submitted risk result by id: model, asset, risk score, confidence, "+
			"when it was computed and whether a verifier has accepted its proof."),
	mcp.WithString("result_id",
		mcp.Required(),
		mcp.Description("Result id (0x-prefixed 32-byte hex) returned at submission")),
)

var ToolCheckResultValidity = mcp.NewTool("check_result_validity",
	mcp.WithDescription(
		"Check whether an AI result can be relied on right now: it must be verified and "+
			"still inside its validity window."),
	mcp.WithString("result_id",
		mcp.Required(),
		mcp.Description("Result id (0x-prefixed 32-byte hex)")),
)

var ToolGetRewardBalance = mcp.NewTool("get_reward_balance",
	mcp.WithDescription(
		"Get an AI operator's reward account: pending (claimable) balance and total claimed, "+
			"in the native coin."),
	mcp.WithString("address",
		mcp.Description("Operator address (0x...). Defaults to the configured operator.")),
)

var ToolListOracleSources = mcp.NewTool("list_oracle_sources",
	mcp.WithDescription(
		"List the oracle data sources that may contribute to risk assessments, with their "+
			"weight, last update time and whether they are active."),
	mcp.WithBoolean("active_only",
		mcp.Description("Only list active sources (default false)")),
)
