package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mbd888/riskmesh/internal/units"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *Client
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *Client) *Handlers {
	return &Handlers{client: client}
}

type formatter func(raw json.RawMessage) (string, error)

// respond turns a client call into a tool result. API failures become tool
// errors the LLM can read, never protocol errors.
func respond(action string, raw json.RawMessage, err error, format formatter) (*mcp.CallToolResult, error) {
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to %s: %v", action, err)), nil
	}
	text, err := format(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse response: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleGetRiskProfile returns an asset's current risk profile.
func (h *Handlers) HandleGetRiskProfile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	assetID := req.GetString("asset_id", "")
	if assetID == "" {
		return mcp.NewToolResultError("asset_id is required"), nil
	}
	raw, err := h.client.GetRiskProfile(ctx, assetID)
	return respond("get risk profile", raw, err, formatProfile)
}

// HandleGetScoreHistory returns recent ledger scores.
func (h *Handlers) HandleGetScoreHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	assetID := req.GetString("asset_id", "")
	if assetID == "" {
		return mcp.NewToolResultError("asset_id is required"), nil
	}
	limit := req.GetInt("limit", 10)
	if limit < 0 {
		return mcp.NewToolResultError("limit must not be negative"), nil
	}
	raw, err := h.client.GetScoreHistory(ctx, assetID, limit)
	return respond("get score history", raw, err, formatHistory)
}

// HandleGetRiskTrend returns the last score delta.
func (h *Handlers) HandleGetRiskTrend(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	assetID := req.GetString("asset_id", "")
	if assetID == "" {
		return mcp.NewToolResultError("asset_id is required"), nil
	}
	raw, err := h.client.GetTrend(ctx, assetID)
	return respond("get risk trend", raw, err, formatTrend)
}

// HandleGetAIResult returns one AI result.
func (h *Handlers) HandleGetAIResult(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resultID := req.GetString("result_id", "")
	if resultID == "" {
		return mcp.NewToolResultError("result_id is required"), nil
	}
	raw, err := h.client.GetResult(ctx, resultID)
	return respond("get AI result", raw, err, formatResult)
}

// HandleCheckResultValidity reports whether a result is usable now.
func (h *Handlers) HandleCheckResultValidity(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resultID := req.GetString("result_id", "")
	if resultID == "" {
		return mcp.NewToolResultError("result_id is required"), nil
	}
	raw, err := h.client.CheckResultValidity(ctx, resultID)
	return respond("check result validity", raw, err, formatValidity)
}

// HandleGetRewardBalance returns an operator's reward account.
func (h *Handlers) HandleGetRewardBalance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.GetRewardAccount(ctx, req.GetString("address", ""))
	return respond("get reward balance", raw, err, formatRewardAccount)
}

// HandleListOracleSources lists oracle sources.
func (h *Handlers) HandleListOracleSources(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.ListOracleSources(ctx, req.GetBool("active_only", false))
	return respond("list oracle sources", raw, err, formatSources)
}

// ============================================================
// Formatting
// ============================================================

// decode keeps numbers as json.Number so wei amounts survive intact.
func decode(raw json.RawMessage) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}

func nested(m map[string]any, key string) (map[string]any, error) {
	inner, ok := m[key].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("missing %q in response", key)
	}
	return inner, nil
}

func formatProfile(raw json.RawMessage) (string, error) {
	resp, err := decode(raw)
	if err != nil {
		return "", err
	}
	p, err := nested(resp, "profile")
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Risk profile for %s:\n", getString(p, "assetId"))
	fmt.Fprintf(&sb, "  Aggregated score: %s / 10000 (%s)\n", getString(p, "aggregatedRiskScore"), bps(getString(p, "aggregatedRiskScore")))
	fmt.Fprintf(&sb, "  Assessments: %s\n", getString(p, "assessmentCount"))
	if params, ok := p["parameters"].(map[string]any); ok {
		sb.WriteString("  Parameters:\n")
		for _, k := range []struct{ key, label string }{
			{"volatilityScore", "Volatility"},
			{"liquidityScore", "Liquidity"},
			{"marketCapScore", "Market cap"},
			{"regulatoryScore", "Regulatory"},
			{"aiConfidenceScore", "AI confidence"},
		} {
			fmt.Fprintf(&sb, "    %-14s %s\n", k.label+":", getString(params, k.key))
		}
		if v := getString(params, "lastUpdated"); v != "" {
			fmt.Fprintf(&sb, "    Data as of:    %s\n", v)
		}
	}
	if srcs, ok := p["oracleSources"].([]any); ok && len(srcs) > 0 {
		names := make([]string, 0, len(srcs))
		for _, s := range srcs {
			names = append(names, fmt.Sprint(s))
		}
		fmt.Fprintf(&sb, "  Oracle sources: %s\n", strings.Join(names, ", "))
	}
	if v := getString(p, "updatedAt"); v != "" {
		fmt.Fprintf(&sb, "  Updated: %s\n", v)
	}
	return sb.String(), nil
}

func formatHistory(raw json.RawMessage) (string, error) {
	resp, err := decode(raw)
	if err != nil {
		return "", err
	}
	scores, _ := resp["scores"].([]any)
	if len(scores) == 0 {
		return fmt.Sprintf("No recorded scores for %s.", getString(resp, "assetId")), nil
	}
	parts := make([]string, len(scores))
	for i, s := range scores {
		parts[i] = fmt.Sprint(s)
	}
	return fmt.Sprintf("Last %d score(s) for %s, oldest first:\n  %s\n",
		len(scores), getString(resp, "assetId"), strings.Join(parts, " -> ")), nil
}

func formatTrend(raw json.RawMessage) (string, error) {
	resp, err := decode(raw)
	if err != nil {
		return "", err
	}
	trend := getString(resp, "trend")
	n, ok := new(big.Int).SetString(trend, 10)
	if !ok {
		return "", fmt.Errorf("trend %q is not an integer", trend)
	}
	direction := "flat"
	switch n.Sign() {
	case 1:
		direction = "rising"
	case -1:
		direction = "falling"
	}
	return fmt.Sprintf("Risk trend for %s: %s bps (%s)\n", getString(resp, "assetId"), trend, direction), nil
}

func formatResult(raw json.RawMessage) (string, error) {
	resp, err := decode(raw)
	if err != nil {
		return "", err
	}
	r, err := nested(resp, "result")
	if err != nil {
		return "", err
	}
	verified := "no"
	if v, _ := r["verified"].(bool); v {
		verified = "yes"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "AI result %s:\n", getString(r, "resultId"))
	fmt.Fprintf(&sb, "  Model: %s\n", getString(r, "modelId"))
	fmt.Fprintf(&sb, "  Asset: %s\n", getString(r, "assetId"))
	fmt.Fprintf(&sb, "  Risk score: %s (%s)\n", getString(r, "riskScore"), bps(getString(r, "riskScore")))
	fmt.Fprintf(&sb, "  Confidence: %s\n", bps(getString(r, "confidence")))
	fmt.Fprintf(&sb, "  Computed at: %s\n", getString(r, "computedAt"))
	fmt.Fprintf(&sb, "  Verified: %s\n", verified)
	return sb.String(), nil
}

func formatValidity(raw json.RawMessage) (string, error) {
	resp, err := decode(raw)
	if err != nil {
		return "", err
	}
	if v, _ := resp["valid"].(bool); v {
		return fmt.Sprintf("Result %s is valid: verified and within its validity window.", getString(resp, "resultId")), nil
	}
	return fmt.Sprintf("Result %s is NOT valid: it is unverified or has expired.", getString(resp, "resultId")), nil
}

func formatRewardAccount(raw json.RawMessage) (string, error) {
	resp, err := decode(raw)
	if err != nil {
		return "", err
	}
	a, err := nested(resp, "account")
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Reward account %s:\n", getString(a, "operator"))
	fmt.Fprintf(&sb, "  Pending:       %s\n", coin(getString(a, "pending")))
	fmt.Fprintf(&sb, "  Total claimed: %s\n", coin(getString(a, "totalClaimed")))
	if v := getString(a, "lastClaimAt"); v != "" && !strings.HasPrefix(v, "0001-") {
		fmt.Fprintf(&sb, "  Last claim:    %s\n", v)
	}
	return sb.String(), nil
}

func formatSources(raw json.RawMessage) (string, error) {
	resp, err := decode(raw)
	if err != nil {
		return "", err
	}
	sources, _ := resp["sources"].([]any)
	if len(sources) == 0 {
		return "No oracle sources found.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d oracle source(s):\n\n", len(sources))
	for i, s := range sources {
		m, ok := s.(map[string]any)
		if !ok {
			continue
		}
		state := "inactive"
		if v, _ := m["isActive"].(bool); v {
			state = "active"
		}
		fmt.Fprintf(&sb, "%d. %s (%s) weight %s, %s\n", i+1,
			getString(m, "name"), getString(m, "address"), getString(m, "weight"), state)
		if v := getString(m, "lastUpdateTime"); v != "" {
			fmt.Fprintf(&sb, "   last update %s\n", v)
		}
	}
	return sb.String(), nil
}

// bps renders a basis-point value as a percentage.
func bps(v string) string {
	n, ok := new(big.Int).SetString(v, 10)
	if !ok {
		return v
	}
	whole, frac := new(big.Int).QuoRem(n, big.NewInt(100), new(big.Int))
	return fmt.Sprintf("%s.%02d%%", whole, frac.Int64())
}

// coin renders a wei amount in whole coins.
func coin(v string) string {
	wei, ok := units.ParseWei(v)
	if !ok {
		return v
	}
	return units.FormatCoin(wei)
}

// getString extracts a value from a map as a string, trying multiple key names.
func getString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			return v
		case json.Number:
			return v.String()
		case bool:
			return fmt.Sprint(v)
		}
	}
	return ""
}
