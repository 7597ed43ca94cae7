package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds the configuration for connecting to a riskmesh API.
type Config struct {
	APIURL          string // Base URL, e.g. "http://localhost:8080"
	APIKey          string // optional; every tool uses public read routes
	OperatorAddress string // default address for get_reward_balance
}

// Client is a read-only HTTP client for the riskmesh API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a new client.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request and returns the raw response body.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, path, query, nil)
}

// GetRiskProfile returns the current profile of an asset.
func (c *Client) GetRiskProfile(ctx context.Context, assetID string) (json.RawMessage, error) {
	return c.get(ctx, "/v1/risk/"+url.PathEscape(assetID), nil)
}

// GetScoreHistory returns up to limit recent ledger scores, oldest first.
func (c *Client) GetScoreHistory(ctx context.Context, assetID string, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.get(ctx, "/v1/risk/"+url.PathEscape(assetID)+"/history", q)
}

// GetTrend returns the signed difference between the last two scores.
func (c *Client) GetTrend(ctx context.Context, assetID string) (json.RawMessage, error) {
	return c.get(ctx, "/v1/risk/"+url.PathEscape(assetID)+"/trend", nil)
}

// GetResult returns one AI result.
func (c *Client) GetResult(ctx context.Context, resultID string) (json.RawMessage, error) {
	return c.get(ctx, "/v1/results/"+url.PathEscape(resultID), nil)
}

// CheckResultValidity reports whether a result is verified and unexpired.
func (c *Client) CheckResultValidity(ctx context.Context, resultID string) (json.RawMessage, error) {
	return c.get(ctx, "/v1/results/"+url.PathEscape(resultID)+"/valid", nil)
}

// GetRewardAccount returns an operator's reward account. An empty address
// uses the configured operator.
func (c *Client) GetRewardAccount(ctx context.Context, address string) (json.RawMessage, error) {
	if address == "" {
		address = c.cfg.OperatorAddress
	}
	if address == "" {
		return nil, fmt.Errorf("no operator address given or configured")
	}
	return c.get(ctx, "/v1/rewards/"+url.PathEscape(address), nil)
}

// ListOracleSources lists oracle sources.
func (c *Client) ListOracleSources(ctx context.Context, activeOnly bool) (json.RawMessage, error) {
	var q url.Values
	if activeOnly {
		q = url.Values{"active": {"true"}}
	}
	return c.get(ctx, "/v1/oracles", q)
}
