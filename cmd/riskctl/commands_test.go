package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	method string
	path   string
	query  string
	auth   string
	body   map[string]any
}

func fakeAPI(t *testing.T, status int, response string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	got := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.path = r.URL.Path
		got.query = r.URL.RawQuery
		got.auth = r.Header.Get("Authorization")
		data, _ := io.ReadAll(r.Body)
		if len(data) > 0 {
			require.NoError(t, json.Unmarshal(data, &got.body))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func execute(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--api-url", srv.URL, "--api-key", "sk_test"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestAssessSendsParameters(t *testing.T) {
	srv, got := fakeAPI(t, http.StatusOK, `{"assetId":"BTC","score":5000}`)

	out, err := execute(t, srv, "assess", "BTC",
		"--volatility", "5000", "--liquidity", "5000", "--market-cap", "5000",
		"--regulatory", "5000", "--ai-confidence", "5000",
		"--last-updated", "2026-01-02T03:04:05Z", "--source", "chainlink")
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/v1/risk/assess", got.path)
	assert.Equal(t, "Bearer sk_test", got.auth)
	assert.Equal(t, "BTC", got.body["assetId"])
	assert.Equal(t, []any{"chainlink"}, got.body["sources"])

	params, ok := got.body["parameters"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(5000), params["volatilityScore"])
	assert.Equal(t, "2026-01-02T03:04:05Z", params["lastUpdated"])
	assert.Equal(t, true, params["isActive"])
	assert.Contains(t, out, `"score": 5000`)
}

func TestAssessRejectsBadTimestamp(t *testing.T) {
	srv, got := fakeAPI(t, http.StatusOK, `{}`)
	_, err := execute(t, srv, "assess", "BTC", "--last-updated", "yesterday")
	require.Error(t, err)
	assert.Empty(t, got.path)
}

func TestHistoryLimit(t *testing.T) {
	srv, got := fakeAPI(t, http.StatusOK, `{"scores":[]}`)
	_, err := execute(t, srv, "history", "ETH", "--limit", "3")
	require.NoError(t, err)
	assert.Equal(t, "/v1/risk/ETH/history", got.path)
	assert.Equal(t, "limit=3", got.query)
}

func TestThresholdGetAndSet(t *testing.T) {
	srv, got := fakeAPI(t, http.StatusOK, `{"threshold":7000}`)

	_, err := execute(t, srv, "threshold", "BTC")
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, got.method)

	_, err = execute(t, srv, "threshold", "BTC", "7000")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, got.method)
	assert.Equal(t, "/v1/risk/BTC/threshold", got.path)
	assert.Equal(t, float64(7000), got.body["threshold"])

	_, err = execute(t, srv, "threshold", "BTC", "-1")
	assert.Error(t, err)
}

func TestOracleAddValidatesAddress(t *testing.T) {
	srv, got := fakeAPI(t, http.StatusCreated, `{"name":"chainlink"}`)

	_, err := execute(t, srv, "oracle", "add", "chainlink", "not-an-address")
	require.Error(t, err)
	assert.Empty(t, got.path)

	_, err = execute(t, srv, "oracle", "add", "chainlink", "0x4000000000000000000000000000000000000004", "--weight", "2500")
	require.NoError(t, err)
	assert.Equal(t, "/v1/oracles", got.path)
	assert.Equal(t, float64(2500), got.body["weight"])
}

func TestResultSubmitEncodesProof(t *testing.T) {
	srv, got := fakeAPI(t, http.StatusCreated, `{"resultId":"abc"}`)

	_, err := execute(t, srv, "result", "submit", "m1", "BTC", "--score", "4200", "--confidence", "9000", "--proof", "0xdeadbeef")
	require.NoError(t, err)
	assert.Equal(t, "/v1/results", got.path)
	assert.Equal(t, "0xdeadbeef", got.body["proof"])
	assert.Equal(t, float64(4200), got.body["riskScore"])

	_, err = execute(t, srv, "result", "submit", "m1", "BTC", "--proof", "zz")
	assert.Error(t, err)
}

func TestRewardAmounts(t *testing.T) {
	srv, got := fakeAPI(t, http.StatusOK, `{"pool":"0"}`)

	_, err := execute(t, srv, "reward", "fund", "1.5")
	require.NoError(t, err)
	assert.Equal(t, "/v1/rewards/fund", got.path)
	assert.Equal(t, "1500000000000000000", got.body["amount"])

	_, err = execute(t, srv, "reward", "distribute", "0x3000000000000000000000000000000000000003", "400", "--wei")
	require.NoError(t, err)
	assert.Equal(t, "/v1/rewards/distribute", got.path)
	assert.Equal(t, "400", got.body["amount"])

	_, err = execute(t, srv, "reward", "fund", "0")
	assert.Error(t, err)
}

func TestRewardBalance(t *testing.T) {
	srv, got := fakeAPI(t, http.StatusOK, `{}`)

	_, err := execute(t, srv, "reward", "balance")
	require.NoError(t, err)
	assert.Equal(t, "/v1/rewards/pool", got.path)

	_, err = execute(t, srv, "reward", "balance", "0x3000000000000000000000000000000000000003")
	require.NoError(t, err)
	assert.Equal(t, "/v1/rewards/0x3000000000000000000000000000000000000003", got.path)
}

func TestAPIErrorSurfaced(t *testing.T) {
	srv, _ := fakeAPI(t, http.StatusConflict, `{"error":"insufficient_funds","message":"nothing to claim"}`)

	_, err := execute(t, srv, "reward", "claim")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient_funds (409)")
	assert.Contains(t, err.Error(), "nothing to claim")
}
