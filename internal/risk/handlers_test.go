package risk

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/riskmesh/internal/auth"
)

func withCaller(addr string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(auth.ContextKeyCaller, addr)
		c.Next()
	}
}

func setupRouter(f *fixture, caller string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(f.svc)
	h.RegisterRoutes(r.Group("/v1"))
	h.RegisterProtectedRoutes(r.Group("/v1", withCaller(caller)))
	return r
}

func doJSON(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandler_AssessAndRead(t *testing.T) {
	f := newFixture(t)
	r := setupRouter(f, assessor)

	w := doJSON(r, http.MethodPost, "/v1/risk/assess", AssessRequest{
		AssetID:    "BTC",
		Parameters: f.params(5000, 5000, 5000, 5000, 5000),
		Sources:    []string{"chainlink"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Score uint64 `json:"score"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, uint64(5000), resp.Score)

	w = doJSON(r, http.MethodGet, "/v1/risk/BTC", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var profile struct {
		Profile Profile `json:"profile"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &profile))
	assert.Equal(t, uint64(1), profile.Profile.AssessmentCount)

	w = doJSON(r, http.MethodGet, "/v1/risk/BTC/history?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"scores":[5000]`)

	w = doJSON(r, http.MethodGet, "/v1/risk/BTC/history?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodGet, "/v1/risk/DOGE", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"error":"not_registered"`)
}

func TestHandler_AssessErrors(t *testing.T) {
	f := newFixture(t)

	r := setupRouter(f, outsider)
	w := doJSON(r, http.MethodPost, "/v1/risk/assess", AssessRequest{AssetID: "BTC", Parameters: f.params(1, 1, 1, 1, 1)})
	assert.Equal(t, http.StatusForbidden, w.Code)

	r = setupRouter(f, assessor)
	stale := f.params(1, 1, 1, 1, 1)
	stale.LastUpdated = f.now.AddDate(0, 0, -1)
	w = doJSON(r, http.MethodPost, "/v1/risk/assess", AssessRequest{AssetID: "BTC", Parameters: stale})
	assert.Equal(t, http.StatusGone, w.Code)
	assert.Contains(t, w.Body.String(), `"error":"expired"`)

	w = doJSON(r, http.MethodPost, "/v1/risk/assess", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_Threshold(t *testing.T) {
	f := newFixture(t)
	r := setupRouter(f, assessor)

	w := doJSON(r, http.MethodPut, "/v1/risk/BTC/threshold", SetThresholdRequest{Threshold: 7000})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(r, http.MethodGet, "/v1/risk/BTC/threshold", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"threshold":7000`)

	w = doJSON(r, http.MethodPut, "/v1/risk/BTC/threshold", SetThresholdRequest{Threshold: 10001})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_Batch(t *testing.T) {
	f := newFixture(t)
	r := setupRouter(f, assessor)

	w := doJSON(r, http.MethodPost, "/v1/risk/batch", BatchAssessRequest{
		AssetIDs:   []string{"A", "B"},
		Parameters: []Parameters{f.params(100, 100, 100, 100, 100), f.params(200, 200, 200, 200, 200)},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"scores":[100,200]`)

	w = doJSON(r, http.MethodPost, "/v1/risk/batch", BatchAssessRequest{AssetIDs: []string{"A"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
