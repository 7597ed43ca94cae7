package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupMiddlewareTest() (*Manager, string) {
	mgr := NewManager(NewMemoryStore())
	rawKey, _, _ := mgr.GenerateKey(context.Background(), testAddr, "test-key")
	return mgr, rawKey
}

func TestMiddleware_ValidKey_SetsCaller(t *testing.T) {
	mgr, rawKey := setupMiddlewareTest()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/test", nil)
	c.Request.Header.Set("Authorization", "Bearer "+rawKey)

	Middleware(mgr)(c)

	if got := Caller(c); got != testAddr {
		t.Errorf("Expected caller %s, got %q", testAddr, got)
	}
	if key, ok := GetAPIKey(c); !ok || key.Name != "test-key" {
		t.Error("Expected API key in context")
	}
}

func TestMiddleware_ValidKeyViaXAPIKey(t *testing.T) {
	mgr, rawKey := setupMiddlewareTest()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/test", nil)
	c.Request.Header.Set("X-API-Key", rawKey)

	Middleware(mgr)(c)

	if Caller(c) == "" {
		t.Error("Expected caller set via X-API-Key header")
	}
}

func TestMiddleware_InvalidKey_DoesNotAbort(t *testing.T) {
	mgr, _ := setupMiddlewareTest()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/test", nil)
	c.Request.Header.Set("Authorization", "sk_invalid")

	Middleware(mgr)(c)

	if c.IsAborted() {
		t.Error("Middleware must not abort on invalid keys")
	}
	if Caller(c) != "" {
		t.Error("Invalid key must not set a caller")
	}
}

func TestRequireAuth(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("POST", "/v1/risk/assess", nil)
	RequireAuth()(c)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("POST", "/v1/risk/assess", nil)
	c.Set(ContextKeyAPIKey, &APIKey{Address: testAddr})
	RequireAuth()(c)
	if c.IsAborted() {
		t.Error("Expected authenticated request to pass")
	}
}

func TestRequireAdminSecret(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		header string
		want   int
	}{
		{"disabled", "", "anything", http.StatusNotFound},
		{"wrong", "supersecret123", "nope", http.StatusForbidden},
		{"missing", "supersecret123", "", http.StatusForbidden},
		{"correct", "supersecret123", "supersecret123", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.POST("/x", RequireAdminSecret(tt.secret), func(c *gin.Context) { c.Status(http.StatusOK) })
			req := httptest.NewRequest(http.MethodPost, "/x", nil)
			if tt.header != "" {
				req.Header.Set("X-Admin-Secret", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestIssueKeyThenAuthenticate(t *testing.T) {
	mgr := NewManager(NewMemoryStore())
	h := NewHandler(mgr)

	r := gin.New()
	r.Use(Middleware(mgr))
	v1 := r.Group("/v1")
	h.RegisterBootstrapRoutes(v1, "s3cret")
	protected := v1.Group("", RequireAuth())
	h.RegisterRoutes(protected)

	body, _ := json.Marshal(IssueKeyRequest{Address: "0xABCDEF1234567890ABCDEF1234567890ABCDEF12", Name: "assessor"})
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/issue", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Secret", "s3cret")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var issued struct {
		APIKey string `json:"apiKey"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &issued)

	req = httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+issued.APIKey)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var me struct {
		Address string `json:"address"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &me)
	if me.Address != "0xabcdef1234567890abcdef1234567890abcdef12" {
		t.Errorf("unexpected address %q", me.Address)
	}

	// Malformed address is rejected.
	body, _ = json.Marshal(IssueKeyRequest{Address: "0xnope"})
	req = httptest.NewRequest(http.MethodPost, "/v1/auth/issue", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Secret", "s3cret")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}
