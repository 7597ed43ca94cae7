package rolegate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/riskmesh/internal/apperr"
	"github.com/mbd888/riskmesh/internal/auth"
	"github.com/mbd888/riskmesh/internal/events"
)

const (
	adminAddr = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	userAddr  = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func seeded(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore()
	require.NoError(t, Seed(context.Background(), s, Admin, []string{"0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", ""}))
	return s
}

func TestRequire(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)

	assert.NoError(t, Require(ctx, s, adminAddr, Admin))

	err := Require(ctx, s, userAddr, Admin)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))
	assert.True(t, IsUnauthorized(err))

	err = Require(ctx, s, "", RiskAssessor)
	assert.True(t, errors.Is(err, ErrUnauthorized))
}

type failingGate struct{}

func (failingGate) HasCapability(context.Context, string, Capability) (bool, error) {
	return false, errors.New("db down")
}

func TestRequire_LookupErrorIsNotADenial(t *testing.T) {
	err := Require(context.Background(), failingGate{}, adminAddr, Admin)
	require.Error(t, err)
	assert.False(t, IsUnauthorized(err))
}

func TestService_GrantRevoke(t *testing.T) {
	ctx := context.Background()
	rec := events.NewRecorder()
	svc := NewService(seeded(t)).WithEmitter(rec)

	_, err := svc.Grant(ctx, userAddr, userAddr, RiskAssessor)
	assert.True(t, IsUnauthorized(err), "non-admin cannot grant")

	_, err = svc.Grant(ctx, adminAddr, userAddr, Capability("wizard"))
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))

	g, err := svc.Grant(ctx, adminAddr, "0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB", RiskAssessor)
	require.NoError(t, err)
	assert.Equal(t, userAddr, g.Address)
	assert.NoError(t, Require(ctx, svc.Gate(), userAddr, RiskAssessor))

	grants, err := svc.List(ctx, userAddr)
	require.NoError(t, err)
	require.Len(t, grants, 1)

	require.NoError(t, svc.Revoke(ctx, adminAddr, userAddr, RiskAssessor))
	assert.True(t, IsUnauthorized(Require(ctx, svc.Gate(), userAddr, RiskAssessor)))

	assert.Len(t, rec.OfType(events.RoleGranted), 1)
	assert.Len(t, rec.OfType(events.RoleRevoked), 1)
}

func TestPostgresStore_HasCapability(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM capability_grants")).
		WithArgs(adminAddr, "admin").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := NewPostgresStore(db).HasCapability(context.Background(), "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", Admin)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GrantIsIdempotent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (address, capability) DO NOTHING")).
		WithArgs(userAddr, "verifier", "config", at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = NewPostgresStore(db).Grant(context.Background(), &Grant{Address: userAddr, Capability: Verifier, GrantedBy: "config", GrantedAt: at})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func withCaller(addr string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(auth.ContextKeyCaller, addr)
		c.Next()
	}
}

func TestHandler_GrantRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHandler(NewService(seeded(t)))

	do := func(caller string, body interface{}) *httptest.ResponseRecorder {
		r := gin.New()
		g := r.Group("/v1", withCaller(caller))
		h.RegisterProtectedRoutes(g)
		h.RegisterRoutes(g)
		b, _ := json.Marshal(body)
		req := httptest.NewRequest(http.MethodPost, "/v1/roles", bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := do(adminAddr, RoleRequest{Address: userAddr, Capability: "verifier"})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = do(userAddr, RoleRequest{Address: userAddr, Capability: "admin"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), `"error":"unauthorized"`)

	w = do(adminAddr, RoleRequest{Address: "0xnothex", Capability: "admin"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
