package health

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthy(name string) Checker {
	return func(context.Context) Status { return Status{Name: name, Healthy: true} }
}

func TestRegistryEmpty(t *testing.T) {
	ok, statuses := NewRegistry(0).CheckAll(context.Background())
	assert.True(t, ok)
	assert.Empty(t, statuses)
}

func TestRegistryOneUnhealthy(t *testing.T) {
	r := NewRegistry(time.Second)
	r.Register("db", healthy("db"))
	r.Register("cache", func(context.Context) Status {
		return Status{Detail: "connection refused"}
	})

	ok, statuses := r.CheckAll(context.Background())
	assert.False(t, ok)
	require.Len(t, statuses, 2)
	assert.Equal(t, "cache", statuses[1].Name, "name defaults to the registered one")
	assert.Equal(t, "connection refused", statuses[1].Detail)
}

func TestRegistryAppliesTimeout(t *testing.T) {
	r := NewRegistry(20 * time.Millisecond)
	r.Register("slow", func(ctx context.Context) Status {
		<-ctx.Done()
		return Status{Detail: ctx.Err().Error()}
	})
	ok, statuses := r.CheckAll(context.Background())
	assert.False(t, ok)
	assert.Equal(t, context.DeadlineExceeded.Error(), statuses[0].Detail)
}

func TestRegistryConcurrentRegisterAndCheck(t *testing.T) {
	r := NewRegistry(time.Second)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Register("checker", healthy("checker"))
		}()
		go func() {
			defer wg.Done()
			r.CheckAll(context.Background())
		}()
	}
	wg.Wait()
}

func TestDatabaseChecker(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()
	assert.True(t, Database(db)(context.Background()).Healthy)

	mock.ExpectPing().WillReturnError(errors.New("down"))
	st := Database(db)(context.Background())
	assert.False(t, st.Healthy)
	assert.Equal(t, "down", st.Detail)
}

type fakeBalance struct {
	bal *big.Int
	err error
}

func (f fakeBalance) Balance(context.Context) (*big.Int, error) { return f.bal, f.err }

func TestPayoutWalletChecker(t *testing.T) {
	st := PayoutWallet(fakeBalance{bal: big.NewInt(1_500_000_000_000_000_000)})(context.Background())
	assert.True(t, st.Healthy)
	assert.Equal(t, "1.5", st.Detail)

	assert.False(t, PayoutWallet(fakeBalance{bal: new(big.Int)})(context.Background()).Healthy)
	assert.False(t, PayoutWallet(fakeBalance{err: errors.New("rpc")})(context.Background()).Healthy)
}

func TestHandlerProbes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := NewRegistry(time.Second)
	up := true
	reg.Register("db", func(context.Context) Status { return Status{Healthy: up} })

	r := gin.New()
	NewHandler(reg, "test").RegisterRoutes(r)

	get := func(path string) (*httptest.ResponseRecorder, map[string]interface{}) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		var body map[string]interface{}
		_ = json.Unmarshal(w.Body.Bytes(), &body)
		return w, body
	}

	w, body := get("/health/ready")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])

	up = false
	w, body = get("/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unhealthy", body["status"])

	w, _ = get("/health/live")
	assert.Equal(t, http.StatusOK, w.Code)
}
