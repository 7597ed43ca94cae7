package models

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/riskmesh/internal/apperr"
	"github.com/mbd888/riskmesh/internal/auth"
	"github.com/mbd888/riskmesh/internal/events"
	"github.com/mbd888/riskmesh/internal/rolegate"
)

const (
	operatorAddr = "0x6666666666666666666666666666666666666666"
	otherAddr    = "0x7777777777777777777777777777777777777777"
	modelHash    = "0xabababababababababababababababababababababababababababababababab"
)

func newTestService(t *testing.T) (*Service, *events.Recorder) {
	t.Helper()
	gate := rolegate.NewMemoryStore()
	require.NoError(t, rolegate.Seed(context.Background(), gate, rolegate.AIOperator, []string{operatorAddr, otherAddr}))
	rec := events.NewRecorder()
	return NewService(NewMemoryStore(), gate).WithEmitter(rec), rec
}

func TestRegisterModel(t *testing.T) {
	svc, rec := newTestService(t)
	ctx := context.Background()

	m, err := svc.RegisterModel(ctx, operatorAddr, "gbm-v1", modelHash)
	require.NoError(t, err)
	assert.Equal(t, operatorAddr, m.Operator)
	assert.True(t, m.IsActive)
	assert.Equal(t, uint64(0), m.PredictionCount)

	signals := rec.OfType(events.ModelRegistered)
	require.Len(t, signals, 1)
	assert.Equal(t, "gbm-v1", signals[0].Data["modelId"])

	active, err := svc.IsActive(ctx, "gbm-v1")
	require.NoError(t, err)
	assert.True(t, active)
}

func TestRegisterModel_OverwriteResetsCount(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.RegisterModel(ctx, operatorAddr, "gbm-v1", modelHash)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := svc.IncrementPredictions(ctx, "gbm-v1")
		require.NoError(t, err)
	}
	m, _ := svc.GetModel(ctx, "gbm-v1")
	assert.Equal(t, uint64(3), m.PredictionCount)

	_, err = svc.RegisterModel(ctx, otherAddr, "gbm-v1", strings.TrimPrefix(modelHash, "0x"))
	require.NoError(t, err)
	m, _ = svc.GetModel(ctx, "gbm-v1")
	assert.Equal(t, uint64(0), m.PredictionCount)
	assert.Equal(t, otherAddr, m.Operator)
}

func TestRegisterModel_Rejects(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.RegisterModel(ctx, "0x8888888888888888888888888888888888888888", "gbm-v1", modelHash)
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))

	_, err = svc.RegisterModel(ctx, operatorAddr, "gbm-v1", "0x1234")
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))

	_, err = svc.RegisterModel(ctx, operatorAddr, "", modelHash)
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))

	_, err = svc.GetModel(ctx, "gbm-v1")
	assert.True(t, errors.Is(err, ErrModelNotRegistered))

	active, err := svc.IsActive(ctx, "gbm-v1")
	require.NoError(t, err)
	assert.False(t, active)

	_, err = svc.IncrementPredictions(ctx, "gbm-v1")
	assert.True(t, errors.Is(err, ErrModelNotRegistered))
}

func TestPostgresStore_IncrementPredictions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewPostgresStore(db)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE ai_models SET prediction_count = prediction_count + 1")).
		WithArgs("gbm-v1").
		WillReturnRows(sqlmock.NewRows([]string{"prediction_count"}).AddRow(int64(4)))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE ai_models SET prediction_count = prediction_count + 1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"prediction_count"}))

	n, err := store.IncrementPredictions(context.Background(), "gbm-v1")
	require.NoError(t, err)
	assert.Equal(t, uint64(4), n)

	_, err = store.IncrementPredictions(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrModelNotRegistered))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Put(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ai_models")).
		WithArgs("gbm-v1", modelHash, operatorAddr, at, true, int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewPostgresStore(db).Put(context.Background(), &Model{
		ModelID: "gbm-v1", ModelHash: modelHash, Operator: operatorAddr, RegisteredAt: at, IsActive: true,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_RegisterModel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, _ := newTestService(t)
	h := NewHandler(svc)

	r := gin.New()
	h.RegisterRoutes(r.Group("/v1"))
	h.RegisterProtectedRoutes(r.Group("/v1", func(c *gin.Context) {
		c.Set(auth.ContextKeyCaller, operatorAddr)
		c.Next()
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/models", strings.NewReader(`{"modelId":"gbm-v1","modelHash":"`+modelHash+`"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/models/unknown", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDecrementPredictions(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.RegisterModel(ctx, operatorAddr, "gbm-v1", modelHash)
	require.NoError(t, err)
	_, err = svc.IncrementPredictions(ctx, "gbm-v1")
	require.NoError(t, err)

	n, err := svc.DecrementPredictions(ctx, "gbm-v1")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)

	n, err = svc.DecrementPredictions(ctx, "gbm-v1")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n, "never below zero")

	_, err = svc.DecrementPredictions(ctx, "missing")
	assert.True(t, errors.Is(err, ErrModelNotRegistered))
}

func TestPostgresStore_DecrementPredictions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SET prediction_count = GREATEST(prediction_count - 1, 0)")).
		WithArgs("gbm-v1").
		WillReturnRows(sqlmock.NewRows([]string{"prediction_count"}).AddRow(int64(2)))

	n, err := NewPostgresStore(db).DecrementPredictions(context.Background(), "gbm-v1")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}
