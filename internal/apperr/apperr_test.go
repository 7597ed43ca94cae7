package apperr

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestKindMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{New(ErrUnauthorized, "missing role"), http.StatusForbidden, "unauthorized"},
		{New(ErrNotRegistered, "model"), http.StatusNotFound, "not_registered"},
		{New(ErrInvalidProof, "no result"), http.StatusNotFound, "invalid_proof"},
		{New(ErrExpired, "stale"), http.StatusGone, "expired"},
		{New(ErrInvalidInput, "weight"), http.StatusBadRequest, "invalid_input"},
		{New(ErrInsufficientFunds, "pool"), http.StatusConflict, "insufficient_funds"},
		{New(ErrTransferFailed, "rpc"), http.StatusBadGateway, "transfer_failed"},
		{New(ErrReentrant, "claim"), http.StatusConflict, "reentrant_call"},
		{fmt.Errorf("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, HTTPStatus(tt.err), tt.err.Error())
		assert.Equal(t, tt.code, Code(tt.err), tt.err.Error())
	}
}

func TestWrappedSentinelStillMatchesKind(t *testing.T) {
	sentinel := New(ErrExpired, "result validity window elapsed")
	wrapped := fmt.Errorf("verify res_1: %w", sentinel)
	assert.ErrorIs(t, wrapped, sentinel)
	assert.ErrorIs(t, wrapped, ErrExpired)
	assert.Equal(t, http.StatusGone, HTTPStatus(wrapped))
}

func TestRespond(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	Respond(c, New(ErrExpired, "stale data"))
	assert.Equal(t, http.StatusGone, w.Code)
	assert.Contains(t, w.Body.String(), `"error":"expired"`)
	assert.Contains(t, w.Body.String(), "stale data")

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	Respond(c, fmt.Errorf("pq: connection refused"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
}
