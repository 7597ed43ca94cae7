// Package apperr defines the error kinds shared by every riskmesh service.
//
// Domain packages declare their own sentinels and wrap one of these kinds, so
// callers can match either the precise condition (risk.ErrStaleData) or the
// broad kind (apperr.ErrExpired). Handlers translate kinds to HTTP responses
// through HTTPStatus and Code.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds.
var (
	ErrUnauthorized      = errors.New("unauthorized caller")
	ErrNotRegistered     = errors.New("not registered")
	ErrInvalidProof      = errors.New("invalid proof")
	ErrExpired           = errors.New("expired")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrTransferFailed    = errors.New("transfer failed")
	ErrReentrant         = errors.New("reentrant call")
)

// New returns a sentinel error that matches kind under errors.Is.
func New(kind error, msg string) error {
	return fmt.Errorf("%w: %s", kind, msg)
}

var kinds = []struct {
	err    error
	status int
	code   string
}{
	{ErrUnauthorized, http.StatusForbidden, "unauthorized"},
	{ErrNotRegistered, http.StatusNotFound, "not_registered"},
	{ErrInvalidProof, http.StatusNotFound, "invalid_proof"},
	{ErrExpired, http.StatusGone, "expired"},
	{ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{ErrInsufficientFunds, http.StatusConflict, "insufficient_funds"},
	{ErrTransferFailed, http.StatusBadGateway, "transfer_failed"},
	{ErrReentrant, http.StatusConflict, "reentrant_call"},
}

// HTTPStatus maps an error to the HTTP status a handler should return.
func HTTPStatus(err error) int {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.status
		}
	}
	return http.StatusInternalServerError
}

// Code maps an error to the machine-readable error code used in responses.
func Code(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.code
		}
	}
	return "internal_error"
}
