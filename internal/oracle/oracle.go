// Package oracle registers the external data feeds that contribute to risk
// assessments.
package oracle

import (
	"context"
	"time"

	"github.com/mbd888/riskmesh/internal/apperr"
)

// MaxWeight is the upper bound of a source weight, in basis points.
const MaxWeight = 10000

var ErrSourceNotFound = apperr.New(apperr.ErrNotRegistered, "oracle source not found")

// Source is one registered feed. Name is unique.
type Source struct {
	Name           string    `json:"name"`
	Address        string    `json:"address"`
	Weight         uint64    `json:"weight"`
	LastUpdateTime time.Time `json:"lastUpdateTime"`
	IsActive       bool      `json:"isActive"`
}

// Store persists sources.
type Store interface {
	// Upsert inserts or fully overwrites the source with the same name.
	Upsert(ctx context.Context, s *Source) error
	Get(ctx context.Context, name string) (*Source, error)
	List(ctx context.Context, activeOnly bool) ([]*Source, error)
	SetActive(ctx context.Context, name string, active bool) error
	Touch(ctx context.Context, name string, at time.Time) error
}
