// Package models registers the AI models whose results may be submitted.
package models

import (
	"context"
	"time"

	"github.com/mbd888/riskmesh/internal/apperr"
)

var ErrModelNotRegistered = apperr.New(apperr.ErrNotRegistered, "model not registered")

// Model is a registered AI model.
type Model struct {
	ModelID         string    `json:"modelId"`
	ModelHash       string    `json:"modelHash"`
	Operator        string    `json:"operator"`
	RegisteredAt    time.Time `json:"registeredAt"`
	IsActive        bool      `json:"isActive"`
	PredictionCount uint64    `json:"predictionCount"`
}

// Store persists models.
type Store interface {
	// Put inserts or fully overwrites the model with the same id.
	Put(ctx context.Context, m *Model) error
	Get(ctx context.Context, modelID string) (*Model, error)
	List(ctx context.Context) ([]*Model, error)
	IncrementPredictions(ctx context.Context, modelID string) (uint64, error)
	// DecrementPredictions undoes one IncrementPredictions. It never goes
	// below zero.
	DecrementPredictions(ctx context.Context, modelID string) (uint64, error)
}
