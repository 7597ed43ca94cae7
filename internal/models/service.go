package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/mbd888/riskmesh/internal/apperr"
	"github.com/mbd888/riskmesh/internal/events"
	"github.com/mbd888/riskmesh/internal/logging"
	"github.com/mbd888/riskmesh/internal/rolegate"
	"github.com/mbd888/riskmesh/internal/syncutil"
	"github.com/mbd888/riskmesh/internal/traces"
)

// Service manages the model registry.
type Service struct {
	store   Store
	gate    rolegate.Gate
	emitter events.Emitter
	guard   *syncutil.Guard
	now     func() time.Time
}

func NewService(store Store, gate rolegate.Gate) *Service {
	return &Service{
		store:   store,
		gate:    gate,
		emitter: events.Nop{},
		guard:   syncutil.NewGuard(),
		now:     time.Now,
	}
}

// WithEmitter sets the signal emitter.
func (s *Service) WithEmitter(e events.Emitter) *Service {
	s.emitter = e
	return s
}

// WithGuard shares the process-wide guard.
func (s *Service) WithGuard(g *syncutil.Guard) *Service {
	s.guard = g
	return s
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RegisterModel records modelID with the caller as operator. Registering an
// existing id replaces it entirely, resetting its prediction count.
func (s *Service) RegisterModel(ctx context.Context, caller, modelID, modelHash string) (*Model, error) {
	ctx, span := traces.StartSpan(ctx, "models.RegisterModel", traces.Caller(caller), traces.ModelID(modelID))
	defer span.End()

	m, err := s.register(ctx, caller, modelID, modelHash)
	traces.Fail(span, err)
	return m, err
}

func (s *Service) register(ctx context.Context, caller, modelID, modelHash string) (*Model, error) {
	if err := rolegate.Require(ctx, s.gate, caller, rolegate.AIOperator); err != nil {
		return nil, err
	}
	modelID = strings.TrimSpace(modelID)
	if modelID == "" {
		return nil, apperr.New(apperr.ErrInvalidInput, "modelId is required")
	}
	hash, err := parseHash(modelHash)
	if err != nil {
		return nil, err
	}

	ctx, release, err := s.guard.Enter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	m := &Model{
		ModelID:      modelID,
		ModelHash:    hash,
		Operator:     rolegate.Normalize(caller),
		RegisteredAt: s.now().UTC(),
		IsActive:     true,
	}
	if err := s.store.Put(ctx, m); err != nil {
		logging.L(ctx).Error("failed to register model", "modelId", modelID, "error", err)
		return nil, err
	}

	logging.L(ctx).Info("model registered", "modelId", modelID, "operator", m.Operator)
	s.emitter.Emit(ctx, events.ModelRegistered, map[string]interface{}{
		"modelId":   m.ModelID,
		"modelHash": m.ModelHash,
		"operator":  m.Operator,
	})
	return m, nil
}

// parseHash accepts a 32-byte hex digest with or without 0x.
func parseHash(s string) (string, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	b, err := hexutil.Decode("0x" + raw)
	if err != nil || len(b) != common.HashLength {
		return "", fmt.Errorf("%w: modelHash must be a 32-byte hex digest", apperr.ErrInvalidInput)
	}
	return common.BytesToHash(b).Hex(), nil
}

func (s *Service) GetModel(ctx context.Context, modelID string) (*Model, error) {
	return s.store.Get(ctx, modelID)
}

func (s *Service) ListModels(ctx context.Context) ([]*Model, error) {
	return s.store.List(ctx)
}

// IsActive reports whether modelID is registered and active.
func (s *Service) IsActive(ctx context.Context, modelID string) (bool, error) {
	m, err := s.store.Get(ctx, modelID)
	if errors.Is(err, ErrModelNotRegistered) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return m.IsActive, nil
}

// IncrementPredictions bumps the prediction counter. Callers hold the guard.
func (s *Service) IncrementPredictions(ctx context.Context, modelID string) (uint64, error) {
	return s.store.IncrementPredictions(ctx, modelID)
}

// DecrementPredictions takes back a count whose result was never stored.
func (s *Service) DecrementPredictions(ctx context.Context, modelID string) (uint64, error) {
	return s.store.DecrementPredictions(ctx, modelID)
}
