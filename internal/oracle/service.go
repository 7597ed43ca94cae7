package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mbd888/riskmesh/internal/events"
	"github.com/mbd888/riskmesh/internal/logging"
	"github.com/mbd888/riskmesh/internal/risk"
	"github.com/mbd888/riskmesh/internal/rolegate"
	"github.com/mbd888/riskmesh/internal/syncutil"
	"github.com/mbd888/riskmesh/internal/validation"
)

// Service manages the oracle source registry.
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

// AddOracleSource registers name, or overwrites it when it already exists.
// The source becomes active and its update time is stamped now.
func (s *Service) AddOracleSource(ctx context.Context, caller, name, address string, weight uint64) (*Source, error) {
	if err := rolegate.Require(ctx, s.gate, caller, rolegate.OracleManager); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: source name is required", risk.ErrInvalidRiskScore)
	}
	if weight > MaxWeight {
		return nil, fmt.Errorf("%w: weight %d exceeds %d", risk.ErrInvalidRiskScore, weight, MaxWeight)
	}
	if !validation.IsValidEthAddress(address) {
		return nil, fmt.Errorf("%w: invalid source address", risk.ErrInvalidRiskScore)
	}

	ctx, release, err := s.guard.Enter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	src := &Source{
		Name:           name,
		Address:        rolegate.Normalize(address),
		Weight:         weight,
		LastUpdateTime: s.now().UTC(),
		IsActive:       true,
	}
	if err := s.store.Upsert(ctx, src); err != nil {
		logging.L(ctx).Error("failed to save oracle source", "name", name, "error", err)
		return nil, err
	}

	logging.L(ctx).Info("oracle source added", "name", name, "weight", weight)
	s.emitter.Emit(ctx, events.OracleSourceAdded, map[string]interface{}{
		"name":    src.Name,
		"address": src.Address,
		"weight":  src.Weight,
		"caller":  caller,
	})
	return src, nil
}

// DeactivateOracleSource marks name inactive. The record is kept.
func (s *Service) DeactivateOracleSource(ctx context.Context, caller, name string) error {
	if err := rolegate.Require(ctx, s.gate, caller, rolegate.OracleManager); err != nil {
		return err
	}

	ctx, release, err := s.guard.Enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := s.store.SetActive(ctx, name, false); err != nil {
		return err
	}
	s.emitter.Emit(ctx, events.OracleSourceDeactivated, map[string]interface{}{
		"name":   name,
		"caller": caller,
	})
	return nil
}

// RecordUpdate refreshes the last update time of name. The source's own
// address may call it as well as an OracleManager.
func (s *Service) RecordUpdate(ctx context.Context, caller, name string) (*Source, error) {
	src, err := s.store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if rolegate.Normalize(caller) != src.Address || caller == "" {
		if err := rolegate.Require(ctx, s.gate, caller, rolegate.OracleManager); err != nil {
			return nil, err
		}
	}
	if !src.IsActive {
		return nil, fmt.Errorf("%w: %s", risk.ErrSourceNotActive, name)
	}

	ctx, release, err := s.guard.Enter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	src.LastUpdateTime = s.now().UTC()
	if err := s.store.Touch(ctx, name, src.LastUpdateTime); err != nil {
		return nil, err
	}
	s.emitter.Emit(ctx, events.OracleSourceUpdated, map[string]interface{}{
		"name":      name,
		"timestamp": src.LastUpdateTime.Unix(),
		"caller":    caller,
	})
	return src, nil
}

func (s *Service) GetOracleSource(ctx context.Context, name string) (*Source, error) {
	return s.store.Get(ctx, name)
}

func (s *Service) ListOracleSources(ctx context.Context, activeOnly bool) ([]*Source, error) {
	return s.store.List(ctx, activeOnly)
}

// IsActive reports whether name is registered and active. Unknown names are
// inactive, not an error.
func (s *Service) IsActive(ctx context.Context, name string) (bool, error) {
	src, err := s.store.Get(ctx, name)
	if errors.Is(err, ErrSourceNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return src.IsActive, nil
}

var _ risk.SourceRegistry = (*Service)(nil)
