package rolegate

import (
	"context"
	"time"

	"github.com/mbd888/riskmesh/internal/events"
)

// Service manages grants on behalf of an Admin caller.
type Service struct {
	store   Store
	emitter events.Emitter
	now     func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, emitter: events.Nop{}, now: time.Now}
}

// WithEmitter sets the signal emitter.
func (s *Service) WithEmitter(e events.Emitter) *Service {
	s.emitter = e
	return s
}

// Grant gives address capability c. Caller must hold Admin.
func (s *Service) Grant(ctx context.Context, caller, address string, c Capability) (*Grant, error) {
	if err := Require(ctx, s.store, caller, Admin); err != nil {
		return nil, err
	}
	if !c.Valid() {
		return nil, ErrUnknownCapability
	}
	g := &Grant{
		Address:    Normalize(address),
		Capability: c,
		GrantedBy:  Normalize(caller),
		GrantedAt:  s.now().UTC(),
	}
	if err := s.store.Grant(ctx, g); err != nil {
		return nil, err
	}
	s.emitter.Emit(ctx, events.RoleGranted, map[string]interface{}{
		"caller":     g.GrantedBy,
		"address":    g.Address,
		"capability": string(c),
	})
	return g, nil
}

// Revoke removes capability c from address. Caller must hold Admin.
func (s *Service) Revoke(ctx context.Context, caller, address string, c Capability) error {
	if err := Require(ctx, s.store, caller, Admin); err != nil {
		return err
	}
	if !c.Valid() {
		return ErrUnknownCapability
	}
	if err := s.store.Revoke(ctx, address, c); err != nil {
		return err
	}
	s.emitter.Emit(ctx, events.RoleRevoked, map[string]interface{}{
		"caller":     Normalize(caller),
		"address":    Normalize(address),
		"capability": string(c),
	})
	return nil
}

// List returns the grants held by address.
func (s *Service) List(ctx context.Context, address string) ([]*Grant, error) {
	return s.store.List(ctx, address)
}

// Gate exposes the underlying store as a read-only Gate.
func (s *Service) Gate() Gate { return s.store }
