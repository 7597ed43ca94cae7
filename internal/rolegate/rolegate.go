// Package rolegate answers "may this actor do that" for riskmesh services.
//
// Granting policy lives outside the core: operators seed grants from config
// or manage them through the admin routes. Services only ever ask
// HasCapability, usually through Require.
package rolegate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mbd888/riskmesh/internal/apperr"
)

// Capability is a named permission.
type Capability string

const (
	Admin         Capability = "admin"
	RiskAssessor  Capability = "risk_assessor"
	OracleManager Capability = "oracle_manager"
	AIOperator    Capability = "ai_operator"
	Verifier      Capability = "verifier"
)

// All lists every capability in a stable order.
var All = []Capability{Admin, RiskAssessor, OracleManager, AIOperator, Verifier}

var (
	ErrUnauthorized      = apperr.New(apperr.ErrUnauthorized, "caller lacks required capability")
	ErrUnknownCapability = apperr.New(apperr.ErrInvalidInput, "unknown capability")
)

// Valid reports whether c is one of the known capabilities.
func (c Capability) Valid() bool {
	for _, k := range All {
		if k == c {
			return true
		}
	}
	return false
}

// Grant records that Address holds Capability.
type Grant struct {
	Address    string     `json:"address"`
	Capability Capability `json:"capability"`
	GrantedBy  string     `json:"grantedBy"`
	GrantedAt  time.Time  `json:"grantedAt"`
}

// Gate is the read side every service depends on.
type Gate interface {
	HasCapability(ctx context.Context, actor string, c Capability) (bool, error)
}

// Store is a Gate that can also be managed.
type Store interface {
	Gate
	Grant(ctx context.Context, g *Grant) error
	Revoke(ctx context.Context, address string, c Capability) error
	List(ctx context.Context, address string) ([]*Grant, error)
}

// Require returns ErrUnauthorized unless actor holds c. Lookup failures are
// returned as-is so they surface as internal errors, not as denials.
func Require(ctx context.Context, gate Gate, actor string, c Capability) error {
	if actor == "" {
		return fmt.Errorf("%w: anonymous caller needs %s", ErrUnauthorized, c)
	}
	ok, err := gate.HasCapability(ctx, Normalize(actor), c)
	if err != nil {
		return fmt.Errorf("capability lookup: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s needs %s", ErrUnauthorized, actor, c)
	}
	return nil
}

// Normalize canonicalizes an actor address for storage and comparison.
func Normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// Seed grants c to every address in addrs. Used at startup from config.
func Seed(ctx context.Context, s Store, c Capability, addrs []string) error {
	for _, a := range addrs {
		a = Normalize(a)
		if a == "" {
			continue
		}
		if err := s.Grant(ctx, &Grant{Address: a, Capability: c, GrantedBy: "config", GrantedAt: time.Now().UTC()}); err != nil {
			return fmt.Errorf("seed %s for %s: %w", c, a, err)
		}
	}
	return nil
}

// IsUnauthorized reports whether err is a capability denial.
func IsUnauthorized(err error) bool {
	return errors.Is(err, apperr.ErrUnauthorized)
}
