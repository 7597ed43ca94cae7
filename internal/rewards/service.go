package rewards

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mbd888/riskmesh/internal/apperr"
	"github.com/mbd888/riskmesh/internal/events"
	"github.com/mbd888/riskmesh/internal/logging"
	"github.com/mbd888/riskmesh/internal/metrics"
	"github.com/mbd888/riskmesh/internal/rolegate"
	"github.com/mbd888/riskmesh/internal/syncutil"
	"github.com/mbd888/riskmesh/internal/traces"
	"github.com/mbd888/riskmesh/internal/units"
)

// Service implements funding, distribution and claims.
type Service struct {
	store       Store
	gate        rolegate.Gate
	transferrer Transferrer
	emitter     events.Emitter
	guard       *syncutil.Guard
	now         func() time.Time
}

func NewService(store Store, gate rolegate.Gate, t Transferrer) *Service {
	return &Service{
		store:       store,
		gate:        gate,
		transferrer: t,
		emitter:     events.Nop{},
		guard:       syncutil.NewGuard(),
		now:         time.Now,
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

// Fund adds amount wei to the pool.
func (s *Service) Fund(ctx context.Context, caller string, amount *big.Int) (*Pool, error) {
	if err := rolegate.Require(ctx, s.gate, caller, rolegate.Admin); err != nil {
		return nil, err
	}
	if !units.Positive(amount) {
		return nil, ErrInvalidAmount
	}

	ctx, release, err := s.guard.Enter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	pool, err := s.store.Fund(ctx, amount)
	if err != nil {
		logging.L(ctx).Error("failed to fund reward pool", "amount", amount.String(), "error", err)
		return nil, err
	}
	metrics.RewardPoolBalance.Set(coins(pool.Balance))

	logging.L(ctx).Info("reward pool funded", "amount", units.FormatCoin(amount), "balance", units.FormatCoin(pool.Balance))
	s.emitter.Emit(ctx, events.RewardFunded, map[string]interface{}{
		"caller":  caller,
		"amount":  amount.String(),
		"balance": pool.Balance.String(),
	})
	return pool, nil
}

// Distribute moves amount wei from the pool to operator's pending balance.
func (s *Service) Distribute(ctx context.Context, caller, operator string, amount *big.Int) error {
	if err := rolegate.Require(ctx, s.gate, caller, rolegate.Admin); err != nil {
		return err
	}
	if !common.IsHexAddress(operator) {
		return apperr.New(apperr.ErrInvalidInput, "operator must be an address")
	}
	if !units.Positive(amount) {
		return ErrInvalidAmount
	}

	ctx, release, err := s.guard.Enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	operator = normalizeAddress(operator)
	if err := s.store.Distribute(ctx, operator, amount); err != nil {
		return err
	}
	if pool, err := s.store.Pool(ctx); err == nil {
		metrics.RewardPoolBalance.Set(coins(pool.Balance))
	}

	logging.L(ctx).Info("reward distributed", "operator", operator, "amount", units.FormatCoin(amount))
	s.emitter.Emit(ctx, events.RewardDistributed, map[string]interface{}{
		"caller":   caller,
		"operator": operator,
		"amount":   amount.String(),
	})
	return nil
}

// Claim pays the caller's whole pending balance. The balance is zeroed
// before the transfer runs and restored if it fails.
func (s *Service) Claim(ctx context.Context, caller string) (*Claim, error) {
	ctx, span := traces.StartSpan(ctx, "rewards.Claim", traces.Caller(caller))
	defer span.End()

	c, err := s.claim(ctx, caller)
	traces.Fail(span, err)
	if err == nil {
		span.SetAttributes(traces.Amount(c.Amount.String()))
	}
	return c, err
}

func (s *Service) claim(ctx context.Context, caller string) (*Claim, error) {
	if !common.IsHexAddress(caller) {
		return nil, rolegate.ErrUnauthorized
	}
	operator := normalizeAddress(caller)

	ctx, release, err := s.guard.Enter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	now := s.now().UTC()
	amount, err := s.store.TakePending(ctx, operator, now)
	if err != nil {
		return nil, err
	}
	if amount.Sign() == 0 {
		metrics.RewardClaimsTotal.WithLabelValues("empty").Inc()
		return nil, ErrNothingToClaim
	}

	txHash, err := s.transferrer.Transfer(ctx, operator, amount)
	if err != nil {
		return nil, s.failClaim(ctx, operator, amount, err)
	}
	metrics.RewardClaimsTotal.WithLabelValues("paid").Inc()

	logging.L(ctx).Info("reward claimed", "operator", operator, "amount", units.FormatCoin(amount), "tx", txHash)
	s.emitter.Emit(ctx, events.RewardClaimed, map[string]interface{}{
		"operator": operator,
		"amount":   amount.String(),
		"txHash":   txHash,
	})
	return &Claim{Operator: operator, Amount: amount, TxHash: txHash, At: now}, nil
}

// failClaim rolls back a TakePending after a failed transfer. The restore
// runs even when ctx is already cancelled.
func (s *Service) failClaim(ctx context.Context, operator string, amount *big.Int, err error) error {
	var unconfirmed UnconfirmedTransfer
	if errors.As(err, &unconfirmed) {
		if txHash, ok := unconfirmed.Unconfirmed(); ok {
			metrics.RewardClaimsTotal.WithLabelValues("unconfirmed").Inc()
			logging.L(ctx).Error("reward payout unconfirmed, balance left claimed",
				"operator", operator, "amount", amount.String(), "tx", txHash, "error", err)
			return fmt.Errorf("%w (tx %s): %w", ErrPayoutUnconfirmed, txHash, err)
		}
	}

	metrics.RewardClaimsTotal.WithLabelValues("failed").Inc()
	logging.L(ctx).Warn("reward transfer failed", "operator", operator, "amount", amount.String(), "error", err)
	if rerr := s.store.RestorePending(context.WithoutCancel(ctx), operator, amount); rerr != nil {
		logging.L(ctx).Error("failed to restore pending reward", "operator", operator, "amount", amount.String(), "error", rerr)
		return fmt.Errorf("%w: %w: %w", ErrRestoreFailed, err, rerr)
	}
	return fmt.Errorf("%w: %w", ErrTransferFailed, err)
}

// PendingBalance returns operator's unclaimed balance.
func (s *Service) PendingBalance(ctx context.Context, operator string) (*big.Int, error) {
	a, err := s.store.Account(ctx, normalizeAddress(operator))
	if err != nil {
		return nil, err
	}
	return a.Pending, nil
}

func (s *Service) Account(ctx context.Context, operator string) (*Account, error) {
	return s.store.Account(ctx, normalizeAddress(operator))
}

func (s *Service) Pool(ctx context.Context) (*Pool, error) {
	return s.store.Pool(ctx)
}

// normalizeAddress returns the lower-case 0x form of a hex address.
func normalizeAddress(addr string) string {
	return strings.ToLower(common.HexToAddress(addr).Hex())
}

var weiPerCoin = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(units.Decimals), nil))

func coins(wei *big.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), weiPerCoin).Float64()
	return f
}
