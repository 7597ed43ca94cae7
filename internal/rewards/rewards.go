// Package rewards holds the native-coin pool that pays AI model operators.
//
// An Admin funds the pool and distributes parts of it to operators as
// pending balances; operators claim their balance, which is paid out through
// a Transferrer. Amounts are wei.
package rewards

import (
	"context"
	"math/big"
	"time"

	"github.com/mbd888/riskmesh/internal/apperr"
)

var (
	ErrInsufficientPool  = apperr.New(apperr.ErrInsufficientFunds, "reward pool balance too low")
	ErrNothingToClaim    = apperr.New(apperr.ErrInsufficientFunds, "nothing to claim")
	ErrTransferFailed    = apperr.New(apperr.ErrTransferFailed, "reward transfer failed")
	ErrRestoreFailed     = apperr.New(apperr.ErrTransferFailed, "pending reward not restored")
	ErrPayoutUnconfirmed = apperr.New(apperr.ErrTransferFailed, "payout broadcast but unconfirmed")
	ErrInvalidAmount     = apperr.New(apperr.ErrInvalidInput, "amount must be positive")
)

// Pool is the aggregate state of the reward pool.
// Balance = TotalFunded - TotalDistributed.
type Pool struct {
	Balance          *big.Int `json:"balance"`
	TotalFunded      *big.Int `json:"totalFunded"`
	TotalDistributed *big.Int `json:"totalDistributed"`
	TotalClaimed     *big.Int `json:"totalClaimed"`
}

// Account is one operator's reward position.
type Account struct {
	Operator     string    `json:"operator"`
	Pending      *big.Int  `json:"pending"`
	TotalClaimed *big.Int  `json:"totalClaimed"`
	LastClaimAt  time.Time `json:"lastClaimAt,omitempty"`
}

// Claim is a completed payout.
type Claim struct {
	Operator string    `json:"operator"`
	Amount   *big.Int  `json:"amount"`
	TxHash   string    `json:"txHash,omitempty"`
	At       time.Time `json:"at"`
}

// Store persists the pool and accounts. Each method is atomic.
type Store interface {
	Pool(ctx context.Context) (*Pool, error)
	Fund(ctx context.Context, amount *big.Int) (*Pool, error)
	// Distribute moves amount from the pool to operator's pending balance,
	// or returns ErrInsufficientPool leaving state unchanged.
	Distribute(ctx context.Context, operator string, amount *big.Int) error
	// TakePending zeroes operator's pending balance, counts it as claimed and
	// returns it. A zero return means there was nothing pending.
	TakePending(ctx context.Context, operator string, at time.Time) (*big.Int, error)
	// RestorePending reverses a TakePending whose payout failed.
	RestorePending(ctx context.Context, operator string, amount *big.Int) error
	Account(ctx context.Context, operator string) (*Account, error)
}

// Transferrer pays amount wei to an address and returns a reference such as
// a transaction hash.
type Transferrer interface {
	Transfer(ctx context.Context, to string, amount *big.Int) (string, error)
}

// UnconfirmedTransfer is implemented by transfer errors raised after the
// payout may already have reached the chain. When Unconfirmed reports true
// the claim is not rolled back.
type UnconfirmedTransfer interface {
	error
	Unconfirmed() (txHash string, ok bool)
}

func zero() *big.Int { return new(big.Int) }

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return zero()
	}
	return new(big.Int).Set(v)
}
