package rewards

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mbd888/riskmesh/internal/circuitbreaker"
)

// Payout is one transfer made by a RecordingTransferrer.
type Payout struct {
	To     string
	Amount *big.Int
	Ref    string
	At     time.Time
}

// RecordingTransferrer pays nothing out: it records each transfer and
// returns a synthetic reference. Used when no payout key is configured.
type RecordingTransferrer struct {
	mu      sync.Mutex
	payouts []Payout

	// Hook, when set, runs before the payout is recorded; a non-nil error
	// fails the transfer.
	Hook func(ctx context.Context, to string, amount *big.Int) error
}

func NewRecordingTransferrer() *RecordingTransferrer {
	return &RecordingTransferrer{}
}

func (r *RecordingTransferrer) Transfer(ctx context.Context, to string, amount *big.Int) (string, error) {
	if r.Hook != nil {
		if err := r.Hook(ctx, to, amount); err != nil {
			return "", err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.payouts)
	ref := crypto.Keccak256Hash([]byte(fmt.Sprintf("%s:%s:%d", to, amount, n))).Hex()
	r.payouts = append(r.payouts, Payout{To: to, Amount: new(big.Int).Set(amount), Ref: ref, At: time.Now().UTC()})
	return ref, nil
}

// Payouts returns a copy of the recorded transfers.
func (r *RecordingTransferrer) Payouts() []Payout {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Payout(nil), r.payouts...)
}

// BreakerTransferrer fails transfers fast while the wrapped transferrer keeps
// failing. Claims still restore the pending balance on ErrOpen.
type BreakerTransferrer struct {
	next    Transferrer
	breaker *circuitbreaker.Breaker
}

func NewBreakerTransferrer(next Transferrer, b *circuitbreaker.Breaker) *BreakerTransferrer {
	return &BreakerTransferrer{next: next, breaker: b}
}

func (t *BreakerTransferrer) Transfer(ctx context.Context, to string, amount *big.Int) (string, error) {
	var ref string
	err := t.breaker.Do(func() error {
		var err error
		ref, err = t.next.Transfer(ctx, to, amount)
		return err
	})
	return ref, err
}
