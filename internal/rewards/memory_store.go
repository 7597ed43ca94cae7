package rewards

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps the pool and accounts in memory.
type MemoryStore struct {
	mu       sync.Mutex
	pool     Pool
	accounts map[string]*Account
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pool:     Pool{Balance: zero(), TotalFunded: zero(), TotalDistributed: zero(), TotalClaimed: zero()},
		accounts: make(map[string]*Account),
	}
}

func (m *MemoryStore) snapshot() *Pool {
	return &Pool{
		Balance:          copyInt(m.pool.Balance),
		TotalFunded:      copyInt(m.pool.TotalFunded),
		TotalDistributed: copyInt(m.pool.TotalDistributed),
		TotalClaimed:     copyInt(m.pool.TotalClaimed),
	}
}

func (m *MemoryStore) account(operator string) *Account {
	key := strings.ToLower(operator)
	a, ok := m.accounts[key]
	if !ok {
		a = &Account{Operator: key, Pending: zero(), TotalClaimed: zero()}
		m.accounts[key] = a
	}
	return a
}

func (m *MemoryStore) Pool(_ context.Context) (*Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot(), nil
}

func (m *MemoryStore) Fund(_ context.Context, amount *big.Int) (*Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pool.Balance.Add(m.pool.Balance, amount)
	m.pool.TotalFunded.Add(m.pool.TotalFunded, amount)
	return m.snapshot(), nil
}

func (m *MemoryStore) Distribute(_ context.Context, operator string, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pool.Balance.Cmp(amount) < 0 {
		return ErrInsufficientPool
	}
	m.pool.Balance.Sub(m.pool.Balance, amount)
	m.pool.TotalDistributed.Add(m.pool.TotalDistributed, amount)
	a := m.account(operator)
	a.Pending.Add(a.Pending, amount)
	return nil
}

func (m *MemoryStore) TakePending(_ context.Context, operator string, at time.Time) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.account(operator)
	amount := a.Pending
	if amount.Sign() == 0 {
		return zero(), nil
	}
	a.Pending = zero()
	a.TotalClaimed.Add(a.TotalClaimed, amount)
	a.LastClaimAt = at
	m.pool.TotalClaimed.Add(m.pool.TotalClaimed, amount)
	return copyInt(amount), nil
}

func (m *MemoryStore) RestorePending(_ context.Context, operator string, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.account(operator)
	a.Pending.Add(a.Pending, amount)
	a.TotalClaimed.Sub(a.TotalClaimed, amount)
	m.pool.TotalClaimed.Sub(m.pool.TotalClaimed, amount)
	return nil
}

func (m *MemoryStore) Account(_ context.Context, operator string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.account(operator)
	return &Account{
		Operator:     a.Operator,
		Pending:      copyInt(a.Pending),
		TotalClaimed: copyInt(a.TotalClaimed),
		LastClaimAt:  a.LastClaimAt,
	}, nil
}
