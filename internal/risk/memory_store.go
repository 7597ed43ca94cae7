package risk

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu         sync.RWMutex
	profiles   map[string]*Profile
	ledgers    map[string][]uint64
	thresholds map[string]uint64
}

// NewMemoryStore creates an in-memory risk store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles:   make(map[string]*Profile),
		ledgers:    make(map[string][]uint64),
		thresholds: make(map[string]uint64),
	}
}

func cloneProfile(p *Profile) *Profile {
	cp := *p
	cp.OracleSources = append([]string(nil), p.OracleSources...)
	return &cp
}

func (m *MemoryStore) GetProfile(_ context.Context, assetKey string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[assetKey]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return cloneProfile(p), nil
}

func (m *MemoryStore) SaveAssessment(_ context.Context, p *Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.AssetKey] = cloneProfile(p)
	m.ledgers[p.AssetKey] = append(m.ledgers[p.AssetKey], p.AggregatedRiskScore)
	return nil
}

func (m *MemoryStore) SaveProfiles(_ context.Context, ps []*Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range ps {
		m.profiles[p.AssetKey] = cloneProfile(p)
	}
	return nil
}

func (m *MemoryStore) History(_ context.Context, assetKey string, limit int) ([]uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ledger := m.ledgers[assetKey]
	start := 0
	if limit > 0 && limit < len(ledger) {
		start = len(ledger) - limit
	}
	out := make([]uint64, len(ledger)-start)
	copy(out, ledger[start:])
	return out, nil
}

func (m *MemoryStore) SetThreshold(_ context.Context, assetKey, _ string, threshold uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if threshold == 0 {
		delete(m.thresholds, assetKey)
		return nil
	}
	m.thresholds[assetKey] = threshold
	return nil
}

func (m *MemoryStore) GetThreshold(_ context.Context, assetKey string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.thresholds[assetKey], nil
}
