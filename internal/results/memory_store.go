package results

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps results in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	results map[string]*Result
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{results: make(map[string]*Result)}
}

func clone(r *Result) *Result {
	cp := *r
	cp.Proof = append([]byte(nil), r.Proof...)
	return &cp
}

func (m *MemoryStore) Put(_ context.Context, r *Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[r.ResultID] = clone(r)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, resultID string) (*Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.results[resultID]
	if !ok {
		return nil, ErrInvalidProof
	}
	return clone(r), nil
}

func (m *MemoryStore) ListByAsset(_ context.Context, assetID string, limit int) ([]*Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*Result{}
	for _, r := range m.results {
		if r.AssetID == assetID {
			out = append(out, clone(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ComputedAt.Equal(out[j].ComputedAt) {
			return out[i].ResultID < out[j].ResultID
		}
		return out[i].ComputedAt.After(out[j].ComputedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) SetVerified(_ context.Context, resultID string, verified bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[resultID]
	if !ok {
		return ErrInvalidProof
	}
	r.Verified = verified
	return nil
}
