package rolegate

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps grants in memory.
type MemoryStore struct {
	mu     sync.RWMutex
	grants map[string]map[Capability]*Grant
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{grants: make(map[string]map[Capability]*Grant)}
}

func (m *MemoryStore) HasCapability(_ context.Context, actor string, c Capability) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.grants[Normalize(actor)][c]
	return ok, nil
}

func (m *MemoryStore) Grant(_ context.Context, g *Grant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	addr := Normalize(g.Address)
	if m.grants[addr] == nil {
		m.grants[addr] = make(map[Capability]*Grant)
	}
	cp := *g
	cp.Address = addr
	m.grants[addr][g.Capability] = &cp
	return nil
}

func (m *MemoryStore) Revoke(_ context.Context, address string, c Capability) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.grants[Normalize(address)], c)
	return nil
}

func (m *MemoryStore) List(_ context.Context, address string) ([]*Grant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Grant
	for _, g := range m.grants[Normalize(address)] {
		cp := *g
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Capability < out[j].Capability })
	return out, nil
}
