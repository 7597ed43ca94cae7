package oracle

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps sources in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	sources map[string]*Source
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sources: make(map[string]*Source)}
}

func (m *MemoryStore) Upsert(_ context.Context, s *Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sources[s.Name] = &cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, name string) (*Source, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sources[name]
	if !ok {
		return nil, ErrSourceNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) List(_ context.Context, activeOnly bool) ([]*Source, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Source, 0, len(m.sources))
	for _, s := range m.sources {
		if activeOnly && !s.IsActive {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) SetActive(_ context.Context, name string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sources[name]
	if !ok {
		return ErrSourceNotFound
	}
	s.IsActive = active
	return nil
}

func (m *MemoryStore) Touch(_ context.Context, name string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sources[name]
	if !ok {
		return ErrSourceNotFound
	}
	s.LastUpdateTime = at
	return nil
}
