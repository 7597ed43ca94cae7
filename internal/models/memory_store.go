package models

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps models in memory.
type MemoryStore struct {
	mu     sync.RWMutex
	models map[string]*Model
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{models: make(map[string]*Model)}
}

func (s *MemoryStore) Put(_ context.Context, m *Model) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.models[m.ModelID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, modelID string) (*Model, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.models[modelID]
	if !ok {
		return nil, ErrModelNotRegistered
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) List(_ context.Context) ([]*Model, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Model, 0, len(s.models))
	for _, m := range s.models {
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModelID < out[j].ModelID })
	return out, nil
}

func (s *MemoryStore) IncrementPredictions(_ context.Context, modelID string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.models[modelID]
	if !ok {
		return 0, ErrModelNotRegistered
	}
	m.PredictionCount++
	return m.PredictionCount, nil
}

func (s *MemoryStore) DecrementPredictions(_ context.Context, modelID string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.models[modelID]
	if !ok {
		return 0, ErrModelNotRegistered
	}
	if m.PredictionCount > 0 {
		m.PredictionCount--
	}
	return m.PredictionCount, nil
}
