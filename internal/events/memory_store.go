package events

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory signal log for demo mode and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	signals []*Signal
	nextSeq int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Append(_ context.Context, sig *Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextSeq++
	cp := *sig
	cp.Seq = m.nextSeq
	m.signals = append(m.signals, &cp)
	sig.Seq = cp.Seq
	return nil
}

func (m *MemoryStore) List(_ context.Context, opts ListOptions) ([]*Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := normalizeLimit(opts.Limit)
	var out []*Signal
	for _, s := range m.signals {
		if s.Seq <= opts.AfterSeq {
			continue
		}
		if opts.Type != "" && s.Type != opts.Type {
			continue
		}
		cp := *s
		out = append(out, &cp)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}
