package events

import (
	"context"
)

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 100

// ListOptions filters a signal log query. Signals with Seq > AfterSeq are
// returned oldest first.
type ListOptions struct {
	AfterSeq int64
	Type     Type
	Limit    int
}

// Store is the append-only signal log an indexer replays from.
type Store interface {
	Append(ctx context.Context, sig *Signal) error
	List(ctx context.Context, opts ListOptions) ([]*Signal, error)
}

// LogSink persists every delivered signal into a Store.
type LogSink struct {
	store Store
}

func NewLogSink(store Store) *LogSink { return &LogSink{store: store} }

func (s *LogSink) Deliver(ctx context.Context, sig *Signal) error {
	return s.store.Append(ctx, sig)
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return DefaultListLimit
	}
	return limit
}
