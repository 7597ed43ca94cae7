// Package syncutil provides the serialization discipline shared by all
// mutating riskmesh operations.
package syncutil

import (
	"context"

	"github.com/mbd888/riskmesh/internal/apperr"
)

// ErrReentrant is returned when a goroutine that already holds the guard
// tries to enter it again through the guarded context.
var ErrReentrant = apperr.New(apperr.ErrReentrant, "operation already in progress on this call path")

type guardKey struct{ g *Guard }

// Guard is a process-wide, non-reentrant lock. It is a channel-based mutex so
// callers can bail out if their context is cancelled while waiting.
//
// Enter marks the returned context as holding the guard. Any code that is
// handed that context (an outward transfer callback, for instance) and calls
// back into a guarded operation fails immediately with ErrReentrant instead
// of deadlocking or observing half-applied state.
type Guard struct {
	ch chan struct{}
}

// NewGuard creates an unlocked guard.
func NewGuard() *Guard {
	g := &Guard{ch: make(chan struct{}, 1)}
	g.ch <- struct{}{}
	return g
}

// Enter acquires the guard. On success it returns a context carrying the
// hold marker and a release function the caller MUST call exactly once.
func (g *Guard) Enter(ctx context.Context) (context.Context, func(), error) {
	if Held(ctx, g) {
		return ctx, nil, ErrReentrant
	}
	select {
	case <-g.ch:
		released := false
		release := func() {
			if released {
				return
			}
			released = true
			g.ch <- struct{}{}
		}
		return context.WithValue(ctx, guardKey{g}, true), release, nil
	case <-ctx.Done():
		return ctx, nil, ctx.Err()
	}
}

// Held reports whether ctx was derived from a successful Enter on g.
func Held(ctx context.Context, g *Guard) bool {
	held, _ := ctx.Value(guardKey{g}).(bool)
	return held
}
