package syncutil

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mbd888/riskmesh/internal/apperr"
)

func TestGuard_EnterRelease(t *testing.T) {
	g := NewGuard()
	ctx, release, err := g.Enter(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !Held(ctx, g) {
		t.Fatal("expected guarded context to report held")
	}
	release()
	release() // second call is a no-op

	_, release2, err := g.Enter(context.Background())
	if err != nil {
		t.Fatalf("re-enter after release failed: %v", err)
	}
	release2()
}

func TestGuard_ReentryFailsImmediately(t *testing.T) {
	g := NewGuard()
	ctx, release, err := g.Enter(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer release()

	done := make(chan error, 1)
	go func() {
		_, _, err := g.Enter(ctx)
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, ErrReentrant) || !errors.Is(err, apperr.ErrReentrant) {
			t.Fatalf("expected ErrReentrant, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("nested Enter blocked instead of failing fast")
	}
}

func TestGuard_MutualExclusion(t *testing.T) {
	g := NewGuard()
	var counter int64
	var wg sync.WaitGroup
	const n = 100

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, release, err := g.Enter(context.Background())
			if err != nil {
				t.Errorf("enter failed: %v", err)
				return
			}
			defer release()
			v := atomic.LoadInt64(&counter)
			atomic.StoreInt64(&counter, v+1)
		}()
	}
	wg.Wait()

	if atomic.LoadInt64(&counter) != n {
		t.Fatalf("expected %d, got %d: mutual exclusion violated", n, atomic.LoadInt64(&counter))
	}
}

func TestGuard_ContextCancelledWhileWaiting(t *testing.T) {
	g := NewGuard()
	_, release, err := g.Enter(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, _, err = g.Enter(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestGuard_DistinctGuardsDoNotShareMarker(t *testing.T) {
	a, b := NewGuard(), NewGuard()
	ctx, release, err := a.Enter(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer release()

	if Held(ctx, b) {
		t.Fatal("context held on guard a must not report held on guard b")
	}
	_, releaseB, err := b.Enter(ctx)
	if err != nil {
		t.Fatalf("entering an unrelated guard should succeed: %v", err)
	}
	releaseB()
}
