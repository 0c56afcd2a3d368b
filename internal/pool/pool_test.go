package pool

import (
	"context"
	"sync"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// fataler is the subset of testing.TB (and rapid.T) that newIntPool needs.
type fataler interface {
	Fatalf(format string, args ...any)
}

func newIntPool(t fataler, n int) *Pool[int] {
	if h, ok := t.(interface{ Helper() }); ok {
		h.Helper()
	}
	p, err := New(n, func(i int) (int, error) { return i, nil }, func(int) {})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestAcquireRelease_RoundTrip(t *testing.T) {
	p := newIntPool(t, 2)
	b, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	_ = b.State()
	b.Release()
	b.Release() // second call must be a no-op, not a double-free

	if p.Size() != 2 {
		t.Fatalf("expected pool size 2, got %d", p.Size())
	}
}

func TestAcquire_BlocksUntilRelease(t *testing.T) {
	p := newIntPool(t, 1)
	b1, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		b2, err := p.Acquire(context.Background())
		if err != nil {
			t.Errorf("second Acquire: %v", err)
			return
		}
		b2.Release()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should have blocked while first is held")
	case <-time.After(50 * time.Millisecond):
	}

	b1.Release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire never unblocked after release")
	}
}

func TestAcquire_ContextCancelledBeforeCall(t *testing.T) {
	p := newIntPool(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Acquire(ctx)
	if err == nil {
		t.Fatal("expected error for already-cancelled context")
	}
	if p.Size() != 1 {
		t.Fatalf("expected pool untouched, size=%d", p.Size())
	}
	// Nothing should be borrowed: a fresh Acquire must succeed immediately.
	b, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire after cancellation: %v", err)
	}
	b.Release()
}

func TestAcquire_ContextCancelledWhileWaiting(t *testing.T) {
	p := newIntPool(t, 1)
	b, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = p.Acquire(ctx)
	if err == nil {
		t.Fatal("expected context deadline error while waiting")
	}
	b.Release()
}

func TestInvariant_AcquiredPlusQueueEqualsN(t *testing.T) {
	const n = 4
	p := newIntPool(t, n)

	var wg sync.WaitGroup
	for i := 0; i < n*4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := p.Acquire(context.Background())
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			time.Sleep(time.Millisecond)
			b.Release()
		}()
	}
	wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.available) != n {
		t.Fatalf("expected all %d states returned, got %d available", n, len(p.available))
	}
}

// TestProperty_AcquiredPlusAvailableAlwaysEqualsN checks, across randomly
// generated sequences of acquire/release operations, that the pool's two
// halves — borrowed and available — always sum to N: nothing is ever
// created, destroyed, or lost by the bookkeeping in Acquire/release.
func TestProperty_AcquiredPlusAvailableAlwaysEqualsN(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(t, "n")
		p := newIntPool(t, n)

		var held []*Borrowed[int]
		steps := rapid.IntRange(1, 50).Draw(t, "steps")

		for i := 0; i < steps; i++ {
			// Only offer "release" when something is held, and only offer
			// "acquire" when a state is actually available, so the
			// generated sequence never has to block.
			canRelease := len(held) > 0
			canAcquire := len(p.available) > 0

			var doAcquire bool
			switch {
			case canAcquire && canRelease:
				doAcquire = rapid.Bool().Draw(t, "doAcquire")
			case canAcquire:
				doAcquire = true
			case canRelease:
				doAcquire = false
			default:
				continue
			}

			if doAcquire {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				b, err := p.Acquire(ctx)
				cancel()
				if err != nil {
					t.Fatalf("Acquire: %v", err)
				}
				held = append(held, b)
			} else {
				idx := rapid.IntRange(0, len(held)-1).Draw(t, "releaseIdx")
				held[idx].Release()
				held = append(held[:idx], held[idx+1:]...)
			}

			if got := len(held) + len(p.available); got != n {
				t.Fatalf("acquired(%d) + available(%d) = %d, want %d", len(held), len(p.available), got, n)
			}
		}

		for _, b := range held {
			b.Release()
		}
		if p.Size() != n {
			t.Fatalf("after draining, Size() = %d, want %d", p.Size(), n)
		}
	})
}

func TestNew_FactoryFailureCleansUpPartialStates(t *testing.T) {
	var destroyed []int
	_, err := New(3, func(i int) (int, error) {
		if i == 2 {
			return 0, context.DeadlineExceeded
		}
		return i, nil
	}, func(v int) {
		destroyed = append(destroyed, v)
	})
	if err == nil {
		t.Fatal("expected factory error to propagate")
	}
	if len(destroyed) != 2 {
		t.Fatalf("expected the 2 successfully created states to be destroyed, got %v", destroyed)
	}
}
