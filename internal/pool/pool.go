// Package pool implements the bounded decoder-state pool: the only point
// at which an inbound request blocks on
// server-internal state. Free states are handed out from a FIFO queue, and
// every acquire is meant to be paired with exactly one release via the
// scoped [Borrowed] guard this package returns.
//
// Pool is generic over the state type so it has no dependency on any
// particular acoustic-model collaborator; pkg/model's decoder states are the
// only intended instantiation, but the queue/condvar mechanics don't care.
package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

// Pool is a fixed-size pool of pre-allocated states of type T, kept in a
// FIFO queue. It is safe for concurrent use.
type Pool[T any] struct {
	mu   sync.Mutex
	cond *sync.Cond

	all       []T
	available []T

	// waiters counts goroutines blocked in Acquire, used only to decide
	// whether a Release needs to Signal; it never gates correctness.
	waiters int

	// borrowSeq and borrowedAt track when each outstanding Borrowed started,
	// for OldestBorrowAge diagnostics; kept out of the mutex-guarded fields
	// above since borrow bookkeeping doesn't need to serialize with queue
	// mechanics.
	borrowSeq  atomic.Uint64
	borrowedAt *xsync.Map[uint64, time.Time]
}

// New creates a Pool holding exactly n states, each produced by factory. If
// factory fails partway through, states already created are passed to
// destroy before New returns the error.
func New[T any](n int, factory func(i int) (T, error), destroy func(T)) (*Pool[T], error) {
	if n <= 0 {
		return nil, fmt.Errorf("pool: size must be positive, got %d", n)
	}

	p := &Pool[T]{
		all:        make([]T, 0, n),
		available:  make([]T, 0, n),
		borrowedAt: xsync.NewMap[uint64, time.Time](),
	}
	p.cond = sync.NewCond(&p.mu)

	for i := 0; i < n; i++ {
		state, err := factory(i)
		if err != nil {
			for _, s := range p.all {
				destroy(s)
			}
			return nil, fmt.Errorf("pool: init state %d: %w", i, err)
		}
		p.all = append(p.all, state)
		p.available = append(p.available, state)
	}
	return p, nil
}

// Size returns N, the fixed number of states the pool manages.
func (p *Pool[T]) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.all)
}

// Borrowed is a scoped guard around one acquired state. Callers must call
// Release exactly once, typically via defer, on every exit path —
// including error returns and panics that unwind past the defer.
type Borrowed[T any] struct {
	pool  *Pool[T]
	state T
	id    uint64
	done  bool
}

// State returns the borrowed state.
func (b *Borrowed[T]) State() T { return b.state }

// Release returns the state to the pool, waking the oldest blocked waiter
// if any. Calling Release more than once is a no-op.
func (b *Borrowed[T]) Release() {
	if b.done {
		return
	}
	b.done = true
	b.pool.borrowedAt.Delete(b.id)
	b.pool.release(b.state)
}

// Acquire blocks until a state is available or ctx is done, whichever comes
// first. Release signals one blocked waiter through [sync.Cond]. Service is
// not strictly FIFO: a caller that arrives while a state is free takes it
// without queueing, even ahead of a waiter that has just been woken, and a
// cancellation broadcast wakes every waiter so they re-queue in whatever
// order they re-acquire the mutex.
//
// If ctx is cancelled while waiting, Acquire returns ctx.Err() and does not
// consume a state.
func (p *Pool[T]) Acquire(ctx context.Context) (*Borrowed[T], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// A goroutine races ctx.Done() against the condvar wake-up: Wait has no
	// native context support, so cancellation is delivered by a watcher that
	// broadcasts to force every blocked waiter to re-check ctx.Err().
	done := make(chan struct{})
	defer close(done)
	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				p.mu.Lock()
				p.cond.Broadcast()
				p.mu.Unlock()
			case <-done:
			}
		}()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.available) == 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p.waiters++
		p.cond.Wait()
		p.waiters--
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	state := p.available[0]
	p.available = p.available[1:]

	id := p.borrowSeq.Add(1)
	p.borrowedAt.Store(id, time.Now())
	return &Borrowed[T]{pool: p, state: state, id: id}, nil
}

func (p *Pool[T]) release(state T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.available = append(p.available, state)
	if p.waiters > 0 {
		p.cond.Signal()
	}
}

// OldestBorrowAge returns how long the longest-held outstanding Borrowed has
// been out of the pool, or 0 if nothing is currently borrowed. Intended for
// stuck-decoder diagnostics (a request wedged well past a typical transcode
// duration shows up here before it shows up as a pool-exhaustion symptom).
func (p *Pool[T]) OldestBorrowAge() time.Duration {
	var oldest time.Time
	p.borrowedAt.Range(func(_ uint64, at time.Time) bool {
		if oldest.IsZero() || at.Before(oldest) {
			oldest = at
		}
		return true
	})
	if oldest.IsZero() {
		return 0
	}
	return time.Since(oldest)
}
