package por

import (
	"context"
	"sync"
)

// submissionLock is a non-reentrant mutual-exclusion gate with FIFO handoff.
// It serializes the fetch+dedup-check+initial-upsert phase of submissions:
// the duplicate-key check reads the store and then writes to it, and that
// sequence must not interleave between two submissions.
//
// Waiters are queued in arrival order; Release hands the lock to the oldest
// waiter directly instead of letting all waiters race.
type submissionLock struct {
	mu      sync.Mutex
	held    bool
	waiters []chan struct{}
}

// Acquire blocks until the lock is held by the caller or ctx is done.
func (l *submissionLock) Acquire(ctx context.Context) error {
	l.mu.Lock()
	if !l.held {
		l.held = true
		l.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	l.waiters = append(l.waiters, ch)
	l.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		for i, w := range l.waiters {
			if w == ch {
				l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
				l.mu.Unlock()
				return ctx.Err()
			}
		}
		l.mu.Unlock()
		// Not in the queue anymore: Release already handed us the lock.
		// Give it back so the handoff chain continues.
		<-ch
		l.Release()
		return ctx.Err()
	}
}

// Release hands the lock to the next waiter if any, else marks it free.
// Callers must pair every successful Acquire with exactly one Release,
// on every exit path.
func (l *submissionLock) Release() {
	l.mu.Lock()
	if len(l.waiters) > 0 {
		ch := l.waiters[0]
		l.waiters = l.waiters[1:]
		l.mu.Unlock()
		close(ch)
		return
	}
	l.held = false
	l.mu.Unlock()
}
