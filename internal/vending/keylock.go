package vending

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// keyLocks is a registry of per-key mutual-exclusion locks. Each account
// and each product gets its own lock, so purchases touching disjoint keys
// never serialize against each other.
//
// Acquisition is bounded: a caller that cannot get the lock within the
// wait budget receives ErrBusy instead of queueing forever behind a slow
// store. Deadlock between purchases is ruled out separately by the fixed
// acquisition order (account lock before product lock).
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*semaphore.Weighted
	wait  time.Duration
}

func newKeyLocks(wait time.Duration) *keyLocks {
	return &keyLocks{
		locks: make(map[string]*semaphore.Weighted),
		wait:  wait,
	}
}

// acquire takes the lock for key, waiting at most the configured budget.
// The returned release function must be called exactly once.
func (l *keyLocks) acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	sem, ok := l.locks[key]
	if !ok {
		sem = semaphore.NewWeighted(1)
		l.locks[key] = sem
	}
	l.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, ErrBusy
	}
	return func() { sem.Release(1) }, nil
}

// Lock key prefixes keep account and product keyspaces disjoint.
func accountLockKey(username string) string { return "account:" + username }
func productLockKey(id string) string       { return "product:" + id }
