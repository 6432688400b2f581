package reconciler

import (
	"sync"
	"sync/atomic"
)

// syncLock provides non-blocking lock semantics using atomic operations.
type syncLock struct {
	state atomic.Int32 // 0 = unlocked, 1 = locked
}

// TryAcquire attempts to acquire the lock without blocking.
func (l *syncLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release releases the lock. Must only be called by the goroutine that
// successfully acquired it.
func (l *syncLock) Release() {
	l.state.Store(0)
}

// lockRegistry hands out one lock per project so reconciliation serializes
// per collection while different collections run concurrently.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[int64]*syncLock
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: make(map[int64]*syncLock)}
}

func (r *lockRegistry) lockFor(projectID int64) *syncLock {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[projectID]
	if !ok {
		lock = &syncLock{}
		r.locks[projectID] = lock
	}
	return lock
}
