// Package sessions provides per-session mutual exclusion and session
// identifier helpers. Every conversation-mutating operation must hold
// the session's lock for the full load→invoke→append span so two
// requests racing on one session are fully serialized.
package sessions

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Lock is a cooperative mutex for one session. Acquisition is
// context-aware so a cancelled caller stops waiting, but a held lock is
// only ever released by its holder.
type Lock struct {
	sem *semaphore.Weighted
}

// Acquire blocks until the lock is held or ctx is done. There is no
// acquisition timeout by design: legitimate same-session contention is
// rare and expected to be short.
func (l *Lock) Acquire(ctx context.Context) error {
	return l.sem.Acquire(ctx, 1)
}

// TryAcquire acquires the lock without blocking.
func (l *Lock) TryAcquire() bool {
	return l.sem.TryAcquire(1)
}

// Release releases the lock. Must only be called by the holder.
func (l *Lock) Release() {
	l.sem.Release(1)
}

// LockRegistry hands out one Lock per session id, created lazily.
// Repeated calls with the same id return the identical lock instance,
// including under concurrent first access. Idle locks are never
// reclaimed; the per-entry footprint is small and session ids are
// bounded by real usage.
type LockRegistry struct {
	locks sync.Map // session id → *Lock
}

// NewLockRegistry creates an empty registry.
func NewLockRegistry() *LockRegistry {
	return &LockRegistry{}
}

// Get returns the lock for sessionID, creating it on first access.
func (r *LockRegistry) Get(sessionID string) *Lock {
	if l, ok := r.locks.Load(sessionID); ok {
		return l.(*Lock)
	}
	l, _ := r.locks.LoadOrStore(sessionID, &Lock{sem: semaphore.NewWeighted(1)})
	return l.(*Lock)
}
