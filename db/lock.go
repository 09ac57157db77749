package db

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// WriteLock serializes every write transaction in the process. SQLite
// allows one writer at a time; holding this lock before BEGIN keeps
// goroutines from piling up on SQLITE_BUSY.
//
// A single WriteLock is created at startup and handed to every component
// that writes. Unlike sync.Mutex, Acquire honours context cancellation.
type WriteLock struct {
	sem *semaphore.Weighted
}

// NewWriteLock returns an unlocked WriteLock.
func NewWriteLock() *WriteLock {
	return &WriteLock{sem: semaphore.NewWeighted(1)}
}

// Acquire blocks until the lock is held or ctx is done.
func (l *WriteLock) Acquire(ctx context.Context) error {
	return l.sem.Acquire(ctx, 1)
}

// TryAcquire takes the lock without blocking and reports success.
func (l *WriteLock) TryAcquire() bool {
	return l.sem.TryAcquire(1)
}

// Release gives the lock back. Releasing an unheld lock panics.
func (l *WriteLock) Release() {
	l.sem.Release(1)
}
