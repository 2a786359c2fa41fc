// Package lock serializes manifest store mutations across processes with
// a single advisory lock file.
package lock

import (
	"context"
	"time"

	"github.com/gofrs/flock"

	"github.com/fcanata00/newpkg/internal/pkgerrors"
)

// Lock wraps a single advisory lock file.
type Lock struct {
	fl *flock.Flock
}

// New returns a Lock bound to path. The file is created on first Acquire
// if missing; it is never removed.
func New(path string) *Lock {
	return &Lock{fl: flock.New(path)}
}

// Acquire blocks, retrying every 100ms, until the lock is held or ctx is
// done.
func (l *Lock) Acquire(ctx context.Context) error {
	locked, err := l.fl.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return pkgerrors.Wrap("lock.acquire", pkgerrors.KindState, l.fl.Path(), err)
	}
	if !locked {
		return pkgerrors.New("lock.acquire", pkgerrors.KindState)
	}
	return nil
}

// TryAcquire attempts to acquire the lock once, returning ok=false instead
// of blocking if another process already holds it.
func (l *Lock) TryAcquire() (bool, error) {
	locked, err := l.fl.TryLock()
	if err != nil {
		return false, pkgerrors.Wrap("lock.try_acquire", pkgerrors.KindState, l.fl.Path(), err)
	}
	return locked, nil
}

// Release drops the lock. Safe to call even if it is not currently held.
func (l *Lock) Release() error {
	if !l.fl.Locked() {
		return nil
	}
	if err := l.fl.Unlock(); err != nil {
		return pkgerrors.Wrap("lock.release", pkgerrors.KindState, l.fl.Path(), err)
	}
	return nil
}

// WithLock acquires the lock, runs fn, and releases it regardless of fn's
// outcome.
func WithLock(ctx context.Context, path string, fn func() error) error {
	l := New(path)
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()
	return fn()
}
