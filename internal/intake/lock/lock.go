// Package lock provides per-package advisory locking so only one pipeline
// stage can operate on a given ImportPackage at a time. It generalizes the
// teacher's global semaphore (internal/core/upload_limiter.go,
// UploadLimiter) from a single fixed-capacity slot pool to a map of
// single-slot locks keyed by package id, since intake concurrency must be
// limited per-package rather than process-wide.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrPackageBusy is returned when a package is already locked by another
// in-flight operation and the wait timeout expires.
var ErrPackageBusy = errors.New("import package is busy with another operation, please retry")

// DefaultMaxWait mirrors the teacher's DefaultMaxWaitTime.
const DefaultMaxWait = 30 * time.Second

// PackageLocker hands out one advisory lock per package id at a time.
type PackageLocker struct {
	maxWait time.Duration

	mu    sync.Mutex
	locks map[uuid.UUID]chan struct{}
}

// NewPackageLocker creates a locker whose Acquire calls wait up to maxWait
// for a contended package before returning ErrPackageBusy.
func NewPackageLocker(maxWait time.Duration) *PackageLocker {
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	return &PackageLocker{
		maxWait: maxWait,
		locks:   make(map[uuid.UUID]chan struct{}),
	}
}

// Acquire blocks until the package's slot is free or maxWait elapses. The
// caller MUST call the returned release func exactly once (use defer).
func (l *PackageLocker) Acquire(ctx context.Context, packageID uuid.UUID) (release func(), err error) {
	sem := l.semaphoreFor(packageID)

	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrPackageBusy
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryAcquire attempts to lock the package without blocking.
func (l *PackageLocker) TryAcquire(packageID uuid.UUID) (release func(), ok bool) {
	sem := l.semaphoreFor(packageID)
	select {
	case sem <- struct{}{}:
		return func() { <-sem }, true
	default:
		return nil, false
	}
}

func (l *PackageLocker) semaphoreFor(packageID uuid.UUID) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	sem, ok := l.locks[packageID]
	if !ok {
		sem = make(chan struct{}, 1)
		l.locks[packageID] = sem
	}
	return sem
}

// ActivePackages returns the ids whose lock is currently held. Entries are
// never evicted from the underlying map (the teacher's lifetime-map
// approach), but an id whose lock is free is not returned.
func (l *PackageLocker) ActivePackages() []uuid.UUID {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(l.locks))
	for id, sem := range l.locks {
		if len(sem) > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// WaitForDrain blocks until no package is locked, or ctx is cancelled,
// mirroring the teacher's UploadLimiter.WaitForDrain shutdown hook.
func (l *PackageLocker) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if len(l.ActivePackages()) == 0 {
				return nil
			}
		}
	}
}
