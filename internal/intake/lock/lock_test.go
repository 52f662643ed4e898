package lock

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestAcquireReleaseAllowsReentry(t *testing.T) {
	l := NewPackageLocker(time.Second)
	id := uuid.New()

	release, err := l.Acquire(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	release()

	release2, err := l.Acquire(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error on second acquire: %v", err)
	}
	release2()
}

func TestTryAcquireFailsWhenHeld(t *testing.T) {
	l := NewPackageLocker(time.Second)
	id := uuid.New()

	release, ok := l.TryAcquire(id)
	if !ok {
		t.Fatal("expected first TryAcquire to succeed")
	}
	defer release()

	if _, ok := l.TryAcquire(id); ok {
		t.Fatal("expected second TryAcquire on same package to fail")
	}
}

func TestDifferentPackagesDoNotContend(t *testing.T) {
	l := NewPackageLocker(time.Second)
	a, b := uuid.New(), uuid.New()

	releaseA, ok := l.TryAcquire(a)
	if !ok {
		t.Fatal("expected acquire of package a to succeed")
	}
	defer releaseA()

	releaseB, ok := l.TryAcquire(b)
	if !ok {
		t.Fatal("expected acquire of unrelated package b to succeed")
	}
	defer releaseB()
}

func TestAcquireTimesOutWithBusyError(t *testing.T) {
	l := NewPackageLocker(20 * time.Millisecond)
	id := uuid.New()

	release, ok := l.TryAcquire(id)
	if !ok {
		t.Fatal("expected initial acquire to succeed")
	}
	defer release()

	_, err := l.Acquire(context.Background(), id)
	if err != ErrPackageBusy {
		t.Fatalf("expected ErrPackageBusy, got %v", err)
	}
}

func TestWaitForDrainReturnsWhenEmpty(t *testing.T) {
	l := NewPackageLocker(time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.WaitForDrain(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
