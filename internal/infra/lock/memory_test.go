package lock

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLocker_ExclusiveUntilExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	locker := NewMemoryLocker().WithClock(func() time.Time { return now })
	ctx := context.Background()

	ok, err := locker.Acquire(ctx, Keys.ExportWorker(), time.Minute)
	if err != nil || !ok {
		t.Fatalf("first Acquire returned ok=%v err=%v", ok, err)
	}
	if ok, _ := locker.Acquire(ctx, Keys.ExportWorker(), time.Minute); ok {
		t.Fatalf("expected lock to be exclusive")
	}

	now = now.Add(2 * time.Minute)
	if held, _ := locker.IsHeld(ctx, Keys.ExportWorker()); held {
		t.Fatalf("expected lock to expire")
	}
	if ok, _ := locker.Acquire(ctx, Keys.ExportWorker(), time.Minute); !ok {
		t.Fatalf("expected expired lock to be retaken")
	}

	released, err := locker.Release(ctx, Keys.ExportWorker())
	if err != nil || !released {
		t.Fatalf("Release returned ok=%v err=%v", released, err)
	}
	if extended, _ := locker.Extend(ctx, Keys.ExportWorker(), time.Minute); extended {
		t.Fatalf("expected Extend on released lock to fail")
	}
}

func TestMemoryLocker_CancelledContext(t *testing.T) {
	locker := NewMemoryLocker()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := locker.Acquire(ctx, Keys.RetentionSweep(), time.Minute); err == nil {
		t.Fatalf("expected context error")
	}
}
