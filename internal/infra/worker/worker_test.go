package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tanvi-vanity/vanity-agent/internal/infra/lock"
)

func TestRunner_RunOnceLogsReport(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	runner := NewRunner(Config{Name: "retention", Interval: time.Hour}, func(context.Context) (Report, error) {
		return Report{"audit_deleted": 4, "access_deleted": 2}, nil
	}, lock.NewMemoryLocker(), nil, zap.New(core))

	report, ran, err := runner.RunOnce(context.Background())
	if err != nil || !ran {
		t.Fatalf("RunOnce returned ran=%v err=%v", ran, err)
	}
	if report["audit_deleted"] != 4 {
		t.Fatalf("unexpected report %v", report)
	}

	entries := logs.FilterMessage("background job completed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one completion log line, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["job"] != "retention" || fields["audit_deleted"] != int64(4) {
		t.Fatalf("unexpected log fields %v", fields)
	}
}

func TestRunner_SkipsWhenLockHeld(t *testing.T) {
	locker := lock.NewMemoryLocker()
	ctx := context.Background()
	if ok, _ := locker.Acquire(ctx, lock.Keys.CounterReconcile(), time.Hour); !ok {
		t.Fatalf("failed to pre-acquire lock")
	}

	calls := 0
	runner := NewRunner(Config{Name: "reconcile", Interval: time.Hour, LockKey: lock.Keys.CounterReconcile()}, func(context.Context) (Report, error) {
		calls++
		return nil, nil
	}, locker, nil, zap.NewNop())

	_, ran, err := runner.RunOnce(ctx)
	if !errors.Is(err, ErrLockUnavailable) || ran {
		t.Fatalf("expected skipped run, ran=%v err=%v", ran, err)
	}
	if calls != 0 {
		t.Fatalf("task must not run without the lock")
	}
}

func TestRunner_ReleasesLockAfterFailure(t *testing.T) {
	locker := lock.NewMemoryLocker()
	runner := NewRunner(Config{Name: "export", Interval: time.Minute}, func(context.Context) (Report, error) {
		return Report{"claimed": 1}, errors.New("boom")
	}, locker, nil, zap.NewNop())

	if _, ran, err := runner.RunOnce(context.Background()); err == nil || !ran {
		t.Fatalf("expected failed run, ran=%v err=%v", ran, err)
	}
	if held, _ := locker.IsHeld(context.Background(), lock.Keys.Job("export")); held {
		t.Fatalf("lock must be released after a failed run")
	}
}

func TestRunner_StartRunsImmediatelyAndStops(t *testing.T) {
	var calls atomic.Int32
	ran := make(chan struct{}, 1)
	runner := NewRunner(Config{Name: "normalize", Interval: time.Hour}, func(context.Context) (Report, error) {
		calls.Add(1)
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil, nil
	}, nil, nil, zap.NewNop())

	runner.Start(context.Background())
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected an immediate first run")
	}
	runner.Stop()
	runner.Stop()

	if got := calls.Load(); got != 1 {
		t.Fatalf("expected exactly one run before the first tick, got %d", got)
	}
}
