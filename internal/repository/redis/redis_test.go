package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*red.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := red.NewClient(&red.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	return client, server
}

func TestRateLimitRepository_SlidingWindow(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{KeyPrefix: "login", TTL: time.Hour})

	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)
	window := time.Minute

	for _, offset := range []time.Duration{0, 30 * time.Second, 40 * time.Second, 70 * time.Second} {
		if err := repo.RecordAttempt(ctx, "ada", base.Add(offset)); err != nil {
			t.Fatalf("RecordAttempt returned error: %v", err)
		}
	}

	ref := base.Add(75 * time.Second)
	count, err := repo.CountAttempts(ctx, "ada", window, ref)
	if err != nil {
		t.Fatalf("CountAttempts returned error: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 attempts in window, got %d", count)
	}

	if err := repo.TrimWindow(ctx, "ada", window, ref); err != nil {
		t.Fatalf("TrimWindow returned error: %v", err)
	}
	members, err := client.ZCard(ctx, "login:ada").Result()
	if err != nil {
		t.Fatalf("ZCard returned error: %v", err)
	}
	if members != 3 {
		t.Fatalf("expected 3 members after trim, got %d", members)
	}

	oldest, ok, err := repo.OldestAttempt(ctx, "ada", window, ref)
	if err != nil || !ok {
		t.Fatalf("OldestAttempt returned ok=%v err=%v", ok, err)
	}
	if diff := oldest.Sub(base.Add(30 * time.Second)); diff < -time.Microsecond || diff > time.Microsecond {
		t.Fatalf("expected oldest attempt at +30s, got %v", oldest)
	}

	if ttl := server.TTL("login:ada"); ttl <= 0 || ttl > time.Hour {
		t.Fatalf("expected ttl within (0, 1h], got %v", ttl)
	}
}

func TestRateLimitRepository_InvalidWindow(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{})

	if _, err := repo.CountAttempts(context.Background(), "ada", 0, time.Now()); err == nil {
		t.Fatalf("expected error for zero window")
	}
}

func TestLockRepository_AcquireRelease(t *testing.T) {
	client, server := newTestRedis(t)
	first := NewLockRepository(client, "lock")
	second := NewLockRepository(client, "lock")
	ctx := context.Background()

	ok, err := first.Acquire(ctx, "export-worker", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first Acquire returned ok=%v err=%v", ok, err)
	}

	ok, err = second.Acquire(ctx, "export-worker", time.Minute)
	if err != nil {
		t.Fatalf("second Acquire returned error: %v", err)
	}
	if ok {
		t.Fatalf("expected second replica to be refused")
	}

	released, err := second.Release(ctx, "export-worker")
	if err != nil {
		t.Fatalf("Release by non-owner returned error: %v", err)
	}
	if released {
		t.Fatalf("non-owner must not release the lock")
	}

	held, err := first.IsHeld(ctx, "export-worker")
	if err != nil || !held {
		t.Fatalf("expected lock to still be held, held=%v err=%v", held, err)
	}

	extended, err := first.Extend(ctx, "export-worker", 5*time.Minute)
	if err != nil || !extended {
		t.Fatalf("Extend returned ok=%v err=%v", extended, err)
	}
	if ttl := server.TTL("lock:export-worker"); ttl <= time.Minute {
		t.Fatalf("expected ttl extended beyond 1m, got %v", ttl)
	}

	released, err = first.Release(ctx, "export-worker")
	if err != nil || !released {
		t.Fatalf("owner Release returned ok=%v err=%v", released, err)
	}

	ok, err = second.Acquire(ctx, "export-worker", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected lock to be free after release, ok=%v err=%v", ok, err)
	}
}

func TestLockRepository_ExpiredLockCanBeRetaken(t *testing.T) {
	client, server := newTestRedis(t)
	first := NewLockRepository(client, "lock")
	second := NewLockRepository(client, "lock")
	ctx := context.Background()

	if ok, err := first.Acquire(ctx, "retention", time.Second); err != nil || !ok {
		t.Fatalf("Acquire returned ok=%v err=%v", ok, err)
	}
	server.FastForward(2 * time.Second)

	ok, err := second.AcquireWithRetry(ctx, "retention", time.Minute, 1, time.Millisecond)
	if err != nil || !ok {
		t.Fatalf("expected expired lock to be retaken, ok=%v err=%v", ok, err)
	}

	released, err := first.Release(ctx, "retention")
	if err != nil {
		t.Fatalf("stale Release returned error: %v", err)
	}
	if released {
		t.Fatalf("stale owner must not release a lock retaken by another replica")
	}
}
