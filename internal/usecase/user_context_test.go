package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/bus"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/config"
)

type countingProfiles struct {
	calls   atomic.Int32
	gate    chan struct{}
	profile domain.UserProfileSnapshot
	err     error
}

func (s *countingProfiles) FetchProfile(ctx context.Context, userID, _ string) (domain.UserProfileSnapshot, error) {
	s.calls.Add(1)
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return domain.UserProfileSnapshot{}, ctx.Err()
		}
	}
	if s.err != nil {
		return domain.UserProfileSnapshot{}, s.err
	}
	p := s.profile
	p.ID = userID
	return p, nil
}

type countingWardrobe struct {
	calls atomic.Int32
	items []domain.WardrobeSummary
}

func (s *countingWardrobe) FetchWardrobe(context.Context, string, string) ([]domain.WardrobeSummary, error) {
	s.calls.Add(1)
	return s.items, nil
}

func TestUserContextFetcherCachesAndInvalidates(t *testing.T) {
	profiles := &countingProfiles{profile: domain.UserProfileSnapshot{Username: "priya", StylePreference: "minimal"}}
	wardrobe := &countingWardrobe{items: []domain.WardrobeSummary{{ID: "item-1", Category: "tops"}}}
	events := bus.NewLocal(nil)

	f := NewUserContextFetcher(config.ServiceStyling, config.UserContextSettings{TTL: time.Minute}, profiles, wardrobe, nil)
	f.Subscribe(events)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		p, err := f.FetchProfile(ctx, "user-1", "tok")
		if err != nil {
			t.Fatalf("FetchProfile returned error: %v", err)
		}
		if p.StylePreference != "minimal" {
			t.Fatalf("unexpected profile: %+v", p)
		}
		if _, err := f.FetchWardrobe(ctx, "user-1", "tok"); err != nil {
			t.Fatalf("FetchWardrobe returned error: %v", err)
		}
	}
	if profiles.calls.Load() != 1 || wardrobe.calls.Load() != 1 {
		t.Fatalf("expected one upstream call each, got profile=%d wardrobe=%d", profiles.calls.Load(), wardrobe.calls.Load())
	}

	// A wardrobe invalidation leaves the cached profile alone.
	if err := events.PublishInvalidation(ctx, domain.Invalidation{UserID: "user-1", Artifact: domain.ArtifactWardrobe}); err != nil {
		t.Fatalf("PublishInvalidation returned error: %v", err)
	}
	if _, err := f.FetchWardrobe(ctx, "user-1", "tok"); err != nil {
		t.Fatalf("FetchWardrobe returned error: %v", err)
	}
	if _, err := f.FetchProfile(ctx, "user-1", "tok"); err != nil {
		t.Fatalf("FetchProfile returned error: %v", err)
	}
	if profiles.calls.Load() != 1 || wardrobe.calls.Load() != 2 {
		t.Fatalf("expected only the wardrobe to be refetched, got profile=%d wardrobe=%d", profiles.calls.Load(), wardrobe.calls.Load())
	}

	// Other users' entries are untouched by this user's invalidation.
	if _, err := f.FetchProfile(ctx, "user-2", "tok"); err != nil {
		t.Fatalf("FetchProfile returned error: %v", err)
	}
	f.Invalidate(ctx, domain.Invalidation{UserID: "user-1", Artifact: domain.ArtifactProfile})
	if _, err := f.FetchProfile(ctx, "user-2", "tok"); err != nil {
		t.Fatalf("FetchProfile returned error: %v", err)
	}
	if got := profiles.calls.Load(); got != 2 {
		t.Fatalf("expected user-2 to be fetched once, got %d total profile calls", got)
	}
}

func TestUserContextFetcherCoalescesConcurrentMisses(t *testing.T) {
	profiles := &countingProfiles{gate: make(chan struct{})}
	f := NewUserContextFetcher(config.ServiceSocial, config.UserContextSettings{}, profiles, nil, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.FetchProfile(context.Background(), "user-1", "tok")
			errs <- err
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(profiles.gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("FetchProfile returned error: %v", err)
		}
	}
	if got := profiles.calls.Load(); got != 1 {
		t.Fatalf("expected one upstream call, got %d", got)
	}
}

func TestUserContextFetcherDoesNotCacheFailures(t *testing.T) {
	profiles := &countingProfiles{err: domain.NewError(domain.KindDependencyTimeout, "peer_timeout", "identity timed out")}
	f := NewUserContextFetcher(config.ServiceStyling, config.UserContextSettings{}, profiles, nil, nil)
	ctx := context.Background()

	if _, err := f.FetchProfile(ctx, "user-1", "tok"); !errors.Is(err, domain.ErrDependencyTimeout) {
		t.Fatalf("expected dependency timeout, got %v", err)
	}
	profiles.err = nil
	if _, err := f.FetchProfile(ctx, "user-1", "tok"); err != nil {
		t.Fatalf("FetchProfile after recovery returned error: %v", err)
	}
	if got := profiles.calls.Load(); got != 2 {
		t.Fatalf("expected the failure to be retried upstream, got %d calls", got)
	}
	if _, err := f.FetchWardrobe(ctx, "user-1", "tok"); err == nil {
		t.Fatalf("expected an error when no wardrobe source is configured")
	}
}
