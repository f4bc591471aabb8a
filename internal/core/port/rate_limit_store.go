package port

import (
	"context"
	"time"
)

// RateLimitStore keeps timestamped attempts per key for sliding-window
// limits. Keys are scoped by the caller, e.g. "login:ada@x.io" or
// "auth_register_ip:203.0.113.9".
type RateLimitStore interface {
	// TrimWindow drops attempts older than reference-window.
	TrimWindow(ctx context.Context, key string, window time.Duration, reference time.Time) error
	CountAttempts(ctx context.Context, key string, window time.Duration, reference time.Time) (int, error)
	RecordAttempt(ctx context.Context, key string, at time.Time) error
	// OldestAttempt reports the earliest attempt still inside the window; the
	// limit resets when it ages out.
	OldestAttempt(ctx context.Context, key string, window time.Duration, reference time.Time) (time.Time, bool, error)
}
