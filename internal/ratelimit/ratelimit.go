package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// RateLimiter is an advisory per-key limiter. Callers fail open on error.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Unlimited allows everything. It backs RATE_LIMIT_ENABLED=false.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string) (Decision, error) {
	return Decision{Allowed: true}, nil
}
