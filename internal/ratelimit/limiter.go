package ratelimit

import (
	"context"
	"time"
)

const (
	// DefaultWindow is the trailing period codes are counted over.
	DefaultWindow = time.Hour
	// DefaultMax is how many codes one phone may receive per window.
	DefaultMax = 5
)

// Decision is the outcome of an Allow call. Ticket identifies the recorded
// slot so it can be handed back with Release.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	Ticket     string
}

// Limiter bounds code issuance per phone over a sliding window. Allow checks
// and records atomically for a given phone.
type Limiter interface {
	Allow(ctx context.Context, phone string) (Decision, error)
	Release(ctx context.Context, phone, ticket string) error
}

func normalizeLimits(max int, window time.Duration) (int, time.Duration) {
	if max <= 0 {
		max = DefaultMax
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return max, window
}
