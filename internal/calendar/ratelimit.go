package calendar

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig holds rate limiting configuration for calendar requests.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate limit.
	RequestsPerSecond float64
	// BurstSize is the maximum burst size.
	BurstSize int
	// DefaultRetryAfter is the pause after a 429 without a Retry-After header.
	DefaultRetryAfter time.Duration
}

// DefaultRateLimit stays well below Google's per-user calendar quota.
var DefaultRateLimit = RateLimitConfig{
	RequestsPerSecond: 5.0,
	BurstSize:         10,
	DefaultRetryAfter: 5 * time.Second,
}

// RateLimiter is a token bucket that also honours 429 backoff periods.
type RateLimiter struct {
	mu                sync.Mutex
	limiter           *rate.Limiter
	retryAt           time.Time
	defaultRetryAfter time.Duration
}

// NewRateLimiter creates a rate limiter from cfg. Zero fields take DefaultRateLimit values.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRateLimit.RequestsPerSecond
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = DefaultRateLimit.BurstSize
	}
	if cfg.DefaultRetryAfter <= 0 {
		cfg.DefaultRetryAfter = DefaultRateLimit.DefaultRetryAfter
	}

	return &RateLimiter{
		limiter:           rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BurstSize),
		defaultRetryAfter: cfg.DefaultRetryAfter,
	}
}

// Wait blocks until a request can be made without exceeding the rate limit
// or any backoff period set by RecordRateLimitError.
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	retryAt := r.retryAt
	r.mu.Unlock()

	if d := time.Until(retryAt); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	return r.limiter.Wait(ctx)
}

// RecordRateLimitError pauses all requests for retryAfter, or the default
// pause when retryAfter is not positive.
func (r *RateLimiter) RecordRateLimitError(retryAfter time.Duration) {
	if retryAfter <= 0 {
		retryAfter = r.defaultRetryAfter
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if at := time.Now().Add(retryAfter); at.After(r.retryAt) {
		r.retryAt = at
	}
}

// Allow reports whether a request can be made immediately.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	retryAt := r.retryAt
	r.mu.Unlock()

	if time.Now().Before(retryAt) {
		return false
	}
	return r.limiter.Allow()
}
