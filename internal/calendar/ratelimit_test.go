package calendar

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRateLimiter_Defaults(t *testing.T) {
	r := NewRateLimiter(RateLimitConfig{})
	assert.Equal(t, DefaultRateLimit.DefaultRetryAfter, r.defaultRetryAfter)
	assert.Equal(t, DefaultRateLimit.BurstSize, r.limiter.Burst())
}

func TestRateLimiter_Allow(t *testing.T) {
	r := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2})

	assert.True(t, r.Allow())
	assert.True(t, r.Allow())
	assert.False(t, r.Allow(), "burst exhausted")
}

func TestRateLimiter_RecordRateLimitError(t *testing.T) {
	r := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1000, BurstSize: 10})

	r.RecordRateLimitError(time.Hour)
	assert.False(t, r.Allow())

	// a shorter pause never shortens an existing one
	r.RecordRateLimitError(time.Millisecond)
	assert.False(t, r.Allow())
}

func TestRateLimiter_WaitHonoursPause(t *testing.T) {
	r := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1000, BurstSize: 10, DefaultRetryAfter: 20 * time.Millisecond})
	r.RecordRateLimitError(0)

	start := time.Now()
	require.NoError(t, r.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestRateLimiter_WaitCancelled(t *testing.T) {
	r := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1000, BurstSize: 10})
	r.RecordRateLimitError(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := r.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
