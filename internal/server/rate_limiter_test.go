package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterBurst(t *testing.T) {
	limiter := newRateLimiter(RateLimitConfig{Burst: 3, RefillInterval: time.Hour})

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow(), "message %d within burst", i+1)
	}
	assert.False(t, limiter.Allow())
}

func TestRateLimiterRefill(t *testing.T) {
	limiter := newRateLimiter(RateLimitConfig{Burst: 2, RefillInterval: 100 * time.Millisecond})
	start := time.Now()

	assert.True(t, limiter.AllowN(start, 2))
	assert.False(t, limiter.AllowN(start, 1))
	assert.True(t, limiter.AllowN(start.Add(60*time.Millisecond), 1))
}

func TestRateLimiterDefaults(t *testing.T) {
	limiter := newRateLimiter(RateLimitConfig{})
	assert.Equal(t, 1, limiter.Burst())
	assert.InDelta(t, 1.0, float64(limiter.Limit()), 1e-9)
}
