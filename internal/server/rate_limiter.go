// Package server throttles inbound chat messages per connection with a token
// bucket so one noisy client cannot flood its room.
package server

import (
	"time"

	"golang.org/x/time/rate"
)

// newRateLimiter allows burst messages at once, refilled at burst per interval.
func newRateLimiter(cfg RateLimitConfig) *rate.Limiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	interval := cfg.RefillInterval
	if interval <= 0 {
		interval = time.Second
	}

	return rate.NewLimiter(rate.Limit(float64(burst)/interval.Seconds()), burst)
}
