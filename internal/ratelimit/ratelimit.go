// Package ratelimit throttles the NetController's scan and DNS-probe
// calls so a flapping connection cannot spin the radio or hammer a DNS
// resolver. Adapted from the original internal/ratelimit package
// (there built for outbound-email pacing) by generalizing the unit from
// "emails" to "operations per second" — the golang.org/x/time/rate
// wrapper and its Allow/Wait/SetRate shape are otherwise unchanged.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter paces a bursty operation to a steady rate.
type RateLimiter struct {
	limiter *rate.Limiter
	mu      sync.RWMutex
}

// NewRateLimiter creates a new rate limiter.
// opsPerSecond: maximum operations per second (0 = unlimited).
// burstSize: maximum burst size.
func NewRateLimiter(opsPerSecond int, burstSize int) *RateLimiter {
	if opsPerSecond <= 0 {
		// Unlimited rate
		return &RateLimiter{
			limiter: rate.NewLimiter(rate.Inf, 0),
		}
	}

	if burstSize <= 0 {
		burstSize = opsPerSecond // Default burst equals rate
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(opsPerSecond), burstSize),
	}
}

// Wait blocks until the rate limiter allows the operation
func (rl *RateLimiter) Wait(ctx context.Context) error {
	rl.mu.RLock()
	limiter := rl.limiter
	rl.mu.RUnlock()
	
	return limiter.Wait(ctx)
}

// Allow returns true if the operation is allowed immediately
func (rl *RateLimiter) Allow() bool {
	rl.mu.RLock()
	limiter := rl.limiter
	rl.mu.RUnlock()
	
	return limiter.Allow()
}

// SetRate updates the rate limiting configuration
func (rl *RateLimiter) SetRate(opsPerSecond int, burstSize int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if opsPerSecond <= 0 {
		rl.limiter.SetLimit(rate.Inf)
		rl.limiter.SetBurst(0)
		return
	}

	if burstSize <= 0 {
		burstSize = opsPerSecond
	}

	rl.limiter.SetLimit(rate.Limit(opsPerSecond))
	rl.limiter.SetBurst(burstSize)
}

// GetCurrentRate returns the current rate limit settings
func (rl *RateLimiter) GetCurrentRate() (limit float64, burst int) {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	
	return float64(rl.limiter.Limit()), rl.limiter.Burst()
}
