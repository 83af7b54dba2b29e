package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_BurstThenRefill(t *testing.T) {
	limiter := newRateLimiter(RateLimitConfig{Burst: 3, RefillInterval: time.Second})
	start := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.AllowN(start, 1), "message %d within burst", i)
	}
	assert.False(t, limiter.AllowN(start, 1), "burst exhausted")

	assert.True(t, limiter.AllowN(start.Add(time.Second), 3), "a full interval refills the burst")
	assert.False(t, limiter.AllowN(start.Add(time.Second), 1))
}

func TestRateLimiter_InvalidConfigStillLimits(t *testing.T) {
	limiter := newRateLimiter(RateLimitConfig{})
	start := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 1, limiter.Burst())
	assert.True(t, limiter.AllowN(start, 1))
	assert.False(t, limiter.AllowN(start, 1))
}
