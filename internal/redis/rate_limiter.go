package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RateLimiter is a sliding-window limiter backed by one sorted set per client.
type RateLimiter struct {
	client      *goredis.Client
	maxRequests int
	window      time.Duration
}

func NewRateLimiter(client *goredis.Client, maxRequests, windowSeconds int) *RateLimiter {
	return &RateLimiter{
		client:      client,
		maxRequests: maxRequests,
		window:      time.Duration(windowSeconds) * time.Second,
	}
}

// Allow records one request for clientID and reports whether it fits in the
// window, plus how many requests remain.
func (r *RateLimiter) Allow(ctx context.Context, clientID string) (bool, int, error) {
	key := fmt.Sprintf("ratelimit:%s", clientID)
	now := time.Now()
	windowStart := now.Add(-r.window)

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixMilli(), 10))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, goredis.Z{Score: float64(now.UnixMilli()), Member: now.UnixNano()})
	pipe.Expire(ctx, key, r.window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("rate limiter pipeline: %w", err)
	}

	used := int(countCmd.Val())
	remaining := r.maxRequests - used - 1
	if remaining < 0 {
		remaining = 0
	}
	return used < r.maxRequests, remaining, nil
}
