package rediscache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window counter per key.
type RateLimiter struct {
	client redis.UniversalClient
	limit  int
	window time.Duration
	prefix string
}

func NewRateLimiter(client redis.UniversalClient, limit int, window time.Duration, prefix string) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	if prefix == "" {
		prefix = "guestshop"
	}
	return &RateLimiter{client: client, limit: limit, window: window, prefix: prefix}
}

// Allow counts one hit for key and reports whether it is within the limit,
// along with the time left in the current window.
func (l *RateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	k := l.prefix + ":rate_limit:" + key

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := l.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.ExpireNX(ctx, k, l.window)
		ttl = p.PTTL(ctx, k)
		return nil
	})
	if err != nil {
		return true, 0, fmt.Errorf("rate limiter: %w", err)
	}
	retry := ttl.Val()
	if retry < 0 {
		retry = l.window
	}
	return incr.Val() <= int64(l.limit), retry, nil
}
