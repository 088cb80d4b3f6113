// Package ratelimit implements the requests-per-minute limit applied to the
// AI routes.
//
// Two implementations share the Limiter interface: RPMLimiter keeps a Redis
// sliding window so every replica sees the same budget, and LocalLimiter is an
// in-process token bucket used when Redis is not configured.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter decides whether the current request fits in the budget.
type Limiter interface {
	Allow(ctx context.Context) (bool, error)
}

// slidingWindowScript is an atomic sliding window over a sorted set.
// KEYS[1] = Redis key
// ARGV[1] = current unix timestamp (nanoseconds)
// ARGV[2] = window size in nanoseconds
// ARGV[3] = limit (max requests per window)
// Returns: 1 if allowed, 0 if rate limited.
var slidingWindowScript = redis.NewScript(`
		local key    = KEYS[1]
		local now    = tonumber(ARGV[1])
		local window = tonumber(ARGV[2])
		local limit  = tonumber(ARGV[3])

		redis.call('ZREMRANGEBYSCORE', key, 0, now - window)

		local count = redis.call('ZCARD', key)
		if count >= limit then
			return 0
		end

		local member = tostring(now) .. tostring(math.random(1, 1000000))
		redis.call('ZADD', key, now, member)
		redis.call('PEXPIRE', key, math.ceil(window / 1000000))  -- window is in ns; PEXPIRE wants ms
		return 1
`)

const (
	defaultKey    = "design:ratelimit:ai:rpm"
	defaultWindow = time.Minute
)

// RPMLimiter checks a global requests-per-minute budget using a Redis
// sliding window shared by every replica.
type RPMLimiter struct {
	rdb    *redis.Client
	limit  int
	key    string
	window time.Duration
}

// RPMOption configures an RPMLimiter.
type RPMOption func(*RPMLimiter)

// WithKey scopes the window to a different Redis key.
func WithKey(key string) RPMOption {
	return func(r *RPMLimiter) { r.key = key }
}

// WithWindow replaces the one minute window. Used by tests.
func WithWindow(d time.Duration) RPMOption {
	return func(r *RPMLimiter) { r.window = d }
}

// NewRPMLimiter creates a limiter; limit must be > 0.
func NewRPMLimiter(rdb *redis.Client, limit int, opts ...RPMOption) *RPMLimiter {
	r := &RPMLimiter{rdb: rdb, limit: limit, key: defaultKey, window: defaultWindow}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Allow reports whether the current request is within the budget. A Redis
// failure returns true together with the error; callers fail open.
func (r *RPMLimiter) Allow(ctx context.Context) (bool, error) {
	result, err := slidingWindowScript.Run(ctx, r.rdb,
		[]string{r.key},
		time.Now().UnixNano(), r.window.Nanoseconds(), r.limit,
	).Int()
	if err != nil {
		return true, fmt.Errorf("ratelimit: %w", err)
	}

	return result == 1, nil
}
