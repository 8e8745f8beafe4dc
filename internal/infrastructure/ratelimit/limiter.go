package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Result contains the rate limit check result.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RateLimiter is the interface for rate limiters.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int) (*Result, error)
}

// Limiter implements rate limiting using a Redis sliding window over
// sorted sets.
type Limiter struct {
	client *redis.Client
	window time.Duration
}

func NewLimiter(client *redis.Client) *Limiter {
	return &Limiter{
		client: client,
		window: time.Minute,
	}
}

// Allow checks if a request is allowed under the rate limit.
func (l *Limiter) Allow(ctx context.Context, key string, limit int) (*Result, error) {
	now := time.Now()
	windowStart := now.Add(-l.window)

	pipe := l.client.Pipeline()

	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart.UnixNano()))

	countCmd := pipe.ZCard(ctx, key)

	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})

	pipe.Expire(ctx, key, l.window+time.Second)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("redis pipeline failed: %w", err)
	}

	count := countCmd.Val()
	remaining := limit - int(count) - 1
	if remaining < 0 {
		remaining = 0
	}

	result := &Result{
		Allowed:   count < int64(limit),
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   now.Add(l.window),
	}

	if !result.Allowed {
		// the rejected request's member must not consume window capacity
		l.client.ZPopMin(ctx, key)
		result.Remaining = 0
	}

	return result, nil
}

// InMemoryLimiter provides a mutex-guarded in-memory sliding window for
// single-node deployments or when Redis is not available.
type InMemoryLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	window   time.Duration
}

func NewInMemoryLimiter() *InMemoryLimiter {
	return &InMemoryLimiter{
		requests: make(map[string][]time.Time),
		window:   time.Minute,
	}
}

// Allow checks if a request is allowed under the rate limit.
func (l *InMemoryLimiter) Allow(ctx context.Context, key string, limit int) (*Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-l.window)

	timestamps := l.requests[key]
	valid := timestamps[:0]
	for _, ts := range timestamps {
		if ts.After(windowStart) {
			valid = append(valid, ts)
		}
	}

	count := len(valid)
	allowed := count < limit

	if allowed {
		valid = append(valid, now)
	}
	l.requests[key] = valid

	remaining := limit - count - 1
	if remaining < 0 || !allowed {
		remaining = 0
	}

	return &Result{
		Allowed:   allowed,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   now.Add(l.window),
	}, nil
}
