// Package ratelimit provides a sliding-window rate limiter shared by all
// concurrent handlers. The redis implementation is the deployment default;
// the in-memory one serves single-instance setups and tests.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Limiter answers whether one more event is allowed for key right now.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisLimiter keeps one sorted set of event timestamps per key.
type RedisLimiter struct {
	rdb    *redis.Client
	window time.Duration
	max    int
}

func NewRedisLimiter(rdb *redis.Client, window time.Duration, max int) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, window: window, max: max}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now()
	redisKey := "ratelimit:" + key
	cutoff := now.Add(-l.window)

	pipe := l.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", fmt.Sprintf("%d", cutoff.UnixNano()))
	count := pipe.ZCard(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}

	if count.Val() >= int64(l.max) {
		return false, nil
	}

	// member must be unique per event or same-nanosecond events collapse
	member := fmt.Sprintf("%d:%s", now.UnixNano(), uuid.NewString())
	add := l.rdb.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: member})
	if err := add.Err(); err != nil {
		return false, fmt.Errorf("rate limit record failed: %w", err)
	}
	l.rdb.Expire(ctx, redisKey, l.window)

	return true, nil
}

// MemoryLimiter is a mutex-guarded sliding window.
type MemoryLimiter struct {
	mu     sync.Mutex
	events map[string][]time.Time
	window time.Duration
	max    int
	now    func() time.Time
}

func NewMemoryLimiter(window time.Duration, max int) *MemoryLimiter {
	return &MemoryLimiter{
		events: make(map[string][]time.Time),
		window: window,
		max:    max,
		now:    time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	kept := l.events[key][:0]
	for _, t := range l.events[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= l.max {
		l.events[key] = kept
		return false, nil
	}

	l.events[key] = append(kept, now)
	return true, nil
}
