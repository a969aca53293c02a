package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rmaselli/smartFleet-app-sub002/internal/domain"
)

const loginKeyPrefix = "hojas:login-throttle:"

// RedisLimiter shares login throttling state between hojasd replicas. Each
// window is its own counter key, aligned to the clock, and expires when the
// window closes.
type RedisLimiter struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisLimiter(addr, password string, db int, now func() time.Time) (*RedisLimiter, error) {
	if addr == "" {
		return nil, errors.New("REDIS_ADDR is required for the redis limiter")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisLimiterFromClient(client, now), nil
}

func NewRedisLimiterFromClient(client *redis.Client, now func() time.Time) *RedisLimiter {
	if now == nil {
		now = time.Now
	}
	return &RedisLimiter{client: client, now: now}
}

func (r *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (domain.RateLimitDecision, error) {
	if limit <= 0 {
		return domain.RateLimitDecision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}
	start, end := windowBounds(r.now(), window)
	counterKey := windowKey(key, start)

	var attempts *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		attempts = pipe.Incr(ctx, counterKey)
		pipe.PExpireAt(ctx, counterKey, end)
		return nil
	})
	if err != nil {
		return domain.RateLimitDecision{}, err
	}
	count := int(attempts.Val())
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return domain.RateLimitDecision{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   end,
	}, nil
}

func (r *RedisLimiter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisLimiter) Close() error {
	return r.client.Close()
}

// windowBounds returns the fixed window containing now. Windows shorter than
// a second are widened to one second.
func windowBounds(now time.Time, window time.Duration) (time.Time, time.Time) {
	if window < time.Second {
		window = time.Second
	}
	start := now.Truncate(window)
	return start, start.Add(window)
}

func windowKey(key string, start time.Time) string {
	return loginKeyPrefix + key + ":" + strconv.FormatInt(start.Unix(), 10)
}
