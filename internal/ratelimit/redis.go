package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter — fixed-window счётчик в Redis (INCR + EXPIRE).
// Общий для всех реплик сервиса.
type RedisLimiter struct {
	rdb         *redis.Client
	prefix      string
	maxAttempts int
	window      time.Duration
}

// NewRedisLimiter создаёт лимитер поверх готового клиента Redis.
// Если prefix пустой — используется "auth:rl:".
func NewRedisLimiter(rdb *redis.Client, prefix string, maxAttempts int, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "auth:rl:"
	}

	return &RedisLimiter{
		rdb:         rdb,
		prefix:      prefix,
		maxAttempts: maxAttempts,
		window:      window,
	}
}

// NewRedisClient создаёт клиент Redis из URL (например, redis://:pass@host:6379/0)
// с fail-fast ping на старте.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	const op = "ratelimit.NewRedisClient"

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rdb := redis.NewClient(opt)

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return rdb, nil
}

func (l *RedisLimiter) key(k string) string { return l.prefix + k }

// Check инкрементирует счётчик попыток; первый инкремент открывает окно.
func (l *RedisLimiter) Check(ctx context.Context, key string) (Result, error) {
	const op = "ratelimit.RedisLimiter.Check"

	k := l.key(key)

	n, err := l.rdb.Incr(ctx, k).Result()
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}

	// Окно открывается первым инкрементом. EXPIRE NX защищает от гонки двух
	// первых попыток и от ключей без TTL после рестартов.
	if err := l.rdb.ExpireNX(ctx, k, l.window).Err(); err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}

	ttl, err := l.rdb.PTTL(ctx, k).Result()
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}
	if ttl < 0 {
		ttl = l.window
	}

	remaining := l.maxAttempts - int(n)
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Limited:   n > int64(l.maxAttempts),
		Remaining: remaining,
		ResetAt:   time.Now().UTC().Add(ttl),
	}, nil
}

// Reset удаляет счётчик.
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	const op = "ratelimit.RedisLimiter.Reset"

	if err := l.rdb.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

var _ Limiter = (*RedisLimiter)(nil)
