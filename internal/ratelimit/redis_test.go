package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisLimiter(t *testing.T, maxAttempts int, window time.Duration) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewRedisLimiter(rdb, "auth:rl:", maxAttempts, window), mr
}

func TestRedisLimiter_BudgetAndLimit(t *testing.T) {
	l, _ := newRedisLimiter(t, 5, time.Minute)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		res, err := l.Check(ctx, "login:1.2.3.4")
		require.NoError(t, err)
		require.False(t, res.Limited, "attempt %d", i)
		require.Equal(t, 5-i, res.Remaining)
	}

	res, err := l.Check(ctx, "login:1.2.3.4")
	require.NoError(t, err)
	require.True(t, res.Limited)
	require.Equal(t, 0, res.Remaining)
	require.False(t, res.ResetAt.IsZero())
}

func TestRedisLimiter_IndependentKeys(t *testing.T) {
	l, _ := newRedisLimiter(t, 1, time.Minute)
	ctx := context.Background()

	_, err := l.Check(ctx, "login:1.2.3.4")
	require.NoError(t, err)

	res, err := l.Check(ctx, "login:1.2.3.4")
	require.NoError(t, err)
	require.True(t, res.Limited)

	res, err = l.Check(ctx, "login:5.6.7.8")
	require.NoError(t, err)
	require.False(t, res.Limited)
}

func TestRedisLimiter_Reset(t *testing.T) {
	l, _ := newRedisLimiter(t, 1, time.Minute)
	ctx := context.Background()

	_, err := l.Check(ctx, "k")
	require.NoError(t, err)

	res, err := l.Check(ctx, "k")
	require.NoError(t, err)
	require.True(t, res.Limited)

	require.NoError(t, l.Reset(ctx, "k"))

	res, err = l.Check(ctx, "k")
	require.NoError(t, err)
	require.False(t, res.Limited)
}

func TestRedisLimiter_WindowExpiry_RestartsBudget(t *testing.T) {
	l, mr := newRedisLimiter(t, 1, time.Minute)
	ctx := context.Background()

	_, err := l.Check(ctx, "k")
	require.NoError(t, err)

	res, err := l.Check(ctx, "k")
	require.NoError(t, err)
	require.True(t, res.Limited)

	// Прокручиваем TTL ключа: окно закрылось, бюджет открывается заново.
	mr.FastForward(2 * time.Minute)

	res, err = l.Check(ctx, "k")
	require.NoError(t, err)
	require.False(t, res.Limited)
}

func TestRedisLimiter_WindowSetOnce(t *testing.T) {
	l, mr := newRedisLimiter(t, 10, time.Minute)
	ctx := context.Background()

	_, err := l.Check(ctx, "k")
	require.NoError(t, err)

	ttlAfterFirst := mr.TTL("auth:rl:k")
	require.Greater(t, ttlAfterFirst, time.Duration(0))

	mr.FastForward(30 * time.Second)

	// Повторные инкременты не продлевают окно (EXPIRE NX).
	_, err = l.Check(ctx, "k")
	require.NoError(t, err)

	ttlAfterSecond := mr.TTL("auth:rl:k")
	require.LessOrEqual(t, ttlAfterSecond, ttlAfterFirst-30*time.Second+time.Second)
}

func TestRedisLimiter_BackendDown_ReturnsError(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	l := NewRedisLimiter(rdb, "", 5, time.Minute)
	mr.Close()

	// Ошибка отдаётся наружу: решение fail-open принимает вызывающая сторона.
	_, err := l.Check(context.Background(), "k")
	require.Error(t, err)
}

func TestNewRedisClient_BadURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "not-a-url")
	require.Error(t, err)
}

func TestNewRedisClient_OK(t *testing.T) {
	mr := miniredis.RunT(t)

	rdb, err := NewRedisClient(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	require.NoError(t, rdb.Ping(context.Background()).Err())
}
