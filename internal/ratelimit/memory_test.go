package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryLimiter_BudgetAndLimit(t *testing.T) {
	t.Parallel()

	l := NewMemoryLimiter(5, time.Minute)
	ctx := context.Background()

	// Пять попыток в бюджете, шестая — за его пределами.
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

func TestMemoryLimiter_IndependentKeys(t *testing.T) {
	t.Parallel()

	l := NewMemoryLimiter(1, time.Minute)
	ctx := context.Background()

	res, err := l.Check(ctx, "login:1.2.3.4")
	require.NoError(t, err)
	require.False(t, res.Limited)

	res, err = l.Check(ctx, "login:1.2.3.4")
	require.NoError(t, err)
	require.True(t, res.Limited)

	// Другой ключ лимитом не задет.
	res, err = l.Check(ctx, "login:5.6.7.8")
	require.NoError(t, err)
	require.False(t, res.Limited)
}

func TestMemoryLimiter_Reset(t *testing.T) {
	t.Parallel()

	l := NewMemoryLimiter(1, time.Minute)
	ctx := context.Background()

	_, err := l.Check(ctx, "login:1.2.3.4")
	require.NoError(t, err)

	res, err := l.Check(ctx, "login:1.2.3.4")
	require.NoError(t, err)
	require.True(t, res.Limited)

	require.NoError(t, l.Reset(ctx, "login:1.2.3.4"))

	res, err = l.Check(ctx, "login:1.2.3.4")
	require.NoError(t, err)
	require.False(t, res.Limited)
}

func TestMemoryLimiter_WindowExpiry_RestartsBudget(t *testing.T) {
	t.Parallel()

	l := NewMemoryLimiter(1, 30*time.Millisecond)
	ctx := context.Background()

	_, err := l.Check(ctx, "k")
	require.NoError(t, err)

	res, err := l.Check(ctx, "k")
	require.NoError(t, err)
	require.True(t, res.Limited)

	time.Sleep(50 * time.Millisecond)

	res, err = l.Check(ctx, "k")
	require.NoError(t, err)
	require.False(t, res.Limited)
}

func TestMemoryLimiter_Prune(t *testing.T) {
	t.Parallel()

	l := NewMemoryLimiter(5, 10*time.Millisecond)
	ctx := context.Background()

	_, err := l.Check(ctx, "stale")
	require.NoError(t, err)

	l.mu.Lock()
	require.Len(t, l.buckets, 1)
	l.mu.Unlock()

	l.Prune(time.Now().Add(time.Second).UTC())

	l.mu.Lock()
	require.Empty(t, l.buckets)
	l.mu.Unlock()
}

func TestMemoryLimiter_ConcurrentChecks(t *testing.T) {
	t.Parallel()

	const attempts = 50

	l := NewMemoryLimiter(10, time.Minute)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		limited int
	)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Check(ctx, "hot-key")
			require.NoError(t, err)
			if res.Limited {
				mu.Lock()
				limited++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// Ровно attempts-10 попыток сверх бюджета.
	require.Equal(t, attempts-10, limited)
}
