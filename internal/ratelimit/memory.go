package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter — процесс-локальный fixed-window счётчик.
// Только для single-instance развёртываний и тестов: между репликами
// бюджеты не разделяются.
type MemoryLimiter struct {
	mu          sync.Mutex
	buckets     map[string]*bucket
	maxAttempts int
	window      time.Duration
}

type bucket struct {
	count     int
	windowEnd time.Time
}

// NewMemoryLimiter создаёт in-memory лимитер.
func NewMemoryLimiter(maxAttempts int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		buckets:     make(map[string]*bucket),
		maxAttempts: maxAttempts,
		window:      window,
	}
}

// Check учитывает попытку; истёкшее окно открывается заново.
func (l *MemoryLimiter) Check(_ context.Context, key string) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UTC()

	b, ok := l.buckets[key]
	if !ok || now.After(b.windowEnd) {
		b = &bucket{windowEnd: now.Add(l.window)}
		l.buckets[key] = b
	}

	b.count++

	remaining := l.maxAttempts - b.count
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Limited:   b.count > l.maxAttempts,
		Remaining: remaining,
		ResetAt:   b.windowEnd,
	}, nil
}

// Reset сбрасывает счётчик key.
func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.buckets, key)
	return nil
}

// Prune удаляет истёкшие корзины; вызывается фоновым janitor'ом.
func (l *MemoryLimiter) Prune(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, b := range l.buckets {
		if now.After(b.windowEnd) {
			delete(l.buckets, key)
		}
	}
}

var _ Limiter = (*MemoryLimiter)(nil)
