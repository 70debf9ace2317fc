// Package middleware provides HTTP middleware for the Warden Echo server.
// ratelimit.go implements a fixed-window per-IP rate limiter. Counters live
// in Redis when it is configured so limits hold across instances, and in
// process memory otherwise.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// WindowCounter counts hits for a key within a fixed window.
type WindowCounter interface {
	// Hit records one request for key and returns the count in the current
	// window.
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RateLimit returns middleware that limits requests per IP to maxRequests
// within the given window. scope namespaces the counters so separate
// endpoint groups keep separate budgets. Returns 429 when exceeded. Counter
// errors are logged and the request is let through.
func RateLimit(counter WindowCounter, scope string, maxRequests int, window time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := fmt.Sprintf("ratelimit:%s:%s", scope, c.RealIP())

			count, err := counter.Hit(c.Request().Context(), key, window)
			if err != nil {
				slog.Warn("rate limit counter unavailable",
					slog.String("scope", scope),
					slog.Any("error", err),
				)
				return next(c)
			}

			if count > int64(maxRequests) {
				c.Response().Header().Set("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
				return c.JSON(http.StatusTooManyRequests, map[string]string{
					"error":   "rate_limited",
					"message": "rate limit exceeded, please try again later",
				})
			}
			return next(c)
		}
	}
}

// NewWindowCounter returns a Redis counter when rdb is non-nil and an
// in-process counter otherwise.
func NewWindowCounter(rdb redis.UniversalClient) WindowCounter {
	if rdb == nil {
		return NewMemoryCounter()
	}
	return &RedisCounter{redis: rdb}
}

// --- Redis ---

// RedisCounter implements WindowCounter with INCR and EXPIRE.
type RedisCounter struct {
	redis redis.UniversalClient
}

// Hit increments key and starts its expiry on the first hit of a window.
func (r *RedisCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("incrementing %s: %w", key, err)
	}
	if count == 1 {
		if err := r.redis.Expire(ctx, key, window).Err(); err != nil {
			return 0, fmt.Errorf("expiring %s: %w", key, err)
		}
	}
	return count, nil
}

// --- In-process ---

// rateLimitEntry tracks request counts for a single key within a window.
type rateLimitEntry struct {
	count       int64
	windowStart time.Time
}

// MemoryCounter implements WindowCounter in process memory.
type MemoryCounter struct {
	mu      sync.Mutex
	entries map[string]*rateLimitEntry
	now     func() time.Time
}

// NewMemoryCounter creates an empty in-process counter.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{
		entries: make(map[string]*rateLimitEntry),
		now:     time.Now,
	}
}

// Hit counts a request for key, starting a new window when the previous
// one has elapsed. Expired entries are pruned on the way.
func (m *MemoryCounter) Hit(_ context.Context, key string, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for k, e := range m.entries {
		if now.Sub(e.windowStart) > window*2 {
			delete(m.entries, k)
		}
	}

	entry, ok := m.entries[key]
	if !ok || now.Sub(entry.windowStart) > window {
		m.entries[key] = &rateLimitEntry{count: 1, windowStart: now}
		return 1, nil
	}
	entry.count++
	return entry.count, nil
}
