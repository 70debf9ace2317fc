package recovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrTooManyAttempts is returned when a user has exhausted their failed PIN
// verifications for the current window.
var ErrTooManyAttempts = errors.New("too many PIN attempts")

// AttemptLimiter counts failed PIN verifications per user.
type AttemptLimiter interface {
	// Check returns ErrTooManyAttempts once the failure budget is spent.
	Check(ctx context.Context, userID string) error
	Fail(ctx context.Context, userID string) error
	Reset(ctx context.Context, userID string) error
}

// NewAttemptLimiter returns a Redis-backed limiter when rdb is non-nil and
// an in-process one otherwise.
func NewAttemptLimiter(rdb redis.UniversalClient, maxAttempts int, window time.Duration) AttemptLimiter {
	if rdb == nil {
		return newMemoryAttemptLimiter(maxAttempts, window)
	}
	return &redisAttemptLimiter{redis: rdb, max: maxAttempts, window: window}
}

// --- Redis ---

type redisAttemptLimiter struct {
	redis  redis.UniversalClient
	max    int
	window time.Duration
}

func (l *redisAttemptLimiter) Check(ctx context.Context, userID string) error {
	count, err := l.redis.Get(ctx, pinAttemptKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading pin attempts: %w", err)
	}
	if count >= int64(l.max) {
		return ErrTooManyAttempts
	}
	return nil
}

// Fail counts one failed verification. The key is created with its TTL and
// incremented in the same MULTI, so a counter never outlives its window.
func (l *redisAttemptLimiter) Fail(ctx context.Context, userID string) error {
	key := pinAttemptKey(userID)
	_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, key, 0, l.window)
		pipe.Incr(ctx, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("incrementing pin attempts: %w", err)
	}
	return nil
}

func (l *redisAttemptLimiter) Reset(ctx context.Context, userID string) error {
	if err := l.redis.Del(ctx, pinAttemptKey(userID)).Err(); err != nil {
		return fmt.Errorf("clearing pin attempts: %w", err)
	}
	return nil
}

func pinAttemptKey(userID string) string {
	return "recovery:pin_attempts:" + userID
}

// --- In-process fallback ---

type attemptWindow struct {
	count int
	start time.Time
}

type memoryAttemptLimiter struct {
	mu      sync.Mutex
	entries map[string]*attemptWindow
	max     int
	window  time.Duration
	now     func() time.Time
}

func newMemoryAttemptLimiter(maxAttempts int, window time.Duration) *memoryAttemptLimiter {
	return &memoryAttemptLimiter{
		entries: make(map[string]*attemptWindow),
		max:     maxAttempts,
		window:  window,
		now:     time.Now,
	}
}

// live returns the entry for userID, dropping it if its window has passed.
// Caller holds mu.
func (l *memoryAttemptLimiter) live(userID string) *attemptWindow {
	e, ok := l.entries[userID]
	if !ok {
		return nil
	}
	if l.now().Sub(e.start) > l.window {
		delete(l.entries, userID)
		return nil
	}
	return e
}

func (l *memoryAttemptLimiter) Check(_ context.Context, userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e := l.live(userID); e != nil && e.count >= l.max {
		return ErrTooManyAttempts
	}
	return nil
}

// Fail counts one failed verification. Windows that have ended for any
// user are pruned on the way so idle users do not accumulate.
func (l *memoryAttemptLimiter) Fail(_ context.Context, userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for id, e := range l.entries {
		if now.Sub(e.start) > l.window {
			delete(l.entries, id)
		}
	}

	if e, ok := l.entries[userID]; ok {
		e.count++
		return nil
	}
	l.entries[userID] = &attemptWindow{count: 1, start: now}
	return nil
}

func (l *memoryAttemptLimiter) Reset(_ context.Context, userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, userID)
	return nil
}
