package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"riskgraph/pkg/platform/httputil"
	"riskgraph/pkg/requestcontext"
)

// LimitResult reports the outcome of a rate limit check.
type LimitResult struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// LimitStore counts requests per key inside a window.
type LimitStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*LimitResult, error)
}

// RedisLimitStore implements LimitStore with a fixed window counter in Redis,
// so the limit holds across replicas.
type RedisLimitStore struct {
	client *redis.Client
}

func NewRedisLimitStore(client *redis.Client) *RedisLimitStore {
	return &RedisLimitStore{client: client}
}

func (s *RedisLimitStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*LimitResult, error) {
	pipe := s.client.Pipeline()
	count := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	ttl := pipe.TTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	n := int(count.Val())
	remaining := limit - n
	if remaining < 0 {
		remaining = 0
	}
	return &LimitResult{
		Allowed:   n <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   time.Now().Add(ttl.Val()),
	}, nil
}

// MemoryLimitStore implements LimitStore with a per-key sliding window of
// timestamps. Single-process only; deployments with replicas should use
// RedisLimitStore.
type MemoryLimitStore struct {
	mu      sync.Mutex
	windows map[string][]time.Time
}

func NewMemoryLimitStore() *MemoryLimitStore {
	return &MemoryLimitStore{windows: make(map[string][]time.Time)}
}

func (s *MemoryLimitStore) Allow(_ context.Context, key string, limit int, window time.Duration) (*LimitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-window)
	kept := s.windows[key][:0]
	for _, ts := range s.windows[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= limit {
		s.windows[key] = kept
		return &LimitResult{
			Allowed:   false,
			Limit:     limit,
			Remaining: 0,
			ResetAt:   kept[0].Add(window),
		}, nil
	}

	kept = append(kept, now)
	s.windows[key] = kept
	return &LimitResult{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - len(kept),
		ResetAt:   kept[0].Add(window),
	}, nil
}

// RateLimit enforces a per-tenant request budget. It runs after RequireTenant
// so the tenant scope is already resolved. Store failures fail open: a broken
// Redis must never take the API down with it.
func RateLimit(store LimitStore, logger *slog.Logger, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := "ratelimit:tenant:" + requestcontext.TenantID(ctx).String()

			result, err := store.Allow(ctx, key, limit, window)
			if err != nil {
				logger.ErrorContext(ctx, "rate limit check failed, allowing request", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed {
				retryAfter := int(time.Until(result.ResetAt).Seconds()) + 1
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				httputil.WriteJSON(w, http.StatusTooManyRequests, map[string]any{
					"error":       "rate_limit_exceeded",
					"message":     "tenant request budget exhausted, retry later",
					"retry_after": retryAfter,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
