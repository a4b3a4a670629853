package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platemill/platemill/pkg/httputil"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// DefaultRateLimitConfig returns the anonymous-traffic limit
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 60,
		WindowDuration:    time.Minute,
	}
}

// PerUserRateLimitConfig returns the authenticated-user limit
func PerUserRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 600,
		WindowDuration:    time.Minute,
	}
}

// DistributedRateLimiter implements rate limiting using Redis
// This allows rate limits to be shared across multiple instances
type DistributedRateLimiter struct {
	redis  *redis.Client
	config *RateLimitConfig
	prefix string
}

// NewDistributedRateLimiter creates a new Redis-backed rate limiter
func NewDistributedRateLimiter(redisClient *redis.Client, config *RateLimitConfig, prefix string) *DistributedRateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	if prefix == "" {
		prefix = "ratelimit"
	}

	return &DistributedRateLimiter{
		redis:  redisClient,
		config: config,
		prefix: prefix,
	}
}

// Allow checks if a request is allowed using a Redis counter window
func (rl *DistributedRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := fmt.Sprintf("%s:%s", rl.prefix, key)

	pipe := rl.redis.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, rl.config.WindowDuration)

	_, err := pipe.Exec(ctx)
	if err != nil {
		// On Redis error, fail open (allow request) to prevent service disruption
		return true, fmt.Errorf("redis error: %w", err)
	}

	return incr.Val() <= int64(rl.config.RequestsPerWindow), nil
}

// TTL returns the time until the rate limit window resets
func (rl *DistributedRateLimiter) TTL(ctx context.Context, key string) (time.Duration, error) {
	return rl.redis.TTL(ctx, fmt.Sprintf("%s:%s", rl.prefix, key)).Result()
}

// Reset clears the rate limit for a key (for testing or admin purposes)
func (rl *DistributedRateLimiter) Reset(ctx context.Context, key string) error {
	return rl.redis.Del(ctx, fmt.Sprintf("%s:%s", rl.prefix, key)).Err()
}

// RateLimitMiddleware provides HTTP rate limiting with Redis
type RateLimitMiddleware struct {
	userLimiter *DistributedRateLimiter
	anonLimiter *DistributedRateLimiter
}

// NewRateLimitMiddleware creates Redis-backed rate limiting with
// separate budgets for authenticated and anonymous traffic.
func NewRateLimitMiddleware(redisClient *redis.Client) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		userLimiter: NewDistributedRateLimiter(redisClient, PerUserRateLimitConfig(), "ratelimit:user"),
		anonLimiter: NewDistributedRateLimiter(redisClient, DefaultRateLimitConfig(), "ratelimit:anon"),
	}
}

// NewRateLimitMiddlewareWithLimits creates rate limiting with explicit
// budgets. Nil configs fall back to the defaults.
func NewRateLimitMiddlewareWithLimits(redisClient *redis.Client, anon, user *RateLimitConfig) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		userLimiter: NewDistributedRateLimiter(redisClient, user, "ratelimit:user"),
		anonLimiter: NewDistributedRateLimiter(redisClient, anon, "ratelimit:anon"),
	}
}

// Handler wraps an HTTP handler with rate limiting
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var key string
		var limiter *DistributedRateLimiter

		if authCtx := GetAuthContext(r); authCtx != nil && authCtx.User != nil {
			key = fmt.Sprintf("user:%d", authCtx.User.ID)
			limiter = m.userLimiter
		} else {
			key = "ip:" + clientIP(r)
			limiter = m.anonLimiter
		}

		allowed, err := limiter.Allow(ctx, key)
		if err != nil {
			// Fail open on Redis error so auth decisions stay available
			next.ServeHTTP(w, r)
			return
		}

		if !allowed {
			retryAfter := limiter.config.WindowDuration.Seconds()
			if ttl, err := limiter.TTL(ctx, key); err == nil && ttl > 0 {
				retryAfter = ttl.Seconds()
			}
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", retryAfter))
			httputil.WriteErrorCode(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
