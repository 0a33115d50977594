package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/digipath/maturity-diagnosis/internal/monitoring"
	"github.com/go-redis/redis_rate/v10"
	"golang.org/x/time/rate"
)

// Config holds rate limiter configuration
type Config struct {
	IPLimitPerMin      int // requests per minute per client IP across the API
	SubmissionsPerHour int // diagnoses an owner may submit per hour
	BurstMultiplier    int // IP burst capacity multiplier
}

// DefaultConfig returns default rate limiting configuration
func DefaultConfig() Config {
	return Config{
		IPLimitPerMin:      120,
		SubmissionsPerHour: 10,
		BurstMultiplier:    2,
	}
}

// Result represents the result of a rate limit check
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

type window struct {
	limit  int
	burst  int
	period time.Duration
}

// RateLimiter provides distributed rate limiting with Redis and in-memory fallback
type RateLimiter struct {
	redisLimiter *redis_rate.Limiter
	redisClient  *RedisClient
	config       Config
	metrics      *monitoring.Metrics

	fallbackLimiters map[string]*rate.Limiter
	fallbackMutex    sync.Mutex

	stop     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a new rate limiter with Redis and in-memory fallback
func NewRateLimiter(redisClient *RedisClient, config Config, metrics *monitoring.Metrics) *RateLimiter {
	if redisClient == nil {
		redisClient = &RedisClient{}
	}
	rl := &RateLimiter{
		redisClient:      redisClient,
		config:           config,
		metrics:          metrics,
		fallbackLimiters: make(map[string]*rate.Limiter),
		stop:             make(chan struct{}),
	}

	if redisClient.IsEnabled() {
		rl.redisLimiter = redis_rate.NewLimiter(redisClient.GetClient())
		slog.Info("Redis rate limiter initialized")
	} else {
		slog.Warn("Redis unavailable, using in-memory rate limiting only")
	}

	go rl.cleanupFallbackLimiters(time.Hour)

	return rl
}

// Close stops the fallback cleanup loop.
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// AllowIP checks if an IP address is allowed to make a request (per-minute limit)
func (rl *RateLimiter) AllowIP(ctx context.Context, ip string) (*Result, error) {
	burst := rl.config.IPLimitPerMin * rl.config.BurstMultiplier
	if burst < rl.config.IPLimitPerMin {
		burst = rl.config.IPLimitPerMin
	}
	return rl.allow(ctx, "ratelimit:ip:"+ip, window{
		limit:  rl.config.IPLimitPerMin,
		burst:  burst,
		period: time.Minute,
	})
}

// AllowOwner checks whether the owner may store another diagnosis this hour.
func (rl *RateLimiter) AllowOwner(ctx context.Context, ownerID string) (*Result, error) {
	return rl.allow(ctx, "ratelimit:owner:"+ownerID+":hour", window{
		limit:  rl.config.SubmissionsPerHour,
		burst:  rl.config.SubmissionsPerHour,
		period: time.Hour,
	})
}

func (rl *RateLimiter) allow(ctx context.Context, key string, w window) (*Result, error) {
	if w.limit <= 0 {
		return &Result{Allowed: true, Limit: 0, Remaining: 0}, nil
	}

	if rl.redisClient.IsEnabled() && rl.redisLimiter != nil {
		result, err := rl.allowRedis(ctx, key, w)
		if err == nil {
			return result, nil
		}
		slog.Warn("Redis rate limit check failed, using fallback", "key", key, "error", err)
		if rl.metrics != nil {
			rl.metrics.IncrementRateLimitRedisError()
		}
	} else if rl.metrics != nil {
		rl.metrics.IncrementRateLimitFallback()
	}

	return rl.allowFallback(key, w), nil
}

// allowRedis uses the GCRA limiter shared by every replica.
func (rl *RateLimiter) allowRedis(ctx context.Context, key string, w window) (*Result, error) {
	res, err := rl.redisLimiter.Allow(ctx, key, redis_rate.Limit{
		Rate:   w.limit,
		Burst:  w.burst,
		Period: w.period,
	})
	if err != nil {
		return nil, fmt.Errorf("redis rate limit check failed: %w", err)
	}

	return &Result{
		Allowed:    res.Allowed > 0,
		Limit:      res.Limit.Rate,
		Remaining:  res.Remaining,
		ResetAt:    time.Now().Add(res.ResetAfter),
		RetryAfter: res.RetryAfter,
	}, nil
}

// allowFallback performs rate limiting using in-memory token bucket
func (rl *RateLimiter) allowFallback(key string, w window) *Result {
	rl.fallbackMutex.Lock()
	limiter, exists := rl.fallbackLimiters[key]
	if !exists {
		every := w.period / time.Duration(w.limit)
		limiter = rate.NewLimiter(rate.Every(every), w.burst)
		rl.fallbackLimiters[key] = limiter
	}
	rl.fallbackMutex.Unlock()

	now := time.Now()
	reservation := limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return &Result{Allowed: false, Limit: w.limit, ResetAt: now.Add(w.period), RetryAfter: w.period}
	}

	delay := reservation.DelayFrom(now)
	if delay > 0 {
		reservation.CancelAt(now)
		return &Result{
			Allowed:    false,
			Limit:      w.limit,
			Remaining:  0,
			ResetAt:    now.Add(delay),
			RetryAfter: delay,
		}
	}

	remaining := int(limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return &Result{
		Allowed:   true,
		Limit:     w.limit,
		Remaining: remaining,
		ResetAt:   now.Add(w.period),
	}
}

// cleanupFallbackLimiters periodically drops idle fallback limiters
func (rl *RateLimiter) cleanupFallbackLimiters(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.fallbackMutex.Lock()
			if len(rl.fallbackLimiters) > 1000 {
				slog.Info("Cleaning up fallback rate limiters", "count", len(rl.fallbackLimiters))
				rl.fallbackLimiters = make(map[string]*rate.Limiter)
			}
			rl.fallbackMutex.Unlock()
		}
	}
}

// GetStats returns rate limiter statistics
func (rl *RateLimiter) GetStats() map[string]interface{} {
	rl.fallbackMutex.Lock()
	fallbackCount := len(rl.fallbackLimiters)
	rl.fallbackMutex.Unlock()

	stats := map[string]interface{}{
		"redis_enabled":        rl.redisClient.IsEnabled(),
		"fallback_limiters":    fallbackCount,
		"submissions_per_hour": rl.config.SubmissionsPerHour,
		"ip_limit_per_min":     rl.config.IPLimitPerMin,
	}

	if rl.redisClient.IsEnabled() {
		stats["redis_pool"] = rl.redisClient.GetPoolStats()
	}

	return stats
}
