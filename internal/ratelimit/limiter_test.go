package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/digipath/maturity-diagnosis/internal/monitoring"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFallbackLimiter(t *testing.T, cfg Config) (*RateLimiter, *monitoring.Metrics) {
	t.Helper()
	metrics := monitoring.NewMetrics()
	rl := NewRateLimiter(&RedisClient{enabled: false}, cfg, metrics)
	t.Cleanup(rl.Close)
	return rl, metrics
}

func TestNewRedisClientWithoutAddrIsDisabled(t *testing.T) {
	client, err := NewRedisClient(context.Background(), "", "", 0)
	require.NoError(t, err)
	assert.False(t, client.IsEnabled())
	assert.Error(t, client.HealthCheck(context.Background()))
	assert.NoError(t, client.Close())
	assert.Equal(t, false, client.GetPoolStats()["enabled"])
}

func TestAllowOwnerFallback(t *testing.T) {
	rl, metrics := newFallbackLimiter(t, Config{SubmissionsPerHour: 3, IPLimitPerMin: 60, BurstMultiplier: 2})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := rl.AllowOwner(ctx, "owner-a")
		require.NoError(t, err)
		assert.True(t, result.Allowed, "submission %d should pass", i+1)
		assert.Equal(t, 3, result.Limit)
	}

	result, err := rl.AllowOwner(ctx, "owner-a")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Greater(t, result.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, result.RetryAfter, 20*time.Minute)

	other, err := rl.AllowOwner(ctx, "owner-b")
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	assert.Equal(t, int64(5), metrics.GetRateLimitStats()["fallback_count"])
}

func TestRejectedAttemptsDoNotConsumeTokens(t *testing.T) {
	rl, _ := newFallbackLimiter(t, Config{SubmissionsPerHour: 1})
	ctx := context.Background()

	first, err := rl.AllowOwner(ctx, "owner-a")
	require.NoError(t, err)
	require.True(t, first.Allowed)

	var retries []time.Duration
	for i := 0; i < 3; i++ {
		res, err := rl.AllowOwner(ctx, "owner-a")
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		retries = append(retries, res.RetryAfter)
	}
	// A cancelled reservation leaves the wait unchanged rather than growing.
	assert.InDelta(t, float64(retries[0]), float64(retries[2]), float64(time.Second))
}

func TestZeroLimitDisablesCheck(t *testing.T) {
	rl, _ := newFallbackLimiter(t, Config{})
	for i := 0; i < 10; i++ {
		result, err := rl.AllowOwner(context.Background(), "owner-a")
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}
}

func TestAllowIPUsesBurst(t *testing.T) {
	rl, _ := newFallbackLimiter(t, Config{IPLimitPerMin: 2, BurstMultiplier: 2})

	allowed := 0
	for i := 0; i < 6; i++ {
		result, err := rl.AllowIP(context.Background(), "10.0.0.1")
		require.NoError(t, err)
		if result.Allowed {
			allowed++
		}
	}
	assert.Equal(t, 4, allowed)
}

func TestSubmissionRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl, metrics := newFallbackLimiter(t, Config{SubmissionsPerHour: 1})

	router := gin.New()
	router.POST("/submit",
		rl.SubmissionRateLimitMiddleware(func(c *gin.Context) string { return c.GetHeader("X-Owner") }),
		func(c *gin.Context) { c.Status(http.StatusCreated) },
	)

	send := func(owner string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/submit", nil)
		if owner != "" {
			req.Header.Set("X-Owner", owner)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	w := send("owner-a")
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))

	w = send("owner-a")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "rate_limit")

	assert.Equal(t, http.StatusCreated, send("").Code)
	assert.Equal(t, int64(1), metrics.GetRateLimitStats()["owner_blocks"])

	stats := rl.GetStats()
	assert.False(t, stats["redis_enabled"].(bool))
	assert.Equal(t, 1, stats["fallback_limiters"])
}
