package ratelimit

import (
	"log/slog"
	"strconv"

	apperrors "github.com/digipath/maturity-diagnosis/internal/errors"
	"github.com/gin-gonic/gin"
)

func setHeaders(c *gin.Context, result *Result) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func reject(c *gin.Context, result *Result) {
	retryAfter := strconv.Itoa(int(result.RetryAfter.Seconds() + 0.5))
	c.Header("Retry-After", retryAfter)
	apperrors.Respond(c, apperrors.NewRateLimitError(retryAfter))
}

// IPRateLimitMiddleware creates middleware for IP-based rate limiting
func (rl *RateLimiter) IPRateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()

		result, err := rl.AllowIP(c.Request.Context(), ip)
		if err != nil {
			slog.Error("Rate limit check failed", "ip", ip, "error", err)
			c.Next()
			return
		}

		setHeaders(c, result)
		if !result.Allowed {
			reject(c, result)
			return
		}

		c.Next()
	}
}

// SubmissionRateLimitMiddleware limits diagnosis submissions per owner. It
// must run after authentication; ownerOf returns "" for anonymous requests,
// which are passed through untouched.
func (rl *RateLimiter) SubmissionRateLimitMiddleware(ownerOf func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := ownerOf(c)
		if owner == "" {
			c.Next()
			return
		}

		result, err := rl.AllowOwner(c.Request.Context(), owner)
		if err != nil {
			slog.Error("Submission rate limit check failed", "owner_id", owner, "error", err)
			c.Next()
			return
		}

		setHeaders(c, result)
		if !result.Allowed {
			if rl.metrics != nil {
				rl.metrics.IncrementRateLimitOwnerBlock()
			}
			reject(c, result)
			return
		}

		c.Next()
	}
}
