package security

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/digipath/maturity-diagnosis/internal/errors"
	"github.com/gin-gonic/gin"
)

// DefaultMaxBodyBytes bounds a submission body; twenty answers fit easily.
const DefaultMaxBodyBytes = 64 << 10

// RequestTimeout bounds the request context.
func RequestTimeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Timeout", strconv.Itoa(int(timeout.Seconds())))

		c.Next()
	}
}

// ValidateContentType requires a JSON body on requests that carry one.
func ValidateContentType() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
		default:
			c.Next()
			return
		}

		contentType := strings.ToLower(c.GetHeader("Content-Type"))
		if !strings.HasPrefix(contentType, "application/json") {
			appErr := apperrors.NewValidationError("Unsupported content type", "expected application/json")
			appErr.HTTPStatus = http.StatusUnsupportedMediaType
			apperrors.Respond(c, appErr)
			return
		}

		c.Next()
	}
}

// LimitBody caps the request body size.
func LimitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil && maxBytes > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
