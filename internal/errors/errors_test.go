package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorsCategoryAndStatus(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name     string
		err      *AppError
		category ErrorCategory
		status   int
	}{
		{"validation", NewValidationError("bad input"), CategoryValidation, http.StatusBadRequest},
		{"unauthorized", NewUnauthorizedError("missing token", nil), CategoryUnauthorized, http.StatusUnauthorized},
		{"not found", NewNotFoundError("diagnosis"), CategoryNotFound, http.StatusNotFound},
		{"rate limit", NewRateLimitError("60"), CategoryRateLimit, http.StatusTooManyRequests},
		{"unavailable", NewUnavailableError("artifacts", cause), CategoryUnavailable, http.StatusServiceUnavailable},
		{"timeout", NewTimeoutError("slow", cause), CategoryTimeout, http.StatusGatewayTimeout},
		{"persistence", NewPersistenceError("write failed", cause), CategoryPersistence, http.StatusInternalServerError},
		{"internal", NewInternalError("oops", cause), CategoryInternal, http.StatusInternalServerError},
		{"configuration", NewConfigurationError("bad config", cause), CategoryConfiguration, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.category, tt.err.Category)
			assert.Equal(t, tt.status, tt.err.HTTPStatus)
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

func TestValidationErrorWithMap(t *testing.T) {
	err := NewValidationErrorWithMap("invalid answers", map[string]string{
		"answers[0].question_id": "out of range",
		"answers":                "expected 20 answers",
	})

	assert.Equal(t, CategoryValidation, err.Category)
	assert.Equal(t, "expected 20 answers", err.Fields["answers"])
	assert.Len(t, err.Fields, 2)
	assert.Contains(t, err.Error(), "VALIDATION_ERROR")
}

func TestToAppError(t *testing.T) {
	assert.Nil(t, ToAppError(nil))

	original := NewNotFoundError("diagnosis")
	wrapped := fmt.Errorf("lookup: %w", original)
	assert.Same(t, original, ToAppError(wrapped))

	assert.Equal(t, CategoryTimeout, ToAppError(context.DeadlineExceeded).Category)
	assert.Equal(t, CategoryTimeout, ToAppError(fmt.Errorf("q: %w", context.Canceled)).Category)

	generic := ToAppError(errors.New("unknown"))
	assert.Equal(t, CategoryInternal, generic.Category)
	assert.Equal(t, http.StatusInternalServerError, generic.HTTPStatus)
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := NewPersistenceError("save failed", cause)
	assert.ErrorIs(t, err, cause)
}

func TestErrorHandlerWritesResponse(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ErrorHandler())
	router.GET("/missing", func(c *gin.Context) {
		c.Set("request_id", "req-1")
		_ = c.Error(NewNotFoundError("diagnosis"))
	})
	router.GET("/plain", func(c *gin.Context) {
		_ = c.Error(errors.New("unexpected"))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	require.Equal(t, http.StatusNotFound, w.Code)

	var body Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "NOT_FOUND", body.Error)
	assert.Equal(t, CategoryNotFound, body.Category)
	assert.Equal(t, "diagnosis not found", body.Message)
	assert.Equal(t, "req-1", body.RequestID)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/plain", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRecoveryHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RecoveryHandler())
	router.GET("/panic", func(c *gin.Context) {
		panic("kaboom")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
}

func TestWrapError(t *testing.T) {
	assert.Nil(t, WrapError(nil, "ctx"))

	base := errors.New("base")
	err := WrapError(base, "loading %s", "labels")
	assert.EqualError(t, err, "loading labels: base")
	assert.ErrorIs(t, err, base)
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"unavailable", NewUnavailableError("down", nil), true},
		{"timeout", NewTimeoutError("slow", nil), true},
		{"rate limit", NewRateLimitError("60"), true},
		{"deadline", fmt.Errorf("load: %w", context.DeadlineExceeded), true},
		{"cancelled", context.Canceled, false},
		{"validation", NewValidationError("bad"), false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryableError(tt.err))
		})
	}
}
