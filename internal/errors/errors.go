package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/gin-gonic/gin"
)

// ErrorCategory defines the type of error for proper handling
type ErrorCategory string

const (
	CategoryValidation    ErrorCategory = "validation"
	CategoryUnauthorized  ErrorCategory = "unauthorized"
	CategoryNotFound      ErrorCategory = "not_found"
	CategoryRateLimit     ErrorCategory = "rate_limit"
	CategoryUnavailable   ErrorCategory = "unavailable"
	CategoryTimeout       ErrorCategory = "timeout"
	CategoryPersistence   ErrorCategory = "persistence"
	CategoryInternal      ErrorCategory = "internal"
	CategoryConfiguration ErrorCategory = "configuration"
)

// AppError wraps an errbuilder error with the category and HTTP status used
// at the API edge.
type AppError struct {
	*errbuilder.ErrBuilder
	Category   ErrorCategory     `json:"category"`
	HTTPStatus int               `json:"http_status"`
	Timestamp  time.Time         `json:"timestamp"`
	Fields     map[string]string `json:"details,omitempty"`
	StackTrace string            `json:"-"`
}

// Error renders the errbuilder code name and message.
func (e *AppError) Error() string {
	return fmt.Sprintf("[%s] %s", codeName(e.ErrBuilder.ErrCode()), e.ErrBuilder.Msg)
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.ErrBuilder.Unwrap()
}

func codeName(code errbuilder.ErrCode) string {
	switch code {
	case errbuilder.CodeInvalidArgument:
		return "VALIDATION_ERROR"
	case errbuilder.CodeUnauthenticated:
		return "UNAUTHORIZED"
	case errbuilder.CodeNotFound:
		return "NOT_FOUND"
	case errbuilder.CodeResourceExhausted:
		return "RATE_LIMIT_EXCEEDED"
	case errbuilder.CodeUnavailable:
		return "SERVICE_UNAVAILABLE"
	case errbuilder.CodeDeadlineExceeded:
		return "TIMEOUT_ERROR"
	case errbuilder.CodeInternal:
		return "INTERNAL_ERROR"
	case errbuilder.CodeFailedPrecondition:
		return "CONFIGURATION_ERROR"
	default:
		return "UNKNOWN_ERROR"
	}
}

// NewAppError creates an AppError from errbuilder with additional context
func NewAppError(builder *errbuilder.ErrBuilder, category ErrorCategory, httpStatus int) *AppError {
	return &AppError{
		ErrBuilder: builder,
		Category:   category,
		HTTPStatus: httpStatus,
		Timestamp:  time.Now(),
	}
}

func newBuilder(code errbuilder.ErrCode, message string, cause error) *errbuilder.ErrBuilder {
	builder := errbuilder.New().
		WithCode(code).
		WithMsg(message)
	if cause != nil {
		builder = builder.WithCause(cause)
	}
	return builder
}

// NewValidationError creates a validation error using errbuilder
func NewValidationError(message string, details ...interface{}) *AppError {
	builder := newBuilder(errbuilder.CodeInvalidArgument, message, nil)

	var fields map[string]string
	if len(details) > 0 {
		detail := fmt.Sprintf("%v", details[0])
		errorMap := errbuilder.ErrorMap{}
		errorMap.Set("validation_details", errors.New(detail))
		builder = builder.WithDetails(errbuilder.NewErrDetails(errorMap))
		fields = map[string]string{"validation_details": detail}
	}

	appErr := NewAppError(builder, CategoryValidation, http.StatusBadRequest)
	appErr.Fields = fields
	return appErr
}

// NewValidationErrorWithMap reports several field problems at once.
func NewValidationErrorWithMap(message string, validationErrors map[string]string) *AppError {
	errMap := errbuilder.ErrorMap{}
	fields := make(map[string]string, len(validationErrors))
	for field, msg := range validationErrors {
		errMap.Set(field, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(msg))
		fields[field] = msg
	}

	builder := newBuilder(errbuilder.CodeInvalidArgument, message, nil).
		WithDetails(errbuilder.NewErrDetails(errMap))

	appErr := NewAppError(builder, CategoryValidation, http.StatusBadRequest)
	appErr.Fields = fields
	return appErr
}

// NewUnauthorizedError reports a missing or invalid bearer token.
func NewUnauthorizedError(message string, cause error) *AppError {
	return NewAppError(newBuilder(errbuilder.CodeUnauthenticated, message, cause), CategoryUnauthorized, http.StatusUnauthorized)
}

// NewNotFoundError reports a resource that does not exist for the caller.
func NewNotFoundError(resource string) *AppError {
	return NewAppError(newBuilder(errbuilder.CodeNotFound, resource+" not found", nil), CategoryNotFound, http.StatusNotFound)
}

// NewRateLimitError creates a rate limit error using errbuilder
func NewRateLimitError(retryAfter string) *AppError {
	errorMap := errbuilder.ErrorMap{}
	errorMap.Set("retry_after", errors.New(retryAfter))

	builder := newBuilder(errbuilder.CodeResourceExhausted, "Rate limit exceeded", nil).
		WithDetails(errbuilder.NewErrDetails(errorMap))

	appErr := NewAppError(builder, CategoryRateLimit, http.StatusTooManyRequests)
	appErr.Fields = map[string]string{"retry_after": retryAfter}
	return appErr
}

// NewUnavailableError reports a dependency, such as the model artifacts,
// that cannot serve requests.
func NewUnavailableError(message string, cause error) *AppError {
	return NewAppError(newBuilder(errbuilder.CodeUnavailable, message, cause), CategoryUnavailable, http.StatusServiceUnavailable)
}

// NewTimeoutError creates a timeout error using errbuilder
func NewTimeoutError(message string, cause error) *AppError {
	return NewAppError(newBuilder(errbuilder.CodeDeadlineExceeded, message, cause), CategoryTimeout, http.StatusGatewayTimeout)
}

// NewPersistenceError reports a failed read or write of the record store.
func NewPersistenceError(message string, cause error) *AppError {
	return NewAppError(newBuilder(errbuilder.CodeInternal, message, cause), CategoryPersistence, http.StatusInternalServerError)
}

// NewInternalError creates an internal server error using errbuilder
func NewInternalError(message string, cause error) *AppError {
	errorMap := errbuilder.ErrorMap{}
	errorMap.Set("internal_details", errors.New(message))

	builder := newBuilder(errbuilder.CodeInternal, "Internal server error", cause).
		WithDetails(errbuilder.NewErrDetails(errorMap))

	appErr := NewAppError(builder, CategoryInternal, http.StatusInternalServerError)

	if gin.Mode() == gin.DebugMode || gin.Mode() == gin.TestMode {
		appErr.StackTrace = captureStackTrace()
	}

	return appErr
}

// NewConfigurationError creates a configuration error using errbuilder
func NewConfigurationError(message string, cause error) *AppError {
	errorMap := errbuilder.ErrorMap{}
	errorMap.Set("config_details", errors.New(message))

	builder := newBuilder(errbuilder.CodeFailedPrecondition, "Configuration error", cause).
		WithDetails(errbuilder.NewErrDetails(errorMap))

	return NewAppError(builder, CategoryConfiguration, http.StatusInternalServerError)
}

func captureStackTrace() string {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// Response is the JSON body written for every error.
type Response struct {
	Error     string            `json:"error"`
	Category  ErrorCategory     `json:"category"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// Respond writes err as JSON and aborts the chain.
func Respond(c *gin.Context, err *AppError) {
	c.AbortWithStatusJSON(err.HTTPStatus, Response{
		Error:     codeName(err.ErrBuilder.ErrCode()),
		Category:  err.Category,
		Message:   err.ErrBuilder.Msg,
		Details:   err.Fields,
		RequestID: requestID(c),
	})
}

// ErrorHandler is a Gin middleware that provides centralized error handling
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		appErr := ToAppError(c.Errors.Last().Err)
		LogError(c, appErr)
		Respond(c, appErr)
	}
}

// RecoveryHandler provides panic recovery with structured error responses
func RecoveryHandler() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		appErr := NewInternalError(
			fmt.Sprintf("Panic recovered: %v", recovered),
			fmt.Errorf("%v", recovered),
		)
		appErr.StackTrace = captureStackTrace()

		LogError(c, appErr)
		Respond(c, appErr)
	})
}

// ToAppError converts any error to an AppError
func ToAppError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var ebErr *errbuilder.ErrBuilder
	if errors.As(err, &ebErr) {
		return NewAppError(ebErr, CategoryInternal, http.StatusInternalServerError)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError("Request deadline exceeded", err)
	}
	if errors.Is(err, context.Canceled) {
		return NewTimeoutError("Request cancelled", err)
	}

	return NewInternalError("An unexpected error occurred", err)
}

// IsRetryableError checks if an error should trigger a retry
func IsRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	switch ToAppError(err).Category {
	case CategoryUnavailable, CategoryTimeout, CategoryRateLimit:
		return true
	default:
		return false
	}
}

func requestID(c *gin.Context) string {
	if id := c.GetString("request_id"); id != "" {
		return id
	}
	return c.GetHeader("X-Request-ID")
}

// LogError logs an error with appropriate level and context
func LogError(c *gin.Context, err *AppError) {
	logEntry := slog.With(
		"error_category", err.Category,
		"error_code", codeName(err.ErrBuilder.ErrCode()),
		"http_status", err.HTTPStatus,
		"ip", c.ClientIP(),
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"request_id", requestID(c),
	)

	msg := err.ErrBuilder.Msg
	switch err.Category {
	case CategoryValidation, CategoryRateLimit, CategoryNotFound, CategoryUnauthorized:
		if len(err.Fields) > 0 {
			keys := make([]string, 0, len(err.Fields))
			for k := range err.Fields {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			logEntry.Warn(msg, "fields", keys)
		} else {
			logEntry.Warn(msg)
		}
	default:
		if cause := err.ErrBuilder.Unwrap(); cause != nil {
			logEntry.Error(msg, "cause", cause)
		} else {
			logEntry.Error(msg)
		}
	}

	if err.StackTrace != "" && (gin.Mode() == gin.DebugMode || gin.Mode() == gin.TestMode) {
		logEntry.Debug("stack_trace", "trace", err.StackTrace)
	}
}

// WrapError wraps an error with additional context
func WrapError(err error, message string, args ...interface{}) error {
	if err == nil {
		return nil
	}

	contextMsg := fmt.Sprintf(message, args...)
	return fmt.Errorf("%s: %w", contextMsg, err)
}

// SafeClose safely closes a resource and logs any errors
func SafeClose(closer interface{ Close() error }, resourceName string) {
	if closer == nil {
		return
	}

	if err := closer.Close(); err != nil {
		slog.Warn("Failed to close resource",
			"resource", resourceName,
			"error", err)
	}
}
