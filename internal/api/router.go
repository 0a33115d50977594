package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/digipath/maturity-diagnosis/internal/cache"
	apperrors "github.com/digipath/maturity-diagnosis/internal/errors"
	"github.com/digipath/maturity-diagnosis/internal/monitoring"
	"github.com/digipath/maturity-diagnosis/internal/ratelimit"
	"github.com/digipath/maturity-diagnosis/internal/security"
)

// QuestionsPath is the only response-cached route.
const QuestionsPath = "/api/v1/questions"

// RouterConfig holds the HTTP-level settings of the router.
type RouterConfig struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	EnableHSTS     bool
	EnableSwagger  bool
}

// PoolStats reports connection pool usage for /metrics.
type PoolStats interface {
	GetPoolStats() map[string]interface{}
}

// Router bundles what NewRouter mounts.
type Router struct {
	Handler *Handler
	DB      PoolStats
	Auth    *security.Authenticator
	Limiter *ratelimit.RateLimiter
	Cache   *cache.Cache
	Metrics *monitoring.Metrics
	Logger  *monitoring.Logger
}

// NewRouter builds the gin engine with the full middleware chain.
func NewRouter(cfg RouterConfig, deps Router) *gin.Engine {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = security.DefaultMaxBodyBytes
	}

	r := gin.New()

	r.Use(monitoring.RequestID())
	r.Use(monitoring.MonitoringMiddleware(deps.Metrics, deps.Logger))
	r.Use(apperrors.ErrorHandler())
	r.Use(apperrors.RecoveryHandler())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", monitoring.RequestIDHeader},
		ExposeHeaders:    []string{monitoring.RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(security.SecurityHeadersMiddleware(cfg.EnableHSTS))
	r.Use(security.RequestTimeout(cfg.RequestTimeout))
	r.Use(security.LimitBody(cfg.MaxBodyBytes))
	r.Use(security.ValidateContentType())

	h := deps.Handler
	r.GET("/health", h.Health)
	r.GET("/metrics", func(c *gin.Context) {
		stats := deps.Metrics.GetStats()
		if deps.Limiter != nil {
			stats["rate_limiter"] = deps.Limiter.GetStats()
		}
		if deps.Cache != nil {
			stats["cache"] = deps.Cache.Stats()
		}
		if deps.DB != nil {
			stats["database"] = deps.DB.GetPoolStats()
		}
		c.JSON(http.StatusOK, stats)
	})
	if cfg.EnableSwagger {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	v1 := r.Group("/api/v1")
	if deps.Limiter != nil {
		v1.Use(deps.Limiter.IPRateLimitMiddleware())
	}

	public := v1.Group("")
	if deps.Cache != nil {
		public.Use(deps.Cache.Middleware(deps.Metrics, QuestionsPath))
	}
	public.GET("/questions", h.ListQuestions)

	diagnoses := v1.Group("/diagnoses", deps.Auth.Middleware())
	submit := []gin.HandlerFunc{h.SubmitDiagnosis}
	if deps.Limiter != nil {
		submit = append([]gin.HandlerFunc{deps.Limiter.SubmissionRateLimitMiddleware(security.OwnerID)}, submit...)
	}
	diagnoses.POST("", submit...)
	diagnoses.GET("", h.ListDiagnoses)
	diagnoses.GET("/:id/report", h.GetReport)

	return r
}
