package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	_ "github.com/digipath/maturity-diagnosis/docs"
	"github.com/digipath/maturity-diagnosis/internal/analysis"
	"github.com/digipath/maturity-diagnosis/internal/api"
	"github.com/digipath/maturity-diagnosis/internal/cache"
	"github.com/digipath/maturity-diagnosis/internal/config"
	"github.com/digipath/maturity-diagnosis/internal/database"
	"github.com/digipath/maturity-diagnosis/internal/diagnosis"
	apperrors "github.com/digipath/maturity-diagnosis/internal/errors"
	"github.com/digipath/maturity-diagnosis/internal/knowledge"
	"github.com/digipath/maturity-diagnosis/internal/ml"
	"github.com/digipath/maturity-diagnosis/internal/monitoring"
	"github.com/digipath/maturity-diagnosis/internal/ratelimit"
	"github.com/digipath/maturity-diagnosis/internal/retention"
	"github.com/digipath/maturity-diagnosis/internal/security"
)

// @title        Digital Maturity Diagnosis API
// @version      1.0
// @description  Scores a 20-question survey into a digital maturity tier with explained key drivers.
// @BasePath     /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	configDir := flag.String("config", "", "directory holding config.toml")
	flag.Parse()

	if err := run(*configDir); err != nil {
		slog.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

func run(configDir string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return apperrors.NewConfigurationError("Failed to load configuration", err)
	}

	appLogger := monitoring.NewLogger(os.Stdout, monitoring.ParseLevel(cfg.Server.LogLevel))
	slog.SetDefault(appLogger.Logger)
	gin.SetMode(cfg.Server.Mode)
	appMetrics := monitoring.NewMetrics()

	db, err := database.NewDB(database.Config{
		DataDir:         cfg.Database.DataDir,
		FileName:        cfg.Database.FileName,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetimeDuration(),
	})
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer apperrors.SafeClose(db, "database")
	repo := database.NewRepository(db)

	source, err := artifactSource(cfg.Artifacts)
	if err != nil {
		return apperrors.NewConfigurationError("Invalid artifact source", err)
	}
	loader := ml.NewLoader(source, cfg.Artifacts.Version, appLogger.Logger, appMetrics)
	warmUp(loader, source, appLogger)

	kb, err := knowledge.Load(cfg.Knowledge.OverlayPath)
	if err != nil {
		return fmt.Errorf("load knowledge base: %w", err)
	}

	analyzer := analysis.NewAnalyzer(loader, appLogger.Logger)
	service := diagnosis.NewService(repo, analyzer, kb, diagnosis.Config{
		Retain:       cfg.Retention.Keep,
		HistoryLimit: cfg.Retention.Keep,
	}, appLogger, appMetrics)

	redisClient, err := ratelimit.NewRedisClient(context.Background(), cfg.RateLimit.RedisAddr, cfg.RateLimit.RedisPassword, cfg.RateLimit.RedisDB)
	if err != nil {
		appLogger.Warn("Redis unavailable, rate limiting stays in memory", "error", err)
	}
	defer apperrors.SafeClose(redisClient, "redis")

	limiter := ratelimit.NewRateLimiter(redisClient, ratelimit.Config{
		IPLimitPerMin:      cfg.RateLimit.IPLimitPerMin,
		SubmissionsPerHour: cfg.RateLimit.SubmissionsPerHour,
		BurstMultiplier:    ratelimit.DefaultConfig().BurstMultiplier,
	}, appMetrics)
	defer limiter.Close()

	auth, err := security.NewAuthenticator(security.AuthConfig{Secret: cfg.Auth.Secret, Issuer: cfg.Auth.Issuer})
	if err != nil {
		return apperrors.NewConfigurationError("Invalid auth settings", err)
	}

	responses := cache.NewCache(cfg.Server.CacheTTLDuration())
	defer responses.Close()

	var redisHealth api.HealthChecker
	if redisClient.IsEnabled() {
		redisHealth = api.HealthFunc(redisClient.HealthCheck)
	}

	router := api.NewRouter(api.RouterConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Server.RequestTimeoutDuration(),
		EnableHSTS:     cfg.Server.EnableHSTS,
		EnableSwagger:  true,
	}, api.Router{
		Handler: api.NewHandler(service, kb, loader, db, redisHealth),
		DB:      db,
		Auth:    auth,
		Limiter: limiter,
		Cache:   responses,
		Metrics: appMetrics,
		Logger:  appLogger,
	})

	sweeper, err := retention.NewSweeper(repo, cfg.Retention.Schedule, cfg.Retention.Keep, appLogger, appMetrics)
	if err != nil {
		return apperrors.NewConfigurationError("Invalid retention schedule", err)
	}
	sweeper.Start()

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		appLogger.SystemLogger("server_starting", fmt.Sprintf("addr=%s env=%s", srv.Addr, config.Env()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case sig := <-quit:
		appLogger.SystemLogger("server_shutdown", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeoutDuration())
	defer cancel()

	sweeper.Stop(ctx)
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	appLogger.SystemLogger("server_exited", "")
	return nil
}

func artifactSource(cfg config.ArtifactsConfig) (ml.Source, error) {
	switch cfg.Source {
	case config.SourceAzBlob:
		return ml.NewBlobSource(cfg.ConnectionString, cfg.Container, cfg.Prefix)
	case config.SourceDir:
		return ml.DirSource{Dir: cfg.Dir}, nil
	default:
		return nil, fmt.Errorf("unknown artifact source %q", cfg.Source)
	}
}

// warmUp loads the model release before serving. A failed load is kept by
// the loader; the server still starts and reports it through /health.
func warmUp(loader *ml.Loader, source ml.Source, logger *monitoring.Logger) {
	start := time.Now()
	comps, err := loader.Components(context.Background())
	version := ""
	if comps != nil {
		version = comps.Version
	}
	logger.ArtifactLogger(source.String(), version, err, time.Since(start))
}
