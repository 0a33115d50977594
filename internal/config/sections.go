package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	EnvServerPort            = "DIGIPATH_SERVER_PORT"
	EnvServerMode            = "DIGIPATH_SERVER_MODE"
	EnvServerAllowedOrigins  = "DIGIPATH_SERVER_ALLOWED_ORIGINS"
	EnvServerRequestTimeout  = "DIGIPATH_SERVER_REQUEST_TIMEOUT"
	EnvServerShutdownTimeout = "DIGIPATH_SERVER_SHUTDOWN_TIMEOUT"
	EnvServerCacheTTL        = "DIGIPATH_SERVER_CACHE_TTL"
	EnvServerLogLevel        = "DIGIPATH_SERVER_LOG_LEVEL"
	EnvServerEnableHSTS      = "DIGIPATH_SERVER_ENABLE_HSTS"

	EnvDatabaseDataDir         = "DIGIPATH_DB_DATA_DIR"
	EnvDatabaseFileName        = "DIGIPATH_DB_FILE_NAME"
	EnvDatabaseMaxOpenConns    = "DIGIPATH_DB_MAX_OPEN_CONNS"
	EnvDatabaseMaxIdleConns    = "DIGIPATH_DB_MAX_IDLE_CONNS"
	EnvDatabaseConnMaxLifetime = "DIGIPATH_DB_CONN_MAX_LIFETIME"

	EnvArtifactsSource           = "DIGIPATH_ARTIFACTS_SOURCE"
	EnvArtifactsDir              = "DIGIPATH_ARTIFACTS_DIR"
	EnvArtifactsContainer        = "DIGIPATH_ARTIFACTS_CONTAINER"
	EnvArtifactsPrefix           = "DIGIPATH_ARTIFACTS_PREFIX"
	EnvArtifactsConnectionString = "DIGIPATH_ARTIFACTS_CONNECTION_STRING"
	EnvArtifactsVersion          = "DIGIPATH_ARTIFACTS_VERSION"

	EnvKnowledgeOverlay = "DIGIPATH_KNOWLEDGE_OVERLAY"

	EnvAuthSecret = "DIGIPATH_AUTH_SECRET"
	EnvAuthIssuer = "DIGIPATH_AUTH_ISSUER"

	EnvRateLimitRedisAddr          = "DIGIPATH_REDIS_ADDR"
	EnvRateLimitRedisPassword      = "DIGIPATH_REDIS_PASSWORD"
	EnvRateLimitRedisDB            = "DIGIPATH_REDIS_DB"
	EnvRateLimitSubmissionsPerHour = "DIGIPATH_RATELIMIT_SUBMISSIONS_PER_HOUR"
	EnvRateLimitIPPerMin           = "DIGIPATH_RATELIMIT_IP_PER_MIN"

	EnvRetentionSchedule = "DIGIPATH_RETENTION_SCHEDULE"
	EnvRetentionKeep     = "DIGIPATH_RETENTION_KEEP"
)

// Artifact source kinds.
const (
	SourceDir    = "dir"
	SourceAzBlob = "azblob"
)

func envString(name string, dst *string) {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		*dst = v
	}
}

func envInt(name string, dst *int) error {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = n
	return nil
}

func envBool(name string, dst *bool) error {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = b
	return nil
}

func envList(name string, dst *[]string) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}

func parseDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: negative duration", field)
	}
	return d, nil
}

func mustDuration(value string) time.Duration {
	d, _ := time.ParseDuration(value)
	return d
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port            int      `toml:"port"`
	Mode            string   `toml:"mode"`
	AllowedOrigins  []string `toml:"allowed_origins"`
	RequestTimeout  string   `toml:"request_timeout"`
	ShutdownTimeout string   `toml:"shutdown_timeout"`
	CacheTTL        string   `toml:"cache_ttl"`
	LogLevel        string   `toml:"log_level"`
	EnableHSTS      bool     `toml:"enable_hsts"`
}

// Addr returns the listen address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *ServerConfig) RequestTimeoutDuration() time.Duration  { return mustDuration(c.RequestTimeout) }
func (c *ServerConfig) ShutdownTimeoutDuration() time.Duration { return mustDuration(c.ShutdownTimeout) }
func (c *ServerConfig) CacheTTLDuration() time.Duration        { return mustDuration(c.CacheTTL) }

// Merge overwrites non-zero fields from overlay.
func (c *ServerConfig) Merge(overlay *ServerConfig) {
	if overlay.Port != 0 {
		c.Port = overlay.Port
	}
	if overlay.Mode != "" {
		c.Mode = overlay.Mode
	}
	if len(overlay.AllowedOrigins) > 0 {
		c.AllowedOrigins = overlay.AllowedOrigins
	}
	if overlay.RequestTimeout != "" {
		c.RequestTimeout = overlay.RequestTimeout
	}
	if overlay.ShutdownTimeout != "" {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
	if overlay.CacheTTL != "" {
		c.CacheTTL = overlay.CacheTTL
	}
	if overlay.LogLevel != "" {
		c.LogLevel = overlay.LogLevel
	}
	if overlay.EnableHSTS {
		c.EnableHSTS = true
	}
}

func (c *ServerConfig) loadDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.Mode == "" {
		c.Mode = "release"
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	if c.RequestTimeout == "" {
		c.RequestTimeout = "30s"
	}
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.CacheTTL == "" {
		c.CacheTTL = "10m"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *ServerConfig) loadEnv() error {
	envString(EnvServerMode, &c.Mode)
	envList(EnvServerAllowedOrigins, &c.AllowedOrigins)
	envString(EnvServerRequestTimeout, &c.RequestTimeout)
	envString(EnvServerShutdownTimeout, &c.ShutdownTimeout)
	envString(EnvServerCacheTTL, &c.CacheTTL)
	envString(EnvServerLogLevel, &c.LogLevel)
	return errors.Join(
		envInt(EnvServerPort, &c.Port),
		envBool(EnvServerEnableHSTS, &c.EnableHSTS),
	)
}

func (c *ServerConfig) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	switch c.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("invalid mode %q", c.Mode)
	}
	for field, value := range map[string]string{
		"request_timeout":  c.RequestTimeout,
		"shutdown_timeout": c.ShutdownTimeout,
		"cache_ttl":        c.CacheTTL,
	} {
		if _, err := parseDuration(field, value); err != nil {
			return err
		}
	}
	return nil
}

// DatabaseConfig locates the SQLite record store.
type DatabaseConfig struct {
	DataDir         string `toml:"data_dir"`
	FileName        string `toml:"file_name"`
	MaxOpenConns    int    `toml:"max_open_conns"`
	MaxIdleConns    int    `toml:"max_idle_conns"`
	ConnMaxLifetime string `toml:"conn_max_lifetime"`
}

func (c *DatabaseConfig) ConnMaxLifetimeDuration() time.Duration {
	return mustDuration(c.ConnMaxLifetime)
}

// Merge overwrites non-zero fields from overlay.
func (c *DatabaseConfig) Merge(overlay *DatabaseConfig) {
	if overlay.DataDir != "" {
		c.DataDir = overlay.DataDir
	}
	if overlay.FileName != "" {
		c.FileName = overlay.FileName
	}
	if overlay.MaxOpenConns != 0 {
		c.MaxOpenConns = overlay.MaxOpenConns
	}
	if overlay.MaxIdleConns != 0 {
		c.MaxIdleConns = overlay.MaxIdleConns
	}
	if overlay.ConnMaxLifetime != "" {
		c.ConnMaxLifetime = overlay.ConnMaxLifetime
	}
}

func (c *DatabaseConfig) loadDefaults() {
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.FileName == "" {
		c.FileName = "diagnoses.db"
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 10
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == "" {
		c.ConnMaxLifetime = "5m"
	}
}

func (c *DatabaseConfig) loadEnv() error {
	envString(EnvDatabaseDataDir, &c.DataDir)
	envString(EnvDatabaseFileName, &c.FileName)
	envString(EnvDatabaseConnMaxLifetime, &c.ConnMaxLifetime)
	return errors.Join(
		envInt(EnvDatabaseMaxOpenConns, &c.MaxOpenConns),
		envInt(EnvDatabaseMaxIdleConns, &c.MaxIdleConns),
	)
}

func (c *DatabaseConfig) validate() error {
	if c.MaxOpenConns < 1 {
		return fmt.Errorf("max_open_conns must be positive")
	}
	if c.MaxIdleConns < 0 || c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("max_idle_conns must be between 0 and max_open_conns")
	}
	_, err := parseDuration("conn_max_lifetime", c.ConnMaxLifetime)
	return err
}

// ArtifactsConfig locates the model artifact release.
type ArtifactsConfig struct {
	Source           string `toml:"source"`
	Dir              string `toml:"dir"`
	Container        string `toml:"container"`
	Prefix           string `toml:"prefix"`
	ConnectionString string `toml:"connection_string"`
	// Version pins the release; empty accepts whatever the manifest names.
	Version string `toml:"version"`
}

// Merge overwrites non-zero fields from overlay.
func (c *ArtifactsConfig) Merge(overlay *ArtifactsConfig) {
	if overlay.Source != "" {
		c.Source = overlay.Source
	}
	if overlay.Dir != "" {
		c.Dir = overlay.Dir
	}
	if overlay.Container != "" {
		c.Container = overlay.Container
	}
	if overlay.Prefix != "" {
		c.Prefix = overlay.Prefix
	}
	if overlay.ConnectionString != "" {
		c.ConnectionString = overlay.ConnectionString
	}
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
}

func (c *ArtifactsConfig) loadDefaults() {
	if c.Source == "" {
		c.Source = SourceDir
	}
	if c.Dir == "" {
		c.Dir = "./artifacts"
	}
}

func (c *ArtifactsConfig) loadEnv() error {
	envString(EnvArtifactsSource, &c.Source)
	envString(EnvArtifactsDir, &c.Dir)
	envString(EnvArtifactsContainer, &c.Container)
	envString(EnvArtifactsPrefix, &c.Prefix)
	envString(EnvArtifactsConnectionString, &c.ConnectionString)
	envString(EnvArtifactsVersion, &c.Version)
	return nil
}

func (c *ArtifactsConfig) validate() error {
	switch c.Source {
	case SourceDir:
		if c.Dir == "" {
			return fmt.Errorf("dir is required for source %q", SourceDir)
		}
	case SourceAzBlob:
		if c.Container == "" || c.ConnectionString == "" {
			return fmt.Errorf("container and connection_string are required for source %q", SourceAzBlob)
		}
	default:
		return fmt.Errorf("unknown source %q", c.Source)
	}
	return nil
}

// KnowledgeConfig points at an optional knowledge base overlay.
type KnowledgeConfig struct {
	OverlayPath string `toml:"overlay_path"`
}

// Merge overwrites non-zero fields from overlay.
func (c *KnowledgeConfig) Merge(overlay *KnowledgeConfig) {
	if overlay.OverlayPath != "" {
		c.OverlayPath = overlay.OverlayPath
	}
}

func (c *KnowledgeConfig) loadDefaults() {}

func (c *KnowledgeConfig) loadEnv() error {
	envString(EnvKnowledgeOverlay, &c.OverlayPath)
	return nil
}

func (c *KnowledgeConfig) validate() error { return nil }

// AuthConfig holds the shared secret of the token issuer.
type AuthConfig struct {
	Secret string `toml:"secret"`
	Issuer string `toml:"issuer"`
}

// Merge overwrites non-zero fields from overlay.
func (c *AuthConfig) Merge(overlay *AuthConfig) {
	if overlay.Secret != "" {
		c.Secret = overlay.Secret
	}
	if overlay.Issuer != "" {
		c.Issuer = overlay.Issuer
	}
}

func (c *AuthConfig) loadDefaults() {}

func (c *AuthConfig) loadEnv() error {
	envString(EnvAuthSecret, &c.Secret)
	envString(EnvAuthIssuer, &c.Issuer)
	return nil
}

func (c *AuthConfig) validate() error {
	if c.Secret == "" {
		return fmt.Errorf("secret is required (set %s)", EnvAuthSecret)
	}
	return nil
}

// RateLimitConfig configures submission limits and the optional Redis
// backend.
type RateLimitConfig struct {
	RedisAddr          string `toml:"redis_addr"`
	RedisPassword      string `toml:"redis_password"`
	RedisDB            int    `toml:"redis_db"`
	SubmissionsPerHour int    `toml:"submissions_per_hour"`
	IPLimitPerMin      int    `toml:"ip_limit_per_min"`
}

// Merge overwrites non-zero fields from overlay.
func (c *RateLimitConfig) Merge(overlay *RateLimitConfig) {
	if overlay.RedisAddr != "" {
		c.RedisAddr = overlay.RedisAddr
	}
	if overlay.RedisPassword != "" {
		c.RedisPassword = overlay.RedisPassword
	}
	if overlay.RedisDB != 0 {
		c.RedisDB = overlay.RedisDB
	}
	if overlay.SubmissionsPerHour != 0 {
		c.SubmissionsPerHour = overlay.SubmissionsPerHour
	}
	if overlay.IPLimitPerMin != 0 {
		c.IPLimitPerMin = overlay.IPLimitPerMin
	}
}

func (c *RateLimitConfig) loadDefaults() {
	if c.SubmissionsPerHour == 0 {
		c.SubmissionsPerHour = 10
	}
	if c.IPLimitPerMin == 0 {
		c.IPLimitPerMin = 120
	}
}

func (c *RateLimitConfig) loadEnv() error {
	envString(EnvRateLimitRedisAddr, &c.RedisAddr)
	envString(EnvRateLimitRedisPassword, &c.RedisPassword)
	return errors.Join(
		envInt(EnvRateLimitRedisDB, &c.RedisDB),
		envInt(EnvRateLimitSubmissionsPerHour, &c.SubmissionsPerHour),
		envInt(EnvRateLimitIPPerMin, &c.IPLimitPerMin),
	)
}

func (c *RateLimitConfig) validate() error {
	if c.SubmissionsPerHour < 0 || c.IPLimitPerMin < 0 {
		return fmt.Errorf("limits must not be negative")
	}
	return nil
}

// RetentionConfig schedules the sweeper that enforces the per-owner limit.
type RetentionConfig struct {
	Schedule string `toml:"schedule"`
	Keep     int    `toml:"keep"`
}

// Merge overwrites non-zero fields from overlay.
func (c *RetentionConfig) Merge(overlay *RetentionConfig) {
	if overlay.Schedule != "" {
		c.Schedule = overlay.Schedule
	}
	if overlay.Keep != 0 {
		c.Keep = overlay.Keep
	}
}

func (c *RetentionConfig) loadDefaults() {
	if c.Schedule == "" {
		c.Schedule = "@hourly"
	}
	if c.Keep == 0 {
		c.Keep = 3
	}
}

func (c *RetentionConfig) loadEnv() error {
	envString(EnvRetentionSchedule, &c.Schedule)
	return envInt(EnvRetentionKeep, &c.Keep)
}

func (c *RetentionConfig) validate() error {
	if c.Keep < 1 {
		return fmt.Errorf("keep must be at least 1")
	}
	if _, err := cron.ParseStandard(c.Schedule); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", c.Schedule, err)
	}
	return nil
}
