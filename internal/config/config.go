// Package config loads service configuration from config.toml, an optional
// per-environment overlay, defaults and DIGIPATH_* environment variables,
// in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvDigipathEnv = "DIGIPATH_ENV"
)

// Config is the root configuration for the diagnosis service.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Artifacts ArtifactsConfig `toml:"artifacts"`
	Knowledge KnowledgeConfig `toml:"knowledge"`
	Auth      AuthConfig      `toml:"auth"`
	RateLimit RateLimitConfig `toml:"ratelimit"`
	Retention RetentionConfig `toml:"retention"`
}

// Env returns the DIGIPATH_ENV value, defaulting to "local".
func Env() string {
	if env := os.Getenv(EnvDigipathEnv); env != "" {
		return env
	}
	return "local"
}

// Load reads dir/config.toml if present, merges dir/config.<env>.toml when
// DIGIPATH_ENV names one, then applies defaults, environment overrides and
// validation. An empty dir means the working directory.
func Load(dir string) (*Config, error) {
	cfg := &Config{}

	base := filepath.Join(dir, BaseConfigFile)
	if _, err := os.Stat(base); err == nil {
		loaded, err := load(base)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if env := os.Getenv(EnvDigipathEnv); env != "" {
		path := filepath.Join(dir, fmt.Sprintf(OverlayConfigPattern, env))
		if _, err := os.Stat(path); err == nil {
			overlay, err := load(path)
			if err != nil {
				return nil, fmt.Errorf("load overlay %s: %w", path, err)
			}
			cfg.Merge(overlay)
		}
	}

	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}
	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sections.
func (c *Config) Merge(overlay *Config) {
	c.Server.Merge(&overlay.Server)
	c.Database.Merge(&overlay.Database)
	c.Artifacts.Merge(&overlay.Artifacts)
	c.Knowledge.Merge(&overlay.Knowledge)
	c.Auth.Merge(&overlay.Auth)
	c.RateLimit.Merge(&overlay.RateLimit)
	c.Retention.Merge(&overlay.Retention)
}

type section interface {
	loadDefaults()
	loadEnv() error
	validate() error
}

func (c *Config) finalize() error {
	sections := []struct {
		name string
		s    section
	}{
		{"server", &c.Server},
		{"database", &c.Database},
		{"artifacts", &c.Artifacts},
		{"knowledge", &c.Knowledge},
		{"auth", &c.Auth},
		{"ratelimit", &c.RateLimit},
		{"retention", &c.Retention},
	}

	var errs []error
	for _, sec := range sections {
		sec.s.loadDefaults()
		if err := sec.s.loadEnv(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sec.name, err))
			continue
		}
		if err := sec.s.validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sec.name, err))
		}
	}
	return errors.Join(errs...)
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}
