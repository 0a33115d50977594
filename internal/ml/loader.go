package ml

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/digipath/maturity-diagnosis/internal/resilience"
)

// ErrArtifactUnavailable is returned by every Components call after a
// failed load.
var ErrArtifactUnavailable = errors.New("model artifacts unavailable")

const loadTimeout = 30 * time.Second

// Components is a consistent, immutable artifact release.
type Components struct {
	Version    string
	Classifier *Forest
	Labels     LabelSpace
	Explainer  *LinearExplainer
}

func (c *Components) validate() error {
	if c.Classifier == nil || c.Explainer == nil {
		return errors.New("incomplete artifact set")
	}
	if err := c.Classifier.Validate(); err != nil {
		return err
	}
	if err := c.Labels.Validate(c.Classifier.NClasses); err != nil {
		return err
	}
	return c.Explainer.Validate(c.Classifier.NFeatures, c.Classifier.NClasses)
}

// FailureRecorder is notified once when loading fails.
type FailureRecorder interface {
	IncrementArtifactLoadFailure()
}

// Loader loads the artifact release at most once per process. Transient
// source errors are retried within that load; its final outcome, success or
// failure, is kept for the process lifetime.
type Loader struct {
	source  Source
	version string
	logger  *slog.Logger
	metrics FailureRecorder
	retry   resilience.RetryConfig

	mu    sync.RWMutex
	done  bool
	comps *Components
	err   error
}

// NewLoader reads from src on first use. A non-empty version must match the
// manifest.
func NewLoader(src Source, version string, logger *slog.Logger, metrics FailureRecorder) *Loader {
	return &Loader{
		source:  src,
		version: version,
		logger:  logger.With("component", "ml_loader"),
		metrics: metrics,
		retry:   artifactRetry(),
	}
}

// Preloaded returns a Loader that serves c without touching any source.
func Preloaded(c *Components) (*Loader, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &Loader{logger: slog.Default(), done: true, comps: c}, nil
}

// Components returns the loaded release, loading it on first call.
func (l *Loader) Components(ctx context.Context) (*Components, error) {
	l.mu.RLock()
	if l.done {
		defer l.mu.RUnlock()
		return l.comps, l.err
	}
	l.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done {
		return l.comps, l.err
	}

	// A cancelled request must not poison the cached outcome.
	loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
	defer cancel()

	start := time.Now()
	comps, err := l.load(loadCtx)
	l.done = true
	if err != nil {
		l.err = fmt.Errorf("%w: %w", ErrArtifactUnavailable, err)
		l.logger.Error("Artifact load failed", "source", l.source.String(), "error", err)
		if l.metrics != nil {
			l.metrics.IncrementArtifactLoadFailure()
		}
		return nil, l.err
	}

	l.comps = comps
	l.logger.Info("Artifacts loaded",
		"source", l.source.String(),
		"version", comps.Version,
		"trees", len(comps.Classifier.Trees),
		"classes", comps.Labels.Classes,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return l.comps, nil
}

// Status reports the load outcome without triggering a load.
func (l *Loader) Status() (loaded bool, version string, err error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.comps != nil {
		return true, l.comps.Version, nil
	}
	return false, "", l.err
}

func (l *Loader) load(ctx context.Context) (*Components, error) {
	m, err := readManifest(ctx, l.source, l.retry)
	if err != nil {
		return nil, err
	}
	if l.version != "" && m.Version != l.version {
		return nil, fmt.Errorf("manifest version %q, configured %q", m.Version, l.version)
	}

	comps := &Components{Version: m.Version, Classifier: &Forest{}, Explainer: &LinearExplainer{}}
	if err := readVerified(ctx, l.source, l.retry, m, ArtifactClassifier, comps.Classifier); err != nil {
		return nil, err
	}
	if err := readVerified(ctx, l.source, l.retry, m, ArtifactLabels, &comps.Labels); err != nil {
		return nil, err
	}
	if err := readVerified(ctx, l.source, l.retry, m, ArtifactExplainer, comps.Explainer); err != nil {
		return nil, err
	}
	if err := comps.validate(); err != nil {
		return nil, err
	}
	return comps, nil
}
