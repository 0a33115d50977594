package ml

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/digipath/maturity-diagnosis/internal/resilience"
)

const (
	ManifestFile = "manifest.json"

	ArtifactClassifier = "classifier"
	ArtifactLabels     = "labels"
	ArtifactExplainer  = "explainer"
)

// maxArtifactBytes bounds any single artifact read.
const maxArtifactBytes = 64 << 20

var (
	errInvalidName      = errors.New("invalid artifact name")
	errArtifactTooLarge = errors.New("artifact too large")
)

// artifactRetry covers transient source failures such as a reset
// connection to blob storage.
func artifactRetry() resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.InitialDelay = 200 * time.Millisecond
	cfg.RetryableErrors = retryableRead
	return cfg
}

// retryableRead treats every read failure as transient except those a
// second attempt cannot change.
func retryableRead(err error) bool {
	switch {
	case errors.Is(err, fs.ErrNotExist),
		errors.Is(err, errInvalidName),
		errors.Is(err, errArtifactTooLarge),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// Manifest pins an artifact release: its version and the digest of every file.
type Manifest struct {
	Version   string                 `json:"version"`
	Artifacts map[string]ArtifactRef `json:"artifacts"`
}

type ArtifactRef struct {
	File   string `json:"file"`
	SHA256 string `json:"sha256"`
}

func (m *Manifest) validate() error {
	if m.Version == "" {
		return fmt.Errorf("manifest: missing version")
	}
	for _, name := range []string{ArtifactClassifier, ArtifactLabels, ArtifactExplainer} {
		ref, ok := m.Artifacts[name]
		if !ok || ref.File == "" {
			return fmt.Errorf("manifest: missing artifact %q", name)
		}
	}
	return nil
}

func readManifest(ctx context.Context, src Source, retry resilience.RetryConfig) (*Manifest, error) {
	data, err := readAll(ctx, src, ManifestFile, retry)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// readVerified reads the artifact named in the manifest, checks its digest
// when one is pinned, and decodes it into v.
func readVerified(ctx context.Context, src Source, retry resilience.RetryConfig, m *Manifest, name string, v any) error {
	ref := m.Artifacts[name]
	data, err := readAll(ctx, src, ref.File, retry)
	if err != nil {
		return err
	}
	if ref.SHA256 != "" {
		sum := sha256.Sum256(data)
		if got := hex.EncodeToString(sum[:]); !strings.EqualFold(got, ref.SHA256) {
			return fmt.Errorf("artifact %s: digest mismatch: got %s, want %s", ref.File, got, ref.SHA256)
		}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode artifact %s: %w", ref.File, err)
	}
	return nil
}

// readAll reads one artifact, retrying transient failures of the whole
// open and read.
func readAll(ctx context.Context, src Source, name string, retry resilience.RetryConfig) ([]byte, error) {
	var data []byte
	err := resilience.RetryWithConfig(ctx, retry, func() error {
		var err error
		data, err = readOnce(ctx, src, name)
		return err
	})
	return data, err
}

func readOnce(ctx context.Context, src Source, name string) ([]byte, error) {
	rc, err := src.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxArtifactBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", name, err)
	}
	if len(data) > maxArtifactBytes {
		return nil, fmt.Errorf("artifact %s exceeds %d bytes: %w", name, maxArtifactBytes, errArtifactTooLarge)
	}
	return data, nil
}
