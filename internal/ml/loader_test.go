package ml_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/digipath/maturity-diagnosis/internal/ml"
	"github.com/digipath/maturity-diagnosis/internal/ml/mltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	ml.Source
	opens atomic.Int64
}

func (c *countingSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	c.opens.Add(1)
	return c.Source.Open(ctx, name)
}

// flakySource fails the first failures opens with a connection error.
type flakySource struct {
	ml.Source
	failures int64
	opens    atomic.Int64
}

func (f *flakySource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if f.opens.Add(1) <= f.failures {
		return nil, errors.New("read tcp 10.0.0.4:443: connection reset by peer")
	}
	return f.Source.Open(ctx, name)
}

type failureCounter struct{ n atomic.Int64 }

func (f *failureCounter) IncrementArtifactLoadFailure() { f.n.Add(1) }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoaderLoadsOnceUnderConcurrency(t *testing.T) {
	dir := t.TempDir()
	mltest.WriteDir(t, dir, mltest.Components())
	src := &countingSource{Source: ml.DirSource{Dir: dir}}
	loader := ml.NewLoader(src, mltest.Version, discardLogger(), nil)

	var wg sync.WaitGroup
	results := make([]*ml.Components, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := loader.Components(context.Background())
			assert.NoError(t, err)
			results[i] = c
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(4), src.opens.Load())
	for _, c := range results {
		assert.Same(t, results[0], c)
	}

	loaded, version, err := loader.Status()
	assert.True(t, loaded)
	assert.Equal(t, mltest.Version, version)
	assert.NoError(t, err)
}

func TestLoaderCachesFailure(t *testing.T) {
	dir := t.TempDir()
	src := &countingSource{Source: ml.DirSource{Dir: dir}}
	failures := &failureCounter{}
	loader := ml.NewLoader(src, "", discardLogger(), failures)

	_, err := loader.Components(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ml.ErrArtifactUnavailable)
	assert.ErrorIs(t, err, os.ErrNotExist)

	// Artifacts appearing later are never picked up.
	mltest.WriteDir(t, dir, mltest.Components())
	_, err = loader.Components(context.Background())
	assert.ErrorIs(t, err, ml.ErrArtifactUnavailable)
	assert.Equal(t, int64(1), src.opens.Load())
	assert.Equal(t, int64(1), failures.n.Load())

	loaded, _, err := loader.Status()
	assert.False(t, loaded)
	assert.Error(t, err)
}

func TestLoaderRetriesTransientSourceErrors(t *testing.T) {
	dir := t.TempDir()
	mltest.WriteDir(t, dir, mltest.Components())
	src := &flakySource{Source: ml.DirSource{Dir: dir}, failures: 1}
	failures := &failureCounter{}
	loader := ml.NewLoader(src, mltest.Version, discardLogger(), failures)

	c, err := loader.Components(context.Background())
	require.NoError(t, err)
	assert.Equal(t, mltest.Version, c.Version)
	assert.Equal(t, int64(5), src.opens.Load())
	assert.Zero(t, failures.n.Load())

	loaded, _, err := loader.Status()
	assert.True(t, loaded)
	assert.NoError(t, err)
}

func TestLoaderGivesUpAfterRepeatedSourceErrors(t *testing.T) {
	dir := t.TempDir()
	mltest.WriteDir(t, dir, mltest.Components())
	src := &flakySource{Source: ml.DirSource{Dir: dir}, failures: 100}
	failures := &failureCounter{}
	loader := ml.NewLoader(src, "", discardLogger(), failures)

	_, err := loader.Components(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ml.ErrArtifactUnavailable)
	assert.Contains(t, err.Error(), "connection reset by peer")
	assert.Equal(t, int64(3), src.opens.Load())

	_, err = loader.Components(context.Background())
	assert.ErrorIs(t, err, ml.ErrArtifactUnavailable)
	assert.Equal(t, int64(3), src.opens.Load())
	assert.Equal(t, int64(1), failures.n.Load())
}

func TestLoaderRejectsBadReleases(t *testing.T) {
	tests := []struct {
		name    string
		version string
		tamper  func(t *testing.T, dir string, m *ml.Manifest)
	}{
		{
			name:    "version mismatch",
			version: "other",
			tamper:  func(t *testing.T, dir string, m *ml.Manifest) {},
		},
		{
			name: "digest mismatch",
			tamper: func(t *testing.T, dir string, m *ml.Manifest) {
				ref := m.Artifacts[ml.ArtifactExplainer]
				ref.SHA256 = "00"
				m.Artifacts[ml.ArtifactExplainer] = ref
				mltest.WriteManifest(t, dir, m)
			},
		},
		{
			name: "missing artifact entry",
			tamper: func(t *testing.T, dir string, m *ml.Manifest) {
				delete(m.Artifacts, ml.ArtifactLabels)
				mltest.WriteManifest(t, dir, m)
			},
		},
		{
			name: "corrupt classifier",
			tamper: func(t *testing.T, dir string, m *ml.Manifest) {
				ref := m.Artifacts[ml.ArtifactClassifier]
				ref.SHA256 = ""
				m.Artifacts[ml.ArtifactClassifier] = ref
				mltest.WriteManifest(t, dir, m)
				require.NoError(t, os.WriteFile(filepath.Join(dir, ref.File), []byte("{not json"), 0o644))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			m := mltest.WriteDir(t, dir, mltest.Components())
			tt.tamper(t, dir, m)

			loader := ml.NewLoader(ml.DirSource{Dir: dir}, tt.version, discardLogger(), nil)
			_, err := loader.Components(context.Background())
			assert.ErrorIs(t, err, ml.ErrArtifactUnavailable)
		})
	}
}

func TestLoaderIgnoresCancelledRequest(t *testing.T) {
	dir := t.TempDir()
	mltest.WriteDir(t, dir, mltest.Components())
	loader := ml.NewLoader(ml.DirSource{Dir: dir}, "", discardLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c, err := loader.Components(ctx)
	require.NoError(t, err)
	assert.Equal(t, mltest.Version, c.Version)
}

func TestDirSourceRejectsTraversal(t *testing.T) {
	_, err := ml.DirSource{Dir: t.TempDir()}.Open(context.Background(), "../secret.json")
	assert.Error(t, err)
}

func TestPreloadedValidates(t *testing.T) {
	c := mltest.Components()
	c.Labels.Classes = c.Labels.Classes[:2]
	_, err := ml.Preloaded(c)
	assert.Error(t, err)
}
