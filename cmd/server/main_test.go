package main

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digipath/maturity-diagnosis/internal/config"
	"github.com/digipath/maturity-diagnosis/internal/ml"
	"github.com/digipath/maturity-diagnosis/internal/ml/mltest"
	"github.com/digipath/maturity-diagnosis/internal/monitoring"
)

func TestArtifactSource(t *testing.T) {
	src, err := artifactSource(config.ArtifactsConfig{Source: config.SourceDir, Dir: "/srv/models"})
	require.NoError(t, err)
	assert.Equal(t, "dir:/srv/models", src.String())

	_, err = artifactSource(config.ArtifactsConfig{Source: "ftp"})
	assert.Error(t, err)
}

func TestWarmUpLogsOutcome(t *testing.T) {
	var buf bytes.Buffer
	logger := monitoring.NewLogger(&buf, slog.LevelInfo)
	metrics := monitoring.NewMetrics()

	dir := t.TempDir()
	mltest.WriteDir(t, dir, mltest.Components())
	loader := ml.NewLoader(ml.DirSource{Dir: dir}, mltest.Version, logger.Logger, metrics)
	warmUp(loader, ml.DirSource{Dir: dir}, logger)

	loaded, version, err := loader.Status()
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.Equal(t, mltest.Version, version)
	assert.Contains(t, buf.String(), "Artifacts Loaded")

	buf.Reset()
	missing := ml.NewLoader(ml.DirSource{Dir: t.TempDir()}, "", logger.Logger, metrics)
	warmUp(missing, ml.DirSource{Dir: t.TempDir()}, logger)

	loaded, _, err = missing.Status()
	assert.False(t, loaded)
	assert.ErrorIs(t, err, ml.ErrArtifactUnavailable)
	assert.Contains(t, buf.String(), "Artifact Load Failed")
	assert.Equal(t, int64(1), metrics.GetStats()["artifact_load_failures"])
}
