// Package mltest builds small deterministic artifact releases for tests.
package mltest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/digipath/maturity-diagnosis/internal/ml"
	"github.com/stretchr/testify/require"
)

// Version is the release version written by WriteDir.
const Version = "test-1"

// Classes are the tier labels in classifier order.
var Classes = []string{"Digital Beginner", "Digital Conservative", "Digital Fashionista", "Digital Master"}

// Components returns a two-tree forest over 20 features.
//
// The first tree splits on Q1 (missing goes left), then on Q11 or Q20.
// The second tree is a uniform leaf. The explainer weights question i by
// 0.01*i toward the top tier around a background of 4.
func Components() *ml.Components {
	split := ml.Tree{Nodes: []ml.Node{
		{Feature: 0, Threshold: 4, Left: 1, Right: 2, MissingLeft: true},
		{Feature: 10, Threshold: 4, Left: 3, Right: 4, MissingLeft: true},
		{Feature: 19, Threshold: 4, Left: 5, Right: 6, MissingLeft: true},
		{Feature: -2, Value: []float64{8, 2, 0, 0}},
		{Feature: -2, Value: []float64{1, 6, 3, 0}},
		{Feature: -2, Value: []float64{0, 2, 6, 2}},
		{Feature: -2, Value: []float64{0, 0, 2, 8}},
	}}
	uniform := ml.Tree{Nodes: []ml.Node{{Feature: -2, Value: []float64{1, 1, 1, 1}}}}

	coef := make([][]float64, len(Classes))
	for c := range coef {
		coef[c] = make([]float64, 20)
	}
	background := make([]float64, 20)
	for i := 0; i < 20; i++ {
		coef[len(Classes)-1][i] = 0.01 * float64(i+1)
		background[i] = 4
	}

	return &ml.Components{
		Version:    Version,
		Classifier: &ml.Forest{NFeatures: 20, NClasses: len(Classes), Trees: []ml.Tree{split, uniform}},
		Labels:     ml.LabelSpace{Classes: append([]string(nil), Classes...)},
		Explainer:  &ml.LinearExplainer{ExpectedValue: make([]float64, len(Classes)), Coefficients: coef, Background: background},
	}
}

// Loader returns a preloaded loader serving Components.
func Loader(t testing.TB) *ml.Loader {
	t.Helper()
	l, err := ml.Preloaded(Components())
	require.NoError(t, err)
	return l
}

// WriteDir writes c and a matching manifest into dir and returns the
// manifest for further tampering.
func WriteDir(t testing.TB, dir string, c *ml.Components) *ml.Manifest {
	t.Helper()

	m := &ml.Manifest{Version: c.Version, Artifacts: map[string]ml.ArtifactRef{}}
	write := func(name, file string, v any) {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, file), data, 0o644))
		sum := sha256.Sum256(data)
		m.Artifacts[name] = ml.ArtifactRef{File: file, SHA256: hex.EncodeToString(sum[:])}
	}
	write(ml.ArtifactClassifier, "classifier.json", c.Classifier)
	write(ml.ArtifactLabels, "labels.json", c.Labels)
	write(ml.ArtifactExplainer, "explainer.json", c.Explainer)

	WriteManifest(t, dir, m)
	return m
}

// WriteManifest overwrites the manifest in dir.
func WriteManifest(t testing.TB, dir string, m *ml.Manifest) {
	t.Helper()
	data, err := json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ml.ManifestFile), data, 0o644))
}
