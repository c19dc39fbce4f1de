package classifiers

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeModel serializes a tiny hand-built model whose vocabulary only
// covers the words used in the test cases below, so the weighted dot
// product is easy to reason about.
func writeModel(t *testing.T, dir, dimension string) string {
	t.Helper()
	m := Model{
		Dimension: dimension,
		ModelHash: "test-hash-1",
		Word: WordVocabulary{
			NMin:       1,
			NMax:       1,
			Vocabulary: map[string]int{"think": 0, "act": 1},
			IDF:        []float64{1.0, 1.0},
		},
		Char: CharVocabulary{
			NMin:       3,
			NMax:       3,
			Vocabulary: map[string]int{},
			IDF:        []float64{},
		},
		Weights: []float64{-2.0, 2.0},
		Bias:    0,
	}
	data, err := json.Marshal(m)
	require.NoError(t, err)
	path := filepath.Join(dir, dimension+".json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestEngine_ScoreLoadsAndCaches(t *testing.T) {
	dir := t.TempDir()
	path := writeModel(t, dir, "phase")

	e := NewEngine(path)
	label, confidence, ok := e.Score("act act act", "act", "think")
	require.True(t, ok)
	assert.Equal(t, "act", label)
	assert.Greater(t, confidence, 0.0)

	label, _, ok = e.Score("think think", "act", "think")
	require.True(t, ok)
	assert.Equal(t, "think", label)

	assert.Equal(t, "test-hash-1", e.ModelHash())
}

func TestEngine_MissingModelDegradesGracefully(t *testing.T) {
	e := NewEngine(filepath.Join(t.TempDir(), "missing.json"))
	_, _, ok := e.Score("anything", "a", "b")
	assert.False(t, ok)
	assert.Equal(t, "", e.ModelHash())
}

func TestEngine_NeutralTextStaysAtBoundary(t *testing.T) {
	dir := t.TempDir()
	path := writeModel(t, dir, "phase2")
	e := NewEngine(path)
	_, confidence, ok := e.Score("unrelated words entirely", "act", "think")
	require.True(t, ok)
	assert.Equal(t, 0.0, confidence)
}

func TestSet_ScoreAllCoversFourDimensions(t *testing.T) {
	dir := t.TempDir()
	for _, dim := range []string{"phase", "scope", "locus", "novelty"} {
		writeModel(t, dir, dim)
	}
	s := NewSet(dir)
	labels := s.ScoreAll("act act act")
	assert.Len(t, labels, 4)
	for _, l := range labels {
		assert.True(t, l.OK)
	}
}

func TestWordTokens_NGramRange(t *testing.T) {
	got := wordTokens("fix the bug", 1, 2)
	assert.Contains(t, got, "fix")
	assert.Contains(t, got, "the")
	assert.Contains(t, got, "bug")
	assert.Contains(t, got, "fix the")
	assert.Contains(t, got, "the bug")
}

func TestCharTokens_BoundaryPadding(t *testing.T) {
	got := charTokens("ab", 3, 3)
	require.NotEmpty(t, got)
	assert.Equal(t, charBoundaryMarker+"ab", got[0])
}
