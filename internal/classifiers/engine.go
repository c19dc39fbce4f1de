package classifiers

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sync"
)

// loadedModel pairs a cached Model with the sync.Once guarding its load, one
// per model file path, so concurrent inference calls within a process share
// a single parse of the (roughly 300KB) weight file.
type loadedModel struct {
	once  sync.Once
	model *Model
	err   error
}

var (
	cacheMu sync.Mutex
	cache   = map[string]*loadedModel{}
)

// Engine scores text against one dimension's model, loading and caching the
// weight file from disk on first use.
type Engine struct {
	path string
}

// NewEngine returns an Engine bound to a model file path. The file is not
// read until the first Score call.
func NewEngine(modelPath string) *Engine {
	return &Engine{path: modelPath}
}

func (e *Engine) load() (*Model, error) {
	cacheMu.Lock()
	entry, ok := cache[e.path]
	if !ok {
		entry = &loadedModel{}
		cache[e.path] = entry
	}
	cacheMu.Unlock()

	entry.once.Do(func() {
		entry.model, entry.err = readModel(e.path)
	})
	return entry.model, entry.err
}

func readModel(path string) (*Model, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is an operator-configured model file, not user input
	if err != nil {
		return nil, err
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("classifiers: decode model %s: %w", path, err)
	}
	if got, want := len(m.Weights), m.featureCount(); got != want {
		return nil, fmt.Errorf("classifiers: model %s weight vector length %d does not match vocabulary size %d", path, got, want)
	}
	return &m, nil
}

// Score runs inference for one piece of text. ok is false when the model
// file is absent or unreadable — the caller must then store a null label
// rather than treat this as fatal. label is the dimension's positive-class
// name when p >= 0.5, else the negative-class name; confidence is the
// logistic output's distance from the decision boundary, scaled to [0, 1].
func (e *Engine) Score(text string, positiveLabel, negativeLabel string) (label string, confidence float64, ok bool) {
	m, err := e.load()
	if err != nil || m == nil {
		return "", 0, false
	}

	vec := featureVector(m, text)
	l2Normalize(vec)

	var dot float64
	for i, v := range vec {
		if i >= len(m.Weights) {
			break
		}
		dot += v * m.Weights[i]
	}
	p := logistic(dot + m.Bias)

	confidence = math.Abs(p-0.5) * 2
	if p >= 0.5 {
		return positiveLabel, confidence, true
	}
	return negativeLabel, confidence, true
}

// ModelHash reports the loaded model's content hash for provenance, or ""
// if the model failed to load.
func (e *Engine) ModelHash() string {
	m, err := e.load()
	if err != nil || m == nil {
		return ""
	}
	return m.ModelHash
}

// featureVector builds the concatenated word-then-char TF-IDF feature
// vector for text against model m's vocabularies.
func featureVector(m *Model, text string) []float64 {
	vec := make([]float64, m.featureCount())
	wordOffset := 0
	charOffset := len(m.Word.Vocabulary)

	wordTF := termFrequencies(wordTokens(text, m.Word.NMin, m.Word.NMax), m.Sublinear)
	for tok, tf := range wordTF {
		idx, ok := m.Word.Vocabulary[tok]
		if !ok || idx < 0 || idx >= len(m.Word.IDF) {
			continue
		}
		vec[wordOffset+idx] = tf * m.Word.IDF[idx]
	}

	charTF := termFrequencies(charTokens(text, m.Char.NMin, m.Char.NMax), m.Sublinear)
	for tok, tf := range charTF {
		idx, ok := m.Char.Vocabulary[tok]
		if !ok || idx < 0 || idx >= len(m.Char.IDF) {
			continue
		}
		vec[charOffset+idx] = tf * m.Char.IDF[idx]
	}

	return vec
}

func l2Normalize(vec []float64) {
	var sumSquares float64
	for _, v := range vec {
		sumSquares += v * v
	}
	if sumSquares == 0 {
		return
	}
	norm := math.Sqrt(sumSquares)
	for i, v := range vec {
		vec[i] = v / norm
	}
}

func logistic(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
