// Package classifiers implements the five independent text classifiers that
// label observations on cognitive dimensions: phase, scope, locus, novelty,
// and friction. Phase/scope/locus/novelty run per-observation at capture
// time; friction is assigned episode-wide elsewhere and only shares this
// package's Model/Run bookkeeping shape.
package classifiers

// Model is the on-disk JSON artifact for one dimension: two TF-IDF feature
// extractors (word n-grams and character n-grams) sharing one linear weight
// vector and bias, trained externally and loaded read-only at inference time.
type Model struct {
	Dimension string `json:"dimension"`
	ModelHash string `json:"model_hash"`

	Word WordVocabulary `json:"word"`
	Char CharVocabulary `json:"char"`

	// Weights is indexed [0:len(Word.Vocabulary)] for word features followed
	// by [len(Word.Vocabulary):] for char features, matching the
	// concatenation order Score builds the feature vector in.
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`

	// Sublinear applies log(1+tf) term weighting instead of raw counts.
	Sublinear bool `json:"sublinear"`
}

// WordVocabulary maps word unigrams/bigrams to a dense feature index, with a
// matching IDF weight per index.
type WordVocabulary struct {
	NMin       int            `json:"n_min"`
	NMax       int            `json:"n_max"`
	Vocabulary map[string]int `json:"vocabulary"`
	IDF        []float64      `json:"idf"`
}

// CharVocabulary maps character n-grams (word-boundary padded) to a dense
// feature index, with a matching IDF weight per index.
type CharVocabulary struct {
	NMin       int            `json:"n_min"`
	NMax       int            `json:"n_max"`
	Vocabulary map[string]int `json:"vocabulary"`
	IDF        []float64      `json:"idf"`
}

// featureCount is the total length of the concatenated feature vector the
// model's weight vector must match.
func (m *Model) featureCount() int {
	return len(m.Word.Vocabulary) + len(m.Char.Vocabulary)
}
