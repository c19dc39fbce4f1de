package classifiers

import (
	"path/filepath"

	"github.com/nmem/nmem/internal/models"
)

// dimension pairs a dimension name with its positive/negative label pair,
// so Set.ScoreAll can iterate uniformly.
type dimension struct {
	name     string
	positive string
	negative string
}

var perObservationDimensions = []dimension{
	{models.DimensionPhase, models.LabelPhaseAct, models.LabelPhaseThink},
	{models.DimensionScope, models.LabelScopeDiverge, models.LabelScopeConverge},
	{models.DimensionLocus, models.LabelLocusExternal, models.LabelLocusInternal},
	{models.DimensionNovelty, models.LabelNoveltyNovel, models.LabelNoveltyRoutine},
}

// Label is one dimension's inference result for a single observation.
type Label struct {
	Dimension  string
	Value      string
	Confidence float64
	ModelHash  string
	OK         bool
}

// Set holds one Engine per per-observation dimension, all rooted at a
// common models directory (modelsDir/<dimension>.json).
type Set struct {
	engines map[string]*Engine
}

// NewSet builds a Set from a models directory. Engines are constructed
// eagerly but each one's weight file is only read on first Score call, so a
// missing directory or missing individual files degrades gracefully rather
// than failing at construction time.
func NewSet(modelsDir string) *Set {
	s := &Set{engines: make(map[string]*Engine, len(perObservationDimensions))}
	for _, d := range perObservationDimensions {
		s.engines[d.name] = NewEngine(filepath.Join(modelsDir, d.name+".json"))
	}
	return s
}

// ScoreAll runs every per-observation dimension against text, returning one
// Label per dimension (OK=false entries for dimensions whose model could
// not be loaded).
func (s *Set) ScoreAll(text string) []Label {
	out := make([]Label, 0, len(perObservationDimensions))
	for _, d := range perObservationDimensions {
		e := s.engines[d.name]
		value, confidence, ok := e.Score(text, d.positive, d.negative)
		out = append(out, Label{
			Dimension:  d.name,
			Value:      value,
			Confidence: confidence,
			ModelHash:  e.ModelHash(),
			OK:         ok,
		})
	}
	return out
}
