package retriever

import (
	"math"
	"sort"
	"time"

	"github.com/nmem/nmem/internal/models"
)

// recencyHalfLifeDays is the exponential-decay half-life for the recency
// term: an observation from exactly this many days ago scores 0.5.
const recencyHalfLifeDays = 7.0

// typeWeights gives each observation type a fixed contribution to the
// composite score; unlisted types fall back to defaultTypeWeight.
var typeWeights = map[string]float64{
	models.ObsFileEdit:       1.0,
	models.ObsCommand:        0.67,
	models.ObsSessionCompact: 0.5,
	models.ObsMCPCall:        0.33,
}

const defaultTypeWeight = 0.17

const (
	sameProjectMatch  = 1.0
	otherProjectMatch = 0.3
)

// weights is the (recency, type, project) coefficient triple, chosen by
// whether the caller supplied a current project.
type weights struct {
	Recency, Type, Project float64
}

func weightsFor(hasProject bool) weights {
	if hasProject {
		return weights{Recency: 0.5, Type: 0.3, Project: 0.2}
	}
	return weights{Recency: 0.6, Type: 0.4, Project: 0}
}

func recency(age time.Duration) float64 {
	days := age.Hours() / 24
	if days < 0 {
		days = 0
	}
	return math.Exp(-math.Ln2 * days / recencyHalfLifeDays)
}

func typeWeight(obsType string) float64 {
	if w, ok := typeWeights[obsType]; ok {
		return w
	}
	return defaultTypeWeight
}

func projectMatch(obsProject, currentProject string) float64 {
	if currentProject == "" {
		return 0
	}
	if obsProject == currentProject {
		return sameProjectMatch
	}
	return otherProjectMatch
}

// Scored pairs an observation with its composite score. Exported so
// internal/contextbuilder can share this exact ranking path rather than
// recomputing it behind the RPC layer.
type Scored struct {
	Observation models.Observation
	Score       float64
}

// scored is kept as the package-internal alias used by the tool handlers
// in this package.
type scored = Scored

// Score computes the composite score for one observation relative to now
// and an optional current project (empty string means cross-project).
func Score(o models.Observation, obsProject, currentProject string, now time.Time) float64 {
	w := weightsFor(currentProject != "")
	return w.Recency*recency(now.Sub(o.CreatedAt)) +
		w.Type*typeWeight(o.ObsType) +
		w.Project*projectMatch(obsProject, currentProject)
}

func score(o models.Observation, obsProject, currentProject string, now time.Time) float64 {
	return Score(o, obsProject, currentProject, now)
}

// RankAndDedupe scores every candidate, keeps the highest-scored row per
// file path (rows with no file path are never deduplicated against each
// other), and returns the result sorted by descending score.
func RankAndDedupe(candidates []models.Observation, projectOf func(models.Observation) string, currentProject string, now time.Time) []Scored {
	best := make(map[string]Scored)
	var unpathed []Scored

	for _, o := range candidates {
		s := Scored{Observation: o, Score: Score(o, projectOf(o), currentProject, now)}
		if o.FilePath == "" {
			unpathed = append(unpathed, s)
			continue
		}
		if existing, ok := best[o.FilePath]; !ok || s.Score > existing.Score {
			best[o.FilePath] = s
		}
	}

	out := make([]Scored, 0, len(best)+len(unpathed))
	for _, s := range best {
		out = append(out, s)
	}
	out = append(out, unpathed...)

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func rankAndDedupe(candidates []models.Observation, projectOf func(models.Observation) string, currentProject string, now time.Time) []scored {
	return RankAndDedupe(candidates, projectOf, currentProject, now)
}
