// Package episodes segments a finished session's prompt sequence into
// narrative work units, using only user-prompt text as the intent signal.
// Tool calls are downstream execution; the boundary decision is always in
// the text. See boundaries.go for the detection algorithm and keywords.go
// for tokenization.
package episodes

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/nmem/nmem/internal/models"
	"github.com/nmem/nmem/internal/store"
	"github.com/nmem/nmem/internal/summarizer"
)

// narrativeMinPrompts is the prompt-count threshold at or above which an episode
// gets an LLM-generated narrative; shorter episodes inherit the prompt
// text as their intent.
const narrativeMinPrompts = 3

// Narrator is the narrow interface used for episode-scoped narrative
// generation, satisfied by *summarizer.Client — the same HTTP client the
// Summarizer uses for session-level narratives.
type Narrator interface {
	Narrate(ctx context.Context, transcript string) (summarizer.Narrative, error)
}

// Detector runs the boundary algorithm, the annotation pass, and
// (optionally) narrative generation. A nil Narrator degrades gracefully:
// episodes spanning three or more prompts simply keep their first-prompt
// text as intent instead of an LLM-generated summary.
type Detector struct {
	Narrator Narrator
}

// Detect implements the Recorder's EpisodeDetector interface: re-derive
// this session's episodes from its prompt sequence, annotate each from its
// observation range, freeze its obs_trace rollup, and persist. Running it
// again on the same prompt sequence re-derives the same episodes
// (idempotent), since InsertEpisode upserts by the deterministic id
// namespaced on (session, first_prompt_id).
func (d *Detector) Detect(ctx context.Context, db *sql.DB, sessionID string) error {
	prompts, err := store.ListPromptsBySession(ctx, db, sessionID)
	if err != nil {
		return fmt.Errorf("episodes: load prompts for session %s: %w", sessionID, err)
	}

	for _, sp := range detectSpans(prompts) {
		episode, err := d.annotate(ctx, db, sessionID, sp)
		if err != nil {
			return fmt.Errorf("episodes: annotate session %s prompts [%d,%d]: %w", sessionID, sp.FirstPromptID, sp.LastPromptID, err)
		}
		if err := store.InsertEpisode(ctx, db, episode); err != nil {
			return fmt.Errorf("episodes: persist episode for session %s: %w", sessionID, err)
		}
		if err := d.narrate(ctx, db, episode, sp, prompts); err != nil {
			return fmt.Errorf("episodes: narrate episode for session %s: %w", sessionID, err)
		}
	}
	return nil
}

func (d *Detector) annotate(ctx context.Context, db *sql.DB, sessionID string, sp span) (models.Episode, error) {
	obs, err := store.ObservationsInPromptRange(ctx, db, sessionID, sp.FirstPromptID, sp.LastPromptID)
	if err != nil {
		return models.Episode{}, err
	}

	hotFiles := make(map[string]int)
	failureCount := 0
	trace := make([]models.ObsFingerprint, 0, len(obs))
	for _, o := range obs {
		if o.FilePath != "" {
			hotFiles[o.FilePath]++
		}
		if o.Failed() {
			failureCount++
		}
		trace = append(trace, models.ObsFingerprint{
			Timestamp: o.CreatedAt,
			ObsType:   o.ObsType,
			FilePath:  o.FilePath,
			Phase:     o.Phase,
			Scope:     o.Scope,
			Locus:     o.Locus,
			Novelty:   o.Novelty,
			Friction:  o.Friction,
			Failed:    o.Failed(),
		})
	}

	episode := models.Episode{
		ID:               uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s:%d", sessionID, sp.FirstPromptID))).String(),
		SessionID:        sessionID,
		StartedAt:        sp.StartedAt,
		EndedAt:          sp.EndedAt,
		Intent:           sp.Intent,
		FirstPromptID:    sp.FirstPromptID,
		LastPromptID:     sp.LastPromptID,
		ObservationCount: len(obs),
		ObsTrace:         trace,
		FailureCount:     failureCount,
		HotFiles:         sortedHotFiles(hotFiles),
	}

	if failureCount > 0 {
		runID, err := store.GetOrCreateClassifierRun(ctx, db, models.DimensionFriction, models.FrictionModelHash)
		if err != nil {
			return models.Episode{}, err
		}
		if err := store.AssignEpisodeFriction(ctx, db, sessionID, sp.FirstPromptID, sp.LastPromptID, runID, models.LabelFrictionFriction); err != nil {
			return models.Episode{}, err
		}
	}

	return episode, nil
}

func (d *Detector) narrate(ctx context.Context, db *sql.DB, episode models.Episode, sp span, allPrompts []models.Prompt) error {
	promptCount := 0
	for _, p := range allPrompts {
		if p.ID >= sp.FirstPromptID && p.ID <= sp.LastPromptID {
			promptCount++
		}
	}
	if promptCount < narrativeMinPrompts || d.Narrator == nil {
		return nil
	}

	obs, err := store.ObservationsInPromptRange(ctx, db, episode.SessionID, sp.FirstPromptID, sp.LastPromptID)
	if err != nil {
		return err
	}
	var inRange []models.Prompt
	for _, p := range allPrompts {
		if p.ID >= sp.FirstPromptID && p.ID <= sp.LastPromptID {
			inRange = append(inRange, p)
		}
	}

	n, err := d.Narrator.Narrate(ctx, episodeTranscript(inRange, obs))
	if err != nil {
		return err
	}
	return store.SetEpisodeNarrative(ctx, db, episode.ID, n.Intent, n.Learned)
}

// episodeTranscript renders an episode's prompts and observations as plain
// text for the Narrator, scoped to a single work unit rather than a whole
// session.
func episodeTranscript(prompts []models.Prompt, obs []models.Observation) string {
	var b []byte
	b = append(b, "Prompts in this work unit:\n"...)
	for _, p := range prompts {
		b = append(b, '[')
		b = append(b, p.Source...)
		b = append(b, "] "...)
		b = append(b, p.Content...)
		b = append(b, '\n')
	}
	b = append(b, "\nObservations in this work unit:\n"...)
	for _, o := range obs {
		b = append(b, '[')
		b = append(b, o.ObsType...)
		b = append(b, "] "...)
		b = append(b, o.ToolName...)
		if o.FilePath != "" {
			b = append(b, ' ')
			b = append(b, o.FilePath...)
		}
		b = append(b, '\n')
	}
	return string(b)
}

func sortedHotFiles(counts map[string]int) []models.HotFile {
	if len(counts) == 0 {
		return nil
	}
	out := make([]models.HotFile, 0, len(counts))
	for path, count := range counts {
		out = append(out, models.HotFile{FilePath: path, Count: count})
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Count > out[j-1].Count; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
