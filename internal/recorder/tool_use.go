package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nmem/nmem/internal/extractor"
	"github.com/nmem/nmem/internal/models"
	"github.com/nmem/nmem/internal/secretfilter"
	"github.com/nmem/nmem/internal/store"
)

func (r *Recorder) handleToolUse(ctx context.Context, event extractor.RawHookEvent, project string, failure bool) error {
	if err := store.UpsertSession(ctx, r.DB, event.SessionID, project, time.Now()); err != nil {
		return err
	}

	var fact extractor.Extracted
	if failure {
		fact = extractor.ExtractFailure(event, project)
	} else {
		fact = extractor.Extract(event, project)
	}
	if fact.Skip {
		return nil
	}

	opts := r.filterOpts(project)
	filteredContent, redactedContent, err := secretfilter.Redact(fact.Content, opts)
	if err != nil {
		return fmt.Errorf("filter observation content: %w", err)
	}

	metadata := fact.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataRedacted := false
	if failure {
		metadata["failed"] = true
		if resp := truncatedFailureResponse(event.ToolResponse); resp != "" {
			filteredResp, hit, rerr := secretfilter.Redact(resp, opts)
			if rerr != nil {
				return fmt.Errorf("filter failure response: %w", rerr)
			}
			metadata["response"] = filteredResp
			metadataRedacted = hit
		}
	}

	redactedMeta, metaHit, err := secretfilter.RedactJSON(metadata, opts)
	if err != nil {
		return fmt.Errorf("filter observation metadata: %w", err)
	}
	if metaHit || metadataRedacted || redactedContent {
		if m, ok := redactedMeta.(map[string]any); ok {
			m["redacted"] = true
			redactedMeta = m
		}
	}

	metadataJSON, err := json.Marshal(redactedMeta)
	if err != nil {
		return fmt.Errorf("marshal observation metadata: %w", err)
	}

	labels := store.LabelSet{}
	if r.Classifiers != nil {
		for _, l := range r.Classifiers.ScoreAll(filteredContent) {
			if !l.OK {
				continue
			}
			runID, rerr := store.GetOrCreateClassifierRun(ctx, r.DB, l.Dimension, l.ModelHash)
			if rerr != nil {
				r.logf("recorder: classifier run lookup failed for %s: %v", l.Dimension, rerr)
				continue
			}
			applyLabel(&labels, l.Dimension, l.Value, runID)
		}
	}

	promptID, err := store.LatestPromptID(ctx, r.DB, event.SessionID)
	if err != nil {
		return fmt.Errorf("resolve latest prompt: %w", err)
	}

	sourceEvent := models.EventPostToolUse
	if failure {
		sourceEvent = models.EventPostToolFailure
	}

	_, _, err = store.InsertObservation(ctx, r.DB, store.InsertObservationParams{
		SessionID:   event.SessionID,
		PromptID:    promptID,
		CreatedAt:   time.Now(),
		ObsType:     fact.ObsType,
		SourceEvent: sourceEvent,
		ToolName:    event.ToolName,
		FilePath:    fact.FilePath,
		Content:     filteredContent,
		Metadata:    metadataJSON,
		ReadLike:    readLikeTypes[fact.ObsType],
		Labels:      labels,
	})
	return err
}

func applyLabel(labels *store.LabelSet, dimension, value string, runID int64) {
	id := runID
	switch dimension {
	case models.DimensionPhase:
		labels.Phase, labels.PhaseRunID = value, &id
	case models.DimensionScope:
		labels.Scope, labels.ScopeRunID = value, &id
	case models.DimensionLocus:
		labels.Locus, labels.LocusRunID = value, &id
	case models.DimensionNovelty:
		labels.Novelty, labels.NoveltyRunID = value, &id
	}
}

// truncatedFailureResponse renders the tool_response payload as a bounded
// text blob for storage in observation metadata.
func truncatedFailureResponse(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	s := string(raw)
	return truncateBytes(s, maxPromptContentBytes)
}
