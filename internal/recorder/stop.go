package recorder

import (
	"context"
	"time"

	"github.com/nmem/nmem/internal/extractor"
	"github.com/nmem/nmem/internal/models"
	"github.com/nmem/nmem/internal/secretfilter"
	"github.com/nmem/nmem/internal/store"
)

// handleStop runs the full end-of-session pipeline: replay the transcript
// cursor forward for agent-reasoning blocks, compute and stamp the session
// signature, invoke the Summarizer and Episode Detector (both blocking but
// non-fatal), opportunistically sweep, and checkpoint the WAL.
func (r *Recorder) handleStop(ctx context.Context, event extractor.RawHookEvent, project string) error {
	if err := store.UpsertSession(ctx, r.DB, event.SessionID, project, time.Now()); err != nil {
		return err
	}

	if err := r.replayTranscript(ctx, event, project); err != nil {
		r.logf("recorder: transcript replay failed for session %s: %v", event.SessionID, err)
	}

	signature, err := store.ObservationTypeSignature(ctx, r.DB, event.SessionID)
	if err != nil {
		return err
	}
	if err := store.EndSession(ctx, r.DB, event.SessionID, time.Now(), signature); err != nil {
		return err
	}

	if r.Summarizer != nil {
		if err := r.Summarizer.Summarize(ctx, r.DB, event.SessionID); err != nil {
			r.logf("recorder: summarizer failed for session %s: %v", event.SessionID, err)
		}
	}
	if r.Episodes != nil {
		if err := r.Episodes.Detect(ctx, r.DB, event.SessionID); err != nil {
			r.logf("recorder: episode detection failed for session %s: %v", event.SessionID, err)
		}
	}
	if r.Sweep != nil {
		if err := r.Sweep.MaybeSweep(ctx, r.DB); err != nil {
			r.logf("recorder: sweep on stop failed: %v", err)
		}
	}

	return store.CheckpointWAL(ctx, r.DB, "TRUNCATE")
}

func (r *Recorder) replayTranscript(ctx context.Context, event extractor.RawHookEvent, project string) error {
	offset, err := store.GetCursor(ctx, r.DB, event.SessionID)
	if err != nil {
		return err
	}

	blocks, newOffset, err := reasoningBlocks(event.TranscriptPath, offset)
	if err != nil {
		return err
	}

	opts := r.filterOpts(project)
	for _, block := range blocks {
		filtered, _, ferr := secretfilter.Redact(block, opts)
		if ferr != nil {
			return ferr
		}
		filtered = truncateBytes(filtered, maxPromptContentBytes)
		if _, ierr := store.InsertPrompt(ctx, r.DB, event.SessionID, models.PromptSourceAgent, filtered, time.Now()); ierr != nil {
			return ierr
		}
	}

	return store.AdvanceCursor(ctx, r.DB, event.SessionID, newOffset)
}
