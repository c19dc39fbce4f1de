package recorder

import (
	"context"
	"fmt"
	"time"

	"github.com/nmem/nmem/internal/extractor"
	"github.com/nmem/nmem/internal/models"
	"github.com/nmem/nmem/internal/secretfilter"
	"github.com/nmem/nmem/internal/store"
)

// maxPromptContentBytes truncates prompt content after filtering.
const maxPromptContentBytes = 2000

func (r *Recorder) handleUserPrompt(ctx context.Context, event extractor.RawHookEvent, project string) error {
	if err := store.UpsertSession(ctx, r.DB, event.SessionID, project, time.Now()); err != nil {
		return err
	}

	filtered, _, err := secretfilter.Redact(event.Prompt, r.filterOpts(project))
	if err != nil {
		return fmt.Errorf("filter prompt: %w", err)
	}
	filtered = truncateBytes(filtered, maxPromptContentBytes)

	_, err = store.InsertPrompt(ctx, r.DB, event.SessionID, models.PromptSourceUser, filtered, time.Now())
	return err
}

func truncateBytes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
