package contextbuilder

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/nmem/nmem/internal/models"
	"github.com/nmem/nmem/internal/store"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	t.Setenv("NMEM_NO_ENCRYPT", "1")
	db, err := store.Open(":memory:", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.CloseDB(db) })
	return db
}

func TestBuild_EmptyDatabaseProducesAllSections(t *testing.T) {
	db := newTestDB(t)
	out, err := Build(context.Background(), db, Options{Project: "proj"})
	require.NoError(t, err)
	require.Contains(t, out, "## Recent Intents")
	require.Contains(t, out, "## Session Summaries")
	require.Contains(t, out, "## Recent File Edits and Git Milestones")
	require.Contains(t, out, "## Pinned")
	require.Contains(t, out, "_none yet_")
}

func TestBuild_IncludesRecentIntentAndPinned(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, store.UpsertSession(ctx, db, "s1", "proj", time.Now()))

	promptID, err := store.InsertPrompt(ctx, db, "s1", models.PromptSourceUser, "fix the login bug", time.Now())
	require.NoError(t, err)
	_, _, err = store.InsertObservation(ctx, db, store.InsertObservationParams{
		SessionID: "s1", PromptID: &promptID, CreatedAt: time.Now(),
		ObsType: models.ObsFileEdit, SourceEvent: models.EventPostToolUse,
		ToolName: "Edit", FilePath: "auth.go", Content: "diff content",
	})
	require.NoError(t, err)

	pinnedID, _, err := store.InsertObservation(ctx, db, store.InsertObservationParams{
		SessionID: "s1", CreatedAt: time.Now(),
		ObsType: models.ObsCommand, SourceEvent: models.EventPostToolUse,
		ToolName: "Bash", Content: "go test ./...",
	})
	require.NoError(t, err)
	require.NoError(t, store.SetPinned(ctx, db, pinnedID, true))

	out, err := Build(ctx, db, Options{Project: "proj"})
	require.NoError(t, err)
	require.Contains(t, out, "fix the login bug")
	require.Contains(t, out, "auth.go")
	require.Contains(t, out, "go test ./...")
}

func TestBuild_RecoveryModeWidensLimitsWithoutError(t *testing.T) {
	db := newTestDB(t)
	out, err := Build(context.Background(), db, Options{Project: "proj", RecoveryMode: true})
	require.NoError(t, err)
	require.NotEmpty(t, out)
}

func TestBuild_SkipsCrossProjectSectionWhenNothingPinnedElsewhere(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, store.UpsertSession(ctx, db, "s1", "proj", time.Now()))
	id, _, err := store.InsertObservation(ctx, db, store.InsertObservationParams{
		SessionID: "s1", CreatedAt: time.Now(), ObsType: models.ObsCommand,
		SourceEvent: models.EventPostToolUse, ToolName: "Bash", Content: "ls",
	})
	require.NoError(t, err)
	require.NoError(t, store.SetPinned(ctx, db, id, true))

	out, err := Build(ctx, db, Options{Project: "proj"})
	require.NoError(t, err)
	require.NotContains(t, out, "Pinned (other projects)")
}
