package episodes

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

func seedSession(t *testing.T, db *sql.DB, id string) {
	t.Helper()
	require.NoError(t, store.UpsertSession(context.Background(), db, id, "proj", time.Now()))
}

func TestKeywords_DropsStopWordsAndShortTokens(t *testing.T) {
	kw := keywords("Can we add retry logic to the sweep command?")
	require.True(t, kw["retry"])
	require.True(t, kw["logic"])
	require.True(t, kw["sweep"])
	require.True(t, kw["command"])
	require.False(t, kw["can"])
	require.False(t, kw["we"])
	require.False(t, kw["to"])
	require.True(t, kw["add"]) // length 3, kept
}

func TestIsContinuation_ShortPromptsAreContinuations(t *testing.T) {
	require.True(t, isContinuation("yes"))
	require.True(t, isContinuation("ok push"))
	require.True(t, isContinuation("5,6"))
	require.False(t, isContinuation("please add retry logic to the sweep command"))
}

func TestJaccard_EmptySetsHaveZeroSimilarity(t *testing.T) {
	require.Equal(t, 0.0, jaccard(map[string]bool{}, map[string]bool{}))
}

func TestAdjustedThreshold_LongGapLowersThreshold(t *testing.T) {
	require.Equal(t, baseSimilarityThreshold, adjustedThreshold(5*time.Minute))
	require.Less(t, adjustedThreshold(90*time.Minute), baseSimilarityThreshold)
	require.GreaterOrEqual(t, adjustedThreshold(10*time.Hour), minSimilarityThreshold)
}

func TestDetectSpans_SplitsOnLowSimilarityTopicChange(t *testing.T) {
	base := time.Now()
	prompts := []models.Prompt{
		{ID: 1, Source: models.PromptSourceUser, Content: "add retry logic to the sweep command", CreatedAt: base},
		{ID: 2, Source: models.PromptSourceUser, Content: "yes", CreatedAt: base.Add(time.Minute)},
		{ID: 3, Source: models.PromptSourceUser, Content: "now document the purge retention windows in the readme", CreatedAt: base.Add(2 * time.Minute)},
	}
	spans := detectSpans(prompts)
	require.Len(t, spans, 2)
	require.Equal(t, int64(1), spans[0].FirstPromptID)
	require.Equal(t, int64(2), spans[0].LastPromptID)
	require.Equal(t, int64(3), spans[1].FirstPromptID)
}

func TestDetectSpans_MergesSimilarFollowupWithoutSplitting(t *testing.T) {
	base := time.Now()
	prompts := []models.Prompt{
		{ID: 1, Source: models.PromptSourceUser, Content: "add retry logic to the sweep command", CreatedAt: base},
		{ID: 2, Source: models.PromptSourceUser, Content: "make the sweep retry logic configurable", CreatedAt: base.Add(time.Minute)},
	}
	spans := detectSpans(prompts)
	require.Len(t, spans, 1)
	require.Equal(t, int64(2), spans[0].LastPromptID)
}

func TestDetector_Detect_PersistsEpisodeAndAssignsFriction(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedSession(t, db, "s1")

	base := time.Now()
	_, err := store.InsertPrompt(ctx, db, "s1", models.PromptSourceUser, "fix the flaky sweep test", base)
	require.NoError(t, err)
	prompts, err := store.ListPromptsBySession(ctx, db, "s1")
	require.NoError(t, err)
	require.Len(t, prompts, 1)

	_, _, err = store.InsertObservation(ctx, db, store.InsertObservationParams{
		SessionID:   "s1",
		PromptID:    &prompts[0].ID,
		CreatedAt:   base,
		ObsType:     models.ObsCommand,
		SourceEvent: models.EventPostToolFailure,
		ToolName:    "Bash",
		Content:     "go test ./...",
		Metadata:    []byte(`{"failed":true}`),
	})
	require.NoError(t, err)

	d := &Detector{}
	require.NoError(t, d.Detect(ctx, db, "s1"))

	episodes, err := store.ListEpisodesBySession(ctx, db, "s1")
	require.NoError(t, err)
	require.Len(t, episodes, 1)
	require.Equal(t, 1, episodes[0].FailureCount)
	require.Len(t, episodes[0].ObsTrace, 1)

	obs, err := store.ListObservationsBySession(ctx, db, "s1")
	require.NoError(t, err)
	require.Len(t, obs, 1)
	require.Equal(t, models.LabelFrictionFriction, obs[0].Friction)
}

func TestDetector_Detect_IsIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedSession(t, db, "s1")

	_, err := store.InsertPrompt(ctx, db, "s1", models.PromptSourceUser, "add a new retention window", time.Now())
	require.NoError(t, err)

	d := &Detector{}
	require.NoError(t, d.Detect(ctx, db, "s1"))
	require.NoError(t, d.Detect(ctx, db, "s1"))

	episodes, err := store.ListEpisodesBySession(ctx, db, "s1")
	require.NoError(t, err)
	require.Len(t, episodes, 1)
}
