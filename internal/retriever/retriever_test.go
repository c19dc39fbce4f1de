package retriever

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/nmem/nmem/internal/models"
	"github.com/nmem/nmem/internal/store"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, project string) (*Server, *sql.DB) {
	t.Helper()
	t.Setenv("NMEM_NO_ENCRYPT", "1")
	db, err := store.Open(":memory:", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.CloseDB(db) })
	return New(db, project), db
}

func TestScore_RecentSameProjectBeatsOldCrossProject(t *testing.T) {
	now := time.Now()
	recent := models.Observation{ObsType: models.ObsFileEdit, CreatedAt: now}
	old := models.Observation{ObsType: models.ObsFileEdit, CreatedAt: now.Add(-30 * 24 * time.Hour)}

	recentScore := Score(recent, "proj", "proj", now)
	oldScore := Score(old, "other", "proj", now)
	require.Greater(t, recentScore, oldScore)
}

func TestRankAndDedupe_KeepsHighestPerFilePath(t *testing.T) {
	now := time.Now()
	low := models.Observation{ID: 1, ObsType: models.ObsFileEdit, FilePath: "a.go", CreatedAt: now.Add(-10 * 24 * time.Hour)}
	high := models.Observation{ID: 2, ObsType: models.ObsFileEdit, FilePath: "a.go", CreatedAt: now}

	ranked := RankAndDedupe([]models.Observation{low, high}, func(models.Observation) string { return "proj" }, "proj", now)
	require.Len(t, ranked, 1)
	require.Equal(t, int64(2), ranked[0].Observation.ID)
}

func TestRankAndDedupe_NeverDeduplicatesPathlessRows(t *testing.T) {
	now := time.Now()
	a := models.Observation{ID: 1, ObsType: models.ObsCommand, CreatedAt: now}
	b := models.Observation{ID: 2, ObsType: models.ObsCommand, CreatedAt: now}

	ranked := RankAndDedupe([]models.Observation{a, b}, func(models.Observation) string { return "proj" }, "proj", now)
	require.Len(t, ranked, 2)
}

func TestToolSearch_FindsInsertedObservation(t *testing.T) {
	s, db := newTestServer(t, "proj")
	ctx := context.Background()
	require.NoError(t, store.UpsertSession(ctx, db, "s1", "proj", time.Now()))
	_, _, err := store.InsertObservation(ctx, db, store.InsertObservationParams{
		SessionID: "s1", CreatedAt: time.Now(), ObsType: models.ObsFileRead,
		SourceEvent: models.EventPostToolUse, ToolName: "Read", FilePath: "a.go", Content: "hello world",
	})
	require.NoError(t, err)

	_, result, err := s.toolSearch(ctx, nil, searchArgs{Query: "hello"})
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
}

func TestToolCreateMarkerAndGetObservations(t *testing.T) {
	s, db := newTestServer(t, "proj")
	ctx := context.Background()
	require.NoError(t, store.UpsertSession(ctx, db, "s1", "proj", time.Now()))
	id, _, err := store.InsertObservation(ctx, db, store.InsertObservationParams{
		SessionID: "s1", CreatedAt: time.Now(), ObsType: models.ObsFileRead,
		SourceEvent: models.EventPostToolUse, ToolName: "Read", FilePath: "a.go", Content: "hello",
	})
	require.NoError(t, err)

	_, markerResult, err := s.toolCreateMarker(ctx, nil, createMarkerArgs{ObservationID: id})
	require.NoError(t, err)
	require.True(t, markerResult.Pinned)

	_, getResult, err := s.toolGetObservations(ctx, nil, getObservationsArgs{IDs: []int64{id}})
	require.NoError(t, err)
	require.Len(t, getResult.Observations, 1)
	require.True(t, getResult.Observations[0].IsPinned)
}

func TestToolQueueTask(t *testing.T) {
	s, _ := newTestServer(t, "proj")
	_, result, err := s.toolQueueTask(context.Background(), nil, queueTaskArgs{Prompt: "refactor x"})
	require.NoError(t, err)
	require.Equal(t, models.TaskStatusPending, result.Task.Status)
	require.Equal(t, "proj", result.Task.Project)
}

func TestToolCurrentStance_DefaultsWhenNoObservations(t *testing.T) {
	s, db := newTestServer(t, "proj")
	ctx := context.Background()
	require.NoError(t, store.UpsertSession(ctx, db, "s1", "proj", time.Now()))

	_, result, err := s.toolCurrentStance(ctx, nil, currentStanceArgs{SessionID: "s1"})
	require.NoError(t, err)
	require.Equal(t, models.LabelPhaseThink, result.Phase)
	require.Equal(t, models.LabelScopeConverge, result.Scope)
}

func TestToolSessionTrace_GroupsByPrompt(t *testing.T) {
	s, db := newTestServer(t, "proj")
	ctx := context.Background()
	require.NoError(t, store.UpsertSession(ctx, db, "s1", "proj", time.Now()))
	promptID, err := store.InsertPrompt(ctx, db, "s1", models.PromptSourceUser, "do the thing", time.Now())
	require.NoError(t, err)
	_, _, err = store.InsertObservation(ctx, db, store.InsertObservationParams{
		SessionID: "s1", PromptID: &promptID, CreatedAt: time.Now(),
		ObsType: models.ObsFileEdit, SourceEvent: models.EventPostToolUse, ToolName: "Edit", FilePath: "a.go", Content: "x",
	})
	require.NoError(t, err)

	_, result, err := s.toolSessionTrace(ctx, nil, sessionTraceArgs{SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, result.Steps, 1)
	require.NotNil(t, result.Steps[0].Prompt)
	require.Len(t, result.Steps[0].Observations, 1)
}

func TestToolSessionTrace_UnknownSessionErrors(t *testing.T) {
	s, _ := newTestServer(t, "proj")
	_, _, err := s.toolSessionTrace(context.Background(), nil, sessionTraceArgs{SessionID: "nope"})
	require.Error(t, err)
}
