package control

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/nmem/nmem/internal/config"
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

func TestLoop_MaybeSweep_NoOpWhenDisabled(t *testing.T) {
	db := newTestDB(t)
	l := &Loop{Config: config.Config{Retention: config.RetentionConfig{Enabled: false}}}
	require.NoError(t, l.MaybeSweep(context.Background(), db))
}

func TestLoop_Sweep_DeletesExpiredSummarizedSessionObservations(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertSession(ctx, db, "s1", "proj", time.Now().Add(-200*24*time.Hour)))
	require.NoError(t, store.EndSession(ctx, db, "s1", time.Now().Add(-200*24*time.Hour), map[string]int{"file_read": 1}))
	require.NoError(t, store.SetSessionSummary(ctx, db, "s1", []byte(`{"intent":"done"}`)))

	_, _, err := store.InsertObservation(ctx, db, store.InsertObservationParams{
		SessionID:   "s1",
		CreatedAt:   time.Now().Add(-200 * 24 * time.Hour),
		ObsType:     models.ObsFileRead,
		SourceEvent: models.EventPostToolUse,
		ToolName:    "Read",
		FilePath:    "a.go",
		Content:     "package main",
	})
	require.NoError(t, err)

	l := &Loop{Config: config.Default()}
	result, err := l.Sweep(ctx, db)
	require.NoError(t, err)
	require.Equal(t, 1, result.DeletedByType[models.ObsFileRead])

	obs, err := store.ListObservationsBySession(ctx, db, "s1")
	require.NoError(t, err)
	require.Empty(t, obs)
}

func TestLoop_Sweep_LeavesUnsummarizedSessionAlone(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertSession(ctx, db, "s1", "proj", time.Now().Add(-200*24*time.Hour)))
	_, _, err := store.InsertObservation(ctx, db, store.InsertObservationParams{
		SessionID:   "s1",
		CreatedAt:   time.Now().Add(-200 * 24 * time.Hour),
		ObsType:     models.ObsFileRead,
		SourceEvent: models.EventPostToolUse,
		ToolName:    "Read",
		FilePath:    "a.go",
		Content:     "package main",
	})
	require.NoError(t, err)

	l := &Loop{Config: config.Default()}
	_, err = l.Sweep(ctx, db)
	require.NoError(t, err)

	obs, err := store.ListObservationsBySession(ctx, db, "s1")
	require.NoError(t, err)
	require.Len(t, obs, 1)
}

func TestLoop_Purge_RemovesByFilter(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertSession(ctx, db, "s1", "proj", time.Now()))
	id, _, err := store.InsertObservation(ctx, db, store.InsertObservationParams{
		SessionID:   "s1",
		CreatedAt:   time.Now(),
		ObsType:     models.ObsFileRead,
		SourceEvent: models.EventPostToolUse,
		ToolName:    "Read",
		FilePath:    "secret.go",
		Content:     "package main",
	})
	require.NoError(t, err)

	l := &Loop{Config: config.Default()}
	result, err := l.Purge(ctx, db, store.PurgeFilter{IDs: []int64{id}})
	require.NoError(t, err)
	require.Equal(t, 1, result.ObservationsDeleted)
}

func TestLoop_Maintain_RebuildsFTSAndCheckpoints(t *testing.T) {
	db := newTestDB(t)
	l := &Loop{}
	require.NoError(t, l.Maintain(context.Background(), db))
}
