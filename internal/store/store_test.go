package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/nmem/nmem/internal/models"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	t.Setenv("NMEM_NO_ENCRYPT", "1")
	db, err := Open(":memory:", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = CloseDB(db) })
	return db
}

func insertObs(t *testing.T, ctx context.Context, db *sql.DB, sessionID, obsType, filePath string, at time.Time) int64 {
	t.Helper()
	id, _, err := InsertObservation(ctx, db, InsertObservationParams{
		SessionID:   sessionID,
		CreatedAt:   at,
		ObsType:     obsType,
		SourceEvent: models.EventPostToolUse,
		ToolName:    "Read",
		FilePath:    filePath,
		Content:     "hello world",
	})
	require.NoError(t, err)
	return id
}

func TestSessionLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, UpsertSession(ctx, db, "s1", "proj", time.Now()))
	sess, err := GetSession(ctx, db, "s1")
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.Equal(t, "proj", sess.Project)
	require.False(t, sess.IsEnded())

	require.NoError(t, EndSession(ctx, db, "s1", time.Now(), map[string]int{"file_read": 2}))
	sess, err = GetSession(ctx, db, "s1")
	require.NoError(t, err)
	require.True(t, sess.IsEnded())

	require.NoError(t, SetSessionSummary(ctx, db, "s1", json.RawMessage(`{"intent":"x"}`)))
	sess, err = GetSession(ctx, db, "s1")
	require.NoError(t, err)
	require.True(t, sess.IsSummarized())

	sig, err := ObservationTypeSignature(ctx, db, "s1")
	require.NoError(t, err)
	require.Empty(t, sig)
}

func TestGetSession_Missing(t *testing.T) {
	db := newTestDB(t)
	sess, err := GetSession(context.Background(), db, "nope")
	require.NoError(t, err)
	require.Nil(t, sess)
}

func TestInsertObservation_RoundTrips(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, UpsertSession(ctx, db, "s1", "proj", time.Now()))

	id := insertObs(t, ctx, db, "s1", models.ObsFileRead, "a.go", time.Now())
	obs, err := ObservationByID(ctx, db, id)
	require.NoError(t, err)
	require.NotNil(t, obs)
	require.Equal(t, "hello world", obs.Content)
	require.Equal(t, "a.go", obs.FilePath)
	require.False(t, obs.IsPinned)
}

func TestInsertObservation_DedupeSkipsReadLike(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, UpsertSession(ctx, db, "s1", "proj", time.Now()))
	now := time.Now()

	id1, dup1, err := InsertObservation(ctx, db, InsertObservationParams{
		SessionID: "s1", CreatedAt: now, ObsType: models.ObsFileRead,
		SourceEvent: models.EventPostToolUse, ToolName: "Read", FilePath: "a.go",
		Content: "first", ReadLike: true,
	})
	require.NoError(t, err)
	require.False(t, dup1)

	id2, dup2, err := InsertObservation(ctx, db, InsertObservationParams{
		SessionID: "s1", CreatedAt: now, ObsType: models.ObsFileRead,
		SourceEvent: models.EventPostToolUse, ToolName: "Read", FilePath: "a.go",
		Content: "second", ReadLike: true,
	})
	require.NoError(t, err)
	require.True(t, dup2)
	require.Zero(t, id2)

	obs, err := ObservationByID(ctx, db, id1)
	require.NoError(t, err)
	require.Equal(t, "first", obs.Content)
}

func TestSetPinned(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, UpsertSession(ctx, db, "s1", "proj", time.Now()))
	id := insertObs(t, ctx, db, "s1", models.ObsFileRead, "a.go", time.Now())

	require.NoError(t, SetPinned(ctx, db, id, true))
	obs, err := ObservationByID(ctx, db, id)
	require.NoError(t, err)
	require.True(t, obs.IsPinned)

	pinned, err := PinnedObservations(ctx, db, "proj", false)
	require.NoError(t, err)
	require.Len(t, pinned, 1)

	require.NoError(t, SetPinned(ctx, db, id, false))
	obs, err = ObservationByID(ctx, db, id)
	require.NoError(t, err)
	require.False(t, obs.IsPinned)
}

func TestSetPinned_MissingObservation(t *testing.T) {
	db := newTestDB(t)
	err := SetPinned(context.Background(), db, 9999, true)
	require.Error(t, err)
}

func TestSearchObservations(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, UpsertSession(ctx, db, "s1", "proj", time.Now()))
	insertObs(t, ctx, db, "s1", models.ObsFileRead, "a.go", time.Now())

	results, err := SearchObservations(ctx, db, "proj", "", "hello", 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)

	results, err = SearchObservations(ctx, db, "proj", "", "nonexistentterm", 10, 0)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestRecentIntents_ExcludesZeroActionPrompts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, UpsertSession(ctx, db, "s1", "proj", time.Now()))

	idle, err := InsertPrompt(ctx, db, "s1", models.PromptSourceUser, "just thinking", time.Now())
	require.NoError(t, err)
	_ = idle

	active, err := InsertPrompt(ctx, db, "s1", models.PromptSourceUser, "do something", time.Now())
	require.NoError(t, err)
	_, _, err = InsertObservation(ctx, db, InsertObservationParams{
		SessionID: "s1", PromptID: &active, CreatedAt: time.Now(),
		ObsType: models.ObsFileRead, SourceEvent: models.EventPostToolUse,
		ToolName: "Read", FilePath: "a.go", Content: "x",
	})
	require.NoError(t, err)

	intents, err := RecentIntents(ctx, db, "proj", 10)
	require.NoError(t, err)
	require.Len(t, intents, 1)
	require.Equal(t, "do something", intents[0].Content)
}

func TestQueueTaskAndList(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	task, err := QueueTask(ctx, db, "refactor x", "proj")
	require.NoError(t, err)
	require.Equal(t, models.TaskStatusPending, task.Status)

	tasks, err := ListTasks(ctx, db, "proj", "pending")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, task.ID, tasks[0].ID)

	tasks, err = ListTasks(ctx, db, "proj", "done")
	require.NoError(t, err)
	require.Empty(t, tasks)
}

func TestGetOrCreateClassifierRun_IsIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	id1, err := GetOrCreateClassifierRun(ctx, db, models.DimensionPhase, "model-v1")
	require.NoError(t, err)
	id2, err := GetOrCreateClassifierRun(ctx, db, models.DimensionPhase, "model-v1")
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	id3, err := GetOrCreateClassifierRun(ctx, db, models.DimensionScope, "model-v1")
	require.NoError(t, err)
	require.NotEqual(t, id1, id3)
}

func TestClaimDedupe(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	key, window := DedupeKey("s1", models.ObsFileRead, "a.go", time.Now().Unix())

	err := Transact(ctx, db, func(tx *sql.Tx) error {
		dup, err := ClaimDedupe(ctx, tx, key, window)
		require.NoError(t, err)
		require.False(t, dup)
		return nil
	})
	require.NoError(t, err)

	err = Transact(ctx, db, func(tx *sql.Tx) error {
		dup, err := ClaimDedupe(ctx, tx, key, window)
		require.NoError(t, err)
		require.True(t, dup)
		return nil
	})
	require.NoError(t, err)
}

func TestPurge_ByID(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, UpsertSession(ctx, db, "s1", "proj", time.Now()))
	id := insertObs(t, ctx, db, "s1", models.ObsFileRead, "secret.go", time.Now())

	result, err := Purge(ctx, db, PurgeFilter{IDs: []int64{id}})
	require.NoError(t, err)
	require.Equal(t, 1, result.ObservationsDeleted)

	obs, err := ObservationByID(ctx, db, id)
	require.NoError(t, err)
	require.Nil(t, obs)
}

func TestPurge_ByProjectCleansOrphanSession(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, UpsertSession(ctx, db, "s1", "proj", time.Now()))
	insertObs(t, ctx, db, "s1", models.ObsFileRead, "a.go", time.Now())

	result, err := Purge(ctx, db, PurgeFilter{Project: "proj"})
	require.NoError(t, err)
	require.Equal(t, 1, result.ObservationsDeleted)
	require.Equal(t, 1, result.SessionsDeleted)
}

func TestSweep_RespectsPinAndSummarizedGate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	old := time.Now().Add(-100 * 24 * time.Hour)

	require.NoError(t, UpsertSession(ctx, db, "s1", "proj", old))
	require.NoError(t, EndSession(ctx, db, "s1", old, nil))
	require.NoError(t, SetSessionSummary(ctx, db, "s1", json.RawMessage(`{}`)))

	keep := insertObs(t, ctx, db, "s1", models.ObsFileRead, "keep.go", old)
	require.NoError(t, SetPinned(ctx, db, keep, true))
	gone := insertObs(t, ctx, db, "s1", models.ObsFileRead, "gone.go", old)

	windows := fixedWindows{days: 30, enabled: true}
	result, err := Sweep(ctx, db, windows, []string{models.ObsFileRead}, time.Now())
	require.NoError(t, err)
	require.Equal(t, 1, result.DeletedByType[models.ObsFileRead])

	obs, err := ObservationByID(ctx, db, gone)
	require.NoError(t, err)
	require.Nil(t, obs)

	obs, err = ObservationByID(ctx, db, keep)
	require.NoError(t, err)
	require.NotNil(t, obs)
}

type fixedWindows struct {
	days    int
	enabled bool
}

func (f fixedWindows) RetentionWindow(project, obsType string) (int, bool) {
	return f.days, f.enabled
}

func TestShouldSweep_FalseOnFreshDB(t *testing.T) {
	db := newTestDB(t)
	should, err := ShouldSweep(context.Background(), db, ":memory:", 1000)
	require.NoError(t, err)
	require.False(t, should)
}

func TestGetStatus(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, UpsertSession(ctx, db, "s1", "proj", time.Now()))
	insertObs(t, ctx, db, "s1", models.ObsFileRead, "a.go", time.Now())

	st, err := GetStatus(ctx, db, ":memory:")
	require.NoError(t, err)
	require.Equal(t, 1, st.SessionCount)
	require.Equal(t, 1, st.ObservationCount)
}

func TestCursorAdvance(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	offset, err := GetCursor(ctx, db, "s1")
	require.NoError(t, err)
	require.Zero(t, offset)

	require.NoError(t, UpsertSession(ctx, db, "s1", "proj", time.Now()))
	require.NoError(t, AdvanceCursor(ctx, db, "s1", 100))
	offset, err = GetCursor(ctx, db, "s1")
	require.NoError(t, err)
	require.Equal(t, int64(100), offset)

	require.NoError(t, AdvanceCursor(ctx, db, "s1", 250))
	offset, err = GetCursor(ctx, db, "s1")
	require.NoError(t, err)
	require.Equal(t, int64(250), offset)
}

func TestEpisodeLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, UpsertSession(ctx, db, "s1", "proj", time.Now()))
	promptID, err := InsertPrompt(ctx, db, "s1", models.PromptSourceUser, "fix the bug", time.Now())
	require.NoError(t, err)

	ep := models.Episode{
		ID:            "ep_1",
		SessionID:     "s1",
		StartedAt:     time.Now(),
		EndedAt:       time.Now(),
		Intent:        "fix the bug",
		FirstPromptID: promptID,
		LastPromptID:  promptID,
	}
	require.NoError(t, InsertEpisode(ctx, db, ep))
	require.NoError(t, SetEpisodeNarrative(ctx, db, "ep_1", "fixed it", []string{"watch for nils"}))

	episodes, err := ListEpisodesBySession(ctx, db, "s1")
	require.NoError(t, err)
	require.Len(t, episodes, 1)
	require.Equal(t, "fixed it", episodes[0].Summary)
	require.Equal(t, []string{"watch for nils"}, episodes[0].Learned)
}

func TestEncryption_RoundTripsWhenActive(t *testing.T) {
	t.Setenv("NMEM_KEY", "")
	dir := t.TempDir()
	t.Setenv("HOME", dir)

	db, err := Open(":memory:", "")
	require.NoError(t, err)
	defer func() { _ = CloseDB(db) }()

	require.True(t, IsEncryptionActive())

	sealed, err := EncryptColumn([]byte("plaintext"))
	require.NoError(t, err)
	require.NotEqual(t, []byte("plaintext"), sealed)

	plain, err := DecryptColumn(sealed)
	require.NoError(t, err)
	require.Equal(t, "plaintext", string(plain))

	ctx := context.Background()
	require.NoError(t, WriteEncryptionSentinel(ctx, db))
	encrypted, err := IsEncrypted(ctx, db)
	require.NoError(t, err)
	require.True(t, encrypted)
}
