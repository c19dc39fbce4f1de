package recorder

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/nmem/nmem/internal/config"
	"github.com/nmem/nmem/internal/extractor"
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

func newTestRecorder(t *testing.T) *Recorder {
	return &Recorder{
		DB:     newTestDB(t),
		Config: config.Default(),
	}
}

func TestRecord_SessionStartCreatesSession(t *testing.T) {
	r := newTestRecorder(t)
	ctx := context.Background()

	event := extractor.RawHookEvent{SessionID: "s1", CWD: "/proj/foo", HookEventName: "SessionStart"}
	require.NoError(t, r.Record(ctx, event))

	s, err := store.GetSession(ctx, r.DB, "s1")
	require.NoError(t, err)
	require.NotNil(t, s)
	require.Equal(t, "foo", s.Project)
}

func TestRecord_UserPromptInsertsFilteredPrompt(t *testing.T) {
	r := newTestRecorder(t)
	ctx := context.Background()

	event := extractor.RawHookEvent{
		SessionID:     "s1",
		CWD:           "/proj/foo",
		HookEventName: "UserPromptSubmit",
		Prompt:        "my key is sk-ant-abc123def456",
	}
	require.NoError(t, r.Record(ctx, event))

	prompts, err := store.ListPromptsBySession(ctx, r.DB, "s1")
	require.NoError(t, err)
	require.Len(t, prompts, 1)
	require.Contains(t, prompts[0].Content, "[REDACTED]")
	require.NotContains(t, prompts[0].Content, "sk-ant-abc123def456")
}

func TestRecord_ToolUsePersistsObservationAndDedupes(t *testing.T) {
	r := newTestRecorder(t)
	ctx := context.Background()

	start := extractor.RawHookEvent{SessionID: "s1", CWD: "/proj/foo", HookEventName: "SessionStart"}
	require.NoError(t, r.Record(ctx, start))

	toolInput, err := json.Marshal(map[string]any{"file_path": "/proj/foo/a.go"})
	require.NoError(t, err)
	event := extractor.RawHookEvent{
		SessionID:     "s1",
		CWD:           "/proj/foo",
		HookEventName: "PostToolUse",
		ToolName:      "Read",
		ToolInput:     toolInput,
	}
	require.NoError(t, r.Record(ctx, event))
	require.NoError(t, r.Record(ctx, event)) // immediate repeat: read-like dedupe should suppress

	obs, err := store.ListObservationsBySession(ctx, r.DB, "s1")
	require.NoError(t, err)
	require.Len(t, obs, 1)
	require.Equal(t, "a.go", obs[0].FilePath)
}

func TestRecord_ToolUseFailureSetsFailedMetadata(t *testing.T) {
	r := newTestRecorder(t)
	ctx := context.Background()

	start := extractor.RawHookEvent{SessionID: "s1", CWD: "/proj/foo", HookEventName: "SessionStart"}
	require.NoError(t, r.Record(ctx, start))

	toolInput, err := json.Marshal(map[string]any{"command": "go test ./..."})
	require.NoError(t, err)
	event := extractor.RawHookEvent{
		SessionID:     "s1",
		CWD:           "/proj/foo",
		HookEventName: "PostToolUseFailure",
		ToolName:      "Bash",
		ToolInput:     toolInput,
		ToolResponse:  json.RawMessage(`{"error":"exit status 1"}`),
	}
	require.NoError(t, r.Record(ctx, event))

	obs, err := store.ListObservationsBySession(ctx, r.DB, "s1")
	require.NoError(t, err)
	require.Len(t, obs, 1)
	require.True(t, obs[0].Failed())
}

func TestRecord_StopEndsSessionAndStampsSignature(t *testing.T) {
	r := newTestRecorder(t)
	ctx := context.Background()

	require.NoError(t, r.Record(ctx, extractor.RawHookEvent{SessionID: "s1", CWD: "/proj/foo", HookEventName: "SessionStart"}))
	require.NoError(t, r.Record(ctx, extractor.RawHookEvent{SessionID: "s1", CWD: "/proj/foo", HookEventName: "Stop"}))

	s, err := store.GetSession(ctx, r.DB, "s1")
	require.NoError(t, err)
	require.NotNil(t, s)
	require.True(t, s.IsEnded())
}

func TestRecord_UnknownEventNameErrors(t *testing.T) {
	r := newTestRecorder(t)
	err := r.Record(context.Background(), extractor.RawHookEvent{SessionID: "s1", CWD: "/proj/foo", HookEventName: "SomethingElse"})
	require.Error(t, err)
}
