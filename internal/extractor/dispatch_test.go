package extractor

import (
	"encoding/json"
	"testing"

	"github.com/nmem/nmem/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_FileOps(t *testing.T) {
	tests := []struct {
		tool    string
		wantObs string
	}{
		{"Read", models.ObsFileRead},
		{"Write", models.ObsFileWrite},
		{"Edit", models.ObsFileEdit},
	}
	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			event := RawHookEvent{
				SessionID:     "s1",
				CWD:           "/proj/foo",
				HookEventName: models.EventPostToolUse,
				ToolName:      tt.tool,
				ToolInput:     []byte(`{"file_path":"/proj/foo/src/a.rs"}`),
			}
			got := Extract(event, "foo")
			require.False(t, got.Skip)
			assert.Equal(t, tt.wantObs, got.ObsType)
			assert.Equal(t, "src/a.rs", got.FilePath)
		})
	}
}

func TestExtract_BashGitSubclassification(t *testing.T) {
	tests := []struct {
		command string
		want    string
	}{
		{"git commit -m 'fix'", models.ObsGitCommit},
		{"git push origin main", models.ObsGitPush},
		{"gh pr create", models.ObsGitHub},
		{"ls -la", models.ObsCommand},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			event := RawHookEvent{
				SessionID:     "s1",
				CWD:           "/proj/foo",
				HookEventName: models.EventPostToolUse,
				ToolName:      "Bash",
				ToolInput:     mustJSON(map[string]any{"command": tt.command}),
			}
			got := Extract(event, "foo")
			assert.Equal(t, tt.want, got.ObsType)
		})
	}
}

func TestExtract_MCPToolNameGlob(t *testing.T) {
	event := RawHookEvent{
		SessionID:     "s1",
		CWD:           "/proj/foo",
		HookEventName: models.EventPostToolUse,
		ToolName:      "filesystem__read_file",
		ToolInput:     mustJSON(map[string]any{"path": "a.txt"}),
	}
	got := Extract(event, "foo")
	assert.Equal(t, models.ObsMCPCall, got.ObsType)
}

func TestExtract_UnknownToolFallsBackToToolOther(t *testing.T) {
	event := RawHookEvent{
		SessionID:     "s1",
		CWD:           "/proj/foo",
		HookEventName: models.EventPostToolUse,
		ToolName:      "SomeNewTool",
	}
	got := Extract(event, "foo")
	require.False(t, got.Skip)
	assert.Equal(t, models.ObsToolOther, got.ObsType)
}

func TestRawHookEvent_Validate(t *testing.T) {
	err := RawHookEvent{}.Validate()
	require.Error(t, err)

	err = RawHookEvent{SessionID: "a", CWD: "/b", HookEventName: "PostToolUse"}.Validate()
	require.NoError(t, err)
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "src/a.rs", NormalizePath("/proj/foo/src/a.rs", "foo", "/proj/foo"))
	assert.Equal(t, "/outside/a.rs", NormalizePath("/outside/a.rs", "foo", "/proj/foo"))
	assert.Equal(t, "relative/a.rs", NormalizePath("relative/a.rs", "foo", "/proj/foo"))
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
