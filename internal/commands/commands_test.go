package commands

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/nmem/nmem/internal/output"
	"github.com/nmem/nmem/internal/store"
	"github.com/stretchr/testify/require"
)

// testEnv points the CLI at a throwaway, unencrypted database and config
// directory so commands can run without touching the developer's real
// ~/.nmem.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("NMEM_DB", filepath.Join(dir, "nmem.db"))
	t.Setenv("NMEM_NO_ENCRYPT", "1")
	dbPathOverride = ""

	// Pre-run migrations against the file so read-only commands (which
	// open via store.OpenNoMigrate) find the schema already in place.
	db, err := store.Open(filepath.Join(dir, "nmem.db"), "")
	require.NoError(t, err)
	require.NoError(t, store.CloseDB(db))

	return dir
}

// captureStdout runs fn with os.Stdout redirected to a pipe and returns
// everything written to it, since output.PrintSuccess/PrintError always
// target os.Stdout directly rather than an injectable writer.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	orig := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()

	require.NoError(t, w.Close())
	var buf bytes.Buffer
	_, err = io.Copy(&buf, r)
	require.NoError(t, err)
	return buf.String()
}

func decodeResponse(t *testing.T, raw string) output.Response {
	t.Helper()
	var resp output.Response
	require.NoError(t, json.Unmarshal([]byte(raw), &resp))
	return resp
}

func TestStatusCmd_ReportsEmptyDatabase(t *testing.T) {
	testEnv(t)
	cmd := newStatusCmd()
	cmd.SetArgs(nil)

	out := captureStdout(t, func() {
		require.NoError(t, cmd.Execute())
	})
	resp := decodeResponse(t, out)
	require.True(t, resp.Success)
}

func TestPinCmd_RequiresNumericID(t *testing.T) {
	testEnv(t)
	cmd := newPinCmd()
	cmd.SetArgs([]string{"not-a-number"})

	out := captureStdout(t, func() {
		require.Error(t, cmd.Execute())
	})
	resp := decodeResponse(t, out)
	require.False(t, resp.Success)
}

func TestQueueAddAndList(t *testing.T) {
	testEnv(t)

	addCmd := newQueueAddCmd()
	addCmd.SetArgs([]string{"refactor the parser", "--project", "proj"})
	addOut := captureStdout(t, func() {
		require.NoError(t, addCmd.Execute())
	})
	addResp := decodeResponse(t, addOut)
	require.True(t, addResp.Success)

	listCmd := newQueueListCmd()
	listCmd.SetArgs([]string{"--project", "proj"})
	listOut := captureStdout(t, func() {
		require.NoError(t, listCmd.Execute())
	})
	listResp := decodeResponse(t, listOut)
	require.True(t, listResp.Success)

	data, err := json.Marshal(listResp.Data)
	require.NoError(t, err)
	require.Contains(t, string(data), "refactor the parser")
}

func TestPurgeCmd_RefusesWithoutConfirm(t *testing.T) {
	testEnv(t)
	cmd := newPurgeCmd()
	cmd.SetArgs([]string{"--project", "proj"})

	out := captureStdout(t, func() {
		require.Error(t, cmd.Execute())
	})
	resp := decodeResponse(t, out)
	require.False(t, resp.Success)
	require.Contains(t, resp.Error, "--confirm")
}

func TestPurgeCmd_RunsWithConfirm(t *testing.T) {
	testEnv(t)
	cmd := newPurgeCmd()
	cmd.SetArgs([]string{"--project", "proj", "--confirm"})

	out := captureStdout(t, func() {
		require.NoError(t, cmd.Execute())
	})
	resp := decodeResponse(t, out)
	require.True(t, resp.Success)
}

func TestEncryptCmd_ReportsStatus(t *testing.T) {
	testEnv(t)
	cmd := newEncryptCmd()
	cmd.SetArgs(nil)

	out := captureStdout(t, func() {
		require.NoError(t, cmd.Execute())
	})
	resp := decodeResponse(t, out)
	require.True(t, resp.Success)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.Contains(t, string(data), `"active":false`)
}

func TestContextCmd_RendersMarkdownToStdout(t *testing.T) {
	testEnv(t)
	cmd := newContextCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"--project", "proj"})

	require.NoError(t, cmd.Execute())
	require.Contains(t, buf.String(), "## Recent Intents")
}

func TestBackfillCmd_RequiresDimension(t *testing.T) {
	testEnv(t)
	cmd := newBackfillCmd()
	cmd.SetArgs(nil)

	out := captureStdout(t, func() {
		require.Error(t, cmd.Execute())
	})
	resp := decodeResponse(t, out)
	require.False(t, resp.Success)
	require.Contains(t, resp.Error, "--dimension is required")
}

func TestMaintainCmd_RunsRebuildFTSOnly(t *testing.T) {
	testEnv(t)
	cmd := newMaintainCmd()
	cmd.SetArgs([]string{"--rebuild-fts"})

	out := captureStdout(t, func() {
		require.NoError(t, cmd.Execute())
	})
	resp := decodeResponse(t, out)
	require.True(t, resp.Success)
}
