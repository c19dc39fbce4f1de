package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefault_HasSaneRetentionAndFilterValues(t *testing.T) {
	c := Default()
	require.Equal(t, 4.0, c.Filter.EntropyThreshold)
	require.True(t, c.Retention.Enabled)
	require.Equal(t, 500, c.Retention.MaxDBSizeMB)
}

func TestRetentionWindow_PrefersProjectOverrideOverDefault(t *testing.T) {
	c := Default()
	c.Projects = map[string]ProjectConfig{
		"proj": {RetentionOverrides: map[string]int{"file_edit": 10}},
	}

	days, enabled := c.RetentionWindow("proj", "file_edit")
	require.True(t, enabled)
	require.Equal(t, 10, days)

	days, enabled = c.RetentionWindow("other", "file_edit")
	require.True(t, enabled)
	require.Equal(t, 365, days)
}

func TestRetentionWindow_UnknownTypeIsDisabled(t *testing.T) {
	c := Default()
	_, enabled := c.RetentionWindow("", "made_up_type")
	require.False(t, enabled)
}

func TestSensitivity_DefaultsWhenProjectUnset(t *testing.T) {
	c := Default()
	require.Equal(t, "default", c.Sensitivity("unknown-project"))

	c.Projects = map[string]ProjectConfig{"proj": {Sensitivity: "strict"}}
	require.Equal(t, "strict", c.Sensitivity("proj"))
}

func TestPath_HonorsNMEMConfigOverride(t *testing.T) {
	t.Setenv("NMEM_CONFIG", "/tmp/custom-config.toml")
	p, err := Path()
	require.NoError(t, err)
	require.Equal(t, "/tmp/custom-config.toml", p)
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	resetLoadOnce(t)
	dir := t.TempDir()
	t.Setenv("NMEM_CONFIG", filepath.Join(dir, "absent.toml"))

	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, Default().Retention.MaxDBSizeMB, c.Retention.MaxDBSizeMB)
}

func TestLoad_MergesPartialFileOntoDefaults(t *testing.T) {
	resetLoadOnce(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[retention]
max_db_size_mb = 1000

[summarization]
enabled = true
endpoint = "http://localhost:8080/v1"
`), 0o600))
	t.Setenv("NMEM_CONFIG", path)

	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, 1000, c.Retention.MaxDBSizeMB)
	require.True(t, c.Retention.Enabled)
	require.True(t, c.Summarization.Enabled)
	require.Equal(t, "http://localhost:8080/v1", c.Summarization.Endpoint)
	// Defaults not mentioned in the file survive the merge.
	require.Equal(t, 4.0, c.Filter.EntropyThreshold)
}

// resetLoadOnce lets each test exercise Load's file-reading path again,
// undoing the package-level sync.Once singleton between test cases.
func resetLoadOnce(t *testing.T) {
	t.Helper()
	loadOnce = sync.Once{}
	loaded = Config{}
	loadErr = nil
}
