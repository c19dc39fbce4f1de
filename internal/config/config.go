// Package config loads nmem's TOML configuration. The grammar is an
// external collaborator's interface, so it's parsed with a library rather
// than hand-rolled, but the values it produces drive core behavior
// (secret-filter tuning, retention windows, summarization endpoint), so the
// loader and its defaults live in the core.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
)

// FilterConfig tunes the secret filter.
type FilterConfig struct {
	Patterns           []string `toml:"patterns"`
	EntropyThreshold   float64  `toml:"entropy_threshold"`
	EntropyMinLength   int      `toml:"entropy_min_length"`
	DisableEntropy     bool     `toml:"disable_entropy"`
}

// ProjectConfig holds per-project filter sensitivity and retention overrides.
type ProjectConfig struct {
	Sensitivity        string         `toml:"sensitivity"` // default | strict | relaxed
	RetentionOverrides map[string]int `toml:"retention_overrides"`
}

// EncryptionConfig holds the [encryption] section. KeyFile is parsed and
// merged but not read by the store, which takes its key from NMEM_KEY or
// <home>/.nmem/key.
type EncryptionConfig struct {
	KeyFile string `toml:"key_file"`
}

// RetentionConfig is the Control Loop's sweep policy.
type RetentionConfig struct {
	Enabled      bool           `toml:"enabled"`
	MaxDBSizeMB  int            `toml:"max_db_size_mb"`
	WindowDays   map[string]int `toml:"windows"`
}

// SummarizationConfig points the Summarizer at an external OpenAI-compatible
// endpoint.
type SummarizationConfig struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// MetricsConfig optionally points an OTLP metrics exporter at a collector.
type MetricsConfig struct {
	Endpoint string `toml:"endpoint"`
}

// Config is the root of config.toml.
type Config struct {
	Filter        FilterConfig             `toml:"filter"`
	Projects      map[string]ProjectConfig `toml:"projects"`
	Encryption    EncryptionConfig         `toml:"encryption"`
	Retention     RetentionConfig          `toml:"retention"`
	Summarization SummarizationConfig      `toml:"summarization"`
	Metrics       MetricsConfig            `toml:"metrics"`
}

// DefaultRetentionWindows is the default per-type retention policy. Used
// when config.toml doesn't set [retention].windows, or sets it partially.
var DefaultRetentionWindows = map[string]int{
	"file_read":     90,
	"search":        90,
	"mcp_call":      90,
	"command":       180,
	"file_write":    365,
	"file_edit":     365,
	"user_prompt":   730,
	"command_error": 730,
}

// Default returns a Config populated with the documented defaults.
func Default() Config {
	return Config{
		Filter: FilterConfig{
			EntropyThreshold: 4.0,
			EntropyMinLength: 20,
		},
		Retention: RetentionConfig{
			Enabled:     true,
			MaxDBSizeMB: 500,
			WindowDays:  DefaultRetentionWindows,
		},
	}
}

// RetentionWindow resolves the retention window in days for an observation
// type: a project-level override wins when a project name is supplied and
// the project sets one, else [retention].windows, else the default table.
func (c Config) RetentionWindow(project, obsType string) (days int, enabled bool) {
	if project != "" {
		if pc, ok := c.Projects[project]; ok {
			if d, ok := pc.RetentionOverrides[obsType]; ok {
				return d, true
			}
		}
	}
	if d, ok := c.Retention.WindowDays[obsType]; ok {
		return d, true
	}
	if d, ok := DefaultRetentionWindows[obsType]; ok {
		return d, true
	}
	return 0, false
}

// Sensitivity resolves the effective filter sensitivity for a project.
func (c Config) Sensitivity(project string) string {
	if project != "" {
		if pc, ok := c.Projects[project]; ok && pc.Sensitivity != "" {
			return pc.Sensitivity
		}
	}
	return "default"
}

const (
	// ConfigDirName is the directory nmem state lives under within $HOME.
	ConfigDirName = ".nmem"
	configFile    = "config.toml"
)

// Dir returns <home>/.nmem, creating it (mode 0700) if absent.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	dir := filepath.Join(home, ConfigDirName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}
	return dir, nil
}

// Path resolves the config file path: $NMEM_CONFIG override, else
// <home>/.nmem/config.toml.
func Path() (string, error) {
	if override := os.Getenv("NMEM_CONFIG"); override != "" {
		return override, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

var (
	loadOnce sync.Once
	loaded   Config
	loadErr  error
)

// Load loads config.toml once per process (sync.Once singleton), merging
// onto Default(). A missing file is not an error — the caller gets pure
// defaults. Unknown keys are ignored, so the format stays forward
// compatible.
func Load() (Config, error) {
	loadOnce.Do(func() {
		loaded = Default()
		path, err := Path()
		if err != nil {
			loadErr = err
			return
		}
		data, err := os.ReadFile(path) //nolint:gosec // G304: path derived from home dir / env override, not user input
		if err != nil {
			if os.IsNotExist(err) {
				return
			}
			loadErr = fmt.Errorf("read config %s: %w", path, err)
			return
		}
		var onDisk Config
		md, err := toml.Decode(string(data), &onDisk)
		if err != nil {
			loadErr = fmt.Errorf("parse config %s: %w", path, err)
			return
		}
		loaded = mergeOnto(loaded, onDisk)
		if md.IsDefined("retention", "enabled") {
			loaded.Retention.Enabled = onDisk.Retention.Enabled
		}
	})
	return loaded, loadErr
}

// mergeOnto overlays non-zero fields of onDisk atop defaults, so partial
// config.toml files don't blow away documented defaults.
func mergeOnto(base, onDisk Config) Config {
	if len(onDisk.Filter.Patterns) > 0 {
		base.Filter.Patterns = onDisk.Filter.Patterns
	}
	if onDisk.Filter.EntropyThreshold > 0 {
		base.Filter.EntropyThreshold = onDisk.Filter.EntropyThreshold
	}
	if onDisk.Filter.EntropyMinLength > 0 {
		base.Filter.EntropyMinLength = onDisk.Filter.EntropyMinLength
	}
	base.Filter.DisableEntropy = onDisk.Filter.DisableEntropy

	if len(onDisk.Projects) > 0 {
		base.Projects = onDisk.Projects
	}
	if onDisk.Encryption.KeyFile != "" {
		base.Encryption.KeyFile = onDisk.Encryption.KeyFile
	}

	if onDisk.Retention.MaxDBSizeMB > 0 {
		base.Retention.MaxDBSizeMB = onDisk.Retention.MaxDBSizeMB
	}
	if len(onDisk.Retention.WindowDays) > 0 {
		merged := make(map[string]int, len(base.Retention.WindowDays)+len(onDisk.Retention.WindowDays))
		for k, v := range base.Retention.WindowDays {
			merged[k] = v
		}
		for k, v := range onDisk.Retention.WindowDays {
			merged[k] = v
		}
		base.Retention.WindowDays = merged
	}
	base.Summarization = onDisk.Summarization
	base.Metrics = onDisk.Metrics

	return base
}
