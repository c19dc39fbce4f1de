package extractor

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// projectConfigFile is the per-directory override: an explicit
// .nmem.toml config naming the project.
const projectConfigFile = ".nmem.toml"

type projectOverride struct {
	Project string `toml:"project"`
}

// ResolveProject derives the project name from a session's working
// directory: prefer an explicit .nmem.toml, else the git-repository
// root's directory name, else the
// canonical directory name. Only the directory name is returned — never
// the full path — so databases are portable across machines.
func ResolveProject(cwd string) string {
	if name := projectFromConfig(cwd); name != "" {
		return name
	}
	if root := findGitRoot(cwd); root != "" {
		return filepath.Base(root)
	}
	return filepath.Base(filepath.Clean(cwd))
}

func projectFromConfig(cwd string) string {
	path := filepath.Join(cwd, projectConfigFile)
	data, err := os.ReadFile(path) //nolint:gosec // G304: path derived from the session's own reported cwd
	if err != nil {
		return ""
	}
	var cfg projectOverride
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return ""
	}
	return strings.TrimSpace(cfg.Project)
}

// findGitRoot walks parent directories looking for a .git entry, the same
// upward-walk idiom used elsewhere for locating project-relative config.
func findGitRoot(start string) string {
	dir := filepath.Clean(start)
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
