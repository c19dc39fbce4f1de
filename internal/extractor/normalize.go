package extractor

import (
	"path/filepath"
	"strings"
)

// NormalizePath makes an absolute path project-relative when it falls
// inside the session's working directory tree and leaves it absolute
// otherwise; a relative path is returned cleaned and relative. project is unused
// directly — cwd carries the actual filesystem root the path is relative
// to — but is accepted so callers in the dispatch table share one
// signature.
func NormalizePath(path, _ string, cwd string) string {
	if path == "" {
		return ""
	}
	if !filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	cleanCWD := filepath.Clean(cwd)
	if cleanCWD == "" {
		return path
	}
	rel, err := filepath.Rel(cleanCWD, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}
