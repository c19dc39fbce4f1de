// Command nmem gives a coding agent cross-session memory: it records
// hook events into a local SQLite database and serves them back through
// an MCP tool server and a set of operator CLI commands.
package main

import (
	"errors"
	"os"
	"runtime/debug"

	"github.com/nmem/nmem/internal/commands"
)

// version is set via ldflags (-X main.version=v1.0.0) or detected
// automatically from Go module info embedded by go install.
var version = "dev"

func main() {
	if version == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			version = info.Main.Version
		}
	}

	err := commands.Execute(version)
	if err == nil {
		return
	}

	var hookErr commands.HookExitError
	if errors.As(err, &hookErr) {
		os.Exit(hookErr.Code)
	}
	os.Exit(1)
}
