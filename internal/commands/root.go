// Package commands implements the nmem CLI: one cobra command per
// operation an agent-facing hook or a human operator needs (record, serve,
// search, status, maintain, purge, pin, encrypt, context, queue,
// backfill). Every command's success path prints output.Response JSON to
// stdout; failures print output.Error JSON and set a non-zero exit code.
// The exceptions: context prints its markdown document on success, serve
// speaks the MCP protocol over stdio, and the bare observation-record path
// has exit codes that follow the hook contract (0 success, 1 non-blocking,
// 2 fatal).
package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nmem/nmem/internal/classifiers"
	"github.com/nmem/nmem/internal/config"
	"github.com/nmem/nmem/internal/control"
	"github.com/nmem/nmem/internal/episodes"
	"github.com/nmem/nmem/internal/recorder"
	"github.com/nmem/nmem/internal/store"
	"github.com/nmem/nmem/internal/summarizer"
)

var dbPathOverride string

// Execute builds and runs the root command.
func Execute(version string) error {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	root := &cobra.Command{
		Use:           "nmem",
		Short:         "Cross-session memory for coding agents",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	root.PersistentFlags().StringVar(&dbPathOverride, "db", "", "Override database path (default: $NMEM_DB or ~/.nmem/nmem.db)")

	root.AddCommand(newRecordCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newSearchCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newMaintainCmd())
	root.AddCommand(newPurgeCmd())
	root.AddCommand(newPinCmd())
	root.AddCommand(newEncryptCmd())
	root.AddCommand(newContextCmd())
	root.AddCommand(newQueueCmd())
	root.AddCommand(newBackfillCmd())

	err := root.Execute()
	if err != nil {
		var pe printedError
		var he HookExitError
		if !errors.As(err, &pe) && !errors.As(err, &he) {
			slog.Default().Error("command failed", "error", err.Error())
		}
	}
	return err
}

// printedError marks an error whose message has already reached the user
// via output.PrintError, so Execute's top-level handler doesn't log it
// again to stderr.
type printedError struct{ err error }

func (p printedError) Error() string { return p.err.Error() }
func (p printedError) Unwrap() error { return p.err }

func resolveDBPath() (string, error) {
	return store.Path(dbPathOverride)
}

// modelsDir resolves <config dir>/models, the classifier weight directory.
func modelsDir() (string, error) {
	dir, err := config.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "models"), nil
}

// withWritableDB opens a read-write connection (running pending migrations)
// and closes it when fn returns.
func withWritableDB(fn func(ctx context.Context, db *sql.DB) error) error {
	path, err := resolveDBPath()
	if err != nil {
		return err
	}
	db, err := store.Open(path, "")
	if err != nil {
		return err
	}
	defer func() { _ = store.CloseDB(db) }()
	return fn(context.Background(), db)
}

// withReadOnlyDB opens a connection without running migrations, for the
// long-lived retriever server and read-only CLI subcommands.
func withReadOnlyDB(fn func(ctx context.Context, db *sql.DB) error) error {
	path, err := resolveDBPath()
	if err != nil {
		return err
	}
	db, err := store.OpenNoMigrate(path, "")
	if err != nil {
		return err
	}
	defer func() { _ = store.CloseDB(db) }()
	return fn(context.Background(), db)
}

// buildRecorder wires a Recorder with its three downstream collaborators,
// sharing one Summarizer client between the Summarizer itself and the
// Episode Detector's narrative generation.
func buildRecorder(db *sql.DB, cfg config.Config, dbPath string) *recorder.Recorder {
	dir, err := modelsDir()
	var cl *classifiers.Set
	if err == nil {
		cl = classifiers.NewSet(dir)
	}

	summ := summarizer.New(cfg.Summarization)
	return &recorder.Recorder{
		DB:          db,
		Config:      cfg,
		Classifiers: cl,
		Summarizer:  summ,
		Episodes:    &episodes.Detector{Narrator: summ},
		Sweep:       &control.Loop{Config: cfg, DBPath: dbPath},
		Logf: func(format string, args ...any) {
			slog.Default().Warn("nmem", "detail", fmt.Sprintf(format, args...))
		},
	}
}
