package commands

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nmem/nmem/internal/config"
	"github.com/nmem/nmem/internal/contextbuilder"
	"github.com/nmem/nmem/internal/extractor"
	"github.com/nmem/nmem/internal/models"
)

// newRecordCmd implements the hook entrypoint: read one JSON hook payload
// from stdin, record it, and on SessionStart additionally emit the context
// document on stdout for the harness to inject. Exit codes follow the hook
// contract rather than the JSON-envelope convention the other subcommands
// use: 0 success, 1 non-blocking error (logged to stderr), 2 reserved for
// database corruption.
func newRecordCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "record",
		Short:  "Record one hook event read from stdin (internal; invoked by the harness)",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return exitCode(1, fmt.Errorf("read hook payload: %w", err))
			}
			var event extractor.RawHookEvent
			if err := json.Unmarshal(raw, &event); err != nil {
				return exitCode(1, fmt.Errorf("parse hook payload: %w", err))
			}

			cfg, err := config.Load()
			if err != nil {
				return exitCode(1, err)
			}

			var ctxOut string
			err = withWritableDB(func(ctx context.Context, db *sql.DB) error {
				path, pathErr := resolveDBPath()
				if pathErr != nil {
					return pathErr
				}
				r := buildRecorder(db, cfg, path)
				if recErr := r.Record(ctx, event); recErr != nil {
					return recErr
				}
				if event.HookEventName == models.EventSessionStart {
					md, buildErr := contextbuilder.Build(ctx, db, contextbuilder.Options{
						Project:      extractor.ResolveProject(event.CWD),
						RecoveryMode: models.IsRecoveryMode(event.Source),
					})
					if buildErr != nil {
						fmt.Fprintf(os.Stderr, "nmem: context generation failed: %v\n", buildErr)
						return nil
					}
					ctxOut = md
				}
				return nil
			})
			if err != nil {
				return exitCode(1, err)
			}
			if ctxOut != "" {
				fmt.Fprint(cmd.OutOrStdout(), ctxOut)
			}
			return nil
		},
	}
}

// HookExitError carries an explicit process exit code for the record
// command, bypassing the output.Error JSON envelope the other subcommands
// use (the harness expects a bare nonzero exit, not JSON, on hook failure).
// cmd/nmem inspects this via errors.As to choose os.Exit's argument.
type HookExitError struct {
	Code int
	err  error
}

func (h HookExitError) Error() string { return h.err.Error() }
func (h HookExitError) Unwrap() error { return h.err }

func exitCode(code int, err error) error {
	fmt.Fprintf(os.Stderr, "nmem: %v\n", err)
	return HookExitError{Code: code, err: err}
}
