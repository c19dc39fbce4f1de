package commands

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nmem/nmem/internal/contextbuilder"
	"github.com/nmem/nmem/internal/extractor"
	"github.com/nmem/nmem/internal/output"
)

// newContextCmd exposes the same context-assembly path the SessionStart
// hook uses (internal/contextbuilder), so an operator can preview the
// markdown a session would receive without starting one.
func newContextCmd() *cobra.Command {
	var project string
	var recovery bool

	cmd := &cobra.Command{
		Use:   "context",
		Short: "Render the context document for a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if project == "" {
				cwd, err := currentDirProject()
				if err != nil {
					return err
				}
				project = cwd
			}

			var md string
			err := withReadOnlyDB(func(ctx context.Context, db *sql.DB) error {
				var err error
				md, err = contextbuilder.Build(ctx, db, contextbuilder.Options{
					Project:      project,
					RecoveryMode: recovery,
				})
				return err
			})
			if err != nil {
				_ = output.PrintError(err)
				return printedError{err}
			}
			fmt.Fprint(cmd.OutOrStdout(), md)
			return nil
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "Project to render context for (default: current directory)")
	cmd.Flags().BoolVar(&recovery, "recovery", false, "Render with recovery-mode limits")
	return cmd
}

func currentDirProject() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return extractor.ResolveProject(cwd), nil
}
