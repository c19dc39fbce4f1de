package commands

import (
	"context"
	"database/sql"

	"github.com/spf13/cobra"

	"github.com/nmem/nmem/internal/output"
	"github.com/nmem/nmem/internal/store"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show database health and counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveDBPath()
			if err != nil {
				_ = output.PrintError(err)
				return printedError{err}
			}

			var st store.Status
			err = withReadOnlyDB(func(ctx context.Context, db *sql.DB) error {
				var err error
				st, err = store.GetStatus(ctx, db, path)
				return err
			})
			if err != nil {
				_ = output.PrintError(err)
				return printedError{err}
			}
			return output.PrintSuccess(st)
		},
	}
}
