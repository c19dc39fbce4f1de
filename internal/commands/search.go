package commands

import (
	"context"
	"database/sql"

	"github.com/spf13/cobra"

	"github.com/nmem/nmem/internal/models"
	"github.com/nmem/nmem/internal/output"
	"github.com/nmem/nmem/internal/store"
)

func newSearchCmd() *cobra.Command {
	var project, obsType string
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over observations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit > 100 {
				limit = 100
			}
			var results []models.Observation
			err := withReadOnlyDB(func(ctx context.Context, db *sql.DB) error {
				var err error
				results, err = store.SearchObservations(ctx, db, project, obsType, args[0], limit, offset)
				return err
			})
			if err != nil {
				_ = output.PrintError(err)
				return printedError{err}
			}
			return output.PrintSuccess(struct {
				Results []models.Observation `json:"results"`
			}{results})
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "Restrict to a project (default: all)")
	cmd.Flags().StringVar(&obsType, "type", "", "Restrict to an observation type")
	cmd.Flags().IntVar(&limit, "limit", 20, "Max rows, capped at 100")
	cmd.Flags().IntVar(&offset, "offset", 0, "Row offset for paging")
	return cmd
}
