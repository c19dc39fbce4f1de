package commands

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nmem/nmem/internal/output"
	"github.com/nmem/nmem/internal/store"
)

func newPurgeCmd() *cobra.Command {
	var sessionID, project, obsType, ftsMatch, olderThan, beforeDate string
	var ids []int64
	var confirm bool

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Permanently delete observations matching a filter",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				err := fmt.Errorf("purge is irreversible; pass --confirm to proceed")
				_ = output.PrintError(err)
				return printedError{err}
			}

			filter := store.PurgeFilter{
				IDs:       ids,
				SessionID: sessionID,
				Project:   project,
				ObsType:   obsType,
				FTSMatch:  ftsMatch,
			}
			if olderThan != "" {
				t, err := time.Parse(time.RFC3339, olderThan)
				if err != nil {
					_ = output.PrintError(err)
					return printedError{err}
				}
				filter.OlderThan = t
			}
			if beforeDate != "" {
				t, err := time.Parse("2006-01-02", beforeDate)
				if err != nil {
					_ = output.PrintError(err)
					return printedError{err}
				}
				filter.BeforeDate = t
			}

			var result store.PurgeResult
			err := withWritableDB(func(ctx context.Context, db *sql.DB) error {
				var err error
				result, err = store.Purge(ctx, db, filter)
				return err
			})
			if err != nil {
				_ = output.PrintError(err)
				return printedError{err}
			}
			return output.PrintSuccess(result)
		},
	}

	cmd.Flags().Int64SliceVar(&ids, "id", nil, "Specific observation IDs to purge")
	cmd.Flags().StringVar(&sessionID, "session", "", "Purge all observations belonging to a session")
	cmd.Flags().StringVar(&project, "project", "", "Purge all observations belonging to a project")
	cmd.Flags().StringVar(&obsType, "type", "", "Restrict to an observation type")
	cmd.Flags().StringVar(&ftsMatch, "match", "", "Restrict to observations matching an FTS query")
	cmd.Flags().StringVar(&olderThan, "older-than", "", "Purge observations created before this RFC3339 timestamp")
	cmd.Flags().StringVar(&beforeDate, "before", "", "Purge observations created before this date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&confirm, "confirm", false, "Required to actually run the purge")
	return cmd
}
