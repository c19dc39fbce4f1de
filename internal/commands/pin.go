package commands

import (
	"context"
	"database/sql"

	"github.com/spf13/cobra"

	"github.com/nmem/nmem/internal/output"
	"github.com/nmem/nmem/internal/store"
)

func newPinCmd() *cobra.Command {
	var unpin bool

	cmd := &cobra.Command{
		Use:   "pin <observation-id>",
		Short: "Pin (or with --unpin, unpin) an observation so it survives the retention sweep",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseInt64(args[0])
			if err != nil {
				_ = output.PrintError(err)
				return printedError{err}
			}
			pinned := !unpin

			err = withWritableDB(func(ctx context.Context, db *sql.DB) error {
				return store.SetPinned(ctx, db, id, pinned)
			})
			if err != nil {
				_ = output.PrintError(err)
				return printedError{err}
			}
			return output.PrintSuccess(struct {
				ObservationID int64 `json:"observation_id"`
				Pinned        bool  `json:"pinned"`
			}{id, pinned})
		},
	}

	cmd.Flags().BoolVar(&unpin, "unpin", false, "Unpin instead of pin")
	return cmd
}
