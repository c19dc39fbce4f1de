package commands

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nmem/nmem/internal/classifiers"
	"github.com/nmem/nmem/internal/output"
	"github.com/nmem/nmem/internal/store"
)

// newBackfillCmd re-scores observations that predate a classifier
// dimension's weight file (or were recorded while it was missing), using
// the same Engine.Score call the recorder makes for new observations.
func newBackfillCmd() *cobra.Command {
	var dimension string
	var limit int

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Re-run a classifier dimension over observations missing a label",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dimension == "" {
				err := fmt.Errorf("--dimension is required")
				_ = output.PrintError(err)
				return printedError{err}
			}

			dir, err := modelsDir()
			if err != nil {
				_ = output.PrintError(err)
				return printedError{err}
			}
			set := classifiers.NewSet(dir)

			var labeled int
			err = withWritableDB(func(ctx context.Context, db *sql.DB) error {
				ids, err := store.ObservationsMissingLabel(ctx, db, dimension, limit)
				if err != nil {
					return err
				}
				for _, id := range ids {
					obs, err := store.ObservationByID(ctx, db, id)
					if err != nil {
						return err
					}
					if obs == nil {
						continue
					}
					for _, l := range set.ScoreAll(obs.Content) {
						if l.Dimension != dimension || !l.OK {
							continue
						}
						runID, err := store.GetOrCreateClassifierRun(ctx, db, l.Dimension, l.ModelHash)
						if err != nil {
							return err
						}
						if err := store.UpdateObservationLabel(ctx, db, id, l.Dimension, l.Value, runID); err != nil {
							return err
						}
						labeled++
					}
				}
				return nil
			})
			if err != nil {
				_ = output.PrintError(err)
				return printedError{err}
			}

			return output.PrintSuccess(struct {
				Dimension string `json:"dimension"`
				Labeled   int    `json:"labeled"`
			}{dimension, labeled})
		},
	}

	cmd.Flags().StringVar(&dimension, "dimension", "", "Classifier dimension to backfill (phase, scope, locus, novelty)")
	cmd.Flags().IntVar(&limit, "limit", 500, "Max observations to process per invocation")
	return cmd
}
