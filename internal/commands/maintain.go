package commands

import (
	"context"
	"database/sql"

	"github.com/spf13/cobra"

	"github.com/nmem/nmem/internal/config"
	"github.com/nmem/nmem/internal/control"
	"github.com/nmem/nmem/internal/output"
	"github.com/nmem/nmem/internal/store"
)

func newMaintainCmd() *cobra.Command {
	var sweep, rebuildFTS bool

	cmd := &cobra.Command{
		Use:   "maintain",
		Short: "Run the retention sweep and/or rebuild the FTS index",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				_ = output.PrintError(err)
				return printedError{err}
			}

			var result store.SweepResult
			var ranSweep bool
			err = withWritableDB(func(ctx context.Context, db *sql.DB) error {
				path, pathErr := resolveDBPath()
				if pathErr != nil {
					return pathErr
				}
				loop := &control.Loop{Config: cfg, DBPath: path}
				if sweep {
					ranSweep = true
					var sweepErr error
					result, sweepErr = loop.Sweep(ctx, db)
					if sweepErr != nil {
						return sweepErr
					}
				}
				if rebuildFTS {
					if maintainErr := loop.Maintain(ctx, db); maintainErr != nil {
						return maintainErr
					}
				}
				return nil
			})
			if err != nil {
				_ = output.PrintError(err)
				return printedError{err}
			}

			return output.PrintSuccess(struct {
				SweepResult *store.SweepResult `json:"sweep_result,omitempty"`
				FTSRebuilt  bool                `json:"fts_rebuilt"`
			}{
				SweepResult: sweepResultOrNil(ranSweep, result),
				FTSRebuilt:  rebuildFTS,
			})
		},
	}

	cmd.Flags().BoolVar(&sweep, "sweep", false, "Run the retention sweep unconditionally")
	cmd.Flags().BoolVar(&rebuildFTS, "rebuild-fts", false, "Rebuild the FTS index and checkpoint the WAL")
	return cmd
}

func sweepResultOrNil(ran bool, result store.SweepResult) *store.SweepResult {
	if !ran {
		return nil
	}
	return &result
}
