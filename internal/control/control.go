// Package control drives the retention sweep and secure purge against the
// store, and the opportunistic size/age trigger the Recorder checks at
// SessionStart and Stop. The SQL shapes themselves live in
// internal/store/retention.go and internal/store/purge.go; this package is
// the policy layer deciding when to run them and wiring config into the
// store's narrow windowLookup contract.
package control

import (
	"context"
	"database/sql"
	"time"

	"github.com/nmem/nmem/internal/config"
	"github.com/nmem/nmem/internal/models"
	"github.com/nmem/nmem/internal/store"
)

// allObsTypes is the full set of observation types Sweep considers; types
// absent from config or disabled there are simply skipped per-type inside
// store.Sweep.
var allObsTypes = []string{
	models.ObsFileRead, models.ObsFileWrite, models.ObsFileEdit, models.ObsSearch,
	models.ObsCommand, models.ObsGitCommit, models.ObsGitPush, models.ObsGitHub,
	models.ObsTaskSpawn, models.ObsWebFetch, models.ObsWebSearch, models.ObsMCPCall,
	models.ObsToolOther,
}

// Loop wires a Config and the resolved database path into the retention
// sweep, the opportunistic size/age trigger, and the explicit purge path.
// It satisfies the Recorder's Sweeper interface via MaybeSweep.
type Loop struct {
	Config config.Config
	DBPath string
}

// MaybeSweep checks the opportunistic trigger (age-based backlog or
// database size) and runs a full sweep only if one fires. Called from
// SessionStart and Stop; always non-fatal to its caller.
func (l *Loop) MaybeSweep(ctx context.Context, db *sql.DB) error {
	if !l.Config.Retention.Enabled {
		return nil
	}
	should, err := store.ShouldSweep(ctx, db, l.DBPath, l.Config.Retention.MaxDBSizeMB)
	if err != nil {
		return err
	}
	if !should {
		return nil
	}
	_, err = l.Sweep(ctx, db)
	return err
}

// Sweep runs the retention sweep unconditionally, regardless of the
// opportunistic trigger — used by `nmem maintain --sweep`.
func (l *Loop) Sweep(ctx context.Context, db *sql.DB) (store.SweepResult, error) {
	return store.Sweep(ctx, db, l.Config, allObsTypes, time.Now())
}

// Purge runs the explicit secure-delete path — used by `nmem purge`.
func (l *Loop) Purge(ctx context.Context, db *sql.DB, filter store.PurgeFilter) (store.PurgeResult, error) {
	return store.Purge(ctx, db, filter)
}

// Maintain rebuilds the FTS index and checkpoints the WAL — used by
// `nmem maintain --rebuild-fts` and after schema migrations.
func (l *Loop) Maintain(ctx context.Context, db *sql.DB) error {
	if err := store.RebuildFTS(ctx, db); err != nil {
		return err
	}
	return store.CheckpointWAL(ctx, db, "TRUNCATE")
}
