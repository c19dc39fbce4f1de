package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"
)

// SweepResult reports what a retention sweep did, for `nmem status` and
// the `maintain` command's JSON output.
type SweepResult struct {
	DeletedByType         map[string]int `json:"deleted_by_type"`
	TotalDeleted          int            `json:"total_deleted"`
	OrphanSessionsDeleted int            `json:"orphan_sessions_deleted"`
}

// windowLookup is the minimal interface retention.go needs from
// internal/config.Config, avoiding an import of the config package (which
// would otherwise create store -> config -> store if config ever needs
// store types).
type windowLookup interface {
	RetentionWindow(project, obsType string) (days int, enabled bool)
}

// Sweep deletes expired observations type-by-type, gated on the owning
// session being summarized, and exempting pinned rows. Orphaned sessions
// (no remaining prompts or observations) are then cleaned up, and the WAL
// is checkpointed with truncation.
func Sweep(ctx context.Context, db *sql.DB, windows windowLookup, obsTypes []string, now time.Time) (SweepResult, error) {
	result := SweepResult{DeletedByType: make(map[string]int)}

	for _, obsType := range obsTypes {
		days, enabled := windows.RetentionWindow("", obsType)
		if !enabled || days <= 0 {
			continue
		}
		cutoff := now.Add(-time.Duration(days) * 24 * time.Hour).Unix()

		var ids []int64
		err := func() error {
			rows, err := db.QueryContext(ctx, `
				SELECT o.id
				FROM observations o
				JOIN sessions s ON s.id = o.session_id
				WHERE o.obs_type = ?
				  AND o.created_at < ?
				  AND o.is_pinned = 0
				  AND s.summary IS NOT NULL
			`, obsType, cutoff)
			if err != nil {
				return fmt.Errorf("query expired observations (%s): %w", obsType, err)
			}
			defer func() { _ = rows.Close() }()
			for rows.Next() {
				var id int64
				if err := rows.Scan(&id); err != nil {
					return err
				}
				ids = append(ids, id)
			}
			return rows.Err()
		}()
		if err != nil {
			return result, err
		}
		if len(ids) == 0 {
			continue
		}

		if err := Transact(ctx, db, func(tx *sql.Tx) error {
			for _, id := range ids {
				if err := DeindexObservation(ctx, tx, id); err != nil {
					return err
				}
				if _, err := tx.ExecContext(ctx, `DELETE FROM observations WHERE id = ?`, id); err != nil {
					return fmt.Errorf("delete observation %d: %w", id, err)
				}
			}
			return nil
		}); err != nil {
			return result, err
		}
		result.DeletedByType[obsType] = len(ids)
		result.TotalDeleted += len(ids)
	}

	orphaned, err := cleanOrphanSessions(ctx, db)
	if err != nil {
		return result, err
	}
	result.OrphanSessionsDeleted = orphaned

	if _, err := db.ExecContext(ctx, `PRAGMA incremental_vacuum`); err != nil {
		return result, fmt.Errorf("incremental vacuum: %w", err)
	}
	if result.TotalDeleted > 1000 {
		if err := RebuildFTS(ctx, db); err != nil {
			return result, fmt.Errorf("rebuild fts after large sweep: %w", err)
		}
	}
	if err := CheckpointWAL(ctx, db, "TRUNCATE"); err != nil {
		return result, fmt.Errorf("checkpoint wal after sweep: %w", err)
	}
	return result, nil
}

func cleanOrphanSessions(ctx context.Context, db *sql.DB) (int, error) {
	var count int
	err := Transact(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM cursors WHERE session_id IN (
				SELECT id FROM sessions
				WHERE ended_at IS NOT NULL
				  AND id NOT IN (SELECT DISTINCT session_id FROM prompts)
				  AND id NOT IN (SELECT DISTINCT session_id FROM observations)
			)
		`); err != nil {
			return fmt.Errorf("delete orphan session cursors: %w", err)
		}
		res, err := tx.ExecContext(ctx, `
			DELETE FROM sessions
			WHERE ended_at IS NOT NULL
			  AND id NOT IN (SELECT DISTINCT session_id FROM prompts)
			  AND id NOT IN (SELECT DISTINCT session_id FROM observations)
		`)
		if err != nil {
			return fmt.Errorf("delete orphan sessions: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		count = int(n)
		return nil
	})
	return count, err
}

// ShouldSweep implements the opportunistic SessionStart trigger: more than
// 100 observations older than one day, or the DB file plus its -wal and
// -shm files exceeds maxDBSizeMB.
func ShouldSweep(ctx context.Context, db *sql.DB, dbPath string, maxDBSizeMB int) (bool, error) {
	var expiredCount int
	cutoff := time.Now().Add(-24 * time.Hour).Unix()
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM observations WHERE created_at < ?`, cutoff).Scan(&expiredCount)
	if err != nil {
		return false, fmt.Errorf("count expired observations: %w", err)
	}
	if expiredCount > 100 {
		return true, nil
	}

	sizeBytes, err := dbFileSize(dbPath)
	if err != nil {
		return false, err
	}
	maxBytes := int64(maxDBSizeMB) * 1024 * 1024
	return maxBytes > 0 && sizeBytes > maxBytes, nil
}

func dbFileSize(dbPath string) (int64, error) {
	var total int64
	for _, suffix := range []string{"", "-wal", "-shm"} {
		info, err := os.Stat(dbPath + suffix)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, fmt.Errorf("stat %s%s: %w", dbPath, suffix, err)
		}
		total += info.Size()
	}
	return total, nil
}
