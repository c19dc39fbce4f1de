package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PurgeFilter selects which observations (and their orphaned prompts/
// sessions) an explicit purge removes. Fields are ANDed together;
// zero-value fields are ignored.
type PurgeFilter struct {
	IDs        []int64
	SessionID  string
	Project    string
	ObsType    string
	OlderThan  time.Time
	FTSMatch   string
	BeforeDate time.Time
}

// PurgeResult reports deletion counts.
type PurgeResult struct {
	ObservationsDeleted int `json:"observations_deleted"`
	PromptsDeleted      int `json:"prompts_deleted"`
	SessionsDeleted     int `json:"sessions_deleted"`
}

// Purge runs the explicit secure-delete procedure: enable secure_delete,
// delete in foreign-key-safe order (observations → episodes → prompts →
// cursor → sessions), incremental-vacuum, rebuild FTS if large, checkpoint WAL,
// disable secure_delete. Unlike Sweep, Purge ignores the pin flag and the
// summarization precondition — it is the escape valve.
func Purge(ctx context.Context, db *sql.DB, filter PurgeFilter) (PurgeResult, error) {
	var result PurgeResult

	if _, err := db.ExecContext(ctx, `PRAGMA secure_delete = ON`); err != nil {
		return result, fmt.Errorf("enable secure_delete: %w", err)
	}
	defer func() { _, _ = db.ExecContext(ctx, `PRAGMA secure_delete = OFF`) }()

	obsIDs, err := resolveObservationIDs(ctx, db, filter)
	if err != nil {
		return result, err
	}

	err = Transact(ctx, db, func(tx *sql.Tx) error {
		touchedSessions := make(map[string]bool)
		for _, id := range obsIDs {
			var sessionID string
			if err := tx.QueryRowContext(ctx, `SELECT session_id FROM observations WHERE id = ?`, id).Scan(&sessionID); err != nil {
				if err == sql.ErrNoRows {
					continue
				}
				return fmt.Errorf("lookup observation %d session: %w", id, err)
			}
			touchedSessions[sessionID] = true
			if err := DeindexObservation(ctx, tx, id); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM observations WHERE id = ?`, id); err != nil {
				return fmt.Errorf("delete observation %d: %w", id, err)
			}
			result.ObservationsDeleted++
		}

		for sessionID := range touchedSessions {
			var remaining int
			if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM observations WHERE session_id = ?`, sessionID).Scan(&remaining); err != nil {
				return fmt.Errorf("count remaining observations for %s: %w", sessionID, err)
			}
			if remaining > 0 {
				continue
			}

			promptRows, err := tx.QueryContext(ctx, `SELECT id FROM prompts WHERE session_id = ?`, sessionID)
			if err != nil {
				return fmt.Errorf("list prompts for orphan session %s: %w", sessionID, err)
			}
			var promptIDs []int64
			for promptRows.Next() {
				var pid int64
				if err := promptRows.Scan(&pid); err != nil {
					_ = promptRows.Close()
					return err
				}
				promptIDs = append(promptIDs, pid)
			}
			_ = promptRows.Close()

			if _, err := tx.ExecContext(ctx, `DELETE FROM episodes WHERE session_id = ?`, sessionID); err != nil {
				return fmt.Errorf("delete episodes for session %s: %w", sessionID, err)
			}
			for _, pid := range promptIDs {
				if err := DeindexPrompt(ctx, tx, pid); err != nil {
					return err
				}
				if _, err := tx.ExecContext(ctx, `DELETE FROM prompts WHERE id = ?`, pid); err != nil {
					return fmt.Errorf("delete prompt %d: %w", pid, err)
				}
				result.PromptsDeleted++
			}

			if _, err := tx.ExecContext(ctx, `DELETE FROM cursors WHERE session_id = ?`, sessionID); err != nil {
				return fmt.Errorf("delete cursor for session %s: %w", sessionID, err)
			}
			if filter.Project != "" || filter.SessionID != "" {
				if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID); err != nil {
					return fmt.Errorf("delete orphan session %s: %w", sessionID, err)
				}
				result.SessionsDeleted++
			}
		}
		return nil
	})
	if err != nil {
		return result, err
	}

	if _, err := db.ExecContext(ctx, `PRAGMA incremental_vacuum`); err != nil {
		return result, fmt.Errorf("incremental vacuum: %w", err)
	}
	if result.ObservationsDeleted > 1000 {
		if err := RebuildFTS(ctx, db); err != nil {
			return result, fmt.Errorf("rebuild fts after large purge: %w", err)
		}
	}
	if err := CheckpointWAL(ctx, db, "TRUNCATE"); err != nil {
		return result, fmt.Errorf("checkpoint wal after purge: %w", err)
	}
	return result, nil
}

func resolveObservationIDs(ctx context.Context, db *sql.DB, filter PurgeFilter) ([]int64, error) {
	query := `
		SELECT o.id FROM observations o
		JOIN sessions s ON s.id = o.session_id
		WHERE 1=1
	`
	var args []any
	if len(filter.IDs) > 0 {
		query += " AND o.id IN (?"
		args = append(args, filter.IDs[0])
		for _, id := range filter.IDs[1:] {
			query += ",?"
			args = append(args, id)
		}
		query += ")"
	}
	if filter.SessionID != "" {
		query += " AND o.session_id = ?"
		args = append(args, filter.SessionID)
	}
	if filter.Project != "" {
		query += " AND s.project = ?"
		args = append(args, filter.Project)
	}
	if filter.ObsType != "" {
		query += " AND o.obs_type = ?"
		args = append(args, filter.ObsType)
	}
	if !filter.OlderThan.IsZero() {
		query += " AND o.created_at < ?"
		args = append(args, filter.OlderThan.Unix())
	}
	if !filter.BeforeDate.IsZero() {
		query += " AND o.created_at < ?"
		args = append(args, filter.BeforeDate.Unix())
	}
	if filter.FTSMatch != "" {
		query += " AND o.id IN (SELECT rowid FROM observations_fts WHERE observations_fts MATCH ?)"
		args = append(args, filter.FTSMatch)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("resolve purge filter: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
