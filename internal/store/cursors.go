package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetCursor returns a session's transcript-scan offset, 0 if none recorded
// yet.
func GetCursor(ctx context.Context, db *sql.DB, sessionID string) (int64, error) {
	var offset int64
	err := db.QueryRowContext(ctx, `SELECT offset FROM cursors WHERE session_id = ?`, sessionID).Scan(&offset)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get cursor for session %s: %w", sessionID, err)
	}
	return offset, nil
}

// AdvanceCursor upserts a session's transcript offset.
func AdvanceCursor(ctx context.Context, db *sql.DB, sessionID string, offset int64) error {
	return Transact(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cursors (session_id, offset) VALUES (?, ?)
			ON CONFLICT(session_id) DO UPDATE SET offset = excluded.offset
		`, sessionID, offset)
		if err != nil {
			return fmt.Errorf("advance cursor for session %s: %w", sessionID, err)
		}
		return nil
	})
}
