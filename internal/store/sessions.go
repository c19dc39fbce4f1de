package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nmem/nmem/internal/models"
)

// UpsertSession inserts a Session row, ignoring the call if the identifier
// already exists.
func UpsertSession(ctx context.Context, db *sql.DB, id, project string, startedAt time.Time) error {
	return Transact(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (id, project, started_at)
			VALUES (?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, id, project, startedAt.Unix())
		if err != nil {
			return fmt.Errorf("upsert session %s: %w", id, err)
		}
		return nil
	})
}

// GetSession loads a session by id.
func GetSession(ctx context.Context, db *sql.DB, id string) (*models.Session, error) {
	var s models.Session
	var started int64
	var ended sql.NullInt64
	var signature, summary sql.NullString
	err := db.QueryRowContext(ctx, `
		SELECT id, project, started_at, ended_at, signature, summary
		FROM sessions WHERE id = ?
	`, id).Scan(&s.ID, &s.Project, &started, &ended, &signature, &summary)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	s.StartedAt = time.Unix(started, 0).UTC()
	if ended.Valid {
		t := time.Unix(ended.Int64, 0).UTC()
		s.EndedAt = &t
	}
	if signature.Valid {
		s.Signature = json.RawMessage(signature.String)
	}
	if summary.Valid {
		s.Summary = json.RawMessage(summary.String)
	}
	return &s, nil
}

// EndSession stamps ended_at and the observation-type signature, run from
// the Stop handler.
func EndSession(ctx context.Context, db *sql.DB, id string, endedAt time.Time, signature map[string]int) error {
	sigJSON, err := json.Marshal(signature)
	if err != nil {
		return fmt.Errorf("marshal session signature: %w", err)
	}
	return Transact(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE sessions SET ended_at = ?, signature = ? WHERE id = ?
		`, endedAt.Unix(), string(sigJSON), id)
		if err != nil {
			return fmt.Errorf("end session %s: %w", id, err)
		}
		return nil
	})
}

// SetSessionSummary stores the Summarizer's narrative, applied as its own
// transaction since summarization happens after Stop's main transaction
// commits.
func SetSessionSummary(ctx context.Context, db *sql.DB, id string, summary json.RawMessage) error {
	return Transact(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE sessions SET summary = ? WHERE id = ?`, string(summary), id)
		return err
	})
}

// ObservationTypeSignature computes the count-by-obs_type signature
// stored on Session.signature.
func ObservationTypeSignature(ctx context.Context, db *sql.DB, sessionID string) (map[string]int, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT obs_type, COUNT(*) FROM observations WHERE session_id = ? GROUP BY obs_type
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("compute session signature: %w", err)
	}
	defer func() { _ = rows.Close() }()
	sig := make(map[string]int)
	for rows.Next() {
		var obsType string
		var count int
		if err := rows.Scan(&obsType, &count); err != nil {
			return nil, err
		}
		sig[obsType] = count
	}
	return sig, rows.Err()
}

// ListRecentSessions returns the most recent N summarized sessions for a
// project, newest first, for the Context Builder's session-summaries
// section.
func ListRecentSessions(ctx context.Context, db *sql.DB, project string, limit int) ([]models.Session, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, project, started_at, ended_at, signature, summary
		FROM sessions
		WHERE project = ? AND summary IS NOT NULL
		ORDER BY started_at DESC
		LIMIT ?
	`, project, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.Session
	for rows.Next() {
		var s models.Session
		var started int64
		var ended sql.NullInt64
		var signature, summary sql.NullString
		if err := rows.Scan(&s.ID, &s.Project, &started, &ended, &signature, &summary); err != nil {
			return nil, err
		}
		s.StartedAt = time.Unix(started, 0).UTC()
		if ended.Valid {
			t := time.Unix(ended.Int64, 0).UTC()
			s.EndedAt = &t
		}
		if signature.Valid {
			s.Signature = json.RawMessage(signature.String)
		}
		if summary.Valid {
			s.Summary = json.RawMessage(summary.String)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
