package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nmem/nmem/internal/models"
)

// InsertEpisode persists a detected work unit. Callers pass an
// already-generated opaque id (google/uuid).
func InsertEpisode(ctx context.Context, db *sql.DB, e models.Episode) error {
	hotFilesJSON, err := json.Marshal(e.HotFiles)
	if err != nil {
		return fmt.Errorf("marshal hot files: %w", err)
	}
	traceJSON, err := json.Marshal(e.ObsTrace)
	if err != nil {
		return fmt.Errorf("marshal obs trace: %w", err)
	}
	learnedJSON, err := json.Marshal(e.Learned)
	if err != nil {
		return fmt.Errorf("marshal learned: %w", err)
	}

	return Transact(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO episodes
				(id, session_id, started_at, ended_at, intent, first_prompt_id, last_prompt_id,
				 hot_files, phase_signature, observation_count, obs_trace, summary, learned, notes, failure_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				ended_at = excluded.ended_at,
				obs_trace = excluded.obs_trace,
				observation_count = excluded.observation_count,
				hot_files = excluded.hot_files,
				phase_signature = excluded.phase_signature,
				failure_count = excluded.failure_count
		`,
			e.ID, e.SessionID, e.StartedAt.Unix(), e.EndedAt.Unix(), e.Intent, e.FirstPromptID, e.LastPromptID,
			string(hotFilesJSON), string(e.PhaseSignature), e.ObservationCount, string(traceJSON),
			nullableString(e.Summary), string(learnedJSON), nullableString(e.Notes), e.FailureCount,
		)
		if err != nil {
			return fmt.Errorf("insert episode %s: %w", e.ID, err)
		}
		return nil
	})
}

// SetEpisodeNarrative stores the episode's asynchronously-generated
// narrative.
func SetEpisodeNarrative(ctx context.Context, db *sql.DB, id, summary string, learned []string) error {
	learnedJSON, err := json.Marshal(learned)
	if err != nil {
		return fmt.Errorf("marshal learned: %w", err)
	}
	return Transact(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE episodes SET summary = ?, learned = ? WHERE id = ?`, summary, string(learnedJSON), id)
		return err
	})
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// ListEpisodesBySession returns a session's episodes in start order.
func ListEpisodesBySession(ctx context.Context, db *sql.DB, sessionID string) ([]models.Episode, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, session_id, started_at, ended_at, intent, first_prompt_id, last_prompt_id,
		       hot_files, phase_signature, observation_count, obs_trace, summary, learned, notes, failure_count
		FROM episodes WHERE session_id = ? ORDER BY started_at ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list episodes for session %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.Episode
	for rows.Next() {
		e, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEpisode(row interface{ Scan(dest ...any) error }) (models.Episode, error) {
	var e models.Episode
	var started, ended int64
	var hotFiles, phaseSignature, traceJSON, learnedJSON sql.NullString
	var summary, notes sql.NullString

	err := row.Scan(
		&e.ID, &e.SessionID, &started, &ended, &e.Intent, &e.FirstPromptID, &e.LastPromptID,
		&hotFiles, &phaseSignature, &e.ObservationCount, &traceJSON, &summary, &learnedJSON, &notes, &e.FailureCount,
	)
	if err != nil {
		return e, err
	}
	e.StartedAt = time.Unix(started, 0).UTC()
	e.EndedAt = time.Unix(ended, 0).UTC()
	e.Summary = summary.String
	e.Notes = notes.String

	if hotFiles.Valid && strings.TrimSpace(hotFiles.String) != "" {
		if err := json.Unmarshal([]byte(hotFiles.String), &e.HotFiles); err != nil {
			return e, fmt.Errorf("unmarshal hot files: %w", err)
		}
	}
	if phaseSignature.Valid {
		e.PhaseSignature = json.RawMessage(phaseSignature.String)
	}
	if traceJSON.Valid && strings.TrimSpace(traceJSON.String) != "" {
		if err := json.Unmarshal([]byte(traceJSON.String), &e.ObsTrace); err != nil {
			return e, fmt.Errorf("unmarshal obs trace: %w", err)
		}
	}
	if learnedJSON.Valid && strings.TrimSpace(learnedJSON.String) != "" {
		if err := json.Unmarshal([]byte(learnedJSON.String), &e.Learned); err != nil {
			return e, fmt.Errorf("unmarshal learned: %w", err)
		}
	}
	return e, nil
}
