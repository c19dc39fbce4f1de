package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nmem/nmem/internal/models"
)

// InsertPrompt inserts a Prompt row (plaintext already filtered by the
// caller), encrypting content at rest and mirroring plaintext into the FTS
// index in the same transaction.
func InsertPrompt(ctx context.Context, db *sql.DB, sessionID, source, plaintext string, createdAt time.Time) (int64, error) {
	sealed, err := EncryptColumn([]byte(plaintext))
	if err != nil {
		return 0, fmt.Errorf("encrypt prompt content: %w", err)
	}

	var id int64
	err = Transact(ctx, db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO prompts (session_id, created_at, source, content)
			VALUES (?, ?, ?, ?)
		`, sessionID, createdAt.Unix(), source, sealed)
		if err != nil {
			return fmt.Errorf("insert prompt: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("read inserted prompt id: %w", err)
		}
		return IndexPrompt(ctx, tx, id, plaintext)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// LatestPromptID returns the most-recent prompt id in a session, for
// associating an observation with the most-recent prompt at capture time.
func LatestPromptID(ctx context.Context, db *sql.DB, sessionID string) (*int64, error) {
	var id int64
	err := db.QueryRowContext(ctx, `
		SELECT id FROM prompts WHERE session_id = ? ORDER BY id DESC LIMIT 1
	`, sessionID).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest prompt id: %w", err)
	}
	return &id, nil
}

// ListPromptsBySession returns a session's prompts in timestamp order,
// decrypted (Episode Detector, session_trace tool).
func ListPromptsBySession(ctx context.Context, db *sql.DB, sessionID string) ([]models.Prompt, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, session_id, created_at, source, content
		FROM prompts WHERE session_id = ? ORDER BY id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list prompts for session %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.Prompt
	for rows.Next() {
		var p models.Prompt
		var created int64
		var sealed []byte
		if err := rows.Scan(&p.ID, &p.SessionID, &created, &p.Source, &sealed); err != nil {
			return nil, err
		}
		plain, err := DecryptColumn(sealed)
		if err != nil {
			return nil, fmt.Errorf("decrypt prompt %d: %w", p.ID, err)
		}
		p.CreatedAt = time.Unix(created, 0).UTC()
		p.Content = string(plain)
		out = append(out, p)
	}
	return out, rows.Err()
}

// PromptWithActionCount pairs a user prompt with the number of observations
// it produced, for the Context Builder's "recent intents" section.
type PromptWithActionCount struct {
	models.Prompt
	ActionCount int
}

// RecentIntents returns the most recent user prompts in a project that
// produced at least one observation, newest first, capped at limit.
// Conversational turns that produced nothing are excluded entirely rather
// than shown with a zero count.
func RecentIntents(ctx context.Context, db *sql.DB, project string, limit int) ([]PromptWithActionCount, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT p.id, p.session_id, p.created_at, p.source, p.content, COUNT(o.id) AS actions
		FROM prompts p
		JOIN sessions s ON s.id = p.session_id
		JOIN observations o ON o.prompt_id = p.id
		WHERE p.source = ? AND s.project = ?
		GROUP BY p.id
		HAVING actions > 0
		ORDER BY p.created_at DESC
		LIMIT ?
	`, models.PromptSourceUser, project, limit)
	if err != nil {
		return nil, fmt.Errorf("recent intents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []PromptWithActionCount
	for rows.Next() {
		var p PromptWithActionCount
		var created int64
		var sealed []byte
		if err := rows.Scan(&p.ID, &p.SessionID, &created, &p.Source, &sealed, &p.ActionCount); err != nil {
			return nil, err
		}
		plain, err := DecryptColumn(sealed)
		if err != nil {
			return nil, fmt.Errorf("decrypt prompt %d: %w", p.ID, err)
		}
		p.CreatedAt = time.Unix(created, 0).UTC()
		p.Content = string(plain)
		out = append(out, p)
	}
	return out, rows.Err()
}

// PromptsInRange returns prompts with id in [firstID, lastID], used by the
// episode detector's annotation pass.
func PromptsInRange(ctx context.Context, db *sql.DB, sessionID string, firstID, lastID int64) ([]models.Prompt, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, session_id, created_at, source, content
		FROM prompts WHERE session_id = ? AND id BETWEEN ? AND ?
		ORDER BY id ASC
	`, sessionID, firstID, lastID)
	if err != nil {
		return nil, fmt.Errorf("prompts in range: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.Prompt
	for rows.Next() {
		var p models.Prompt
		var created int64
		var sealed []byte
		if err := rows.Scan(&p.ID, &p.SessionID, &created, &p.Source, &sealed); err != nil {
			return nil, err
		}
		plain, err := DecryptColumn(sealed)
		if err != nil {
			return nil, fmt.Errorf("decrypt prompt %d: %w", p.ID, err)
		}
		p.CreatedAt = time.Unix(created, 0).UTC()
		p.Content = string(plain)
		out = append(out, p)
	}
	return out, rows.Err()
}
