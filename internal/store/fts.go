package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Observation content is encrypted at rest (internal/store/crypto.go), so
// the FTS5 tables cannot be kept in sync by SQL triggers reading the base
// column — they'd index ciphertext. Instead the Go layer explicitly mirrors
// plaintext into the index in the same transaction as the base row write,
// so insertions and updates are visible to subsequent queries, without
// ever persisting plaintext in the FTS shadow tables' backing store beyond
// what FTS5 itself requires for ranking.

// IndexObservation inserts plaintext into observations_fts keyed by the
// observation's rowid.
func IndexObservation(ctx context.Context, tx *sql.Tx, observationID int64, plaintext string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO observations_fts(rowid, content) VALUES (?, ?)`, observationID, plaintext)
	if err != nil {
		return fmt.Errorf("index observation %d: %w", observationID, err)
	}
	return nil
}

// DeindexObservation removes an observation's FTS row (retention sweep,
// purge).
func DeindexObservation(ctx context.Context, tx *sql.Tx, observationID int64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM observations_fts WHERE rowid = ?`, observationID)
	if err != nil {
		return fmt.Errorf("deindex observation %d: %w", observationID, err)
	}
	return nil
}

// IndexPrompt inserts plaintext into prompts_fts keyed by the prompt's
// rowid.
func IndexPrompt(ctx context.Context, tx *sql.Tx, promptID int64, plaintext string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO prompts_fts(rowid, content) VALUES (?, ?)`, promptID, plaintext)
	if err != nil {
		return fmt.Errorf("index prompt %d: %w", promptID, err)
	}
	return nil
}

// DeindexPrompt removes a prompt's FTS row.
func DeindexPrompt(ctx context.Context, tx *sql.Tx, promptID int64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM prompts_fts WHERE rowid = ?`, promptID)
	if err != nil {
		return fmt.Errorf("deindex prompt %d: %w", promptID, err)
	}
	return nil
}

// RebuildFTS fully reconstructs both FTS tables by decrypting every base
// row's content and re-inserting it, exposed as the explicit `maintain
// --rebuild-fts` command for use after large deletions.
func RebuildFTS(ctx context.Context, db *sql.DB) error {
	return Transact(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM observations_fts`); err != nil {
			return fmt.Errorf("clear observations_fts: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM prompts_fts`); err != nil {
			return fmt.Errorf("clear prompts_fts: %w", err)
		}

		obsRows, err := tx.QueryContext(ctx, `SELECT id, content FROM observations`)
		if err != nil {
			return fmt.Errorf("scan observations for rebuild: %w", err)
		}
		type row struct {
			id      int64
			content []byte
		}
		var obsBatch []row
		for obsRows.Next() {
			var r row
			if err := obsRows.Scan(&r.id, &r.content); err != nil {
				_ = obsRows.Close()
				return fmt.Errorf("scan observation row: %w", err)
			}
			obsBatch = append(obsBatch, r)
		}
		if err := obsRows.Err(); err != nil {
			_ = obsRows.Close()
			return err
		}
		_ = obsRows.Close()
		for _, r := range obsBatch {
			plain, err := DecryptColumn(r.content)
			if err != nil {
				return fmt.Errorf("decrypt observation %d for rebuild: %w", r.id, err)
			}
			if err := IndexObservation(ctx, tx, r.id, string(plain)); err != nil {
				return err
			}
		}

		promptRows, err := tx.QueryContext(ctx, `SELECT id, content FROM prompts`)
		if err != nil {
			return fmt.Errorf("scan prompts for rebuild: %w", err)
		}
		var promptBatch []row
		for promptRows.Next() {
			var r row
			if err := promptRows.Scan(&r.id, &r.content); err != nil {
				_ = promptRows.Close()
				return fmt.Errorf("scan prompt row: %w", err)
			}
			promptBatch = append(promptBatch, r)
		}
		if err := promptRows.Err(); err != nil {
			_ = promptRows.Close()
			return err
		}
		_ = promptRows.Close()
		for _, r := range promptBatch {
			plain, err := DecryptColumn(r.content)
			if err != nil {
				return fmt.Errorf("decrypt prompt %d for rebuild: %w", r.id, err)
			}
			if err := IndexPrompt(ctx, tx, r.id, string(plain)); err != nil {
				return err
			}
		}
		return nil
	})
}
