package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetOrCreateClassifierRun returns the id of the (dimension, modelHash) run,
// creating it lazily on first use of a model, so every label carries
// provenance back to the exact model that produced it.
func GetOrCreateClassifierRun(ctx context.Context, db *sql.DB, dimension, modelHash string) (int64, error) {
	var id int64
	err := db.QueryRowContext(ctx, `
		SELECT id FROM classifier_runs WHERE dimension = ? AND model_hash = ?
	`, dimension, modelHash).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("lookup classifier run: %w", err)
	}

	err = Transact(ctx, db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO classifier_runs (dimension, model_hash, created_at)
			VALUES (?, ?, ?)
			ON CONFLICT(dimension, model_hash) DO NOTHING
		`, dimension, modelHash, time.Now().Unix())
		if err != nil {
			return fmt.Errorf("insert classifier run: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil || n == 0 {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}
	if id != 0 {
		return id, nil
	}
	// Lost the race to a concurrent insert; re-read.
	err = db.QueryRowContext(ctx, `
		SELECT id FROM classifier_runs WHERE dimension = ? AND model_hash = ?
	`, dimension, modelHash).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("re-read classifier run after race: %w", err)
	}
	return id, nil
}
