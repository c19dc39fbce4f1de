package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Status is the health report backing `nmem status`.
type Status struct {
	SchemaVersion      int64 `json:"schema_version"`
	LatestVersion      int64 `json:"latest_version"`
	SessionCount       int   `json:"session_count"`
	ObservationCount   int   `json:"observation_count"`
	PromptCount        int   `json:"prompt_count"`
	PinnedCount        int   `json:"pinned_count"`
	PendingTaskCount   int   `json:"pending_task_count"`
	EncryptionActive   bool  `json:"encryption_active"`
	DatabaseSizeBytes  int64 `json:"database_size_bytes"`
}

// GetStatus gathers a health snapshot across the database.
func GetStatus(ctx context.Context, db *sql.DB, dbPath string) (Status, error) {
	var s Status
	s.EncryptionActive = IsEncryptionActive()

	current, latest, err := SchemaVersion(db)
	if err != nil {
		return s, fmt.Errorf("schema version: %w", err)
	}
	s.SchemaVersion, s.LatestVersion = current, latest

	counts := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(*) FROM sessions`, &s.SessionCount},
		{`SELECT COUNT(*) FROM observations`, &s.ObservationCount},
		{`SELECT COUNT(*) FROM prompts`, &s.PromptCount},
		{`SELECT COUNT(*) FROM observations WHERE is_pinned = 1`, &s.PinnedCount},
		{`SELECT COUNT(*) FROM tasks WHERE status = 'pending'`, &s.PendingTaskCount},
	}
	for _, c := range counts {
		if err := db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return s, fmt.Errorf("status query %q: %w", c.query, err)
		}
	}

	size, err := dbFileSize(dbPath)
	if err != nil {
		return s, err
	}
	s.DatabaseSizeBytes = size

	return s, nil
}
