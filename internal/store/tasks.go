package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nmem/nmem/internal/models"
)

// QueueTask inserts a pending Task row, reachable from both the `queue`
// CLI command and the queue_task MCP tool. Dispatch itself is out of
// scope; this only persists the interface.
func QueueTask(ctx context.Context, db *sql.DB, prompt, project string) (models.Task, error) {
	t := models.Task{
		ID:        "task_" + uuid.NewString(),
		Prompt:    prompt,
		Project:   project,
		Status:    models.TaskStatusPending,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	err := Transact(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tasks (id, prompt, project, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, t.ID, t.Prompt, t.Project, string(t.Status), t.CreatedAt.Unix(), t.UpdatedAt.Unix())
		if err != nil {
			return fmt.Errorf("queue task: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.Task{}, err
	}
	return t, nil
}

// ListTasks returns tasks for a project filtered by status, newest first.
func ListTasks(ctx context.Context, db *sql.DB, project, status string) ([]models.Task, error) {
	query := `SELECT id, prompt, project, status, created_at, updated_at FROM tasks WHERE 1=1`
	var args []any
	if project != "" {
		query += " AND project = ?"
		args = append(args, project)
	}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.Task
	for rows.Next() {
		var t models.Task
		var created, updated int64
		var status string
		if err := rows.Scan(&t.ID, &t.Prompt, &t.Project, &status, &created, &updated); err != nil {
			return nil, err
		}
		t.Status = models.TaskStatus(status)
		t.CreatedAt = time.Unix(created, 0).UTC()
		t.UpdatedAt = time.Unix(updated, 0).UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}
