package commands

import (
	"context"
	"database/sql"

	"github.com/spf13/cobra"

	"github.com/nmem/nmem/internal/models"
	"github.com/nmem/nmem/internal/output"
	"github.com/nmem/nmem/internal/store"
)

func newQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and add to the deferred task queue",
	}
	cmd.AddCommand(newQueueAddCmd())
	cmd.AddCommand(newQueueListCmd())
	return cmd
}

func newQueueAddCmd() *cobra.Command {
	var project string

	cmd := &cobra.Command{
		Use:   "add <prompt>",
		Short: "Queue a task for later pickup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var task models.Task
			err := withWritableDB(func(ctx context.Context, db *sql.DB) error {
				var err error
				task, err = store.QueueTask(ctx, db, args[0], project)
				return err
			})
			if err != nil {
				_ = output.PrintError(err)
				return printedError{err}
			}
			return output.PrintSuccess(task)
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "Project the task belongs to")
	return cmd
}

func newQueueListCmd() *cobra.Command {
	var project, status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			var tasks []models.Task
			err := withReadOnlyDB(func(ctx context.Context, db *sql.DB) error {
				var err error
				tasks, err = store.ListTasks(ctx, db, project, status)
				return err
			})
			if err != nil {
				_ = output.PrintError(err)
				return printedError{err}
			}
			return output.PrintSuccess(struct {
				Tasks []models.Task `json:"tasks"`
			}{tasks})
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "Restrict to a project")
	cmd.Flags().StringVar(&status, "status", "", "Restrict to a task status")
	return cmd
}
