package commands

import (
	"context"
	"database/sql"

	"github.com/spf13/cobra"

	"github.com/nmem/nmem/internal/output"
	"github.com/nmem/nmem/internal/store"
)

// newEncryptCmd reports whether the database is encrypted at rest.
// Encryption itself is applied automatically the first time a database is
// opened (internal/store/crypto.go generates and stores the key on first
// use), so this command is a status check rather than an action.
func newEncryptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt",
		Short: "Report the database's at-rest encryption status",
		RunE: func(cmd *cobra.Command, args []string) error {
			keyPath, err := store.DefaultKeyPath()
			if err != nil {
				_ = output.PrintError(err)
				return printedError{err}
			}

			var encrypted bool
			err = withReadOnlyDB(func(ctx context.Context, db *sql.DB) error {
				var err error
				encrypted, err = store.IsEncrypted(ctx, db)
				return err
			})
			if err != nil {
				_ = output.PrintError(err)
				return printedError{err}
			}

			return output.PrintSuccess(struct {
				Encrypted bool   `json:"encrypted"`
				Active    bool   `json:"active"`
				KeyPath   string `json:"key_path"`
			}{
				Encrypted: encrypted,
				Active:    store.IsEncryptionActive(),
				KeyPath:   keyPath,
			})
		},
	}
}
