package commands

import (
	"context"
	"database/sql"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/nmem/nmem/internal/extractor"
	"github.com/nmem/nmem/internal/retriever"
)

// newServeCmd starts the long-lived stdio MCP tool server, one process per
// agent session, dying cleanly on stdin EOF.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the long-lived MCP tool server over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReadOnlyDB(func(ctx context.Context, db *sql.DB) error {
				cwd, err := os.Getwd()
				if err != nil {
					return err
				}
				srv := retriever.New(db, extractor.ResolveProject(cwd))
				return srv.Register().Run(ctx, &mcp.StdioTransport{})
			})
		},
	}
}
