// Package retriever implements nmem's long-lived stdio MCP server: a set
// of read-only (plus a few narrow write) tools over the store, exposed to
// the calling agent via github.com/modelcontextprotocol/go-sdk. One
// connection is held for the server's lifetime, guarded by a mutex since
// the store opens with SetMaxOpenConns(1).
package retriever

import (
	"context"
	"database/sql"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// maxSearchLimit and maxGetObservationsIDs cap how much a single call can
// return, regardless of what the caller requests.
const (
	maxSearchLimit        = 100
	defaultSearchLimit    = 20
	maxGetObservationsIDs = 50
	defaultTimelineWindow = 5
)

// Server holds the shared, mutex-guarded connection and the project
// resolved once at startup from the server's working directory.
type Server struct {
	mu      sync.Mutex
	db      *sql.DB
	project string
}

// New builds a Server bound to db, with project resolved once at startup.
func New(db *sql.DB, project string) *Server {
	return &Server{db: db, project: project}
}

// resolveProject applies the "default to current project unless an
// explicit project is given, or an empty string means cross-project" rule
// shared by every tool. A JSON null decodes to a nil pointer and so selects
// the current project, the same as an omitted field.
func (s *Server) resolveProject(requested *string) string {
	if requested == nil {
		return s.project
	}
	return *requested
}

// Register builds an MCP server exposing every tool and returns it ready
// for Run against a transport (stdio in production, an in-memory
// transport in tests).
func (s *Server) Register() *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "nmem", Version: "0.1.0"}, nil)

	mcp.AddTool(srv, &mcp.Tool{Name: "search", Description: "Full-text search over observations with boolean/phrase/prefix query syntax."}, s.toolSearch)
	mcp.AddTool(srv, &mcp.Tool{Name: "get_observations", Description: "Fetch full observation rows for up to 50 identifiers, in input order."}, s.toolGetObservations)
	mcp.AddTool(srv, &mcp.Tool{Name: "timeline", Description: "Observations immediately before and after an anchor observation, within its session."}, s.toolTimeline)
	mcp.AddTool(srv, &mcp.Tool{Name: "recent_context", Description: "Recent observations ranked by the composite recency/type/project score."}, s.toolRecentContext)
	mcp.AddTool(srv, &mcp.Tool{Name: "session_trace", Description: "A session's prompts in order, each with its associated observations."}, s.toolSessionTrace)
	mcp.AddTool(srv, &mcp.Tool{Name: "file_history", Description: "Per-session history of touches to a specific file path."}, s.toolFileHistory)
	mcp.AddTool(srv, &mcp.Tool{Name: "session_summaries", Description: "Structured summaries of past sessions, project-filtered."}, s.toolSessionSummaries)
	mcp.AddTool(srv, &mcp.Tool{Name: "current_stance", Description: "Smoothed phase/scope trajectory over the current session's recent observations."}, s.toolCurrentStance)
	mcp.AddTool(srv, &mcp.Tool{Name: "queue_task", Description: "Queue a prompt for later external dispatch."}, s.toolQueueTask)
	mcp.AddTool(srv, &mcp.Tool{Name: "create_marker", Description: "Pin an observation so retention sweeps never delete it."}, s.toolCreateMarker)
	mcp.AddTool(srv, &mcp.Tool{Name: "regenerate_context", Description: "Recompute and return the Context Builder's markdown for the current project."}, s.toolRegenerateContext)

	return srv
}

func (s *Server) withLock(ctx context.Context, fn func(ctx context.Context, db *sql.DB) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ctx, s.db)
}
