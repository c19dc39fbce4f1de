package retriever

import (
	"context"
	"database/sql"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nmem/nmem/internal/contextbuilder"
	"github.com/nmem/nmem/internal/models"
	"github.com/nmem/nmem/internal/store"
)

type queueTaskArgs struct {
	Prompt  string  `json:"prompt"`
	Project *string `json:"project,omitempty"`
}

type queueTaskResult struct {
	Task models.Task `json:"task"`
}

func (s *Server) toolQueueTask(ctx context.Context, _ *mcp.CallToolRequest, args queueTaskArgs) (*mcp.CallToolResult, queueTaskResult, error) {
	project := s.resolveProject(args.Project)
	if project == "" {
		project = s.project
	}

	var out queueTaskResult
	err := s.withLock(ctx, func(ctx context.Context, db *sql.DB) error {
		t, err := store.QueueTask(ctx, db, args.Prompt, project)
		if err != nil {
			return err
		}
		out.Task = t
		return nil
	})
	return nil, out, err
}

type createMarkerArgs struct {
	ObservationID int64 `json:"observation_id"`
	Pinned        *bool `json:"pinned,omitempty" jsonschema:"Defaults to true; pass false to unpin."`
}

type createMarkerResult struct {
	ObservationID int64 `json:"observation_id"`
	Pinned        bool  `json:"pinned"`
}

func (s *Server) toolCreateMarker(ctx context.Context, _ *mcp.CallToolRequest, args createMarkerArgs) (*mcp.CallToolResult, createMarkerResult, error) {
	pinned := true
	if args.Pinned != nil {
		pinned = *args.Pinned
	}

	out := createMarkerResult{ObservationID: args.ObservationID, Pinned: pinned}
	err := s.withLock(ctx, func(ctx context.Context, db *sql.DB) error {
		return store.SetPinned(ctx, db, args.ObservationID, pinned)
	})
	return nil, out, err
}

type regenerateContextArgs struct {
	Project      *string `json:"project,omitempty"`
	RecoveryMode bool    `json:"recovery_mode,omitempty"`
}

type regenerateContextResult struct {
	Markdown string `json:"markdown"`
}

func (s *Server) toolRegenerateContext(ctx context.Context, _ *mcp.CallToolRequest, args regenerateContextArgs) (*mcp.CallToolResult, regenerateContextResult, error) {
	project := s.resolveProject(args.Project)
	if project == "" {
		project = s.project
	}

	var out regenerateContextResult
	err := s.withLock(ctx, func(ctx context.Context, db *sql.DB) error {
		md, err := contextbuilder.Build(ctx, db, contextbuilder.Options{Project: project, RecoveryMode: args.RecoveryMode})
		if err != nil {
			return err
		}
		out.Markdown = md
		return nil
	})
	return nil, out, err
}
