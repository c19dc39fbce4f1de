package retriever

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nmem/nmem/internal/models"
	"github.com/nmem/nmem/internal/store"
)

// observationView is the trimmed shape search returns: enough to decide
// whether to fetch the full row via get_observations, never full content.
type observationView struct {
	ID        int64  `json:"id"`
	SessionID string `json:"session_id"`
	ObsType   string `json:"obs_type"`
	ToolName  string `json:"tool_name,omitempty"`
	FilePath  string `json:"file_path,omitempty"`
	CreatedAt int64  `json:"created_at"`
	Preview   string `json:"preview"`
}

const previewLength = 200

func preview(content string) string {
	r := []rune(content)
	if len(r) <= previewLength {
		return content
	}
	return string(r[:previewLength]) + "…"
}

func toView(o models.Observation) observationView {
	return observationView{
		ID: o.ID, SessionID: o.SessionID, ObsType: o.ObsType, ToolName: o.ToolName,
		FilePath: o.FilePath, CreatedAt: o.CreatedAt.Unix(), Preview: preview(o.Content),
	}
}

type searchArgs struct {
	Query   string  `json:"query" jsonschema:"Full-text query supporting AND/OR/NOT, \"phrase\", and prefix* syntax."`
	Project *string `json:"project,omitempty" jsonschema:"Project filter; omit (or null) for current project, empty string for cross-project, or give an explicit name."`
	ObsType string  `json:"obs_type,omitempty" jsonschema:"Restrict to one observation type."`
	Limit   int     `json:"limit,omitempty" jsonschema:"Max rows, capped at 100."`
	Offset  int     `json:"offset,omitempty"`
}

type searchResult struct {
	Results []observationView `json:"results"`
}

func (s *Server) toolSearch(ctx context.Context, _ *mcp.CallToolRequest, args searchArgs) (*mcp.CallToolResult, searchResult, error) {
	limit := args.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	project := s.resolveProject(args.Project)

	var out searchResult
	err := s.withLock(ctx, func(ctx context.Context, db *sql.DB) error {
		obs, err := store.SearchObservations(ctx, db, project, args.ObsType, args.Query, limit, args.Offset)
		if err != nil {
			return fmt.Errorf("search: malformed query or store error: %w", err)
		}
		out.Results = make([]observationView, 0, len(obs))
		for _, o := range obs {
			out.Results = append(out.Results, toView(o))
		}
		return nil
	})
	if err != nil {
		return nil, searchResult{}, err
	}
	return nil, out, nil
}

type getObservationsArgs struct {
	IDs []int64 `json:"ids" jsonschema:"Up to 50 observation identifiers, order preserved."`
}

type getObservationsResult struct {
	Observations []models.Observation `json:"observations"`
}

func (s *Server) toolGetObservations(ctx context.Context, _ *mcp.CallToolRequest, args getObservationsArgs) (*mcp.CallToolResult, getObservationsResult, error) {
	ids := args.IDs
	if len(ids) > maxGetObservationsIDs {
		ids = ids[:maxGetObservationsIDs]
	}

	var out getObservationsResult
	err := s.withLock(ctx, func(ctx context.Context, db *sql.DB) error {
		obs, err := store.GetObservationsByIDs(ctx, db, ids)
		if err != nil {
			return err
		}
		out.Observations = obs
		return nil
	})
	return nil, out, err
}

type timelineArgs struct {
	AnchorID int64 `json:"anchor_id"`
	Before   int   `json:"before,omitempty"`
	After    int   `json:"after,omitempty"`
}

type timelineResult struct {
	Before []models.Observation `json:"before"`
	Anchor models.Observation   `json:"anchor"`
	After  []models.Observation `json:"after"`
}

func (s *Server) toolTimeline(ctx context.Context, _ *mcp.CallToolRequest, args timelineArgs) (*mcp.CallToolResult, timelineResult, error) {
	before, after := args.Before, args.After
	if before <= 0 {
		before = defaultTimelineWindow
	}
	if after <= 0 {
		after = defaultTimelineWindow
	}

	var out timelineResult
	err := s.withLock(ctx, func(ctx context.Context, db *sql.DB) error {
		anchor, err := store.ObservationByID(ctx, db, args.AnchorID)
		if err != nil {
			return err
		}
		if anchor == nil {
			return fmt.Errorf("timeline: unknown anchor observation %d", args.AnchorID)
		}
		out.Anchor = *anchor
		out.Before, err = store.ObservationsBefore(ctx, db, anchor.SessionID, anchor.ID, before)
		if err != nil {
			return err
		}
		out.After, err = store.ObservationsAfter(ctx, db, anchor.SessionID, anchor.ID, after)
		return err
	})
	return nil, out, err
}

type recentContextArgs struct {
	Project *string `json:"project,omitempty"`
	Limit   int     `json:"limit,omitempty"`
}

type recentContextResult struct {
	Results []observationView `json:"results"`
}

func (s *Server) toolRecentContext(ctx context.Context, _ *mcp.CallToolRequest, args recentContextArgs) (*mcp.CallToolResult, recentContextResult, error) {
	limit := args.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	project := s.resolveProject(args.Project)

	var out recentContextResult
	err := s.withLock(ctx, func(ctx context.Context, db *sql.DB) error {
		candidatesLimit := limit * 4
		if candidatesLimit < 100 {
			candidatesLimit = 100
		}

		var ranked []scored
		if project == "" {
			withProj, err := store.RecentObservationsAcrossProjects(ctx, db, candidatesLimit)
			if err != nil {
				return err
			}
			projectOf := make(map[int64]string, len(withProj))
			candidates := make([]models.Observation, 0, len(withProj))
			for _, owp := range withProj {
				projectOf[owp.ID] = owp.Project
				candidates = append(candidates, owp.Observation)
			}
			ranked = rankAndDedupe(candidates, func(o models.Observation) string { return projectOf[o.ID] }, s.project, time.Now())
		} else {
			candidates, err := store.RecentObservations(ctx, db, project, candidatesLimit)
			if err != nil {
				return err
			}
			ranked = rankAndDedupe(candidates, func(models.Observation) string { return project }, s.project, time.Now())
		}

		if len(ranked) > limit {
			ranked = ranked[:limit]
		}
		out.Results = make([]observationView, 0, len(ranked))
		for _, r := range ranked {
			out.Results = append(out.Results, toView(r.Observation))
		}
		return nil
	})
	return nil, out, err
}
