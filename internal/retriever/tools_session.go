package retriever

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nmem/nmem/internal/models"
	"github.com/nmem/nmem/internal/store"
)

type traceStep struct {
	Prompt       *promptView          `json:"prompt,omitempty"`
	Observations []observationView    `json:"observations"`
}

type promptView struct {
	ID        int64  `json:"id"`
	Source    string `json:"source"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"created_at"`
}

type sessionTraceArgs struct {
	SessionID string `json:"session_id"`
	Since     int64  `json:"since,omitempty" jsonschema:"Unix seconds; only observations at or after this time."`
	Until     int64  `json:"until,omitempty" jsonschema:"Unix seconds; only observations at or before this time."`
}

type sessionTraceResult struct {
	Session models.Session `json:"session"`
	Steps   []traceStep    `json:"steps"`
}

// toolSessionTrace reconstructs a session's prompts in order, each paired
// with the observations captured while it was the active prompt.
// Observations with no prompt (captured before the first prompt lands, or
// orphaned by a process restart) are grouped under a synthetic leading
// step with no prompt.
func (s *Server) toolSessionTrace(ctx context.Context, _ *mcp.CallToolRequest, args sessionTraceArgs) (*mcp.CallToolResult, sessionTraceResult, error) {
	var out sessionTraceResult
	err := s.withLock(ctx, func(ctx context.Context, db *sql.DB) error {
		sess, err := store.GetSession(ctx, db, args.SessionID)
		if err != nil {
			return err
		}
		if sess == nil {
			return fmt.Errorf("session_trace: unknown session %q", args.SessionID)
		}
		out.Session = *sess

		prompts, err := store.ListPromptsBySession(ctx, db, args.SessionID)
		if err != nil {
			return err
		}
		obs, err := store.ListObservationsBySession(ctx, db, args.SessionID)
		if err != nil {
			return err
		}

		byPrompt := make(map[int64][]observationView)
		var orphaned []observationView
		for _, o := range obs {
			if args.Since != 0 && o.CreatedAt.Unix() < args.Since {
				continue
			}
			if args.Until != 0 && o.CreatedAt.Unix() > args.Until {
				continue
			}
			v := toView(o)
			if o.PromptID == nil {
				orphaned = append(orphaned, v)
				continue
			}
			byPrompt[*o.PromptID] = append(byPrompt[*o.PromptID], v)
		}

		if len(orphaned) > 0 {
			out.Steps = append(out.Steps, traceStep{Observations: orphaned})
		}
		for _, p := range prompts {
			out.Steps = append(out.Steps, traceStep{
				Prompt: &promptView{ID: p.ID, Source: p.Source, Content: p.Content, CreatedAt: p.CreatedAt.Unix()},
				Observations: byPrompt[p.ID],
			})
		}
		return nil
	})
	return nil, out, err
}

type fileHistoryArgs struct {
	Path    string  `json:"path"`
	Project *string `json:"project,omitempty"`
}

type fileHistoryEntry struct {
	SessionID string `json:"session_id"`
	Intent    string `json:"intent,omitempty"`
	Touches   []observationView `json:"touches"`
}

type fileHistoryResult struct {
	Path    string             `json:"path"`
	Entries []fileHistoryEntry `json:"entries"`
}

// toolFileHistory groups every recorded touch to a file path by session,
// attaching the session's narrated intent where one exists so the caller
// can see not just what changed but why.
func (s *Server) toolFileHistory(ctx context.Context, _ *mcp.CallToolRequest, args fileHistoryArgs) (*mcp.CallToolResult, fileHistoryResult, error) {
	project := s.resolveProject(args.Project)
	out := fileHistoryResult{Path: args.Path}

	err := s.withLock(ctx, func(ctx context.Context, db *sql.DB) error {
		obs, err := store.ObservationsByFilePath(ctx, db, project, args.Path)
		if err != nil {
			return err
		}

		order := make([]string, 0)
		bySession := make(map[string][]observationView)
		for _, o := range obs {
			if _, ok := bySession[o.SessionID]; !ok {
				order = append(order, o.SessionID)
			}
			bySession[o.SessionID] = append(bySession[o.SessionID], toView(o))
		}

		for _, sid := range order {
			entry := fileHistoryEntry{SessionID: sid, Touches: bySession[sid]}
			if sess, err := store.GetSession(ctx, db, sid); err == nil && sess != nil && len(sess.Summary) > 0 {
				var n struct {
					Intent string `json:"intent"`
				}
				if json.Unmarshal(sess.Summary, &n) == nil {
					entry.Intent = n.Intent
				}
			}
			out.Entries = append(out.Entries, entry)
		}
		return nil
	})
	return nil, out, err
}

type sessionSummariesArgs struct {
	Project *string `json:"project,omitempty"`
	Limit   int     `json:"limit,omitempty"`
}

type sessionSummariesResult struct {
	Sessions []models.Session `json:"sessions"`
}

func (s *Server) toolSessionSummaries(ctx context.Context, _ *mcp.CallToolRequest, args sessionSummariesArgs) (*mcp.CallToolResult, sessionSummariesResult, error) {
	limit := args.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	project := s.resolveProject(args.Project)

	var out sessionSummariesResult
	err := s.withLock(ctx, func(ctx context.Context, db *sql.DB) error {
		sessions, err := store.ListRecentSessions(ctx, db, project, limit)
		if err != nil {
			return err
		}
		out.Sessions = sessions
		return nil
	})
	return nil, out, err
}

type currentStanceArgs struct {
	SessionID string `json:"session_id"`
	Window    int    `json:"window,omitempty" jsonschema:"Number of trailing observations to smooth over; default 20."`
}

type currentStanceResult struct {
	Phase     string  `json:"phase"`
	Scope     string  `json:"scope"`
	PhaseX    float64 `json:"phase_score"`
	ScopeY    float64 `json:"scope_score"`
	Guidance  string  `json:"guidance"`
}

const (
	defaultStanceWindow = 20
	stanceSmoothing     = 0.3
)

var phaseAxis = map[string]float64{
	models.LabelPhaseThink: 0,
	models.LabelPhaseAct:   1,
}

var scopeAxis = map[string]float64{
	models.LabelScopeConverge: 0,
	models.LabelScopeDiverge:  1,
}

// toolCurrentStance exponentially smooths phase/scope labels over a
// session's recent observations into a single (phase, scope) point, so the
// caller can tell "deep in verification on a narrow file" from "broad
// exploration" without re-deriving it from raw labels every call.
func (s *Server) toolCurrentStance(ctx context.Context, _ *mcp.CallToolRequest, args currentStanceArgs) (*mcp.CallToolResult, currentStanceResult, error) {
	window := args.Window
	if window <= 0 {
		window = defaultStanceWindow
	}

	var out currentStanceResult
	err := s.withLock(ctx, func(ctx context.Context, db *sql.DB) error {
		obs, err := store.ListObservationsBySession(ctx, db, args.SessionID)
		if err != nil {
			return err
		}
		if len(obs) == 0 {
			out.Phase, out.Scope = models.LabelPhaseThink, models.LabelScopeConverge
			out.Guidance = "no observations yet; defaulting to a thinking, converging stance"
			return nil
		}
		sort.Slice(obs, func(i, j int) bool { return obs[i].CreatedAt.Before(obs[j].CreatedAt) })
		if len(obs) > window {
			obs = obs[len(obs)-window:]
		}

		var x, y float64
		haveAny := false
		for _, o := range obs {
			px, okP := phaseAxis[o.Phase]
			sy, okS := scopeAxis[o.Scope]
			if !okP && !okS {
				continue
			}
			if !haveAny {
				x, y = px, sy
				haveAny = true
				continue
			}
			x = stanceSmoothing*px + (1-stanceSmoothing)*x
			y = stanceSmoothing*sy + (1-stanceSmoothing)*y
		}

		out.PhaseX, out.ScopeY = x, y
		out.Phase = nearestLabel(x, phaseAxis)
		out.Scope = nearestLabel(y, scopeAxis)
		out.Guidance = stanceGuidance(out.Phase, out.Scope)
		return nil
	})
	return nil, out, err
}

func nearestLabel(v float64, axis map[string]float64) string {
	best, bestDist := "", -1.0
	for label, pos := range axis {
		d := pos - v
		if d < 0 {
			d = -d
		}
		if bestDist < 0 || d < bestDist {
			best, bestDist = label, d
		}
	}
	return best
}

func stanceGuidance(phase, scope string) string {
	switch {
	case phase == models.LabelPhaseAct && scope == models.LabelScopeConverge:
		return "prefer file_history and timeline over broad search"
	case phase == models.LabelPhaseThink && scope == models.LabelScopeDiverge:
		return "prefer recent_context and session_summaries over a single file's history"
	default:
		return "prefer search scoped to the current task"
	}
}
