// Package contextbuilder assembles the markdown document nmem injects into
// a new agent session. It shares its ranking logic with internal/retriever
// directly — not over the tool-server RPC layer — so the SessionStart hook
// path and the standalone `nmem context` command produce identical output
// from one code path.
package contextbuilder

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nmem/nmem/internal/models"
	"github.com/nmem/nmem/internal/retriever"
	"github.com/nmem/nmem/internal/store"
)

// Options configures one Build call.
type Options struct {
	Project      string
	RecoveryMode bool
}

const (
	recentIntentsLimit = 10

	normalSessionLimit = 5
	recoverySessionLimit = 8

	normalLocalLimit      = 20
	normalCrossLimit      = 10
	recoveryLocalLimit    = 30
	recoveryCrossLimit    = 15
)

// Build renders the five-section markdown document. Errors are always
// safe to treat as "no context available" by the caller; Build itself
// never returns a partially-written document alongside a non-nil error.
func Build(ctx context.Context, db *sql.DB, opts Options) (string, error) {
	var b strings.Builder
	now := time.Now()

	localLimit, crossLimit, sessionLimit := normalLocalLimit, normalCrossLimit, normalSessionLimit
	if opts.RecoveryMode {
		localLimit, crossLimit, sessionLimit = recoveryLocalLimit, recoveryCrossLimit, recoverySessionLimit
	}

	if err := writeRecentIntents(ctx, db, &b, opts.Project); err != nil {
		return "", fmt.Errorf("recent intents: %w", err)
	}
	if err := writeSessionSummaries(ctx, db, &b, opts.Project, sessionLimit); err != nil {
		return "", fmt.Errorf("session summaries: %w", err)
	}
	if err := writeFileAndGitActivity(ctx, db, &b, opts.Project, localLimit, now); err != nil {
		return "", fmt.Errorf("file and git activity: %w", err)
	}
	if err := writePinned(ctx, db, &b, opts.Project); err != nil {
		return "", fmt.Errorf("pinned observations: %w", err)
	}
	if crossLimit > 0 {
		if err := writeCrossProjectPinned(ctx, db, &b, opts.Project); err != nil {
			return "", fmt.Errorf("cross-project pinned observations: %w", err)
		}
	}

	return b.String(), nil
}

func writeRecentIntents(ctx context.Context, db *sql.DB, b *strings.Builder, project string) error {
	intents, err := store.RecentIntents(ctx, db, project, recentIntentsLimit)
	if err != nil {
		return err
	}
	b.WriteString("## Recent Intents\n\n")
	if len(intents) == 0 {
		b.WriteString("_none yet_\n\n")
		return nil
	}
	for _, p := range intents {
		fmt.Fprintf(b, "- %s (%d actions)\n", oneLine(p.Content), p.ActionCount)
	}
	b.WriteString("\n")
	return nil
}

func writeSessionSummaries(ctx context.Context, db *sql.DB, b *strings.Builder, project string, limit int) error {
	sessions, err := store.ListRecentSessions(ctx, db, project, limit)
	if err != nil {
		return err
	}
	b.WriteString("## Session Summaries\n\n")
	if len(sessions) == 0 {
		b.WriteString("_none yet_\n\n")
		return nil
	}
	for _, s := range sessions {
		var n struct {
			Intent     string   `json:"intent"`
			Completed  []string `json:"completed"`
			NextSteps  []string `json:"next_steps"`
		}
		if err := json.Unmarshal(s.Summary, &n); err != nil {
			continue
		}
		fmt.Fprintf(b, "### %s\n", s.StartedAt.Format("2006-01-02 15:04"))
		if n.Intent != "" {
			fmt.Fprintf(b, "- intent: %s\n", n.Intent)
		}
		for _, c := range n.Completed {
			fmt.Fprintf(b, "- completed: %s\n", c)
		}
		for _, next := range n.NextSteps {
			fmt.Fprintf(b, "- next: %s\n", next)
		}
		b.WriteString("\n")
	}
	return nil
}

var fileAndGitTypes = []string{models.ObsFileEdit, models.ObsGitCommit, models.ObsGitPush}

func writeFileAndGitActivity(ctx context.Context, db *sql.DB, b *strings.Builder, project string, limit int, now time.Time) error {
	b.WriteString("## Recent File Edits and Git Milestones\n\n")

	var candidates []models.Observation
	for _, t := range fileAndGitTypes {
		rows, err := store.RecentObservationsByType(ctx, db, project, t, limit)
		if err != nil {
			return err
		}
		candidates = append(candidates, rows...)
	}

	ranked := retriever.RankAndDedupe(candidates, func(models.Observation) string { return project }, project, now)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	if len(ranked) == 0 {
		b.WriteString("_none yet_\n\n")
		return nil
	}
	for _, r := range ranked {
		o := r.Observation
		if o.FilePath != "" {
			fmt.Fprintf(b, "- [%s] %s (%s)\n", o.ObsType, o.FilePath, o.CreatedAt.Format("2006-01-02"))
		} else {
			fmt.Fprintf(b, "- [%s] %s\n", o.ObsType, oneLine(o.Content))
		}
	}
	b.WriteString("\n")
	return nil
}

func writePinned(ctx context.Context, db *sql.DB, b *strings.Builder, project string) error {
	pinned, err := store.PinnedObservations(ctx, db, project, false)
	if err != nil {
		return err
	}
	b.WriteString("## Pinned\n\n")
	if len(pinned) == 0 {
		b.WriteString("_none_\n\n")
		return nil
	}
	for _, o := range pinned {
		fmt.Fprintf(b, "- [%s] %s\n", o.ObsType, oneLine(o.Content))
	}
	b.WriteString("\n")
	return nil
}

func writeCrossProjectPinned(ctx context.Context, db *sql.DB, b *strings.Builder, project string) error {
	pinned, err := store.PinnedObservations(ctx, db, project, true)
	if err != nil {
		return err
	}
	if len(pinned) == 0 {
		return nil
	}
	b.WriteString("## Pinned (other projects)\n\n")
	for _, o := range pinned {
		fmt.Fprintf(b, "- [%s] %s\n", o.ObsType, oneLine(o.Content))
	}
	b.WriteString("\n")
	return nil
}

func oneLine(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
	const max = 160
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}
