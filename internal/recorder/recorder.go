// Package recorder implements the inbound hook-event pipeline: parse, filter,
// classify, dedupe, persist. Each call to Record corresponds to one
// short-lived hook invocation reading a single JSON object from stdin.
package recorder

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nmem/nmem/internal/classifiers"
	"github.com/nmem/nmem/internal/config"
	"github.com/nmem/nmem/internal/extractor"
	"github.com/nmem/nmem/internal/models"
	"github.com/nmem/nmem/internal/secretfilter"
)

// Summarizer is the narrow interface Stop uses to trigger end-of-session
// narrative compression. A failure here is logged and never blocks the
// rest of the Stop pipeline.
type Summarizer interface {
	Summarize(ctx context.Context, db *sql.DB, sessionID string) error
}

// EpisodeDetector is the narrow interface Stop uses to segment a session
// into work units once it has ended.
type EpisodeDetector interface {
	Detect(ctx context.Context, db *sql.DB, sessionID string) error
}

// Sweeper is the narrow interface SessionStart/Stop use to opportunistically
// run a retention sweep.
type Sweeper interface {
	MaybeSweep(ctx context.Context, db *sql.DB) error
}

// Recorder wires the Store, Classifiers, Secret Filter, and the three
// downstream collaborators (Summarizer, EpisodeDetector, Sweeper) that Stop
// invokes. It holds no state beyond these dependencies — one instance is
// built per hook invocation.
type Recorder struct {
	DB         *sql.DB
	Config     config.Config
	Classifiers *classifiers.Set
	Summarizer Summarizer
	Episodes   EpisodeDetector
	Sweep      Sweeper

	// Stderr-bound logger; set by the caller (internal/commands) so failures are
	// visible to the harness without polluting stdout's context payload.
	Logf func(format string, args ...any)
}

func (r *Recorder) logf(format string, args ...any) {
	if r.Logf != nil {
		r.Logf(format, args...)
	}
}

// Record dispatches a single hook event to its handler. Exit-code mapping
// (0/1/2) is the caller's job: Record returns a plain error for any
// non-blocking failure; the observation pipeline itself is the one thing
// that must succeed for a tool-use event to be considered recorded.
func (r *Recorder) Record(ctx context.Context, event extractor.RawHookEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}
	project := extractor.ResolveProject(event.CWD)

	switch event.HookEventName {
	case models.EventSessionStart:
		return r.handleSessionStart(ctx, event, project)
	case models.EventUserPromptSubmit:
		return r.handleUserPrompt(ctx, event, project)
	case models.EventPostToolUse:
		return r.handleToolUse(ctx, event, project, false)
	case models.EventPostToolFailure:
		return r.handleToolUse(ctx, event, project, true)
	case models.EventStop:
		return r.handleStop(ctx, event, project)
	default:
		return fmt.Errorf("recorder: unrecognized hook_event_name %q", event.HookEventName)
	}
}

// filterOpts resolves the project's effective secret-filter sensitivity.
func (r *Recorder) filterOpts(project string) secretfilter.Options {
	level := r.Config.Sensitivity(project)
	return secretfilter.SensitivityOptions(level, r.Config.Filter.Patterns, r.Config.Filter.EntropyThreshold, r.Config.Filter.EntropyMinLength)
}

// readLikeTypes are observation kinds exempt from duplicate insertion within
// the dedupe window — repeatedly reading or searching the same thing in a
// short span is noise, not signal.
var readLikeTypes = map[string]bool{
	models.ObsFileRead: true,
	models.ObsSearch:   true,
	models.ObsMCPCall:  true,
}
