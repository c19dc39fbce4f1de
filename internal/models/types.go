package models

import (
	"encoding/json"
	"time"
)

// Session is a bounded interval of agent activity, keyed by a harness-
// supplied opaque identifier.
type Session struct {
	ID        string          `json:"id"`
	Project   string          `json:"project"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   *time.Time      `json:"ended_at,omitempty"`
	Signature json.RawMessage `json:"signature,omitempty"`
	Summary   json.RawMessage `json:"summary,omitempty"`
}

// IsEnded reports whether Stop has already been processed for this session.
func (s *Session) IsEnded() bool {
	return s.EndedAt != nil
}

// IsSummarized reports whether the Summarizer has populated this session's
// narrative. The retention sweep only deletes observations for sessions
// where this is true.
func (s *Session) IsSummarized() bool {
	return len(s.Summary) > 0
}

// Prompt is a unit of intent text: a user turn or an agent reasoning block.
type Prompt struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	Source    string    `json:"source"` // PromptSource*
	Content   string    `json:"content"`
}

// Observation is a single atomic record of agent activity.
type Observation struct {
	ID           int64           `json:"id"`
	SessionID    string          `json:"session_id"`
	PromptID     *int64          `json:"prompt_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	ObsType      string          `json:"obs_type"`
	SourceEvent  string          `json:"source_event"`
	ToolName     string          `json:"tool_name,omitempty"`
	FilePath     string          `json:"file_path,omitempty"`
	Content      string          `json:"content"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	Phase        string          `json:"phase,omitempty"`
	Scope        string          `json:"scope,omitempty"`
	Locus        string          `json:"locus,omitempty"`
	Novelty      string          `json:"novelty,omitempty"`
	Friction     string          `json:"friction,omitempty"`
	PhaseRunID    *int64 `json:"phase_run_id,omitempty"`
	ScopeRunID    *int64 `json:"scope_run_id,omitempty"`
	LocusRunID    *int64 `json:"locus_run_id,omitempty"`
	NoveltyRunID  *int64 `json:"novelty_run_id,omitempty"`
	FrictionRunID *int64 `json:"friction_run_id,omitempty"`
	IsPinned      bool   `json:"is_pinned"`
}

// Failed reports whether this observation's metadata carries the
// `"failed": true` flag set by PostToolUseFailure extraction.
func (o *Observation) Failed() bool {
	if len(o.Metadata) == 0 {
		return false
	}
	var m struct {
		Failed bool `json:"failed"`
	}
	_ = json.Unmarshal(o.Metadata, &m)
	return m.Failed
}

// ClassifierRun is a provenance record for one (dimension, model hash) pair.
type ClassifierRun struct {
	ID        int64     `json:"id"`
	Dimension string    `json:"dimension"`
	ModelHash string    `json:"model_hash"`
	CreatedAt time.Time `json:"created_at"`
}

// ObsFingerprint is one frozen entry in an Episode's obs_trace rollup.
type ObsFingerprint struct {
	Timestamp time.Time `json:"timestamp"`
	ObsType   string    `json:"obs_type"`
	FilePath  string    `json:"file_path,omitempty"`
	Phase     string    `json:"phase,omitempty"`
	Scope     string    `json:"scope,omitempty"`
	Locus     string    `json:"locus,omitempty"`
	Novelty   string    `json:"novelty,omitempty"`
	Friction  string    `json:"friction,omitempty"`
	Failed    bool      `json:"failed"`
}

// HotFile is a file-path + access-count pair used by Episode.HotFiles and
// the file_history retrieval surface.
type HotFile struct {
	FilePath string `json:"file_path"`
	Count    int    `json:"count"`
}

// Episode (work unit) is a narrative segment inside a session, defined by
// user-prompt intent cohesion.
type Episode struct {
	ID              string           `json:"id"`
	SessionID       string           `json:"session_id"`
	StartedAt       time.Time        `json:"started_at"`
	EndedAt         time.Time        `json:"ended_at"`
	Intent          string           `json:"intent"`
	FirstPromptID   int64            `json:"first_prompt_id"`
	LastPromptID    int64            `json:"last_prompt_id"`
	HotFiles        []HotFile        `json:"hot_files,omitempty"`
	PhaseSignature  json.RawMessage  `json:"phase_signature,omitempty"`
	ObservationCount int             `json:"observation_count"`
	ObsTrace        []ObsFingerprint `json:"obs_trace,omitempty"`
	Summary         string           `json:"summary,omitempty"`
	Learned         []string         `json:"learned,omitempty"`
	Notes           string           `json:"notes,omitempty"`
	FailureCount    int              `json:"failure_count"`
}

// TaskStatus is the lifecycle state of a queued dispatch task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusDispatched TaskStatus = "dispatched"
	TaskStatusDone       TaskStatus = "done"
)

// Task is queued future work for external dispatch (interface only —
// dispatch itself is out of scope).
type Task struct {
	ID        string     `json:"id"`
	Prompt    string     `json:"prompt"`
	Project   string     `json:"project"`
	Status    TaskStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Cursor is a per-session pointer into an external transcript file, used by
// the Stop-event reasoning-block scan to replay idempotently.
type Cursor struct {
	SessionID string `json:"session_id"`
	Offset    int64  `json:"offset"`
}
