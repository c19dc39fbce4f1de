package models

// ObservationType enumerates the canonical shapes an Extractor can produce.
// Agents never emit arbitrary kinds — the dispatch table in
// internal/extractor maps every inbound hook payload onto one of these.
const (
	ObsFileRead       = "file_read"
	ObsFileWrite      = "file_write"
	ObsFileEdit       = "file_edit"
	ObsSearch         = "search"
	ObsCommand        = "command"
	ObsGitCommit      = "git_commit"
	ObsGitPush        = "git_push"
	ObsGitHub         = "github"
	ObsTaskSpawn      = "task_spawn"
	ObsWebFetch       = "web_fetch"
	ObsWebSearch      = "web_search"
	ObsMCPCall        = "mcp_call"
	ObsToolOther      = "tool_other"
	ObsSessionStart   = "session_start"
	ObsSessionEnd     = "session_end"
	ObsSessionCompact = "session_compact"
	ObsSessionResume  = "session_resume"
	ObsSessionClear   = "session_clear"
)

// SourceEvent mirrors the harness's hook_event_name values.
const (
	EventSessionStart     = "SessionStart"
	EventPostToolUse      = "PostToolUse"
	EventPostToolFailure  = "PostToolUseFailure"
	EventUserPromptSubmit = "UserPromptSubmit"
	EventStop             = "Stop"
)

// PromptSource distinguishes user intent text from agent reasoning blocks
// extracted retroactively from the transcript.
const (
	PromptSourceUser  = "user"
	PromptSourceAgent = "agent"
)

// Classifier dimension names. Each observation carries at most one label
// per dimension, plus a reference to the ClassifierRun that produced it.
const (
	DimensionPhase    = "phase"
	DimensionScope    = "scope"
	DimensionLocus    = "locus"
	DimensionNovelty  = "novelty"
	DimensionFriction = "friction"
)

// Per-dimension label pairs.
const (
	LabelPhaseThink = "think"
	LabelPhaseAct   = "act"

	LabelScopeConverge = "converge"
	LabelScopeDiverge  = "diverge"

	LabelLocusInternal = "internal"
	LabelLocusExternal = "external"

	LabelNoveltyRoutine = "routine"
	LabelNoveltyNovel   = "novel"

	LabelFrictionSmooth   = "smooth"
	LabelFrictionFriction = "friction"
)

// FrictionModelHash is the synthetic model identity for the episode-wide
// friction assignment: the whole episode gets one label, not each
// observation scored individually.
const FrictionModelHash = "episodic-friction-v1"

// Recovery-mode SessionStart sources expand the Context Builder's budget.
const (
	SessionSourceStartup = "startup"
	SessionSourceResume  = "resume"
	SessionSourceCompact = "compact"
	SessionSourceClear   = "clear"
)

// IsRecoveryMode reports whether a SessionStart source requires the
// expanded context-injection limits.
func IsRecoveryMode(source string) bool {
	return source == SessionSourceCompact || source == SessionSourceClear
}
