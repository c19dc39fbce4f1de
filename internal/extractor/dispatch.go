package extractor

import (
	"strings"

	"github.com/nmem/nmem/internal/models"
)

type dispatchKey struct {
	event string
	tool  string
}

// extractFunc produces an Extracted fact from a tool-use event. project is
// the already-resolved project name, used for file-path normalization.
type extractFunc func(event RawHookEvent, project string) Extracted

// dispatch is keyed by (hook_event_name, tool_name), with a fallback keyed
// by (hook_event_name, "") for unmatched tool names under PostToolUse, so
// adding a new tool mapping is a data change rather than a new code path.
var dispatch = map[dispatchKey]extractFunc{
	{models.EventPostToolUse, "Read"}:      extractFileOp(models.ObsFileRead),
	{models.EventPostToolUse, "Write"}:     extractFileOp(models.ObsFileWrite),
	{models.EventPostToolUse, "Edit"}:      extractFileOp(models.ObsFileEdit),
	{models.EventPostToolUse, "Grep"}:      extractSearch,
	{models.EventPostToolUse, "Glob"}:      extractSearch,
	{models.EventPostToolUse, "Bash"}:      extractBash,
	{models.EventPostToolUse, "Task"}:      extractTaskSpawn,
	{models.EventPostToolUse, "WebFetch"}:  extractWebFetch,
	{models.EventPostToolUse, "WebSearch"}: extractWebSearch,
	{models.EventPostToolUse, ""}:          extractToolOther,
}

// Extract dispatches a tool-use event to its extraction function. MCP tool
// names (containing "__") are recognized ahead of the dispatch table since
// their names are unbounded (server__tool), and git/gh sub-inspection on
// Bash lives in extractBash.
func Extract(event RawHookEvent, project string) Extracted {
	if strings.Contains(event.ToolName, "__") {
		return extractMCPCall(event, project)
	}
	if fn, ok := dispatch[dispatchKey{event.HookEventName, event.ToolName}]; ok {
		return fn(event, project)
	}
	if fn, ok := dispatch[dispatchKey{event.HookEventName, ""}]; ok {
		return fn(event, project)
	}
	return Extracted{Skip: true}
}

// ExtractFailure shapes a PostToolUseFailure event: same dispatch, but the
// caller (Recorder) sets failed=true and attaches the truncated, filtered
// response — this package only supplies the base fact.
func ExtractFailure(event RawHookEvent, project string) Extracted {
	// The table is keyed on PostToolUse; look failures up under that key.
	event.HookEventName = models.EventPostToolUse
	base := Extract(event, project)
	if base.Skip {
		base = extractToolOther(event, project)
	}
	return base
}
