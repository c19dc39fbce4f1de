package extractor

import (
	"encoding/json"
	"strings"

	"github.com/nmem/nmem/internal/models"
)

func decodeToolInput(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]any
	_ = json.Unmarshal(raw, &m) // tolerate schema drift: best-effort only
	return m
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// extractFileOp builds the Read/Write/Edit extraction function for a given
// observation type.
func extractFileOp(obsType string) extractFunc {
	return func(event RawHookEvent, project string) Extracted {
		input := decodeToolInput(event.ToolInput)
		path := stringField(input, "file_path")
		return Extracted{
			ObsType:  obsType,
			FilePath: NormalizePath(path, project, event.CWD),
			Content:  path,
			Metadata: map[string]any{"tool": event.ToolName},
		}
	}
}

// extractSearch handles Grep/Glob: content is the search pattern.
func extractSearch(event RawHookEvent, _ string) Extracted {
	input := decodeToolInput(event.ToolInput)
	pattern := stringField(input, "pattern")
	if pattern == "" {
		pattern = stringField(input, "glob")
	}
	return Extracted{
		ObsType:  models.ObsSearch,
		Content:  pattern,
		Metadata: map[string]any{"tool": event.ToolName},
	}
}

// extractBash sub-classifies by prefix match on the trimmed command string:
// git commit -> git_commit, git push -> git_push, gh -> github, otherwise
// command.
func extractBash(event RawHookEvent, _ string) Extracted {
	input := decodeToolInput(event.ToolInput)
	command := strings.TrimSpace(stringField(input, "command"))

	obsType := models.ObsCommand
	switch {
	case strings.HasPrefix(command, "git commit"):
		obsType = models.ObsGitCommit
	case strings.HasPrefix(command, "git push"):
		obsType = models.ObsGitPush
	case strings.HasPrefix(command, "gh "):
		obsType = models.ObsGitHub
	}

	return Extracted{
		ObsType:  obsType,
		Content:  command,
		Metadata: map[string]any{"tool": "Bash"},
	}
}

func extractTaskSpawn(event RawHookEvent, _ string) Extracted {
	input := decodeToolInput(event.ToolInput)
	desc := stringField(input, "description")
	if desc == "" {
		desc = stringField(input, "prompt")
	}
	return Extracted{
		ObsType:  models.ObsTaskSpawn,
		Content:  desc,
		Metadata: map[string]any{"tool": "Task"},
	}
}

func extractWebFetch(event RawHookEvent, _ string) Extracted {
	input := decodeToolInput(event.ToolInput)
	return Extracted{
		ObsType:  models.ObsWebFetch,
		Content:  stringField(input, "url"),
		Metadata: map[string]any{"tool": "WebFetch"},
	}
}

func extractWebSearch(event RawHookEvent, _ string) Extracted {
	input := decodeToolInput(event.ToolInput)
	return Extracted{
		ObsType:  models.ObsWebSearch,
		Content:  stringField(input, "query"),
		Metadata: map[string]any{"tool": "WebSearch"},
	}
}

// extractMCPCall handles any tool name matching *__*.
func extractMCPCall(event RawHookEvent, _ string) Extracted {
	input := decodeToolInput(event.ToolInput)
	content := ""
	if b, err := json.Marshal(input); err == nil {
		content = string(b)
	}
	return Extracted{
		ObsType:  models.ObsMCPCall,
		Content:  content,
		Metadata: map[string]any{"tool": event.ToolName},
	}
}

// extractToolOther is the fallback for tool names without a dedicated
// mapping.
func extractToolOther(event RawHookEvent, _ string) Extracted {
	if event.ToolName == "" {
		return Extracted{Skip: true}
	}
	input := decodeToolInput(event.ToolInput)
	content := ""
	if b, err := json.Marshal(input); err == nil {
		content = string(b)
	}
	return Extracted{
		ObsType:  models.ObsToolOther,
		Content:  content,
		Metadata: map[string]any{"tool": event.ToolName},
	}
}
