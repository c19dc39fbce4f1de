package summarizer

import (
	"fmt"
	"strings"

	"github.com/nmem/nmem/internal/models"
)

// maxObservationsInTranscript bounds how many observation lines go into
// the prompt text; large sessions are summarized by their prompts and a
// tail of recent observations, not an unbounded transcript.
const maxObservationsInTranscript = 200

// buildTranscript renders a session's (or episode's) prompts and
// observations as plain text for the narrative request. label distinguishes
// a full-session call from an episode-scoped one in the framing line.
func buildTranscript(label string, prompts []models.Prompt, obs []models.Observation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The following is the %s's prompt and activity history, in order.\n\n", label)

	b.WriteString("Prompts:\n")
	for _, p := range prompts {
		fmt.Fprintf(&b, "[%s] %s\n", p.Source, p.Content)
	}

	start := 0
	if len(obs) > maxObservationsInTranscript {
		start = len(obs) - maxObservationsInTranscript
	}
	b.WriteString("\nObservations:\n")
	for _, o := range obs[start:] {
		line := fmt.Sprintf("[%s] %s", o.ObsType, o.ToolName)
		if o.FilePath != "" {
			line += " " + o.FilePath
		}
		if o.Failed() {
			line += " (failed)"
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return b.String()
}

// buildEpisodeTranscript is buildTranscript specialized for the Episode
// Detector's narrower, single-work-unit framing.
func buildEpisodeTranscript(prompts []models.Prompt, obs []models.Observation) string {
	return buildTranscript("work unit (episode) within a larger session", prompts, obs)
}
