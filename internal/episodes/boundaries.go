package episodes

import (
	"time"

	"github.com/nmem/nmem/internal/models"
)

// baseSimilarityThreshold is the default boundary threshold: a user prompt
// whose keyword-bag Jaccard similarity to the running episode falls below
// this closes the episode and opens a new one.
const baseSimilarityThreshold = 0.3

// minSimilarityThreshold floors how far a long inter-prompt gap can lower
// the threshold.
const minSimilarityThreshold = 0.1

// gapLoweringWindow is the inter-prompt gap beyond which a longer wait
// starts lowering the threshold — a long pause (the user stepped away to
// read output, think, or run something outside the conversation) is not by
// itself evidence of a new topic, so the threshold required to split
// eases downward rather than up.
const gapLoweringWindow = 30 * time.Minute

// gapLoweringSpan is the additional gap over which the threshold decays
// from base to floor.
const gapLoweringSpan = 2 * time.Hour

func adjustedThreshold(gap time.Duration) float64 {
	if gap <= gapLoweringWindow {
		return baseSimilarityThreshold
	}
	excess := gap - gapLoweringWindow
	decay := float64(excess) / float64(gapLoweringSpan) * (baseSimilarityThreshold - minSimilarityThreshold)
	threshold := baseSimilarityThreshold - decay
	if threshold < minSimilarityThreshold {
		threshold = minSimilarityThreshold
	}
	return threshold
}

// span is one detected work unit, expressed purely in terms of the prompt
// range it covers — annotation (observation counts, hot files, friction)
// happens afterward against the store.
type span struct {
	FirstPromptID int64
	LastPromptID  int64
	StartedAt     time.Time
	EndedAt       time.Time
	Intent        string
}

// detectSpans runs the boundary algorithm over a session's prompts in
// timestamp order, considering only user-sourced prompts for topic
// cohesion (agent reasoning blocks are downstream execution, not intent).
// It is pure and deterministic: the same prompt sequence always yields the
// same spans.
func detectSpans(prompts []models.Prompt) []span {
	var userPrompts []models.Prompt
	for _, p := range prompts {
		if p.Source == models.PromptSourceUser {
			userPrompts = append(userPrompts, p)
		}
	}
	if len(userPrompts) == 0 {
		return nil
	}

	var spans []span
	var bag map[string]bool
	var cur *span

	for i, p := range userPrompts {
		if cur == nil {
			bag = keywords(p.Content)
			cur = &span{FirstPromptID: p.ID, LastPromptID: p.ID, StartedAt: p.CreatedAt, EndedAt: p.CreatedAt, Intent: p.Content}
			continue
		}

		if isContinuation(p.Content) {
			cur.LastPromptID = p.ID
			cur.EndedAt = p.CreatedAt
			continue
		}

		kw := keywords(p.Content)
		gap := p.CreatedAt.Sub(userPrompts[i-1].CreatedAt)
		threshold := adjustedThreshold(gap)

		if jaccard(bag, kw) < threshold {
			spans = append(spans, *cur)
			bag = kw
			cur = &span{FirstPromptID: p.ID, LastPromptID: p.ID, StartedAt: p.CreatedAt, EndedAt: p.CreatedAt, Intent: p.Content}
			continue
		}

		bag = union(bag, kw)
		cur.LastPromptID = p.ID
		cur.EndedAt = p.CreatedAt
	}
	if cur != nil {
		spans = append(spans, *cur)
	}
	return spans
}
