package episodes

import "strings"

// minKeywordLength is the minimum token length counted as an intent
// keyword; shorter tokens ("a", "to", "is") carry no topical signal.
const minKeywordLength = 3

// shortPromptWordCount is the whitespace-split word count below which a
// prompt is treated as a continuation of the current episode ("yes",
// "ok push", "5,6") rather than a new topic.
const shortPromptWordCount = 5

// stopWords excludes common function words from the keyword bag so
// Jaccard similarity reflects topic, not grammar.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"to": true, "of": true, "in": true, "on": true, "at": true, "for": true,
	"with": true, "by": true, "from": true, "as": true, "it": true, "this": true,
	"that": true, "these": true, "those": true, "i": true, "you": true, "we": true,
	"my": true, "your": true, "our": true, "can": true, "could": true, "would": true,
	"should": true, "will": true, "do": true, "does": true, "did": true, "not": true,
	"have": true, "has": true, "had": true, "just": true, "also": true, "then": true,
	"now": true, "so": true, "if": true, "than": true, "all": true, "any": true,
}

// isContinuation reports whether a prompt's whitespace word count falls
// below the continuation threshold.
func isContinuation(prompt string) bool {
	return len(strings.Fields(prompt)) < shortPromptWordCount
}

// keywords lowercases, splits on non-alphanumeric runs, drops stop-words
// and tokens shorter than minKeywordLength, and returns the remaining set.
func keywords(prompt string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(prompt), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		if len(f) < minKeywordLength || stopWords[f] {
			continue
		}
		set[f] = true
	}
	return set
}

// jaccard computes the Jaccard similarity of two keyword sets.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for k := range a {
		if b[k] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func union(a, b map[string]bool) map[string]bool {
	out := make(map[string]bool, len(a)+len(b))
	for k := range a {
		out[k] = true
	}
	for k := range b {
		out[k] = true
	}
	return out
}
