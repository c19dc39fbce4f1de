package secretfilter

import (
	"math"
	"net/url"
	"regexp"
	"strings"
)

var (
	hex40Re   = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)
	hexShortRe = regexp.MustCompile(`^[0-9a-fA-F]{7,12}$`)
	uuidRe    = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
)

// tokenKeepChars are punctuation characters preserved *inside* a token
// while scanning for high-entropy runs.
const tokenKeepChars = "-_/.:="

// isTokenBreak reports whether r splits tokens: whitespace or bracketing
// punctuation, but not one of tokenKeepChars.
func isTokenBreak(r rune) bool {
	if strings.ContainsRune(tokenKeepChars, r) {
		return false
	}
	switch {
	case r == ' ' || r == '\t' || r == '\n' || r == '\r':
		return true
	case strings.ContainsRune(`(){}[]<>,;"'` + "`", r):
		return true
	}
	return false
}

// tokenSpan is a token's byte offsets within the original string, needed to
// replace in reverse order without invalidating earlier offsets.
type tokenSpan struct {
	start, end int
	text       string
}

// tokenize splits input into spans on isTokenBreak, in left-to-right order.
func tokenize(input string) []tokenSpan {
	var spans []tokenSpan
	start := -1
	for i, r := range input {
		if isTokenBreak(r) {
			if start >= 0 {
				spans = append(spans, tokenSpan{start: start, end: i, text: input[start:i]})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		spans = append(spans, tokenSpan{start: start, end: len(input), text: input[start:]})
	}
	return spans
}

// shannonEntropy computes bits-per-character Shannon entropy of s.
func shannonEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	counts := make(map[rune]int)
	n := 0
	for _, r := range s {
		counts[r]++
		n++
	}
	var entropy float64
	for _, c := range counts {
		p := float64(c) / float64(n)
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// isAllowlisted reports whether a high-entropy token is nonetheless safe to
// keep: git SHAs, short hex, UUIDs, paths, URLs, and the redacted literal
// itself.
func isAllowlisted(token string) bool {
	if token == redactedLiteral {
		return true
	}
	if hex40Re.MatchString(token) || hexShortRe.MatchString(token) || uuidRe.MatchString(token) {
		return true
	}
	if strings.HasPrefix(token, "/") || strings.HasPrefix(token, "./") || strings.HasPrefix(token, "~/") {
		return true
	}
	if u, err := url.Parse(token); err == nil && u.Scheme != "" && u.Host != "" {
		return true
	}
	return false
}
