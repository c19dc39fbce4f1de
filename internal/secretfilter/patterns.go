// Package secretfilter implements nmem's two-phase redaction pipeline
// (pattern denylist, then entropy scan) applied to every text field before
// it reaches the store.
package secretfilter

import "regexp"

// redactedLiteral is the replacement for any matched secret. It is itself
// allowlisted in phase 2 so a redacted field is never re-redacted.
const redactedLiteral = "[REDACTED]"

// pattern pairs a compiled regex with its name. Order is the slice order
// and it matters: more-specific prefixes (sk-ant-) must
// precede broader ones (sk-) so sequential replacement doesn't leave a
// dangling "ant-" fragment behind a generic match.
type pattern struct {
	name string
	re   *regexp.Regexp
}

// builtinPatterns is the ~12-entry denylist, ordered most-specific-first. Compiled once at package init — a static denylist
// needs nothing beyond stdlib regexp; no ecosystem regex engine in the
// example pack offers an advantage for this shape of matching.
var builtinPatterns = []pattern{
	{"aws_access_key", regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
	{"github_pat", regexp.MustCompile(`github_pat_[0-9a-zA-Z_]{20,}`)},
	{"github_pat_token", regexp.MustCompile(`ghp_[0-9a-zA-Z]{20,}`)},
	{"github_oauth_token", regexp.MustCompile(`gho_[0-9a-zA-Z]{20,}`)},
	{"github_server_token", regexp.MustCompile(`ghs_[0-9a-zA-Z]{20,}`)},
	{"anthropic_key", regexp.MustCompile(`sk-ant-[0-9a-zA-Z\-_]{10,}`)},
	{"generic_sk_key", regexp.MustCompile(`sk-[0-9a-zA-Z]{16,}`)},
	{"bearer_token", regexp.MustCompile(`(?i)bearer\s+[0-9a-zA-Z._\-]{10,}`)},
	{"pem_private_key", regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`)},
	{"credential_url", regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9+.\-]*://[^\s:/@]+:[^\s@]+@[^\s/]+`)},
	{"kv_secret_assignment", regexp.MustCompile(`(?i)(password|passwd|token|api_key|apikey|secret|access_key)\s*[:=]\s*['"]?[^\s'"]{4,}['"]?`)},
	{"slack_token", regexp.MustCompile(`xox[baprs]-[0-9a-zA-Z\-]{10,}`)},
}

// Patterns returns the built-in patterns followed by user-supplied
// extensions, in match order.
func Patterns(userPatterns []string) ([]pattern, error) {
	out := make([]pattern, 0, len(builtinPatterns)+len(userPatterns))
	out = append(out, builtinPatterns...)
	for _, raw := range userPatterns {
		re, err := regexp.Compile(raw)
		if err != nil {
			// An invalid user pattern is returned as an error (from Redact,
			// which compiles the patterns on each call), not silently skipped.
			return nil, &InvalidPatternError{Pattern: raw, Err: err}
		}
		out = append(out, pattern{name: "user:" + raw, re: re})
	}
	return out, nil
}

// InvalidPatternError reports a user-supplied regex that failed to compile.
type InvalidPatternError struct {
	Pattern string
	Err     error
}

func (e *InvalidPatternError) Error() string {
	return "invalid filter pattern " + e.Pattern + ": " + e.Err.Error()
}

func (e *InvalidPatternError) Unwrap() error { return e.Err }
