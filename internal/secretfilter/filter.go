package secretfilter

// Options tunes one redaction pass.
type Options struct {
	UserPatterns     []string
	EntropyThreshold float64 // default 4.0
	EntropyMinLength int     // default 20
	DisableEntropy   bool
}

// SensitivityOptions maps a project's sensitivity level to Options.
func SensitivityOptions(level string, userPatterns []string, threshold float64, minLength int) Options {
	opts := Options{
		UserPatterns:     userPatterns,
		EntropyThreshold: threshold,
		EntropyMinLength: minLength,
	}
	switch level {
	case "relaxed":
		opts.DisableEntropy = true
	case "strict":
		opts.EntropyThreshold = threshold * 0.75
		if opts.EntropyMinLength > 12 {
			opts.EntropyMinLength = 12
		}
	}
	return opts
}

func (o Options) threshold() float64 {
	if o.EntropyThreshold > 0 {
		return o.EntropyThreshold
	}
	return 4.0
}

func (o Options) minLength() int {
	if o.EntropyMinLength > 0 {
		return o.EntropyMinLength
	}
	return 20
}

// Redact runs both phases over input, returning the filtered text and
// whether anything was redacted.
func Redact(input string, opts Options) (output string, wasRedacted bool, err error) {
	patterns, err := Patterns(opts.UserPatterns)
	if err != nil {
		return "", false, err
	}

	redacted := input
	for _, p := range patterns {
		if p.re.MatchString(redacted) {
			wasRedacted = true
			redacted = p.re.ReplaceAllString(redacted, redactedLiteral)
		}
	}

	if !opts.DisableEntropy {
		redacted, entropyHit := redactHighEntropyTokens(redacted, opts.threshold(), opts.minLength())
		if entropyHit {
			wasRedacted = true
		}
		return redacted, wasRedacted, nil
	}

	return redacted, wasRedacted, nil
}

// redactHighEntropyTokens implements phase 2: tokenize, score, replace in
// reverse byte-offset order so earlier offsets stay valid.
func redactHighEntropyTokens(input string, threshold float64, minLength int) (string, bool) {
	spans := tokenize(input)
	hit := false
	out := []byte(input)
	for i := len(spans) - 1; i >= 0; i-- {
		span := spans[i]
		if len(span.text) < minLength {
			continue
		}
		if isAllowlisted(span.text) {
			continue
		}
		if shannonEntropy(span.text) < threshold {
			continue
		}
		hit = true
		replaced := make([]byte, 0, len(out)-len(span.text)+len(redactedLiteral))
		replaced = append(replaced, out[:span.start]...)
		replaced = append(replaced, redactedLiteral...)
		replaced = append(replaced, out[span.end:]...)
		out = replaced
	}
	return string(out), hit
}

// RedactJSON recurses into map/slice leaves of a decoded JSON value,
// redacting only string leaves so structure is never disturbed by
// interpolating [REDACTED] into a serialized blob directly.
func RedactJSON(value any, opts Options) (out any, wasRedacted bool, err error) {
	switch v := value.(type) {
	case string:
		redacted, hit, rerr := Redact(v, opts)
		if rerr != nil {
			return nil, false, rerr
		}
		return redacted, hit, nil
	case map[string]any:
		result := make(map[string]any, len(v))
		anyHit := false
		for k, val := range v {
			redactedVal, hit, rerr := RedactJSON(val, opts)
			if rerr != nil {
				return nil, false, rerr
			}
			result[k] = redactedVal
			anyHit = anyHit || hit
		}
		return result, anyHit, nil
	case []any:
		result := make([]any, len(v))
		anyHit := false
		for i, val := range v {
			redactedVal, hit, rerr := RedactJSON(val, opts)
			if rerr != nil {
				return nil, false, rerr
			}
			result[i] = redactedVal
			anyHit = anyHit || hit
		}
		return result, anyHit, nil
	default:
		return value, false, nil
	}
}
