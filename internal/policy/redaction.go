// Package policy masks sensitive text before it reaches the logs.
package policy

import (
	"regexp"
	"unicode/utf8"
)

var (
	emailPattern  = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern  = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern   = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
	bearerPattern = regexp.MustCompile(`(?i)bearer\s+[a-z0-9._\-]+`)
	apiKeyPattern = regexp.MustCompile(`\b(?:sk|sk-ant|lov)[-_][A-Za-z0-9_\-]{12,}\b`)
)

// LogPreviewLimit caps how much of a chat message is written to a log line.
const LogPreviewLimit = 80

// RedactPII masks common high-risk PII patterns.
func RedactPII(input string) (redacted string, changed bool) {
	out := input

	next := emailPattern.ReplaceAllString(out, "[REDACTED_EMAIL]")
	changed = changed || next != out
	out = next

	// Cards first so long digit runs are not classified as phone numbers.
	next = cardPattern.ReplaceAllString(out, "[REDACTED_CARD]")
	changed = changed || next != out
	out = next

	next = phonePattern.ReplaceAllString(out, "[REDACTED_PHONE]")
	changed = changed || next != out
	out = next

	return out, changed
}

// RedactSecrets masks bearer credentials and provider API keys that upstream
// error bodies sometimes echo back.
func RedactSecrets(input string) string {
	out := bearerPattern.ReplaceAllString(input, "Bearer [REDACTED]")
	return apiKeyPattern.ReplaceAllString(out, "[REDACTED_KEY]")
}

// LogSafe prepares user or upstream text for a log line.
func LogSafe(input string) string {
	out, _ := RedactPII(RedactSecrets(input))
	if utf8.RuneCountInString(out) <= LogPreviewLimit {
		return out
	}
	n := 0
	for i := range out {
		if n == LogPreviewLimit {
			return out[:i] + "..."
		}
		n++
	}
	return out
}
