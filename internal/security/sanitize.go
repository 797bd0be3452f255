package security

import "regexp"

// Patterns that must never reach logs at warning level or client responses:
// credential-style assignments, schema identifiers, and file paths.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)password\s*=\s*['"][^'"]*['"]`),
	regexp.MustCompile(`(?i)token\s*=\s*['"][^'"]*['"]`),
	regexp.MustCompile(`(?i)key\s*=\s*['"][^'"]*['"]`),
	regexp.MustCompile(`(?i)secret\s*=\s*['"][^'"]*['"]`),
	regexp.MustCompile(`(?i)table\s+['"][^'"]*['"]`),
	regexp.MustCompile(`(?i)column\s+['"][^'"]*['"]`),
	regexp.MustCompile(`/[a-zA-Z0-9_./-]*\.(go|sql|env)`),
}

const maxSanitizedLength = 200

// SanitizeMessage scrubs secret-like and path-like substrings from an error
// message and truncates it, so that whatever surfaces to clients or warning
// logs cannot disclose credentials or internals.
func SanitizeMessage(message string) string {
	for _, pattern := range sensitivePatterns {
		message = pattern.ReplaceAllString(message, "[REDACTED]")
	}
	if runes := []rune(message); len(runes) > maxSanitizedLength {
		message = string(runes[:maxSanitizedLength])
	}
	return message
}
