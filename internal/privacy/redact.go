// Package privacy scrubs personal data and credentials from task text before
// it leaves the process.
package privacy

import (
	"regexp"
	"strings"
)

// Marker replaces every redacted span.
const Marker = "[REDACTED]"

// credentialPatterns catch secrets users occasionally paste into task notes.
var credentialPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|apikey)\s*[:=]\s*['"]?[a-zA-Z0-9_-]{20,}['"]?`),
	regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[:=]\s*['"]?[^'"\s]{6,}['"]?`),
	regexp.MustCompile(`(?i)(secret[_-]?key|secret[_-]?token|auth[_-]?token)\s*[:=]\s*['"]?[a-zA-Z0-9_-]{20,}['"]?`),
	regexp.MustCompile(`sk-[a-zA-Z0-9-]{20,}`),
	regexp.MustCompile(`AIza[0-9A-Za-z_-]{35}`),
	regexp.MustCompile(`gh[pous]_[a-zA-Z0-9]{36,}`),
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`),
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9_-]{20,}`),
}

// personalPatterns catch contact details and payment numbers.
var personalPatterns = []*regexp.Regexp{
	// Email addresses
	regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
	// Card-like digit runs (13-19 digits, optional separators)
	regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`),
	// Phone numbers with at least 9 digits
	regexp.MustCompile(`\+?\(?\d{1,4}\)?[ .-]?\d{2,4}[ .-]?\d{3,4}[ .-]?\d{2,4}\b`),
}

// ContainsSensitive reports whether text holds a credential or personal data.
func ContainsSensitive(text string) bool {
	if text == "" {
		return false
	}
	for _, p := range credentialPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	for _, p := range personalPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// Redact replaces credentials and personal data with Marker. Credential
// assignments keep their key name so the remaining text stays readable.
func Redact(text string) string {
	if text == "" {
		return text
	}

	result := text
	for _, p := range credentialPatterns {
		result = p.ReplaceAllStringFunc(result, func(match string) string {
			if idx := strings.IndexAny(match, "=:"); idx != -1 {
				return match[:idx+1] + Marker
			}
			return Marker
		})
	}
	for _, p := range personalPatterns {
		result = p.ReplaceAllString(result, Marker)
	}
	return result
}

// RedactTask scrubs both task fields.
func RedactTask(title, description string) (string, string) {
	return Redact(title), Redact(description)
}
