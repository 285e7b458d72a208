package ansi

import (
	"regexp"
	"strings"
)

// escapePattern matches OSC strings, 7-bit C1 escapes, CSI sequences and the
// bare CSI fragments some programs emit without a leading ESC.
var escapePattern = regexp.MustCompile(
	`\x1B\][^\x07\x1B]*(?:\x07|\x1B\\)` +
		`|\x1B(?:[@-Z\\-_]|\[[0-?]*[ -/]*[@-~])` +
		`|\[(?:[0-9;]+[a-zA-Z]|[0-9;]+m)`,
)

// controlPattern matches C0 controls other than tab, newline and carriage
// return, plus DEL and any ESC left over from a truncated sequence.
var controlPattern = regexp.MustCompile("[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]")

// Sanitize removes escape and control sequences from s and normalizes CRLF
// line endings. Sanitize(Sanitize(s)) == Sanitize(s) for every s.
func Sanitize(s string) string {
	if s == "" {
		return s
	}
	s = strings.ToValidUTF8(s, "")

	// Removing one sequence can splice its neighbours into a new one, so
	// repeat until nothing changes. Each pass only shrinks the string.
	for {
		next := escapePattern.ReplaceAllString(s, "")
		next = controlPattern.ReplaceAllString(next, "")
		next = strings.ReplaceAll(next, "\r\n", "\n")
		if next == s {
			return s
		}
		s = next
	}
}

// IsBlank reports whether s has no visible content after sanitizing.
func IsBlank(s string) bool {
	return strings.TrimSpace(Sanitize(s)) == ""
}
