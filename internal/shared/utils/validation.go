package utils

import (
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// String length limits
const (
	MaxIDLength      = 128
	MaxNameLength    = 64
	MaxMessageSize   = 32 * 1024
	MaxPathLength    = 1024
	MaxOptionNumber  = 99
	optionCallbackID = "opt_"
)

var (
	// SafeIDPattern allows alphanumeric, hyphens, underscores
	SafeIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	namePolicy = bluemonday.StrictPolicy()
	spaceRun   = regexp.MustCompile(`\s+`)
)

// ValidateString validates a string field with length and content checks
func ValidateString(value, fieldName string, minLen, maxLen int, required bool) error {
	if required && value == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	if value == "" && !required {
		return nil
	}

	length := utf8.RuneCountInString(value)
	if length < minLen {
		return fmt.Errorf("%s must be at least %d characters", fieldName, minLen)
	}
	if length > maxLen {
		return fmt.Errorf("%s must not exceed %d characters", fieldName, maxLen)
	}
	if strings.Contains(value, "\x00") {
		return fmt.Errorf("%s contains invalid characters", fieldName)
	}
	return nil
}

// ValidateID validates an ID field
func ValidateID(id, fieldName string, required bool) error {
	if err := ValidateString(id, fieldName, 1, MaxIDLength, required); err != nil {
		return err
	}
	if id != "" && !SafeIDPattern.MatchString(id) {
		return fmt.Errorf("%s contains invalid characters (only alphanumeric, hyphens, and underscores allowed)", fieldName)
	}
	return nil
}

// ValidateMessage validates text sent to a session
func ValidateMessage(message string) error {
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("message is required")
	}
	if len(message) > MaxMessageSize {
		return fmt.Errorf("message must not exceed %d bytes", MaxMessageSize)
	}
	if !utf8.ValidString(message) {
		return fmt.Errorf("message is not valid UTF-8")
	}
	return ValidateString(message, "message", 1, MaxMessageSize, true)
}

// ValidatePath validates a workspace-relative path
func ValidatePath(path string) error {
	return ValidateString(path, "path", 0, MaxPathLength, false)
}

// SanitizeName strips markup and control characters from a session name and
// collapses whitespace. The result is cut to MaxNameLength runes.
func SanitizeName(name string) string {
	clean := html.UnescapeString(namePolicy.Sanitize(name))
	clean = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return ' '
		}
		return r
	}, clean)
	clean = strings.TrimSpace(spaceRun.ReplaceAllString(clean, " "))

	if utf8.RuneCountInString(clean) > MaxNameLength {
		runes := []rune(clean)
		clean = strings.TrimSpace(string(runes[:MaxNameLength]))
	}
	return clean
}

// ParseOption accepts a prompt option as a bare number ("2") or as a button
// callback ("opt_2").
func ParseOption(raw string) (int, error) {
	s := strings.TrimPrefix(strings.TrimSpace(raw), optionCallbackID)
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid option %q", raw)
	}
	if n < 1 || n > MaxOptionNumber {
		return 0, fmt.Errorf("option %d out of range", n)
	}
	return n, nil
}
