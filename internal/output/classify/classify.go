// Package classify assigns one response category to a unit of terminal output.
//
// Rules are evaluated in a fixed priority order and the first match wins:
//
//	prompt → confirmation → error → working → complete → info
//
// Classify is total and deterministic: every input, including empty input,
// maps to exactly one Category.
package classify

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/GriffinCanCode/omnik/internal/output/ansi"
	"github.com/GriffinCanCode/omnik/internal/output/rules"
)

// Category is the kind of response a unit of output represents.
type Category string

const (
	Prompt       Category = "prompt"
	Confirmation Category = "confirmation"
	Info         Category = "info"
	Error        Category = "error"
	Working      Category = "working"
	Complete     Category = "complete"
)

// Categories lists every category in priority order, Info last.
var Categories = []Category{Prompt, Confirmation, Error, Working, Complete, Info}

// RequiresUserAction reports whether output of this category waits on the user.
func RequiresUserAction(c Category) bool {
	return c == Prompt || c == Confirmation
}

// rule is one entry of the priority table.
type rule struct {
	category Category
	match    func(text, lower string) bool
}

// Classifier is a compiled rule table. It is safe for concurrent use.
type Classifier struct {
	table         []rule
	optionPattern *regexp.Regexp
}

// New compiles a Classifier from rule data. Patterns must already be valid;
// see rules.Rules.Validate.
func New(r rules.ClassifierRules) *Classifier {
	option := regexp.MustCompile(r.OptionPattern)
	confirm := make([]*regexp.Regexp, len(r.ConfirmationPatterns))
	for i, p := range r.ConfirmationPatterns {
		confirm[i] = regexp.MustCompile(p)
	}

	c := &Classifier{optionPattern: option}
	c.table = []rule{
		{Prompt, func(text, _ string) bool {
			return len(option.FindAllStringIndex(text, r.MinOptions)) >= r.MinOptions
		}},
		{Confirmation, func(text, lower string) bool {
			if utf8.RuneCountInString(text) >= r.ConfirmationMaxLen {
				return false
			}
			for _, re := range confirm {
				if re.MatchString(lower) {
					return true
				}
			}
			return false
		}},
		{Error, func(_, lower string) bool {
			return containsAny(lower, r.ErrorMarkers)
		}},
		{Working, func(_, lower string) bool {
			return containsAny(prefix(lower, r.WorkingWindow), r.WorkingMarkers)
		}},
		{Complete, func(_, lower string) bool {
			return containsAny(lower, r.CompleteMarkers)
		}},
	}
	return c
}

var defaultClassifier = New(rules.Default().Classifier)

// Classify categorizes text with the built-in rule table.
func Classify(text string) Category {
	return defaultClassifier.Classify(text)
}

// Classify sanitizes text and returns the first matching category.
func (c *Classifier) Classify(text string) Category {
	clean := strings.TrimSpace(ansi.Sanitize(text))
	if clean == "" {
		return Info
	}

	lower := strings.ToLower(clean)
	for _, r := range c.table {
		if r.match(clean, lower) {
			return r.category
		}
	}
	return Info
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// prefix returns the first n runes of s.
func prefix(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
