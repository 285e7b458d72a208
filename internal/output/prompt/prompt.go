// Package prompt extracts interactive menus from Claude Code terminal output.
//
// An Extractor first checks for one of a fixed set of indicator phrases, then
// parses numbered options and derives the question from the remaining lines:
//
//	p := prompt.Extract(unit)
//	if p != nil {
//		msg := prompt.Format(p)   // "**question**\n\n_Select an option below:_"
//		for _, opt := range p.Options {
//			button(opt.Number+". "+opt.Text, opt.CallbackData)
//		}
//	}
//
// Malformed menus (indicator present but no options, or repeated option
// numbers) are parse anomalies: they are logged and the text is treated as
// plain output.
package prompt

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/omnik/internal/output/ansi"
	"github.com/GriffinCanCode/omnik/internal/output/rules"
)

// Option is one selectable menu entry.
type Option struct {
	Number       string `json:"number"`
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

// Prompt is a parsed interactive menu.
type Prompt struct {
	Question string   `json:"question"`
	Options  []Option `json:"options"`
	Raw      string   `json:"raw_text"`
}

// Labels returns the option numbers in source order.
func (p *Prompt) Labels() []string {
	labels := make([]string, len(p.Options))
	for i, o := range p.Options {
		labels[i] = o.Number
	}
	return labels
}

// Option returns the option with the given number.
func (p *Prompt) Option(number string) (Option, bool) {
	for _, o := range p.Options {
		if o.Number == number {
			return o, true
		}
	}
	return Option{}, false
}

// AnomalyKind classifies a parse anomaly.
type AnomalyKind string

const (
	AnomalyNoOptions       AnomalyKind = "no_options"
	AnomalyDuplicateOption AnomalyKind = "duplicate_option"
)

// ErrAnomaly is matched by every *AnomalyError.
var ErrAnomaly = errors.New("prompt parse anomaly")

// AnomalyError reports text that looked like a prompt but could not be parsed
// into a valid one.
type AnomalyError struct {
	Kind   AnomalyKind
	Detail string
}

func (e *AnomalyError) Error() string {
	return fmt.Sprintf("prompt parse anomaly (%s): %s", e.Kind, e.Detail)
}

// Is makes errors.Is(err, ErrAnomaly) true.
func (e *AnomalyError) Is(target error) bool {
	return target == ErrAnomaly
}

// Extractor parses prompts with a compiled rule table. It is safe for
// concurrent use.
type Extractor struct {
	rules      rules.PromptRules
	indicators []string
	option     *regexp.Regexp
	optionLine *regexp.Regexp
	box        *regexp.Regexp
	logger     *zap.Logger
}

// New compiles an Extractor. A nil logger disables anomaly logging.
func New(r rules.PromptRules, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}

	indicators := make([]string, len(r.Indicators))
	for i, s := range r.Indicators {
		indicators[i] = strings.ToLower(s)
	}

	e := &Extractor{
		rules:      r,
		indicators: indicators,
		option:     regexp.MustCompile(r.OptionPattern),
		optionLine: regexp.MustCompile(r.OptionLinePattern),
		logger:     logger,
	}
	if r.BoxChars != "" {
		e.box = regexp.MustCompile(rules.BoxCharsClass(r.BoxChars))
	}
	return e
}

var defaultExtractor = New(rules.Default().Prompt, nil)

// Extract parses text with the built-in rule table.
func Extract(text string) *Prompt {
	return defaultExtractor.Extract(text)
}

// Extract returns the parsed prompt, or nil when text is not an interactive
// prompt. Anomalies are logged, never returned.
func (e *Extractor) Extract(text string) *Prompt {
	p, err := e.Parse(text)
	if err != nil {
		e.logger.Warn("Prompt indicators found but prompt is malformed",
			zap.Error(err),
			zap.String("sample", truncate(ansi.Sanitize(text), 500)),
		)
		return nil
	}
	return p
}

// Parse is Extract with anomalies reported as *AnomalyError. It returns
// (nil, nil) when no indicator phrase is present.
func (e *Extractor) Parse(text string) (*Prompt, error) {
	clean := ansi.Sanitize(text)
	if !e.hasIndicator(clean) {
		return nil, nil
	}

	options, err := e.options(clean)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("Parsed prompt",
		zap.Int("num_options", len(options)),
		zap.Strings("labels", labels(options)),
	)

	return &Prompt{
		Question: e.question(clean),
		Options:  options,
		Raw:      text,
	}, nil
}

func (e *Extractor) hasIndicator(clean string) bool {
	lower := strings.ToLower(clean)
	for _, phrase := range e.indicators {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func (e *Extractor) options(clean string) ([]Option, error) {
	var options []Option
	seen := make(map[string]bool)

	for _, m := range e.option.FindAllStringSubmatch(clean, -1) {
		number, text := m[1], strings.TrimSpace(m[2])
		if utf8.RuneCountInString(text) < e.rules.MinOptionText {
			continue
		}
		if seen[number] {
			return nil, &AnomalyError{
				Kind:   AnomalyDuplicateOption,
				Detail: fmt.Sprintf("option %s appears more than once", number),
			}
		}
		seen[number] = true
		options = append(options, Option{
			Number:       number,
			Text:         text,
			CallbackData: e.rules.CallbackDataPrefix + number,
		})
	}

	if len(options) == 0 {
		return nil, &AnomalyError{Kind: AnomalyNoOptions, Detail: "indicator present but no options found"}
	}
	return options, nil
}

func (e *Extractor) question(clean string) string {
	var lines []string
	for _, line := range strings.Split(clean, "\n") {
		if len(lines) == e.rules.MaxQuestionLines {
			break
		}
		if e.box != nil {
			line = e.box.ReplaceAllString(line, "")
		}
		line = strings.TrimSpace(line)
		if line == "" || e.optionLine.MatchString(line) || e.isFooter(line) {
			continue
		}
		if utf8.RuneCountInString(line) < e.rules.MinQuestionLine {
			continue
		}
		lines = append(lines, line)
	}

	question := strings.TrimSpace(strings.Join(lines, "\n"))
	if utf8.RuneCountInString(question) < e.rules.MinQuestionLen {
		return e.rules.FallbackQuestion
	}
	return question
}

func (e *Extractor) isFooter(line string) bool {
	for _, phrase := range e.rules.FooterPhrases {
		if strings.Contains(line, phrase) {
			return true
		}
	}
	return false
}

// Format renders the message shown above the option buttons.
func Format(p *Prompt) string {
	return "**" + p.Question + "**\n\n_Select an option below:_"
}

func labels(options []Option) []string {
	out := make([]string, len(options))
	for i, o := range options {
		out[i] = o.Number + ". " + o.Text
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
