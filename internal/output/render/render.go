// Package render turns a collected Claude Code reply into the structure sent
// to clients: category, summary, an optional interactive prompt and the
// tool-annotated text.
package render

import (
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/omnik/internal/output/ansi"
	"github.com/GriffinCanCode/omnik/internal/output/classify"
	"github.com/GriffinCanCode/omnik/internal/output/prompt"
	"github.com/GriffinCanCode/omnik/internal/output/rules"
	"github.com/GriffinCanCode/omnik/internal/output/tooluse"
)

const (
	// DisplayLimit caps Display in runes.
	DisplayLimit = 4000

	truncatedSuffix = "\n\n... (truncated)"
	emptyDisplay    = "✅ Done (no output)"
)

// PromptView is a parsed prompt plus the message shown above its options.
type PromptView struct {
	*prompt.Prompt
	Message string `json:"message"`
}

// Response is a fully interpreted reply.
type Response struct {
	Category       classify.Category `json:"category"`
	RequiresAction bool              `json:"requires_action"`
	Summary        string            `json:"summary"`
	Text           string            `json:"text"`
	Display        string            `json:"display"`
	Annotated      string            `json:"annotated"`
	Tools          []tooluse.Tool    `json:"tools,omitempty"`
	ToolSummary    string            `json:"tool_summary,omitempty"`
	Prompt         *PromptView       `json:"prompt,omitempty"`
}

// Renderer bundles the classifier, prompt extractor and tool annotator built
// from one rule table.
type Renderer struct {
	classifier *classify.Classifier
	extractor  *prompt.Extractor
	annotator  *tooluse.Annotator
	logger     *zap.Logger
}

// New builds a Renderer. A nil logger is replaced with a no-op logger.
func New(r rules.Rules, logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{
		classifier: classify.New(r.Classifier),
		extractor:  prompt.New(r.Prompt, logger),
		annotator:  tooluse.New(r),
		logger:     logger,
	}
}

// Render interprets the concatenated output of one send.
func (r *Renderer) Render(raw string) Response {
	text := ansi.Sanitize(raw)
	category := r.classifier.Classify(text)
	annotated, tools := r.annotator.Annotate(text)

	resp := Response{
		Category:       category,
		RequiresAction: classify.RequiresUserAction(category),
		Summary:        classify.Summary(text, category),
		Text:           text,
		Display:        Display(text),
		Annotated:      annotated,
		Tools:          tools,
		ToolSummary:    r.annotator.Summary(tools),
	}

	if p := r.extractor.Extract(text); p != nil {
		resp.Prompt = &PromptView{Prompt: p, Message: prompt.Format(p)}
	}

	r.logger.Debug("Response rendered",
		zap.String("category", string(category)),
		zap.Bool("requires_action", resp.RequiresAction),
		zap.Int("length", len(text)),
		zap.Int("tools", len(tools)),
		zap.Bool("prompt", resp.Prompt != nil),
	)
	return resp
}

// Display returns text cut to DisplayLimit runes with a truncation marker, or
// a placeholder when text is empty.
func Display(text string) string {
	if text == "" {
		return emptyDisplay
	}
	if utf8.RuneCountInString(text) <= DisplayLimit {
		return text
	}
	n := 0
	for i := range text {
		if n == DisplayLimit {
			return text[:i] + truncatedSuffix
		}
		n++
	}
	return text
}
