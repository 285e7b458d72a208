// Package rules holds the heuristic tables used to interpret Claude Code's
// terminal output.
//
// The tables are tuned to one program's interactive UI: its numbered menus,
// trust dialog boilerplate and tool narration. They live here as data so a
// deployment can replace them with a YAML or TOML file (see Load) when that UI
// changes, without touching the classifier, extractor or annotator.
package rules

import (
	"fmt"
	"regexp"
)

// Rules is the complete heuristic table set.
type Rules struct {
	Classifier ClassifierRules `yaml:"classifier" toml:"classifier"`
	Prompt     PromptRules     `yaml:"prompt" toml:"prompt"`
	Tools      []ToolRule      `yaml:"tools" toml:"tools"`
}

// ClassifierRules drives classify.Classifier. Markers are matched as
// substrings of the lowercased text.
type ClassifierRules struct {
	OptionPattern        string   `yaml:"option_pattern" toml:"option_pattern"`
	MinOptions           int      `yaml:"min_options" toml:"min_options"`
	ConfirmationPatterns []string `yaml:"confirmation_patterns" toml:"confirmation_patterns"`
	ConfirmationMaxLen   int      `yaml:"confirmation_max_len" toml:"confirmation_max_len"`
	ErrorMarkers         []string `yaml:"error_markers" toml:"error_markers"`
	WorkingMarkers       []string `yaml:"working_markers" toml:"working_markers"`
	WorkingWindow        int      `yaml:"working_window" toml:"working_window"`
	CompleteMarkers      []string `yaml:"complete_markers" toml:"complete_markers"`
}

// PromptRules drives prompt.Extractor.
type PromptRules struct {
	Indicators         []string `yaml:"indicators" toml:"indicators"`
	OptionPattern      string   `yaml:"option_pattern" toml:"option_pattern"`
	OptionLinePattern  string   `yaml:"option_line_pattern" toml:"option_line_pattern"`
	BoxChars           string   `yaml:"box_chars" toml:"box_chars"`
	FooterPhrases      []string `yaml:"footer_phrases" toml:"footer_phrases"`
	MinOptionText      int      `yaml:"min_option_text" toml:"min_option_text"`
	MinQuestionLine    int      `yaml:"min_question_line" toml:"min_question_line"`
	MaxQuestionLines   int      `yaml:"max_question_lines" toml:"max_question_lines"`
	MinQuestionLen     int      `yaml:"min_question_len" toml:"min_question_len"`
	FallbackQuestion   string   `yaml:"fallback_question" toml:"fallback_question"`
	CallbackDataPrefix string   `yaml:"callback_data_prefix" toml:"callback_data_prefix"`
}

// ToolRule maps one tool to its display glyph and the phrases that announce
// it. A rule without patterns only contributes a glyph.
type ToolRule struct {
	Name     string   `yaml:"name" toml:"name"`
	Glyph    string   `yaml:"glyph" toml:"glyph"`
	Patterns []string `yaml:"patterns" toml:"patterns"`
}

// DefaultGlyph is shown for tools without a configured glyph.
const DefaultGlyph = "🔹"

// Default returns the built-in tables.
func Default() Rules {
	return Rules{
		Classifier: ClassifierRules{
			OptionPattern: `(?m)^\s*[❯│\s]*\d+\.\s+[\p{L}\p{N}_]+`,
			MinOptions:    2,
			ConfirmationPatterns: []string{
				`\b(yes|no)\b`,
				`\b(y/n)\b`,
				`\b(confirm|proceed|continue)\b`,
				`\?$`,
			},
			ConfirmationMaxLen: 500,
			ErrorMarkers: []string{
				"error", "failed", "exception", "cannot", "unable",
				"invalid", "not found", "denied", "permission",
				"❌", "⚠️", "warning",
			},
			WorkingMarkers: []string{
				"working on", "processing", "analyzing", "searching",
				"reading", "writing", "creating", "updating",
				"let me", "i will", "i am", "i'm",
				"⏳", "🔄", "⚙️",
			},
			WorkingWindow: 100,
			CompleteMarkers: []string{
				"done", "completed", "finished", "success",
				"created successfully", "updated successfully",
				"✅", "✓", "ready",
			},
		},
		Prompt: PromptRules{
			Indicators: []string{
				"Yes, proceed", "No, exit", "Enter to confirm", "Esc to exit",
				"Do you trust", "trust the files", "security risks",
				"Select an option", "Choose:", "continue?",
			},
			OptionPattern:      `(?m)^\s*[❯│\s]*(\d+)\.\s+(.+?)(?:\s*│)?\s*$`,
			OptionLinePattern:  `^\s*[❯\s]*\d+\.`,
			BoxChars:           "│├─╭╮╰╯└┘┌┐",
			FooterPhrases:      []string{"Enter to confirm", "Esc to exit"},
			MinOptionText:      2,
			MinQuestionLine:    4,
			MaxQuestionLines:   6,
			MinQuestionLen:     10,
			FallbackQuestion:   "Please select an option:",
			CallbackDataPrefix: "opt_",
		},
		Tools: []ToolRule{
			{Name: "Bash", Glyph: "🔧", Patterns: []string{
				`(?:I'm going to |Let me |I'll )(?:use the )?Bash(?: tool)?`,
				`(?:Running|Executing) (?:the )?(?:bash )?command`,
				`Let me run`,
				`I'll execute`,
			}},
			{Name: "Read", Glyph: "📖", Patterns: []string{
				`(?:I'm going to |Let me |I'll )(?:use the )?Read(?: tool)?`,
				`(?:Reading|Let me read) (?:the )?file`,
				`I'll read`,
			}},
			{Name: "Write", Glyph: "✏️", Patterns: []string{
				`(?:I'm going to |Let me |I'll )(?:use the )?Write(?: tool)?`,
				`(?:Writing|Creating) (?:the )?file`,
				`I'll write`,
				`I'm going to create`,
			}},
			{Name: "Edit", Glyph: "📝", Patterns: []string{
				`(?:I'm going to |Let me |I'll )(?:use the )?Edit(?: tool)?`,
				`(?:Editing|Modifying|Updating) (?:the )?file`,
				`I'll edit`,
				`I'll update`,
			}},
			{Name: "Glob", Glyph: "🔍", Patterns: []string{
				`(?:I'm going to |Let me |I'll )(?:use the )?Glob(?: tool)?`,
				`(?:Finding|Searching for) files`,
				`I'll search for files`,
			}},
			{Name: "Grep", Glyph: "🔎", Patterns: []string{
				`(?:I'm going to |Let me |I'll )(?:use the )?Grep(?: tool)?`,
				`(?:Searching|Looking) (?:for|through)`,
				`I'll search (?:for|through)`,
			}},
			{Name: "Task", Glyph: "🤖", Patterns: []string{
				`(?:I'm going to |Let me |I'll )(?:use the )?Task(?: tool)?`,
				`(?:Launching|Starting) (?:an? )?agent`,
				`I'll launch`,
			}},
			{Name: "WebFetch", Glyph: "🌐", Patterns: []string{
				`(?:I'm going to |Let me |I'll )(?:use the )?WebFetch(?: tool)?`,
				`(?:Fetching|Getting) (?:from )?(?:the )?(?:web|URL)`,
			}},
			{Name: "WebSearch", Glyph: "🔍", Patterns: []string{
				`(?:I'm going to |Let me |I'll )(?:use the )?WebSearch(?: tool)?`,
				`(?:Searching|Looking up) (?:the )?web`,
			}},
			{Name: "TodoWrite", Glyph: "📋", Patterns: []string{
				`(?:I'm going to |Let me |I'll )(?:use the )?TodoWrite(?: tool)?`,
				`(?:Creating|Updating) (?:the )?todo list`,
				`(?:Adding|Writing) todos`,
			}},
			{Name: "AskUserQuestion", Glyph: "❓"},
			{Name: "NotebookEdit", Glyph: "📓"},
			{Name: "KillShell", Glyph: "⚠️"},
			{Name: "BashOutput", Glyph: "📊"},
		},
	}
}

// Validate checks that every pattern compiles and that thresholds are sane.
func (r Rules) Validate() error {
	patterns := []string{r.Classifier.OptionPattern, r.Prompt.OptionPattern, r.Prompt.OptionLinePattern}
	patterns = append(patterns, r.Classifier.ConfirmationPatterns...)
	for _, tool := range r.Tools {
		if tool.Name == "" {
			return fmt.Errorf("tool rule without name")
		}
		patterns = append(patterns, tool.Patterns...)
	}
	for _, p := range patterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("invalid pattern %q: %w", p, err)
		}
	}
	if r.Prompt.BoxChars != "" {
		if _, err := regexp.Compile(BoxCharsClass(r.Prompt.BoxChars)); err != nil {
			return fmt.Errorf("invalid box chars %q: %w", r.Prompt.BoxChars, err)
		}
	}
	if r.Classifier.MinOptions < 1 {
		return fmt.Errorf("min_options must be positive, got %d", r.Classifier.MinOptions)
	}
	if r.Prompt.MaxQuestionLines < 1 {
		return fmt.Errorf("max_question_lines must be positive, got %d", r.Prompt.MaxQuestionLines)
	}
	return nil
}

// BoxCharsClass turns a set of box-drawing runes into a regexp character class.
func BoxCharsClass(chars string) string {
	return "[" + regexp.QuoteMeta(chars) + "]"
}

// Glyph returns the glyph configured for a tool name, or DefaultGlyph.
func (r Rules) Glyph(name string) string {
	for _, tool := range r.Tools {
		if tool.Name == name && tool.Glyph != "" {
			return tool.Glyph
		}
	}
	return DefaultGlyph
}
