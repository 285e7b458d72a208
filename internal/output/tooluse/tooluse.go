// Package tooluse detects Claude Code narrating its tool invocations
// ("Let me run ...", "I'll read the file ...") and annotates those lines.
package tooluse

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/GriffinCanCode/omnik/internal/output/rules"
)

// Tool is a Claude Code tool name such as "Bash" or "Read".
type Tool string

const (
	Bash            Tool = "Bash"
	Read            Tool = "Read"
	Write           Tool = "Write"
	Edit            Tool = "Edit"
	Glob            Tool = "Glob"
	Grep            Tool = "Grep"
	Task            Tool = "Task"
	WebFetch        Tool = "WebFetch"
	WebSearch       Tool = "WebSearch"
	AskUserQuestion Tool = "AskUserQuestion"
	TodoWrite       Tool = "TodoWrite"
	NotebookEdit    Tool = "NotebookEdit"
	KillShell       Tool = "KillShell"
	BashOutput      Tool = "BashOutput"
)

var (
	backtickSpan = regexp.MustCompile("`([^`]+)`")
	quotedSpan   = regexp.MustCompile(`"([^"]+)"`)
	readTarget   = regexp.MustCompile(`(?i)files?\s+([^\s,.]+)`)
	writeTarget  = regexp.MustCompile(`(?i)(?:file|to)\s+([^\s,.]+)`)
	editTarget   = regexp.MustCompile(`(?i)(?:file|in)\s+([^\s,.]+)`)
)

type detector struct {
	tool     Tool
	patterns []*regexp.Regexp
}

// Annotator matches lines against an ordered tool table. The first tool with
// a matching pattern wins.
type Annotator struct {
	rules     rules.Rules
	detectors []detector
}

// New compiles an Annotator from r.Tools. Patterns match case-insensitively.
func New(r rules.Rules) *Annotator {
	a := &Annotator{rules: r}
	for _, tr := range r.Tools {
		if len(tr.Patterns) == 0 {
			continue
		}
		d := detector{tool: Tool(tr.Name)}
		for _, p := range tr.Patterns {
			d.patterns = append(d.patterns, regexp.MustCompile("(?i)"+p))
		}
		a.detectors = append(a.detectors, d)
	}
	return a
}

var defaultAnnotator = New(rules.Default())

// Detect reports the first tool whose phrasing appears in line.
func (a *Annotator) Detect(line string) (Tool, bool) {
	for _, d := range a.detectors {
		for _, p := range d.patterns {
			if p.MatchString(line) {
				return d.tool, true
			}
		}
	}
	return "", false
}

// Describe pulls a short description of what the tool is acting on out of
// line, such as the command for Bash or the file name for Read.
func (a *Annotator) Describe(line string, tool Tool) string {
	var target *regexp.Regexp
	switch tool {
	case Bash:
		if m := backtickSpan.FindStringSubmatch(line); m != nil {
			return m[1]
		}
		target = quotedSpan
	case Read:
		target = readTarget
	case Write:
		target = writeTarget
	case Edit:
		target = editTarget
	}
	if target != nil {
		if m := target.FindStringSubmatch(line); m != nil {
			return m[1]
		}
	}

	first, _, _ := strings.Cut(line, ".")
	return strings.TrimSpace(first)
}

// Format renders "glyph Tool: description", or "glyph Tool" when the
// description is empty.
func (a *Annotator) Format(tool Tool, description string) string {
	s := a.rules.Glyph(string(tool)) + " " + string(tool)
	if description != "" {
		s += ": " + description
	}
	return s
}

// Annotate prefixes every line that mentions a tool with a two-line marker and
// returns the tools in the order they were seen.
func (a *Annotator) Annotate(output string) (string, []Tool) {
	lines := strings.Split(output, "\n")
	out := make([]string, 0, len(lines))
	var tools []Tool

	for _, line := range lines {
		tool, ok := a.Detect(line)
		if !ok {
			out = append(out, line)
			continue
		}
		tools = append(tools, tool)
		out = append(out,
			"┌─ "+a.Format(tool, a.Describe(line, tool)),
			"└─ "+line,
		)
	}
	return strings.Join(out, "\n"), tools
}

// Summary counts tools in first-seen order: "🔧 Bash (2x), 📖 Read".
func (a *Annotator) Summary(tools []Tool) string {
	if len(tools) == 0 {
		return ""
	}

	counts := make(map[Tool]int)
	var order []Tool
	for _, t := range tools {
		if counts[t] == 0 {
			order = append(order, t)
		}
		counts[t]++
	}

	parts := make([]string, len(order))
	for i, t := range order {
		parts[i] = a.rules.Glyph(string(t)) + " " + string(t)
		if n := counts[t]; n > 1 {
			parts[i] += " (" + strconv.Itoa(n) + "x)"
		}
	}
	return strings.Join(parts, ", ")
}

// Detect uses the built-in tool table.
func Detect(line string) (Tool, bool) { return defaultAnnotator.Detect(line) }

// Describe uses the built-in tool table.
func Describe(line string, tool Tool) string { return defaultAnnotator.Describe(line, tool) }

// Annotate uses the built-in tool table.
func Annotate(output string) (string, []Tool) { return defaultAnnotator.Annotate(output) }

// Summary uses the built-in tool table.
func Summary(tools []Tool) string { return defaultAnnotator.Summary(tools) }
