package tooluse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/omnik/internal/output/rules"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		line string
		want Tool
		ok   bool
	}{
		{"Let me run `go test ./...`", Bash, true},
		{"executing the bash command now", Bash, true},
		{"I'll read config.yaml", Read, true},
		{"Writing file main.go", Write, true},
		{"Editing the file handler.go", Edit, true},
		{"Finding files that match *.go", Glob, true},
		{"Searching through the logs", Grep, true},
		{"Launching an agent for the refactor", Task, true},
		{"Fetching from the web", WebFetch, true},
		{"Looking up the web for docs", WebSearch, true},
		{"Updating the todo list", TodoWrite, true},
		{"The build is green.", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := Detect(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		line string
		tool Tool
		want string
	}{
		{"bash backticks", "Let me run `npm install` first", Bash, "npm install"},
		{"bash quotes", `I'll execute "make build" now`, Bash, "make build"},
		{"bash fallback", "Let me run the tests. Then deploy", Bash, "Let me run the tests"},
		{"read", "Let me read the file config", Read, "config"},
		{"write", "I'll write to output", Write, "output"},
		{"edit", "I'll edit the bug in server", Edit, "server"},
		{"other", "Launching an agent. It will report back", Task, "Launching an agent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Describe(tt.line, tt.tool))
		})
	}
}

func TestAnnotate(t *testing.T) {
	out, tools := Annotate("Starting.\nLet me run `ls -la`\nDone.")

	assert.Equal(t, "Starting.\n┌─ 🔧 Bash: ls -la\n└─ Let me run `ls -la`\nDone.", out)
	assert.Equal(t, []Tool{Bash}, tools)
}

func TestAnnotateWithoutTools(t *testing.T) {
	out, tools := Annotate("plain\ntext")
	assert.Equal(t, "plain\ntext", out)
	assert.Empty(t, tools)
}

func TestSummary(t *testing.T) {
	assert.Equal(t, "", Summary(nil))
	assert.Equal(t, "🔧 Bash (2x), 📖 Read", Summary([]Tool{Bash, Read, Bash}))
	assert.Equal(t, "🔹 Mystery", Summary([]Tool{"Mystery"}))
	assert.Equal(t, "❓ AskUserQuestion", Summary([]Tool{AskUserQuestion}))
}

func TestCustomTable(t *testing.T) {
	r := rules.Default()
	r.Tools = []rules.ToolRule{{Name: "Deploy", Glyph: "🚀", Patterns: []string{`shipping to`}}}
	a := New(r)

	tool, ok := a.Detect("Shipping to production")
	require.True(t, ok)
	assert.Equal(t, Tool("Deploy"), tool)
	assert.Equal(t, "🚀 Deploy: Shipping to production", a.Format(tool, a.Describe("Shipping to production", tool)))

	_, ok = a.Detect("Let me run `ls`")
	assert.False(t, ok)
}
