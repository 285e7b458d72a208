package render

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/omnik/internal/output/classify"
	"github.com/GriffinCanCode/omnik/internal/output/rules"
	"github.com/GriffinCanCode/omnik/internal/output/tooluse"
)

const trustPrompt = `
╭──────────────────────────────────────────────╮
│ Do you trust the files in this folder?       │
│                                              │
│ ❯ 1. Yes, proceed                            │
│   2. No, exit                                │
╰──────────────────────────────────────────────╯
   Enter to confirm · Esc to exit
`

func TestRenderPrompt(t *testing.T) {
	r := New(rules.Default(), nil)
	resp := r.Render("\x1b[2J" + trustPrompt)

	assert.Equal(t, classify.Prompt, resp.Category)
	assert.True(t, resp.RequiresAction)
	assert.Equal(t, "Interactive prompt with 2 options", resp.Summary)
	require.NotNil(t, resp.Prompt)
	assert.Len(t, resp.Prompt.Options, 2)
	assert.Equal(t, "**Do you trust the files in this folder?**\n\n_Select an option below:_", resp.Prompt.Message)
	assert.NotContains(t, resp.Text, "\x1b")
}

func TestRenderToolNarration(t *testing.T) {
	r := New(rules.Default(), nil)
	resp := r.Render("Let me run `go vet`\r\nAll checks finished")

	assert.Equal(t, classify.Working, resp.Category)
	assert.False(t, resp.RequiresAction)
	assert.Nil(t, resp.Prompt)
	assert.Equal(t, []tooluse.Tool{tooluse.Bash}, resp.Tools)
	assert.Equal(t, "🔧 Bash", resp.ToolSummary)
	assert.Contains(t, resp.Annotated, "┌─ 🔧 Bash: go vet")
}

func TestRenderEmpty(t *testing.T) {
	resp := New(rules.Default(), nil).Render("")

	assert.Equal(t, classify.Info, resp.Category)
	assert.Equal(t, "(empty response)", resp.Summary)
	assert.Equal(t, "✅ Done (no output)", resp.Display)
}

func TestDisplayTruncates(t *testing.T) {
	short := strings.Repeat("é", DisplayLimit)
	assert.Equal(t, short, Display(short))

	long := strings.Repeat("é", DisplayLimit+10)
	got := Display(long)
	assert.True(t, strings.HasSuffix(got, "\n\n... (truncated)"))
	assert.Equal(t, DisplayLimit, utf8.RuneCountInString(strings.TrimSuffix(got, "\n\n... (truncated)")))
}
