package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/GriffinCanCode/omnik/internal/output/rules"
)

const trustPrompt = "\x1b[?25l" + `
╭──────────────────────────────────────────────────────────────────────────────╮
│ Do you trust the files in this folder?                                       │
│                                                                              │
│ /workspace/8afdab13-0fce-4365-ace8-226127b13f9a                              │
│                                                                              │
│ Claude Code may read, write, or execute files contained in this directory.   │
│ This can pose security risks, so only use files from trusted sources.        │
│                                                                              │
│ ❯ 1. Yes, proceed                                                            │
│   2. No, exit                                                                │
│                                                                              │
╰──────────────────────────────────────────────────────────────────────────────╯
   Enter to confirm · Esc to exit
`

func TestExtractTrustPrompt(t *testing.T) {
	p := Extract(trustPrompt)
	require.NotNil(t, p)

	assert.Equal(t, []Option{
		{Number: "1", Text: "Yes, proceed", CallbackData: "opt_1"},
		{Number: "2", Text: "No, exit", CallbackData: "opt_2"},
	}, p.Options)
	assert.Contains(t, strings.ToLower(p.Question), "trust")
	assert.NotContains(t, p.Question, "│")
	assert.NotContains(t, p.Question, "Enter to confirm")
	assert.LessOrEqual(t, len(strings.Split(p.Question, "\n")), 6)
	assert.Equal(t, trustPrompt, p.Raw)
	assert.Equal(t, []string{"1", "2"}, p.Labels())

	opt, ok := p.Option("2")
	require.True(t, ok)
	assert.Equal(t, "No, exit", opt.Text)
	_, ok = p.Option("3")
	assert.False(t, ok)
}

func TestExtractWithoutIndicator(t *testing.T) {
	assert.Nil(t, Extract("1. Alpha\n2. Beta\n"))
	assert.Nil(t, Extract(""))
}

func TestExtractShortQuestionFallsBack(t *testing.T) {
	p := Extract("Choose:\n 1. Red\n 2. Blue\n")
	require.NotNil(t, p)
	assert.Equal(t, "Please select an option:", p.Question)
	assert.Len(t, p.Options, 2)
}

func TestExtractSkipsOneCharacterOptions(t *testing.T) {
	p := Extract("Select an option for the build target\n 1. x\n 2. Release\n")
	require.NotNil(t, p)
	assert.Equal(t, []string{"2"}, p.Labels())
}

func TestParseAnomalies(t *testing.T) {
	e := New(rules.Default().Prompt, nil)

	tests := []struct {
		name string
		text string
		kind AnomalyKind
	}{
		{"indicator without options", "Do you trust this? maybe later", AnomalyNoOptions},
		{"duplicate option", "Select an option\n 1. Apple\n 1. Banana\n", AnomalyDuplicateOption},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := e.Parse(tt.text)
			assert.Nil(t, p)
			require.ErrorIs(t, err, ErrAnomaly)

			var anomaly *AnomalyError
			require.ErrorAs(t, err, &anomaly)
			assert.Equal(t, tt.kind, anomaly.Kind)
		})
	}
}

func TestExtractLogsAnomaly(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	e := New(rules.Default().Prompt, zap.New(core))

	assert.Nil(t, e.Extract("Select an option\n 1. Apple\n 1. Banana\n"))
	require.Equal(t, 1, logs.Len())
	assert.Contains(t, logs.All()[0].Message, "malformed")
}

func TestFormat(t *testing.T) {
	p := &Prompt{Question: "Pick one"}
	assert.Equal(t, "**Pick one**\n\n_Select an option below:_", Format(p))
}

func TestCustomCallbackPrefix(t *testing.T) {
	r := rules.Default().Prompt
	r.CallbackDataPrefix = "choice:"
	e := New(r, zap.NewNop())

	p := e.Extract(trustPrompt)
	require.NotNil(t, p)
	assert.Equal(t, "choice:1", p.Options[0].CallbackData)
}
