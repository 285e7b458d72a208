package terminal

import (
	"sort"
	"strings"
)

// Environment overrides applied to every launched program.
const (
	envTelemetryOptOut = "CLAUDE_TELEMETRY_OPTOUT"
	envTerm            = "TERM"
	envAPIKey          = "ANTHROPIC_API_KEY"
)

// Overrides returns the variables set on top of the inherited environment.
// The API key is included only when non-empty.
func Overrides(apiKey string) map[string]string {
	env := map[string]string{
		envTelemetryOptOut: "1",
		envTerm:            "xterm-256color",
	}
	if apiKey != "" {
		env[envAPIKey] = apiKey
	}
	return env
}

// MergeEnv applies overrides to a KEY=VALUE list. Overridden keys are removed
// from base and re-added in sorted order, so overrides always win.
func MergeEnv(base []string, overrides map[string]string) []string {
	out := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := overrides[key]; ok {
			continue
		}
		out = append(out, kv)
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+overrides[k])
	}
	return out
}
