package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ReadSecret reads dir/name. The file may hold a bare value or a single
// KEY=value line, in which case the value part is returned.
func ReadSecret(dir, name string) (string, bool) {
	if dir == "" {
		return "", false
	}
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return "", false
	}
	content := strings.TrimSpace(string(data))
	if _, value, ok := strings.Cut(content, "="); ok {
		return strings.TrimSpace(value), true
	}
	return content, true
}

// ResolveSecret prefers the secret file over the environment value.
func ResolveSecret(dir, name, envValue string) string {
	if v, ok := ReadSecret(dir, name); ok {
		return v
	}
	return envValue
}
