package paths

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned for paths that escape their workspace
var ErrOutsideRoot = errors.New("path escapes workspace")

// excludedDirs are skipped by workspace walks and watches
var excludedDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	"vendor":       true,
	"__pycache__":  true,
}

// Workspace returns the workspace directory of a session
func Workspace(base, sessionID string) string {
	return filepath.Join(base, sessionID)
}

// Resolve maps rel onto root. Absolute inputs are taken relative to root,
// so "/" and "" both name the root itself.
func Resolve(root, rel string) (string, error) {
	if strings.ContainsRune(rel, 0) {
		return "", fmt.Errorf("%w: invalid path %q", ErrOutsideRoot, rel)
	}

	root = filepath.Clean(root)
	full := filepath.Join(root, filepath.Clean("/"+rel))

	if !Within(root, full) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, rel)
	}
	return full, nil
}

// Within reports whether path is root or lies below it
func Within(root, path string) bool {
	r, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false
	}
	return r == "." || (r != ".." && !strings.HasPrefix(r, ".."+string(filepath.Separator)))
}

// Rel returns path relative to root using forward slashes, "." for root
func Rel(root, path string) string {
	r, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(r)
}

// IsHidden reports whether a base name is a dotfile
func IsHidden(name string) bool {
	return len(name) > 1 && strings.HasPrefix(name, ".")
}

// IsExcludedDir reports whether a directory name is skipped by walks
func IsExcludedDir(name string) bool {
	return excludedDirs[name]
}
