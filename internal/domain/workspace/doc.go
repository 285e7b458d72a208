// Package workspace exposes session workspaces to the API.
//
// Manager lists directories with usage totals, expands doublestar globs,
// reads files with MIME and charset detection, and stores uploads. Every
// user-supplied path is confined to the session's own directory.
//
// Watcher follows a workspace with fsnotify and reports debounced bursts of
// changes, which the server uses to keep a session's last activity fresh
// while Claude Code edits files.
package workspace
