package types

import "time"

// FileEntry describes one file or directory inside a workspace
type FileEntry struct {
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	IsDir    bool      `json:"is_dir"`
	MimeType string    `json:"mime_type,omitempty"`
	ModTime  time.Time `json:"mod_time"`
}

// WorkspaceInfo is a snapshot of a session workspace
type WorkspaceInfo struct {
	SessionID    string      `json:"session_id"`
	Path         string      `json:"path"`
	Size         int64       `json:"size_bytes"`
	FileCount    int         `json:"file_count"`
	LastModified time.Time   `json:"last_modified"`
	Files        []FileEntry `json:"files,omitempty"`
}

// FileContent is a decoded text file
type FileContent struct {
	Path     string `json:"path"`
	MimeType string `json:"mime_type"`
	Charset  string `json:"charset,omitempty"`
	Content  string `json:"content"`
	Size     int64  `json:"size"`
	Binary   bool   `json:"binary"`
}
