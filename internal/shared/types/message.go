package types

import "time"

// Role identifies who produced a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one stored conversation turn
type Message struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	TokenCount int       `json:"token_count,omitempty"`
}

// AuditLog records one user action
type AuditLog struct {
	ID        string         `json:"id"`
	OwnerID   int64          `json:"owner_id"`
	Action    string         `json:"action"`
	Workspace string         `json:"workspace,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
	Success   bool           `json:"success"`
}
