package types

import (
	"fmt"
	"time"
)

// Status represents session lifecycle states
type Status string

const (
	StatusActive     Status = "active"
	StatusPaused     Status = "paused"
	StatusCrashed    Status = "crashed"
	StatusTerminated Status = "terminated"
)

var transitions = map[Status][]Status{
	StatusActive:  {StatusCrashed, StatusTerminated, StatusPaused},
	StatusPaused:  {StatusActive, StatusCrashed, StatusTerminated},
	StatusCrashed: {StatusActive, StatusTerminated},
}

// CanTransition reports whether a session may move from s to next. Staying
// in the same status is always allowed except for terminated, which is final.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return s != StatusTerminated
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusCrashed, StatusTerminated:
		return true
	}
	return false
}

// ParseStatus converts a stored string to a Status
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown session status %q", s)
	}
	return st, nil
}

// Session represents one Claude Code session
type Session struct {
	ID            string    `json:"id"`
	OwnerID       int64     `json:"owner_id"`
	Name          string    `json:"name,omitempty"`
	WorkspacePath string    `json:"workspace_path"`
	Status        Status    `json:"status"`
	PID           int       `json:"pid,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	LastActivity  time.Time `json:"last_activity"`
	TokenUsage    int64     `json:"token_usage"`
	CostUSD       float64   `json:"cost_usd"`
}

// DisplayName returns the name, or a short form of the ID when unnamed
func (s *Session) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	if len(s.ID) > 8 {
		return s.ID[:8]
	}
	return s.ID
}

// SessionUpdate carries the fields to change; nil fields are left alone
type SessionUpdate struct {
	Status       *Status
	PID          *int
	LastActivity *time.Time
	TokenUsage   *int64
	CostUSD      *float64
}

// Apply copies the set fields onto s
func (u SessionUpdate) Apply(s *Session) {
	if u.Status != nil {
		s.Status = *u.Status
	}
	if u.PID != nil {
		s.PID = *u.PID
	}
	if u.LastActivity != nil {
		s.LastActivity = *u.LastActivity
	}
	if u.TokenUsage != nil {
		s.TokenUsage = *u.TokenUsage
	}
	if u.CostUSD != nil {
		s.CostUSD = *u.CostUSD
	}
}

// Ptr returns a pointer to v, for building updates
func Ptr[T any](v T) *T {
	return &v
}

// SessionStats summarises the live registry
type SessionStats struct {
	Live    int            `json:"live"`
	Owners  int            `json:"owners"`
	ByState map[Status]int `json:"by_state"`
}
