package types

// CreateSessionRequest creates a new session
type CreateSessionRequest struct {
	Name string `json:"name"`
}

// SetActiveRequest switches the caller's active session
type SetActiveRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

// SendMessageRequest sends text to a session
type SendMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

// SelectOptionRequest answers an interactive prompt
type SelectOptionRequest struct {
	Option string `json:"option" binding:"required"`
}

// WSMessage represents a WebSocket frame in either direction
type WSMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Text      string `json:"text,omitempty"`
	Option    string `json:"option,omitempty"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
}
