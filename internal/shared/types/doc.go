// Package types provides the records shared by the registry, storage and API
// layers.
//
// Core Types:
//   - Session: one interactive Claude Code session and its lifecycle status
//   - SessionUpdate: a partial update applied by storage
//   - Message: one conversation turn
//   - AuditLog: one recorded user action
//   - WorkspaceInfo: a snapshot of a session's workspace directory
//
// Request Types:
//   - CreateSessionRequest, SendMessageRequest, SelectOptionRequest: REST bodies
//   - WSMessage: WebSocket frames
package types
