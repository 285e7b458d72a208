package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/GriffinCanCode/omnik/internal/shared/id"
	"github.com/GriffinCanCode/omnik/internal/shared/types"
)

// AddMessage stores one conversation turn. ID and Timestamp are filled in
// when empty.
func (s *DB) AddMessage(ctx context.Context, msg *types.Message) error {
	if msg.ID == "" {
		msg.ID = id.NewMessageID().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO messages (id, session_id, role, content, timestamp, token_count) VALUES (?, ?, ?, ?, ?, ?)",
		msg.ID, msg.SessionID, string(msg.Role), msg.Content, formatTime(msg.Timestamp), msg.TokenCount,
	)
	if err != nil {
		return fmt.Errorf("failed to add message: %w", err)
	}
	return nil
}

// GetMessages returns a session's messages oldest first. A limit of zero or
// less returns all of them.
func (s *DB) GetMessages(ctx context.Context, sessionID string, limit int) ([]*types.Message, error) {
	query := "SELECT id, session_id, role, content, timestamp, token_count FROM messages WHERE session_id = ? ORDER BY timestamp, id"
	args := []any{sessionID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	defer rows.Close()

	var messages []*types.Message
	for rows.Next() {
		var (
			msg      types.Message
			role, ts string
		)
		if err := rows.Scan(&msg.ID, &msg.SessionID, &role, &msg.Content, &ts, &msg.TokenCount); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Role = types.Role(role)
		msg.Timestamp = parseTime(ts)
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}
