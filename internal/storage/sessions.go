package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/GriffinCanCode/omnik/internal/shared/types"
)

const sessionColumns = "id, owner_id, workspace_path, name, status, pid, created_at, last_activity, token_usage, cost_usd"

// CreateSession inserts a new session record
func (s *DB) CreateSession(ctx context.Context, sess *types.Session) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO sessions ("+sessionColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		sess.ID, sess.OwnerID, sess.WorkspacePath, sess.Name, string(sess.Status), sess.PID,
		formatTime(sess.CreatedAt), formatTime(sess.LastActivity), sess.TokenUsage, sess.CostUSD,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession returns one session or ErrNotFound
func (s *DB) GetSession(ctx context.Context, id string) (*types.Session, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return sess, nil
}

// ListSessions returns an owner's sessions, newest first
func (s *DB) ListSessions(ctx context.Context, owner int64) ([]*types.Session, error) {
	return s.querySessions(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE owner_id = ? ORDER BY created_at DESC", owner)
}

// ListSessionsByStatus returns every session in one of the given states
func (s *DB) ListSessionsByStatus(ctx context.Context, statuses ...types.Status) ([]*types.Session, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := make([]any, len(statuses))
	for i, st := range statuses {
		args[i] = string(st)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(statuses)), ", ")
	return s.querySessions(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE status IN ("+placeholders+") ORDER BY created_at", args...)
}

func (s *DB) querySessions(ctx context.Context, query string, args ...any) ([]*types.Session, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*types.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// UpdateSession applies the set fields of upd. It returns ErrNotFound when
// no record matches.
func (s *DB) UpdateSession(ctx context.Context, id string, upd types.SessionUpdate) error {
	var (
		sets []string
		args []any
	)
	if upd.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*upd.Status))
	}
	if upd.PID != nil {
		sets = append(sets, "pid = ?")
		args = append(args, *upd.PID)
	}
	if upd.LastActivity != nil {
		sets = append(sets, "last_activity = ?")
		args = append(args, formatTime(*upd.LastActivity))
	}
	if upd.TokenUsage != nil {
		sets = append(sets, "token_usage = ?")
		args = append(args, *upd.TokenUsage)
	}
	if upd.CostUSD != nil {
		sets = append(sets, "cost_usd = ?")
		args = append(args, *upd.CostUSD)
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	res, err := s.db.ExecContext(ctx, "UPDATE sessions SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSession removes a session and its messages
func (s *DB) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSession(row scanner) (*types.Session, error) {
	var (
		sess                types.Session
		status              string
		createdAt, lastSeen string
	)
	if err := row.Scan(&sess.ID, &sess.OwnerID, &sess.WorkspacePath, &sess.Name, &status, &sess.PID,
		&createdAt, &lastSeen, &sess.TokenUsage, &sess.CostUSD); err != nil {
		return nil, err
	}

	st, err := types.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	sess.Status = st
	sess.CreatedAt = parseTime(createdAt)
	sess.LastActivity = parseTime(lastSeen)
	return &sess, nil
}
