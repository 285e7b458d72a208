package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/omnik/internal/shared/id"
	"github.com/GriffinCanCode/omnik/internal/shared/types"
)

// AddAuditLog stores one audit record. Details are stored as JSON.
func (s *DB) AddAuditLog(ctx context.Context, entry *types.AuditLog) error {
	if entry.ID == "" {
		entry.ID = id.NewAuditID().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	var details string
	if len(entry.Details) > 0 {
		b, err := sonic.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("failed to encode audit details: %w", err)
		}
		details = string(b)
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO audit_logs (id, owner_id, action, workspace, timestamp, details, success) VALUES (?, ?, ?, ?, ?, ?, ?)",
		entry.ID, entry.OwnerID, entry.Action, entry.Workspace, formatTime(entry.Timestamp), details, entry.Success,
	)
	if err != nil {
		return fmt.Errorf("failed to add audit log: %w", err)
	}
	return nil
}

// GetAuditLogs returns the newest records first. An owner of zero returns
// records for every owner.
func (s *DB) GetAuditLogs(ctx context.Context, owner int64, limit int) ([]*types.AuditLog, error) {
	if limit <= 0 {
		limit = 100
	}

	query := "SELECT id, owner_id, action, workspace, timestamp, details, success FROM audit_logs"
	var args []any
	if owner != 0 {
		query += " WHERE owner_id = ?"
		args = append(args, owner)
	}
	query += " ORDER BY timestamp DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit logs: %w", err)
	}
	defer rows.Close()

	var logs []*types.AuditLog
	for rows.Next() {
		var (
			entry       types.AuditLog
			ts, details string
		)
		if err := rows.Scan(&entry.ID, &entry.OwnerID, &entry.Action, &entry.Workspace, &ts, &details, &entry.Success); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		entry.Timestamp = parseTime(ts)
		if details != "" {
			if err := sonic.UnmarshalString(details, &entry.Details); err != nil {
				s.logger.Warn("Discarding unreadable audit details", zap.String("id", entry.ID), zap.Error(err))
			}
		}
		logs = append(logs, &entry)
	}
	return logs, rows.Err()
}
