// Package storage persists sessions, conversation messages and audit records
// in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("record not found")

// MemoryDSN opens a private in-memory database
const MemoryDSN = ":memory:"

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id             TEXT PRIMARY KEY,
	owner_id       INTEGER NOT NULL,
	workspace_path TEXT NOT NULL,
	name           TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT 'active',
	pid            INTEGER NOT NULL DEFAULT 0,
	created_at     TEXT NOT NULL,
	last_activity  TEXT NOT NULL,
	token_usage    INTEGER NOT NULL DEFAULT 0,
	cost_usd       REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_sessions_owner ON sessions(owner_id);
CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);

CREATE TABLE IF NOT EXISTS messages (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	role        TEXT NOT NULL,
	content     TEXT NOT NULL,
	timestamp   TEXT NOT NULL,
	token_count INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, timestamp);

CREATE TABLE IF NOT EXISTS audit_logs (
	id        TEXT PRIMARY KEY,
	owner_id  INTEGER NOT NULL,
	action    TEXT NOT NULL,
	workspace TEXT NOT NULL DEFAULT '',
	timestamp TEXT NOT NULL,
	details   TEXT NOT NULL DEFAULT '',
	success   INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_audit_owner ON audit_logs(owner_id, timestamp);
`

// DB is the SQLite-backed store
type DB struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (or creates) the database named by dsn and applies the schema.
// An empty dsn or MemoryDSN gives a private in-memory database. A
// "sqlite://" prefix, as used in DATABASE_URL values, is accepted.
func Open(ctx context.Context, dsn string, logger *zap.Logger) (*DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	path := normalizeDSN(dsn)
	memory := path == MemoryDSN
	if !memory {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Each connection to :memory: is a separate database.
	if memory {
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{"PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"}
	if !memory {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info("Database opened", zap.String("path", path))
	return &DB{db: db, logger: logger}, nil
}

func normalizeDSN(dsn string) string {
	dsn = strings.TrimSpace(dsn)
	for _, prefix := range []string{"sqlite+aiosqlite:///", "sqlite:///", "sqlite://", "file:"} {
		if strings.HasPrefix(dsn, prefix) {
			dsn = strings.TrimPrefix(dsn, prefix)
			break
		}
	}
	if dsn == "" {
		return MemoryDSN
	}
	return dsn
}

// Ping checks the database connection
func (s *DB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database
func (s *DB) Close() error {
	return s.db.Close()
}

// timeLayout has fixed-width fractions so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

type scanner interface {
	Scan(dest ...any) error
}
