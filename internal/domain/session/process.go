package session

import (
	"context"
	"iter"
	"time"

	"github.com/GriffinCanCode/omnik/internal/shared/types"
	"github.com/GriffinCanCode/omnik/internal/terminal"
)

// Store persists session records. Every call is atomic per record and
// GetSession returns storage.ErrNotFound for a missing ID.
type Store interface {
	CreateSession(ctx context.Context, sess *types.Session) error
	GetSession(ctx context.Context, id string) (*types.Session, error)
	ListSessions(ctx context.Context, owner int64) ([]*types.Session, error)
	ListSessionsByStatus(ctx context.Context, statuses ...types.Status) ([]*types.Session, error)
	UpdateSession(ctx context.Context, id string, upd types.SessionUpdate) error
}

// Process is the part of terminal.Process the registry drives.
type Process interface {
	Start(ctx context.Context) (int, error)
	SendInput(text string) error
	ReadOutput(ctx context.Context, timeout time.Duration) iter.Seq[string]
	Terminate(grace time.Duration)
	Suspend() error
	Resume() error
	IsAlive() bool
	PID() int
	ExitCode() (int, bool)
	Done() <-chan struct{}
}

// ProcessFactory builds an unstarted process.
type ProcessFactory func(cfg terminal.Config) Process

// NewTerminalProcess is the default ProcessFactory.
func NewTerminalProcess(cfg terminal.Config) Process {
	return terminal.New(cfg)
}

var _ Process = (*terminal.Process)(nil)
