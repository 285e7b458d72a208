package session

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/omnik/internal/infrastructure/config"
	"github.com/GriffinCanCode/omnik/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/omnik/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/omnik/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/omnik/internal/shared/id"
	"github.com/GriffinCanCode/omnik/internal/shared/types"
	"github.com/GriffinCanCode/omnik/internal/storage"
	"github.com/GriffinCanCode/omnik/internal/terminal"
)

// NoOutputMessage is yielded when a sent message produced no output.
const NoOutputMessage = "✅ Command sent (no output received)"

// Default registry settings
const (
	DefaultSendTimeout    = 60 * time.Second
	DefaultTerminateGrace = 10 * time.Second
)

// Options configures a Registry
type Options struct {
	WorkspaceBase  string
	MaxSessions    int
	Command        string
	Args           []string
	APIKey         string
	SendTimeout    time.Duration
	TerminateGrace time.Duration
	NewProcess     ProcessFactory
	Guard          *resilience.Guard
	Lifecycle      Lifecycle
}

// Lifecycle is told when a session's process starts and when the session
// is terminated. Calls are made while the session is locked.
type Lifecycle interface {
	Started(sessionID, workspace string)
	Stopped(sessionID string)
}

// OptionsFromConfig maps the session configuration onto registry options
func OptionsFromConfig(cfg config.SessionConfig, apiKey string) Options {
	return Options{
		WorkspaceBase:  cfg.WorkspaceBase,
		MaxSessions:    cfg.MaxSessions,
		Command:        cfg.Command,
		Args:           cfg.Args,
		APIKey:         apiKey,
		SendTimeout:    cfg.SendTimeout,
		TerminateGrace: cfg.TerminateGrace,
	}
}

type liveSession struct {
	proc   Process
	owner  int64
	status types.Status
}

// Registry owns the live Claude Code processes and their records
type Registry struct {
	store   Store
	opts    Options
	logger  *zap.Logger
	metrics *monitoring.Metrics
	guard   *resilience.Guard
	locks   *keyedMutex

	mu     sync.RWMutex
	live   map[string]*liveSession // Protected by mu
	active map[int64]string        // Protected by mu
	closed bool                    // Protected by mu

	closing  chan struct{}
	watchers sync.WaitGroup
}

// NewRegistry creates a registry backed by store
func NewRegistry(store Store, opts Options, logger *zap.Logger) *Registry {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	if opts.TerminateGrace <= 0 {
		opts.TerminateGrace = DefaultTerminateGrace
	}
	if opts.NewProcess == nil {
		opts.NewProcess = NewTerminalProcess
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	guard := opts.Guard
	if guard == nil {
		guard = resilience.NewGuard(resilience.Settings{})
	}

	return &Registry{
		store:   store,
		opts:    opts,
		logger:  logger.Named("session"),
		guard:   guard,
		locks:   newKeyedMutex(),
		live:    make(map[string]*liveSession),
		active:  make(map[int64]string),
		closing: make(chan struct{}),
	}
}

// WithMetrics adds metrics tracking to the registry
func (r *Registry) WithMetrics(metrics *monitoring.Metrics) *Registry {
	r.metrics = metrics
	return r
}

// CreateSession starts a new Claude Code process in a fresh workspace and
// makes it the owner's active session. When the process fails to start the
// record is kept, marked crashed, and the *terminal.StartError is returned.
func (r *Registry) CreateSession(ctx context.Context, owner int64, name string) (sess *types.Session, err error) {
	ctx, span := tracing.StartSpan(ctx, "session.create")
	defer func() { tracing.End(span, err) }()
	timer := monitoring.NewTimer(r.metrics, "create_session")
	defer func() { timer.Stop(err) }()

	unlock := r.locks.Lock(ownerKey(owner))
	defer unlock()

	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	if r.opts.MaxSessions > 0 && r.liveCount(owner) >= r.opts.MaxSessions {
		return nil, fmt.Errorf("%w: owner %d has %d live sessions", ErrSessionLimit, owner, r.opts.MaxSessions)
	}

	sessionID := id.NewSessionID()
	now := time.Now().UTC()
	sess = &types.Session{
		ID:            sessionID,
		OwnerID:       owner,
		Name:          name,
		WorkspacePath: filepath.Join(r.opts.WorkspaceBase, sessionID),
		Status:        types.StatusActive,
		CreatedAt:     now,
		LastActivity:  now,
	}

	r.logger.Info("Creating new session",
		zap.String("session_id", sessionID),
		zap.Int64("owner", owner),
		zap.String("name", name))

	if err := r.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	unlockID := r.locks.Lock(sessionID)
	defer unlockID()

	proc, pid, err := r.start(ctx, sess)
	if err != nil {
		r.setStatus(ctx, sess, types.StatusCrashed)
		return nil, err
	}

	sess.PID = pid
	if err := r.store.UpdateSession(ctx, sessionID, types.SessionUpdate{PID: types.Ptr(pid)}); err != nil {
		r.logger.Warn("Failed to record PID", zap.String("session_id", sessionID), zap.Error(err))
	}

	r.mu.Lock()
	r.live[sessionID] = &liveSession{proc: proc, owner: owner, status: types.StatusActive}
	r.active[owner] = sessionID
	r.mu.Unlock()

	r.watch(sessionID, proc)
	r.notifyStarted(sess)
	r.metrics.IncSessionsCreated()
	r.updateGauge()

	r.logger.Info("Session created successfully",
		zap.String("session_id", sessionID),
		zap.Int("pid", pid))

	return sess, nil
}

// start launches a process for sess through the crash-loop guard
func (r *Registry) start(ctx context.Context, sess *types.Session) (Process, int, error) {
	proc := r.opts.NewProcess(terminal.Config{
		SessionID: sess.ID,
		Command:   r.opts.Command,
		Args:      r.opts.Args,
		Workspace: sess.WorkspacePath,
		Env:       terminal.Overrides(r.opts.APIKey),
		Logger:    r.logger,
		OnFlush: func(reason terminal.FlushReason, size int) {
			r.metrics.RecordOutputUnit(string(reason), size)
		},
	})

	pid, err := r.guard.Execute(sess.ID, func() (int, error) {
		return proc.Start(ctx)
	})
	if err != nil {
		r.logger.Error("Failed to start Claude Code",
			zap.String("session_id", sess.ID),
			zap.Error(err))
		return nil, 0, err
	}
	return proc, pid, nil
}

// GetSession returns the stored record
func (r *Registry) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	sess, err := r.store.GetSession(ctx, sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return sess, err
}

// ListSessions returns every session of owner, newest first
func (r *Registry) ListSessions(ctx context.Context, owner int64) ([]*types.Session, error) {
	return r.store.ListSessions(ctx, owner)
}

// GetActiveSession returns the owner's selected session
func (r *Registry) GetActiveSession(ctx context.Context, owner int64) (*types.Session, error) {
	r.mu.RLock()
	sessionID, ok := r.active[owner]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNoActiveSession
	}
	return r.GetSession(ctx, sessionID)
}

// SetActiveSession selects sessionID for owner. It reports false when the
// session does not exist or belongs to another owner.
func (r *Registry) SetActiveSession(ctx context.Context, owner int64, sessionID string) (bool, error) {
	sess, err := r.GetSession(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if sess.OwnerID != owner {
		return false, nil
	}

	r.mu.Lock()
	r.active[owner] = sessionID
	r.mu.Unlock()
	return true, nil
}

// TerminateSession stops the process, marks the record terminated and clears
// it from every owner's selection. It reports false only when no record exists.
func (r *Registry) TerminateSession(ctx context.Context, sessionID string) (ok bool, err error) {
	ctx, span := tracing.StartSpan(ctx, "session.terminate")
	defer func() { tracing.End(span, err) }()
	timer := monitoring.NewTimer(r.metrics, "terminate_session")
	defer func() { timer.Stop(err) }()

	unlock := r.locks.Lock(sessionID)
	defer unlock()

	return r.terminateLocked(ctx, sessionID)
}

func (r *Registry) terminateLocked(ctx context.Context, sessionID string) (bool, error) {
	r.logger.Info("Terminating session", zap.String("session_id", sessionID))

	sess, err := r.GetSession(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if entry := r.detach(sessionID); entry != nil {
		entry.proc.Terminate(r.opts.TerminateGrace)
	}

	if sess.Status != types.StatusTerminated {
		now := time.Now().UTC()
		err := r.store.UpdateSession(ctx, sessionID, types.SessionUpdate{
			Status:       types.Ptr(types.StatusTerminated),
			LastActivity: &now,
		})
		if err != nil {
			return true, fmt.Errorf("mark terminated: %w", err)
		}
	}

	r.mu.Lock()
	for owner, activeID := range r.active {
		if activeID == sessionID {
			delete(r.active, owner)
		}
	}
	r.mu.Unlock()

	r.guard.Forget(sessionID)
	if r.opts.Lifecycle != nil {
		r.opts.Lifecycle.Stopped(sessionID)
	}
	r.updateGauge()

	r.logger.Info("Session terminated", zap.String("session_id", sessionID))
	return true, nil
}

// RestartSession replaces the session's process with a fresh one in the same
// workspace. Any stored record can be restarted, terminated ones included.
// It reports false when no record exists.
func (r *Registry) RestartSession(ctx context.Context, sessionID string) (ok bool, err error) {
	ctx, span := tracing.StartSpan(ctx, "session.restart")
	defer func() { tracing.End(span, err) }()
	timer := monitoring.NewTimer(r.metrics, "restart_session")
	defer func() { timer.Stop(err) }()

	unlock := r.locks.Lock(sessionID)
	defer unlock()

	if err := r.checkOpen(); err != nil {
		return false, err
	}

	r.logger.Info("Restarting session", zap.String("session_id", sessionID))

	sess, err := r.GetSession(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if entry := r.detach(sessionID); entry != nil {
		entry.proc.Terminate(r.opts.TerminateGrace)
	}

	proc, pid, err := r.start(ctx, sess)
	if err != nil {
		r.setStatus(ctx, sess, types.StatusCrashed)
		r.updateGauge()
		return false, err
	}

	now := time.Now().UTC()
	err = r.store.UpdateSession(ctx, sessionID, types.SessionUpdate{
		Status:       types.Ptr(types.StatusActive),
		PID:          types.Ptr(pid),
		LastActivity: &now,
	})
	if err != nil {
		r.logger.Warn("Failed to record restart", zap.String("session_id", sessionID), zap.Error(err))
	}

	r.mu.Lock()
	r.live[sessionID] = &liveSession{proc: proc, owner: sess.OwnerID, status: types.StatusActive}
	r.mu.Unlock()

	r.watch(sessionID, proc)
	r.notifyStarted(sess)
	r.updateGauge()

	r.logger.Info("Session restarted", zap.String("session_id", sessionID), zap.Int("pid", pid))
	return true, nil
}

// SendMessage writes text to the session and streams its output units for up
// to SendTimeout. A send that produces nothing yields NoOutputMessage.
func (r *Registry) SendMessage(ctx context.Context, sessionID, text string) (iter.Seq[string], error) {
	timer := monitoring.NewTimer(r.metrics, "send_message")

	proc, err := r.deliver(ctx, sessionID, text)
	timer.Stop(err)
	if err != nil {
		return nil, err
	}

	return func(yield func(string) bool) {
		ctx, span := tracing.StartSpan(ctx, "session.stream")
		defer span.End()

		units, size := 0, 0
		for unit := range proc.ReadOutput(ctx, r.opts.SendTimeout) {
			units++
			size += len(unit)
			if !yield(unit) {
				return
			}
		}

		if units == 0 {
			r.metrics.IncEmptyResponses()
			r.logger.Info("No output received from Claude Code", zap.String("session_id", sessionID))
			yield(NoOutputMessage)
			return
		}

		r.logger.Info("Received response from Claude Code",
			zap.String("session_id", sessionID),
			zap.Int("units", units),
			zap.Int("response_length", size))
	}, nil
}

// deliver writes text under the session lock and returns the process to
// stream from
func (r *Registry) deliver(ctx context.Context, sessionID, text string) (Process, error) {
	unlock := r.locks.Lock(sessionID)
	defer unlock()

	r.logger.Info("Sending message to Claude Code",
		zap.String("session_id", sessionID),
		zap.String("message_preview", preview(text, 100)))

	r.mu.RLock()
	entry := r.live[sessionID]
	r.mu.RUnlock()

	if entry == nil {
		sess, err := r.GetSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if sess.Status == types.StatusTerminated {
			return nil, fmt.Errorf("%w: %s", ErrSessionTerminated, sessionID)
		}
		r.setStatus(ctx, sess, types.StatusCrashed)
		return nil, &terminal.NotRunningError{}
	}

	if !entry.proc.IsAlive() {
		code, exited := entry.proc.ExitCode()
		r.logger.Error("Claude Code process is not running",
			zap.String("session_id", sessionID),
			zap.Int("exit_code", code))
		r.markCrashed(ctx, sessionID)
		return nil, &terminal.NotRunningError{Exited: exited, ExitCode: code}
	}

	if entry.status == types.StatusPaused {
		return nil, fmt.Errorf("%w: %s", ErrSessionPaused, sessionID)
	}

	if err := entry.proc.SendInput(text); err != nil {
		r.logger.Error("Failed to send input to Claude Code",
			zap.String("session_id", sessionID),
			zap.Error(err))
		if errors.Is(err, terminal.ErrNotRunning) {
			r.markCrashed(ctx, sessionID)
		}
		return nil, err
	}

	r.touch(ctx, sessionID)
	return entry.proc, nil
}

// SelectOption answers a numbered prompt with the chosen option
func (r *Registry) SelectOption(ctx context.Context, sessionID string, number int) (iter.Seq[string], error) {
	if number < 1 {
		return nil, fmt.Errorf("invalid option %d", number)
	}
	return r.SendMessage(ctx, sessionID, strconv.Itoa(number))
}

// PauseSession stops the session's process group until ResumeSession
func (r *Registry) PauseSession(ctx context.Context, sessionID string) error {
	return r.changeRunState(ctx, sessionID, types.StatusPaused, Process.Suspend)
}

// ResumeSession continues a paused session
func (r *Registry) ResumeSession(ctx context.Context, sessionID string) error {
	return r.changeRunState(ctx, sessionID, types.StatusActive, Process.Resume)
}

func (r *Registry) changeRunState(ctx context.Context, sessionID string, to types.Status, signal func(Process) error) error {
	unlock := r.locks.Lock(sessionID)
	defer unlock()

	sess, err := r.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !sess.Status.CanTransition(to) || sess.Status == to {
		return &TransitionError{ID: sessionID, From: sess.Status, To: to}
	}

	r.mu.RLock()
	entry := r.live[sessionID]
	r.mu.RUnlock()
	if entry == nil {
		return &terminal.NotRunningError{}
	}

	if err := signal(entry.proc); err != nil {
		return err
	}

	if err := r.store.UpdateSession(ctx, sessionID, types.SessionUpdate{Status: types.Ptr(to)}); err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	r.mu.Lock()
	entry.status = to
	r.mu.Unlock()

	r.logger.Info("Session state changed",
		zap.String("session_id", sessionID),
		zap.String("from", string(sess.Status)),
		zap.String("to", string(to)))
	return nil
}

// RecordUsage adds tokens and cost to the session's running totals
func (r *Registry) RecordUsage(ctx context.Context, sessionID string, tokens int64, cost float64) error {
	unlock := r.locks.Lock(sessionID)
	defer unlock()

	sess, err := r.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	return r.store.UpdateSession(ctx, sessionID, types.SessionUpdate{
		TokenUsage: types.Ptr(sess.TokenUsage + tokens),
		CostUSD:    types.Ptr(sess.CostUSD + cost),
	})
}

// Touch refreshes the session's last activity
func (r *Registry) Touch(ctx context.Context, sessionID string) {
	unlock := r.locks.Lock(sessionID)
	defer unlock()
	r.touch(ctx, sessionID)
}

func (r *Registry) touch(ctx context.Context, sessionID string) {
	now := time.Now().UTC()
	if err := r.store.UpdateSession(ctx, sessionID, types.SessionUpdate{LastActivity: &now}); err != nil {
		r.logger.Warn("Failed to update last activity", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// ReapIdle terminates every non-terminated session idle for longer than
// maxIdle and returns how many were reaped.
func (r *Registry) ReapIdle(ctx context.Context, maxIdle time.Duration) (int, error) {
	if maxIdle <= 0 {
		return 0, nil
	}

	candidates, err := r.store.ListSessionsByStatus(ctx,
		types.StatusActive, types.StatusPaused, types.StatusCrashed)
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}

	cutoff := time.Now().Add(-maxIdle)
	reaped := 0
	for _, sess := range candidates {
		if sess.LastActivity.After(cutoff) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return reaped, err
		}

		ok, err := r.TerminateSession(ctx, sess.ID)
		if err != nil {
			r.logger.Warn("Failed to reap session", zap.String("session_id", sess.ID), zap.Error(err))
			continue
		}
		if ok {
			reaped++
			r.metrics.IncSessionsReaped()
			r.logger.Info("Reaped idle session",
				zap.String("session_id", sess.ID),
				zap.Time("last_activity", sess.LastActivity))
		}
	}
	return reaped, nil
}

// Recover marks sessions left active by a previous run as crashed, since
// their processes did not survive the restart.
func (r *Registry) Recover(ctx context.Context) (int, error) {
	orphans, err := r.store.ListSessionsByStatus(ctx, types.StatusActive)
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}

	recovered := 0
	for _, sess := range orphans {
		r.mu.RLock()
		_, live := r.live[sess.ID]
		r.mu.RUnlock()
		if live {
			continue
		}
		if err := r.store.UpdateSession(ctx, sess.ID, types.SessionUpdate{Status: types.Ptr(types.StatusCrashed)}); err != nil {
			return recovered, err
		}
		recovered++
	}
	if recovered > 0 {
		r.logger.Info("Marked orphaned sessions as crashed", zap.Int("count", recovered))
	}
	return recovered, nil
}

// Stats summarises the live registry
func (r *Registry) Stats() types.SessionStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := types.SessionStats{ByState: make(map[types.Status]int)}
	owners := make(map[int64]struct{})
	for _, entry := range r.live {
		stats.ByState[entry.status]++
		owners[entry.owner] = struct{}{}
		if entry.proc.IsAlive() {
			stats.Live++
		}
	}
	stats.Owners = len(owners)
	return stats
}

// Shutdown terminates every live process and stops the crash watchers.
// The registry refuses new sessions afterwards.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.closing)
	entries := r.live
	r.live = make(map[string]*liveSession)
	r.mu.Unlock()

	r.logger.Info("Shutting down sessions", zap.Int("count", len(entries)))

	var wg sync.WaitGroup
	for sessionID, entry := range entries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry.proc.Terminate(r.opts.TerminateGrace)
			r.logger.Debug("Session process stopped", zap.String("session_id", sessionID))
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		r.watchers.Wait()
		close(done)
	}()

	r.updateGauge()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// watch marks the session crashed when proc exits on its own
func (r *Registry) watch(sessionID string, proc Process) {
	r.watchers.Add(1)
	go func() {
		defer r.watchers.Done()

		select {
		case <-proc.Done():
		case <-r.closing:
			return
		}

		unlock := r.locks.Lock(sessionID)
		defer unlock()

		r.mu.RLock()
		entry := r.live[sessionID]
		r.mu.RUnlock()
		if entry == nil || entry.proc != proc {
			return
		}

		code, _ := proc.ExitCode()
		r.logger.Warn("Claude Code process exited",
			zap.String("session_id", sessionID),
			zap.Int("exit_code", code))

		r.guard.RecordCrash(sessionID)
		r.markCrashed(context.Background(), sessionID)
	}()
}

// markCrashed moves an active session to crashed
func (r *Registry) markCrashed(ctx context.Context, sessionID string) {
	r.mu.Lock()
	entry := r.live[sessionID]
	running := entry != nil && (entry.status == types.StatusActive || entry.status == types.StatusPaused)
	if running {
		entry.status = types.StatusCrashed
	}
	r.mu.Unlock()

	if !running {
		return
	}

	if err := r.store.UpdateSession(ctx, sessionID, types.SessionUpdate{Status: types.Ptr(types.StatusCrashed)}); err != nil {
		r.logger.Warn("Failed to mark session crashed", zap.String("session_id", sessionID), zap.Error(err))
	}
	r.metrics.IncSessionsCrashed()
	r.updateGauge()
}

// setStatus persists a status change when the lifecycle allows it
func (r *Registry) setStatus(ctx context.Context, sess *types.Session, to types.Status) {
	if sess.Status == to || !sess.Status.CanTransition(to) {
		return
	}
	if err := r.store.UpdateSession(ctx, sess.ID, types.SessionUpdate{Status: types.Ptr(to)}); err != nil {
		r.logger.Warn("Failed to update session status",
			zap.String("session_id", sess.ID),
			zap.String("status", string(to)),
			zap.Error(err))
		return
	}
	sess.Status = to
	if to == types.StatusCrashed {
		r.metrics.IncSessionsCrashed()
	}
}

func (r *Registry) notifyStarted(sess *types.Session) {
	if r.opts.Lifecycle != nil {
		r.opts.Lifecycle.Started(sess.ID, sess.WorkspacePath)
	}
}

// detach removes and returns the live entry for sessionID
func (r *Registry) detach(sessionID string) *liveSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := r.live[sessionID]
	delete(r.live, sessionID)
	return entry
}

func (r *Registry) liveCount(owner int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, entry := range r.live {
		if entry.owner == owner && entry.proc.IsAlive() {
			n++
		}
	}
	return n
}

func (r *Registry) checkOpen() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrClosed
	}
	return nil
}

func (r *Registry) updateGauge() {
	if r.metrics == nil {
		return
	}
	r.metrics.SetSessionsLive(r.Stats().Live)
}

func ownerKey(owner int64) string {
	return "owner:" + strconv.FormatInt(owner, 10)
}

func preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
