package session

import (
	"context"
	"errors"
	"iter"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/omnik/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/omnik/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/omnik/internal/shared/types"
	"github.com/GriffinCanCode/omnik/internal/storage"
	"github.com/GriffinCanCode/omnik/internal/terminal"
)

// fakeProcess stands in for a PTY process. Each input is answered with the
// units returned by respond.
type fakeProcess struct {
	cfg      terminal.Config
	startErr error
	respond  func(string) []string

	mu        sync.Mutex
	alive     bool
	pid       int
	exitCode  int
	exited    bool
	inputs    []string
	pending   []string
	suspended bool
	stops     int
	hold      chan struct{}
	done      chan struct{}
	doneOnce  sync.Once
}

func (p *fakeProcess) Start(ctx context.Context) (int, error) {
	if p.startErr != nil {
		return 0, p.startErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alive = true
	return p.pid, nil
}

func (p *fakeProcess) SendInput(text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.alive {
		return &terminal.NotRunningError{Exited: p.exited, ExitCode: p.exitCode}
	}
	p.inputs = append(p.inputs, text)
	if p.respond != nil {
		p.pending = append(p.pending, p.respond(text)...)
	}
	return nil
}

func (p *fakeProcess) ReadOutput(ctx context.Context, timeout time.Duration) iter.Seq[string] {
	return func(yield func(string) bool) {
		for {
			p.mu.Lock()
			if len(p.pending) == 0 {
				p.mu.Unlock()
				return
			}
			unit := p.pending[0]
			p.pending = p.pending[1:]
			p.mu.Unlock()
			if !yield(unit) {
				return
			}
		}
	}
}

func (p *fakeProcess) Terminate(grace time.Duration) {
	p.mu.Lock()
	p.stops++
	hold := p.hold
	p.mu.Unlock()
	if hold != nil {
		<-hold
	}
	p.exit(-15)
}

func (p *fakeProcess) Stops() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stops
}

// exit simulates the child exiting with code
func (p *fakeProcess) exit(code int) {
	p.mu.Lock()
	if p.alive {
		p.alive = false
		p.exited = true
		p.exitCode = code
	}
	p.mu.Unlock()
	p.doneOnce.Do(func() { close(p.done) })
}

func (p *fakeProcess) Suspend() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.alive {
		return &terminal.NotRunningError{}
	}
	p.suspended = true
	return nil
}

func (p *fakeProcess) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.alive {
		return &terminal.NotRunningError{}
	}
	p.suspended = false
	return nil
}

func (p *fakeProcess) IsAlive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alive
}

func (p *fakeProcess) PID() int { return p.pid }

func (p *fakeProcess) ExitCode() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode, p.exited
}

func (p *fakeProcess) Done() <-chan struct{} { return p.done }

func (p *fakeProcess) Inputs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.inputs...)
}

// fakeFactory records every process it builds
type fakeFactory struct {
	mu       sync.Mutex
	procs    []*fakeProcess
	nextPID  int
	startErr error
	respond  func(string) []string
}

func (f *fakeFactory) New(cfg terminal.Config) Process {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextPID++
	p := &fakeProcess{
		cfg:      cfg,
		pid:      1000 + f.nextPID,
		startErr: f.startErr,
		respond:  f.respond,
		done:     make(chan struct{}),
	}
	f.procs = append(f.procs, p)
	return p
}

func (f *fakeFactory) Last() *fakeProcess {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.procs[len(f.procs)-1]
}

func (f *fakeFactory) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.procs)
}

func (f *fakeFactory) Alive() []*fakeProcess {
	f.mu.Lock()
	defer f.mu.Unlock()
	var alive []*fakeProcess
	for _, p := range f.procs {
		if p.IsAlive() {
			alive = append(alive, p)
		}
	}
	return alive
}

func echo(text string) []string { return []string{"echo: " + text} }

func newTestRegistry(t *testing.T, factory *fakeFactory, tweak func(*Options)) (*Registry, *storage.DB) {
	t.Helper()

	db, err := storage.Open(context.Background(), storage.MemoryDSN, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	opts := Options{
		WorkspaceBase:  t.TempDir(),
		MaxSessions:    3,
		Command:        "claude",
		APIKey:         "sk-test",
		SendTimeout:    time.Second,
		TerminateGrace: 10 * time.Millisecond,
		NewProcess:     factory.New,
	}
	if tweak != nil {
		tweak(&opts)
	}

	reg := NewRegistry(db, opts, zap.NewNop()).WithMetrics(monitoring.NewMetrics())
	t.Cleanup(func() { reg.Shutdown(context.Background()) })
	return reg, db
}

func collect(seq iter.Seq[string]) []string {
	var out []string
	for s := range seq {
		out = append(out, s)
	}
	return out
}

func TestCreateSession(t *testing.T) {
	factory := &fakeFactory{}
	reg, db := newTestRegistry(t, factory, nil)
	ctx := context.Background()

	sess, err := reg.CreateSession(ctx, 42, "api")
	require.NoError(t, err)

	assert.Equal(t, int64(42), sess.OwnerID)
	assert.Equal(t, types.StatusActive, sess.Status)
	assert.Equal(t, factory.Last().pid, sess.PID)
	assert.Equal(t, filepath.Join(reg.opts.WorkspaceBase, sess.ID), sess.WorkspacePath)

	stored, err := db.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.PID, stored.PID)
	assert.Equal(t, types.StatusActive, stored.Status)

	active, err := reg.GetActiveSession(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, active.ID)

	cfg := factory.Last().cfg
	assert.Equal(t, sess.WorkspacePath, cfg.Workspace)
	assert.Equal(t, "1", cfg.Env["CLAUDE_TELEMETRY_OPTOUT"])
	assert.Equal(t, "sk-test", cfg.Env["ANTHROPIC_API_KEY"])
}

func TestCreateSessionLimit(t *testing.T) {
	factory := &fakeFactory{}
	reg, _ := newTestRegistry(t, factory, func(o *Options) { o.MaxSessions = 2 })
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := reg.CreateSession(ctx, 1, "")
		require.NoError(t, err)
	}

	_, err := reg.CreateSession(ctx, 1, "")
	assert.ErrorIs(t, err, ErrSessionLimit)

	_, err = reg.CreateSession(ctx, 2, "")
	assert.NoError(t, err)
}

func TestCreateSessionStartFailure(t *testing.T) {
	factory := &fakeFactory{startErr: &terminal.StartError{Op: "pty", Err: errors.New("no tty")}}
	reg, db := newTestRegistry(t, factory, nil)
	ctx := context.Background()

	_, err := reg.CreateSession(ctx, 1, "broken")
	require.Error(t, err)

	var startErr *terminal.StartError
	require.ErrorAs(t, err, &startErr)
	assert.Equal(t, "pty", startErr.Op)

	sessions, err := db.ListSessions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, types.StatusCrashed, sessions[0].Status)

	_, err = reg.GetActiveSession(ctx, 1)
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestCreateSessionStoreFailure(t *testing.T) {
	store := &mockStore{}
	store.On("CreateSession", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	factory := &fakeFactory{}
	reg := NewRegistry(store, Options{NewProcess: factory.New}, zap.NewNop())
	defer reg.Shutdown(context.Background())

	_, err := reg.CreateSession(context.Background(), 1, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 0, factory.Count())
	store.AssertExpectations(t)
}

func TestSendMessageStreamsUnits(t *testing.T) {
	factory := &fakeFactory{respond: func(text string) []string {
		return []string{"first", "second"}
	}}
	reg, db := newTestRegistry(t, factory, nil)
	ctx := context.Background()

	sess, err := reg.CreateSession(ctx, 1, "")
	require.NoError(t, err)
	before := sess.LastActivity

	time.Sleep(5 * time.Millisecond)
	units, err := reg.SendMessage(ctx, sess.ID, "hello")
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second"}, collect(units))
	assert.Equal(t, []string{"hello"}, factory.Last().Inputs())

	stored, err := db.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, stored.LastActivity.After(before))
}

func TestSendMessageNoOutput(t *testing.T) {
	factory := &fakeFactory{}
	reg, _ := newTestRegistry(t, factory, nil)
	ctx := context.Background()

	sess, err := reg.CreateSession(ctx, 1, "")
	require.NoError(t, err)

	units, err := reg.SendMessage(ctx, sess.ID, "hello")
	require.NoError(t, err)
	assert.Equal(t, []string{NoOutputMessage}, collect(units))
}

func TestSendMessageStopsWhenConsumerBreaks(t *testing.T) {
	factory := &fakeFactory{respond: func(string) []string { return []string{"a", "b", "c"} }}
	reg, _ := newTestRegistry(t, factory, nil)
	ctx := context.Background()

	sess, err := reg.CreateSession(ctx, 1, "")
	require.NoError(t, err)

	units, err := reg.SendMessage(ctx, sess.ID, "go")
	require.NoError(t, err)
	for unit := range units {
		assert.Equal(t, "a", unit)
		break
	}
}

func TestSendMessageToExitedProcess(t *testing.T) {
	factory := &fakeFactory{}
	reg, db := newTestRegistry(t, factory, nil)
	ctx := context.Background()

	sess, err := reg.CreateSession(ctx, 1, "")
	require.NoError(t, err)
	factory.Last().exit(2)

	_, err = reg.SendMessage(ctx, sess.ID, "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, terminal.ErrNotRunning)

	var nr *terminal.NotRunningError
	require.ErrorAs(t, err, &nr)
	assert.True(t, nr.Exited)
	assert.Equal(t, 2, nr.ExitCode)

	stored, err := db.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCrashed, stored.Status)
}

func TestSendMessageWithoutLiveProcess(t *testing.T) {
	factory := &fakeFactory{}
	reg, db := newTestRegistry(t, factory, nil)
	ctx := context.Background()

	now := time.Now().UTC()
	orphan := &types.Session{ID: "orphan", OwnerID: 1, Status: types.StatusActive, CreatedAt: now, LastActivity: now}
	require.NoError(t, db.CreateSession(ctx, orphan))

	_, err := reg.SendMessage(ctx, "orphan", "hello")
	assert.ErrorIs(t, err, terminal.ErrNotRunning)

	stored, err := db.GetSession(ctx, "orphan")
	require.NoError(t, err)
	assert.Equal(t, types.StatusCrashed, stored.Status)

	_, err = reg.SendMessage(ctx, "missing", "hello")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCrashWatcherMarksCrashed(t *testing.T) {
	factory := &fakeFactory{}
	reg, db := newTestRegistry(t, factory, nil)
	ctx := context.Background()

	sess, err := reg.CreateSession(ctx, 1, "")
	require.NoError(t, err)
	factory.Last().exit(1)

	assert.Eventually(t, func() bool {
		stored, err := db.GetSession(ctx, sess.ID)
		return err == nil && stored.Status == types.StatusCrashed
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint32(1), reg.guard.Counts(sess.ID).TotalFailures)
}

func TestPausedSessionCrash(t *testing.T) {
	factory := &fakeFactory{respond: echo}
	reg, db := newTestRegistry(t, factory, nil)
	ctx := context.Background()

	sess, err := reg.CreateSession(ctx, 1, "")
	require.NoError(t, err)
	require.NoError(t, reg.PauseSession(ctx, sess.ID))

	factory.Last().exit(137)

	_, err = reg.SendMessage(ctx, sess.ID, "hello")
	assert.NotErrorIs(t, err, ErrSessionPaused)
	var nr *terminal.NotRunningError
	require.ErrorAs(t, err, &nr)
	assert.True(t, nr.Exited)
	assert.Equal(t, 137, nr.ExitCode)

	assert.Eventually(t, func() bool {
		stored, err := db.GetSession(ctx, sess.ID)
		return err == nil && stored.Status == types.StatusCrashed
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, reg.Stats().ByState[types.StatusPaused])

	ok, err := reg.RestartSession(ctx, sess.ID)
	require.NoError(t, err)
	require.True(t, ok)
	units, err := reg.SendMessage(ctx, sess.ID, "hi")
	require.NoError(t, err)
	assert.Equal(t, []string{"echo: hi"}, collect(units))
}

func TestTerminateSession(t *testing.T) {
	factory := &fakeFactory{}
	reg, db := newTestRegistry(t, factory, nil)
	ctx := context.Background()

	sess, err := reg.CreateSession(ctx, 1, "")
	require.NoError(t, err)
	proc := factory.Last()

	ok, err := reg.TerminateSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, proc.IsAlive())

	stored, err := db.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusTerminated, stored.Status)

	_, err = reg.GetActiveSession(ctx, 1)
	assert.ErrorIs(t, err, ErrNoActiveSession)

	ok, err = reg.TerminateSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, proc.stops)

	ok, err = reg.TerminateSession(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	// the watcher must not overwrite the terminal status
	time.Sleep(20 * time.Millisecond)
	stored, err = db.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusTerminated, stored.Status)
}

func TestRestartSession(t *testing.T) {
	factory := &fakeFactory{respond: echo}
	reg, db := newTestRegistry(t, factory, nil)
	ctx := context.Background()

	sess, err := reg.CreateSession(ctx, 1, "")
	require.NoError(t, err)
	first := factory.Last()
	first.exit(1)

	require.Eventually(t, func() bool {
		stored, err := db.GetSession(ctx, sess.ID)
		return err == nil && stored.Status == types.StatusCrashed
	}, time.Second, 5*time.Millisecond)

	ok, err := reg.RestartSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	second := factory.Last()
	assert.NotSame(t, first, second)
	assert.Equal(t, sess.WorkspacePath, second.cfg.Workspace)

	stored, err := db.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusActive, stored.Status)
	assert.Equal(t, second.pid, stored.PID)

	units, err := reg.SendMessage(ctx, sess.ID, "again")
	require.NoError(t, err)
	assert.Equal(t, []string{"echo: again"}, collect(units))
}

func TestRestartSessionEdgeCases(t *testing.T) {
	factory := &fakeFactory{}
	reg, _ := newTestRegistry(t, factory, nil)
	ctx := context.Background()

	ok, err := reg.RestartSession(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	sess, err := reg.CreateSession(ctx, 1, "")
	require.NoError(t, err)
	_, err = reg.TerminateSession(ctx, sess.ID)
	require.NoError(t, err)

	ok, err = reg.RestartSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := reg.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusActive, got.Status)
	assert.Equal(t, factory.Last().PID(), got.PID)
	assert.True(t, factory.Last().IsAlive())
	assert.Equal(t, 2, factory.Count())
}

func TestRestartSessionCrashLoop(t *testing.T) {
	factory := &fakeFactory{}
	guard := resilience.NewGuard(resilience.Settings{MaxFailures: 2, Timeout: time.Minute})
	reg, _ := newTestRegistry(t, factory, func(o *Options) { o.Guard = guard })
	ctx := context.Background()

	sess, err := reg.CreateSession(ctx, 1, "")
	require.NoError(t, err)

	factory.Last().exit(1)
	require.Eventually(t, func() bool {
		return guard.Counts(sess.ID).TotalFailures == 1
	}, time.Second, 5*time.Millisecond)

	ok, err := reg.RestartSession(ctx, sess.ID)
	require.NoError(t, err)
	require.True(t, ok)

	factory.Last().exit(1)
	require.Eventually(t, func() bool {
		return guard.State(sess.ID) == gobreaker.StateOpen
	}, time.Second, 5*time.Millisecond)

	before := factory.Count()
	ok, err = reg.RestartSession(ctx, sess.ID)
	assert.False(t, ok)
	assert.ErrorIs(t, err, resilience.ErrCrashLoop)
	assert.Equal(t, before+1, factory.Count())
	assert.False(t, factory.Last().IsAlive())
}

func TestSetActiveSession(t *testing.T) {
	factory := &fakeFactory{}
	reg, _ := newTestRegistry(t, factory, nil)
	ctx := context.Background()

	a, err := reg.CreateSession(ctx, 1, "a")
	require.NoError(t, err)
	b, err := reg.CreateSession(ctx, 1, "b")
	require.NoError(t, err)
	other, err := reg.CreateSession(ctx, 2, "other")
	require.NoError(t, err)

	active, err := reg.GetActiveSession(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, b.ID, active.ID)

	ok, err := reg.SetActiveSession(ctx, 1, a.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = reg.SetActiveSession(ctx, 1, other.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = reg.SetActiveSession(ctx, 1, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	active, err = reg.GetActiveSession(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, a.ID, active.ID)

	list, err := reg.ListSessions(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestPauseResume(t *testing.T) {
	factory := &fakeFactory{respond: echo}
	reg, db := newTestRegistry(t, factory, nil)
	ctx := context.Background()

	sess, err := reg.CreateSession(ctx, 1, "")
	require.NoError(t, err)
	proc := factory.Last()

	require.NoError(t, reg.PauseSession(ctx, sess.ID))
	assert.True(t, proc.suspended)

	stored, err := db.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPaused, stored.Status)

	_, err = reg.SendMessage(ctx, sess.ID, "hi")
	assert.ErrorIs(t, err, ErrSessionPaused)

	err = reg.PauseSession(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, reg.ResumeSession(ctx, sess.ID))
	assert.False(t, proc.suspended)

	units, err := reg.SendMessage(ctx, sess.ID, "hi")
	require.NoError(t, err)
	assert.Equal(t, []string{"echo: hi"}, collect(units))

	stats := reg.Stats()
	assert.Equal(t, 1, stats.Live)
	assert.Equal(t, 1, stats.ByState[types.StatusActive])
}

func TestSelectOption(t *testing.T) {
	factory := &fakeFactory{}
	reg, _ := newTestRegistry(t, factory, nil)
	ctx := context.Background()

	sess, err := reg.CreateSession(ctx, 1, "")
	require.NoError(t, err)

	units, err := reg.SelectOption(ctx, sess.ID, 2)
	require.NoError(t, err)
	collect(units)
	assert.Equal(t, []string{"2"}, factory.Last().Inputs())

	_, err = reg.SelectOption(ctx, sess.ID, 0)
	assert.Error(t, err)
}

func TestRecordUsage(t *testing.T) {
	factory := &fakeFactory{}
	reg, _ := newTestRegistry(t, factory, nil)
	ctx := context.Background()

	sess, err := reg.CreateSession(ctx, 1, "")
	require.NoError(t, err)

	require.NoError(t, reg.RecordUsage(ctx, sess.ID, 100, 0.25))
	require.NoError(t, reg.RecordUsage(ctx, sess.ID, 50, 0.5))

	stored, err := reg.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(150), stored.TokenUsage)
	assert.InDelta(t, 0.75, stored.CostUSD, 1e-9)

	assert.ErrorIs(t, reg.RecordUsage(ctx, "missing", 1, 1), ErrSessionNotFound)
}

func TestReapIdle(t *testing.T) {
	factory := &fakeFactory{}
	reg, db := newTestRegistry(t, factory, nil)
	ctx := context.Background()

	stale, err := reg.CreateSession(ctx, 1, "stale")
	require.NoError(t, err)
	fresh, err := reg.CreateSession(ctx, 1, "fresh")
	require.NoError(t, err)

	old := time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, db.UpdateSession(ctx, stale.ID, types.SessionUpdate{LastActivity: &old}))

	n, err := reg.ReapIdle(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := db.GetSession(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusTerminated, got.Status)

	got, err = db.GetSession(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusActive, got.Status)

	n, err = reg.ReapIdle(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRecover(t *testing.T) {
	factory := &fakeFactory{}
	reg, db := newTestRegistry(t, factory, nil)
	ctx := context.Background()

	live, err := reg.CreateSession(ctx, 1, "")
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, db.CreateSession(ctx, &types.Session{ID: "left-over", OwnerID: 1, Status: types.StatusActive, CreatedAt: now, LastActivity: now}))

	n, err := reg.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := db.GetSession(ctx, "left-over")
	require.NoError(t, err)
	assert.Equal(t, types.StatusCrashed, got.Status)

	got, err = db.GetSession(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusActive, got.Status)
}

func TestShutdown(t *testing.T) {
	factory := &fakeFactory{}
	reg, _ := newTestRegistry(t, factory, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := reg.CreateSession(ctx, int64(i), "")
		require.NoError(t, err)
	}

	require.NoError(t, reg.Shutdown(ctx))
	for _, p := range factory.procs {
		assert.False(t, p.IsAlive())
	}
	assert.Equal(t, 0, reg.Stats().Live)

	_, err := reg.CreateSession(ctx, 1, "")
	assert.ErrorIs(t, err, ErrClosed)

	assert.NoError(t, reg.Shutdown(ctx))
}

func TestConcurrentSendsToDifferentSessions(t *testing.T) {
	factory := &fakeFactory{respond: echo}
	reg, _ := newTestRegistry(t, factory, func(o *Options) { o.MaxSessions = 0 })
	ctx := context.Background()

	ids := make([]string, 5)
	for i := range ids {
		sess, err := reg.CreateSession(ctx, 1, "")
		require.NoError(t, err)
		ids[i] = sess.ID
	}

	var wg sync.WaitGroup
	for _, sessionID := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			units, err := reg.SendMessage(ctx, sessionID, sessionID)
			if assert.NoError(t, err) {
				assert.Equal(t, []string{"echo: " + sessionID}, collect(units))
			}
		}()
	}
	wg.Wait()
}

func TestConcurrentRestartsSameSession(t *testing.T) {
	factory := &fakeFactory{}
	reg, db := newTestRegistry(t, factory, nil)
	ctx := context.Background()

	sess, err := reg.CreateSession(ctx, 1, "")
	require.NoError(t, err)

	const restarts = 20
	var wg sync.WaitGroup
	for range restarts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := reg.RestartSession(ctx, sess.ID)
			assert.NoError(t, err)
			assert.True(t, ok)
		}()
	}
	wg.Wait()

	assert.Equal(t, restarts+1, factory.Count())
	alive := factory.Alive()
	require.Len(t, alive, 1)

	stored, err := db.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusActive, stored.Status)
	assert.Equal(t, alive[0].PID(), stored.PID)
	assert.Equal(t, 1, reg.Stats().Live)
}

func TestSlowTerminateDoesNotBlockOtherSessions(t *testing.T) {
	factory := &fakeFactory{respond: echo}
	reg, _ := newTestRegistry(t, factory, func(o *Options) { o.MaxSessions = 0 })
	ctx := context.Background()

	slow, err := reg.CreateSession(ctx, 1, "")
	require.NoError(t, err)
	slowProc := factory.Last()
	other, err := reg.CreateSession(ctx, 1, "")
	require.NoError(t, err)

	release := make(chan struct{})
	slowProc.mu.Lock()
	slowProc.hold = release
	slowProc.mu.Unlock()

	terminated := make(chan struct{})
	go func() {
		defer close(terminated)
		_, err := reg.TerminateSession(ctx, slow.ID)
		assert.NoError(t, err)
	}()
	require.Eventually(t, func() bool { return slowProc.Stops() == 1 }, time.Second, 5*time.Millisecond)

	progressed := make(chan struct{})
	go func() {
		defer close(progressed)
		units, err := reg.SendMessage(ctx, other.ID, "hi")
		if assert.NoError(t, err) {
			assert.Equal(t, []string{"echo: hi"}, collect(units))
		}
		_, err = reg.CreateSession(ctx, 2, "")
		assert.NoError(t, err)
	}()

	select {
	case <-progressed:
	case <-time.After(2 * time.Second):
		t.Fatal("other sessions blocked behind a slow terminate")
	}

	select {
	case <-terminated:
		t.Fatal("terminate returned before the process stopped")
	default:
	}
	close(release)
	<-terminated
}

// mockStore is a testify mock of Store
type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateSession(ctx context.Context, sess *types.Session) error {
	return m.Called(ctx, sess).Error(0)
}

func (m *mockStore) GetSession(ctx context.Context, id string) (*types.Session, error) {
	args := m.Called(ctx, id)
	sess, _ := args.Get(0).(*types.Session)
	return sess, args.Error(1)
}

func (m *mockStore) ListSessions(ctx context.Context, owner int64) ([]*types.Session, error) {
	args := m.Called(ctx, owner)
	list, _ := args.Get(0).([]*types.Session)
	return list, args.Error(1)
}

func (m *mockStore) ListSessionsByStatus(ctx context.Context, statuses ...types.Status) ([]*types.Session, error) {
	args := m.Called(ctx, statuses)
	list, _ := args.Get(0).([]*types.Session)
	return list, args.Error(1)
}

func (m *mockStore) UpdateSession(ctx context.Context, id string, upd types.SessionUpdate) error {
	return m.Called(ctx, id, upd).Error(0)
}

func TestGetSessionPropagatesStoreErrors(t *testing.T) {
	store := &mockStore{}
	store.On("GetSession", mock.Anything, "gone").Return(nil, storage.ErrNotFound)
	store.On("GetSession", mock.Anything, "broken").Return(nil, errors.New("io"))

	reg := NewRegistry(store, Options{}, nil)
	defer reg.Shutdown(context.Background())

	_, err := reg.GetSession(context.Background(), "gone")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = reg.GetSession(context.Background(), "broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionNotFound)

	ok, err := reg.TerminateSession(context.Background(), "broken")
	assert.False(t, ok)
	assert.Error(t, err)
}

type mockLifecycle struct {
	mock.Mock
}

func (m *mockLifecycle) Started(sessionID, workspace string) { m.Called(sessionID, workspace) }
func (m *mockLifecycle) Stopped(sessionID string)            { m.Called(sessionID) }

func TestLifecycleHooks(t *testing.T) {
	lc := &mockLifecycle{}
	lc.On("Started", mock.Anything, mock.Anything).Return()
	lc.On("Stopped", mock.Anything).Return()

	factory := &fakeFactory{}
	reg, _ := newTestRegistry(t, factory, func(o *Options) { o.Lifecycle = lc })
	ctx := context.Background()

	sess, err := reg.CreateSession(ctx, 1, "")
	require.NoError(t, err)
	lc.AssertCalled(t, "Started", sess.ID, sess.WorkspacePath)

	ok, err := reg.RestartSession(ctx, sess.ID)
	require.NoError(t, err)
	require.True(t, ok)
	lc.AssertNumberOfCalls(t, "Started", 2)
	lc.AssertNotCalled(t, "Stopped", sess.ID)

	ok, err = reg.TerminateSession(ctx, sess.ID)
	require.NoError(t, err)
	require.True(t, ok)
	lc.AssertCalled(t, "Stopped", sess.ID)
}
