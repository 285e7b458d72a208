package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Default PTY dimensions.
const (
	DefaultCols = 120
	DefaultRows = 40
)

// Config describes the program a Process runs.
type Config struct {
	SessionID string
	Command   string
	Args      []string
	Workspace string
	// Env entries override the inherited environment.
	Env    map[string]string
	Cols   uint16
	Rows   uint16
	Logger *zap.Logger
	// OnFlush, when set, is called from the pump for every emitted unit.
	OnFlush func(reason FlushReason, size int)
}

// Process is one program running on a PTY. All methods are safe for
// concurrent use.
type Process struct {
	cfg     Config
	logger  *zap.Logger
	onFlush func(FlushReason, int)
	queue   *queue

	mu       sync.RWMutex
	cmd      *exec.Cmd
	ptmx     *os.File
	started  bool
	exitCode int
	cancel   context.CancelFunc

	writeMu   sync.Mutex
	exited    chan struct{}
	pumpDone  chan struct{}
	ptyClosed chan struct{}
	closeOnce sync.Once
}

// New prepares a Process. Nothing runs until Start.
func New(cfg Config) *Process {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Cols == 0 {
		cfg.Cols = DefaultCols
	}
	if cfg.Rows == 0 {
		cfg.Rows = DefaultRows
	}
	return &Process{
		cfg:       cfg,
		logger:    logger.With(zap.String("session_id", cfg.SessionID)),
		onFlush:   cfg.OnFlush,
		queue:     newQueue(),
		exited:    make(chan struct{}),
		pumpDone:  make(chan struct{}),
		ptyClosed: make(chan struct{}),
	}
}

// Start creates the workspace, launches the program on a new PTY in its own
// session and process group, and starts the background goroutines.
func (p *Process) Start(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, &StartError{Op: "context", Err: err}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return 0, &StartError{Op: "start", Err: errors.New("process already started")}
	}

	if err := os.MkdirAll(p.cfg.Workspace, 0o755); err != nil {
		return 0, &StartError{Op: "workspace", Err: err}
	}

	cmd := exec.Command(p.cfg.Command, p.cfg.Args...)
	cmd.Dir = p.cfg.Workspace
	cmd.Env = MergeEnv(os.Environ(), p.cfg.Env)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: p.cfg.Cols, Rows: p.cfg.Rows})
	if err != nil {
		return 0, &StartError{Op: "pty", Err: err}
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	p.cmd = cmd
	p.ptmx = ptmx
	p.cancel = cancel
	p.started = true

	chunks := make(chan []byte)
	go p.readLoop(chunks)
	go p.pump(pumpCtx, chunks)
	go p.wait()

	p.logger.Info("Process started",
		zap.Int("pid", cmd.Process.Pid),
		zap.String("command", p.cfg.Command),
		zap.String("workspace", p.cfg.Workspace),
	)
	return cmd.Process.Pid, nil
}

// wait reaps the child and records its exit code. A signal death is reported
// as the negated signal number.
func (p *Process) wait() {
	err := p.cmd.Wait()

	code := p.cmd.ProcessState.ExitCode()
	if ws, ok := p.cmd.ProcessState.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		code = -int(ws.Signal())
	}

	p.mu.Lock()
	p.exitCode = code
	p.mu.Unlock()
	close(p.exited)

	p.logger.Info("Process exited", zap.Int("exit_code", code), zap.NamedError("wait_error", err))

	// The pump drains the tail of the output before stopping.
	<-p.pumpDone
	p.closePTY()
}

// closePTY releases the PTY master once the pump no longer reads from it.
func (p *Process) closePTY() {
	p.closeOnce.Do(func() {
		if err := p.ptmx.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			p.logger.Debug("PTY close failed", zap.Error(err))
		}
		close(p.ptyClosed)
	})
}

// SendInput writes text followed by a newline.
func (p *Process) SendInput(text string) error {
	return p.write([]byte(text + "\n"))
}

// SendKeys writes raw bytes without a trailing newline.
func (p *Process) SendKeys(keys []byte) error {
	return p.write(keys)
}

func (p *Process) write(b []byte) error {
	if err := p.notRunning(); err != nil {
		return err
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if _, err := p.ptmx.Write(b); err != nil {
		if errors.Is(err, os.ErrClosed) || errors.Is(err, unix.EIO) {
			return p.notRunning()
		}
		return fmt.Errorf("failed to write to PTY: %w", err)
	}
	return nil
}

// notRunning returns a *NotRunningError, or nil while the process is alive.
func (p *Process) notRunning() error {
	p.mu.RLock()
	started := p.started
	p.mu.RUnlock()

	if !started {
		return &NotRunningError{}
	}
	if code, exited := p.ExitCode(); exited {
		return &NotRunningError{Exited: true, ExitCode: code}
	}
	return nil
}

// ReadOutput yields queued units in order. The sequence ends when timeout
// elapses, ctx is done, or the process has exited and every unit has been
// consumed. A timeout of zero or less waits on ctx alone.
func (p *Process) ReadOutput(ctx context.Context, timeout time.Duration) iter.Seq[string] {
	return func(yield func(string) bool) {
		p.mu.RLock()
		started := p.started
		p.mu.RUnlock()

		var deadline <-chan time.Time
		if timeout > 0 {
			t := time.NewTimer(timeout)
			defer t.Stop()
			deadline = t.C
		}

		for {
			for {
				unit, ok := p.queue.pop()
				if !ok {
					break
				}
				if !yield(unit) {
					return
				}
			}

			if !started || p.pumpStopped() {
				if p.queue.len() == 0 {
					return
				}
				continue
			}

			select {
			case <-p.queue.ready:
			case <-p.pumpDone:
			case <-deadline:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

func (p *Process) pumpStopped() bool {
	select {
	case <-p.pumpDone:
		return true
	default:
		return false
	}
}

// Terminate stops the process group with SIGTERM, escalating to SIGKILL after
// grace, then stops the pump and closes the PTY. It is idempotent and safe to
// call on a process that never started.
func (p *Process) Terminate(grace time.Duration) {
	p.mu.RLock()
	started := p.started
	p.mu.RUnlock()
	if !started {
		return
	}

	if p.IsAlive() {
		p.signalGroup(unix.SIGTERM)
		// A stopped group cannot act on SIGTERM until continued.
		p.signalGroup(unix.SIGCONT)

		timer := time.NewTimer(grace)
		select {
		case <-p.exited:
			timer.Stop()
			p.logger.Info("Process terminated gracefully")
		case <-timer.C:
			p.logger.Warn("Process did not exit within grace period, killing", zap.Duration("grace", grace))
			p.signalGroup(unix.SIGKILL)
			<-p.exited
		}
	}

	p.cancel()
	<-p.pumpDone
	p.closePTY()
}

// Suspend stops the process group.
func (p *Process) Suspend() error {
	return p.signalAlive(unix.SIGSTOP)
}

// Resume continues a suspended process group.
func (p *Process) Resume() error {
	return p.signalAlive(unix.SIGCONT)
}

func (p *Process) signalAlive(sig unix.Signal) error {
	if err := p.notRunning(); err != nil {
		return err
	}
	if err := p.signalGroup(sig); err != nil {
		return fmt.Errorf("failed to send %s: %w", sig, err)
	}
	return nil
}

// signalGroup signals the whole process group; the leader's PID is the
// group ID because the child runs in its own session.
func (p *Process) signalGroup(sig unix.Signal) error {
	pid := p.PID()
	if pid <= 0 {
		return &NotRunningError{}
	}
	err := unix.Kill(-pid, sig)
	if err != nil && !errors.Is(err, unix.ESRCH) {
		p.logger.Warn("Failed to signal process group", zap.Stringer("signal", sig), zap.Error(err))
		return err
	}
	return nil
}

// Resize changes the PTY window size.
func (p *Process) Resize(cols, rows uint16) error {
	if err := p.notRunning(); err != nil {
		return err
	}
	return pty.Setsize(p.ptmx, &pty.Winsize{Cols: cols, Rows: rows})
}

// IsAlive reports whether the process has started and not yet exited.
func (p *Process) IsAlive() bool {
	return p.notRunning() == nil
}

// PID returns the process ID, or 0 before Start.
func (p *Process) PID() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// ExitCode returns the exit code once the process has exited.
func (p *Process) ExitCode() (int, bool) {
	select {
	case <-p.exited:
		p.mu.RLock()
		defer p.mu.RUnlock()
		return p.exitCode, true
	default:
		return 0, false
	}
}

// Done is closed when the process exits.
func (p *Process) Done() <-chan struct{} {
	return p.exited
}

// Pending returns the number of queued, unread units.
func (p *Process) Pending() int {
	return p.queue.len()
}

var _ io.Writer = (*inputWriter)(nil)

// inputWriter adapts SendKeys to io.Writer.
type inputWriter struct{ p *Process }

func (w *inputWriter) Write(b []byte) (int, error) {
	if err := w.p.SendKeys(b); err != nil {
		return 0, err
	}
	return len(b), nil
}

// Input returns an io.Writer that forwards raw bytes to the program.
func (p *Process) Input() io.Writer {
	return &inputWriter{p: p}
}
