// Package sessiontest provides an in-memory stand-in for the Claude Code
// process so that the HTTP and WebSocket surfaces can be tested against a
// real session.Registry.
package sessiontest

import (
	"context"
	"iter"
	"sync"
	"time"

	"github.com/GriffinCanCode/omnik/internal/domain/session"
	"github.com/GriffinCanCode/omnik/internal/terminal"
)

// Responder maps one input to the output units it produces.
type Responder func(input string) []string

// Echo answers every input with "echo: <input>".
func Echo(input string) []string { return []string{"echo: " + input} }

// Process answers input through a Responder.
type Process struct {
	respond Responder
	pid     int
	done    chan struct{}
	once    sync.Once

	mu      sync.Mutex
	alive   bool
	paused  bool
	code    int
	exited  bool
	inputs  []string
	pending []string
}

// Start marks the process alive.
func (p *Process) Start(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alive = true
	return p.pid, nil
}

func (p *Process) SendInput(text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.alive {
		return &terminal.NotRunningError{Exited: p.exited, ExitCode: p.code}
	}
	p.inputs = append(p.inputs, text)
	if p.respond != nil {
		p.pending = append(p.pending, p.respond(text)...)
	}
	return nil
}

// ReadOutput drains the units queued by earlier input.
func (p *Process) ReadOutput(ctx context.Context, timeout time.Duration) iter.Seq[string] {
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

func (p *Process) Terminate(grace time.Duration) { p.Exit(-15) }

// Exit simulates the child exiting with code.
func (p *Process) Exit(code int) {
	p.mu.Lock()
	if p.alive {
		p.alive, p.exited, p.code = false, true, code
	}
	p.mu.Unlock()
	p.once.Do(func() { close(p.done) })
}

func (p *Process) Suspend() error { return p.setPaused(true) }

func (p *Process) Resume() error { return p.setPaused(false) }

func (p *Process) setPaused(v bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.alive {
		return &terminal.NotRunningError{}
	}
	p.paused = v
	return nil
}

func (p *Process) IsAlive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alive
}

func (p *Process) PID() int { return p.pid }

func (p *Process) ExitCode() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.code, p.exited
}

func (p *Process) Done() <-chan struct{} { return p.done }

// Inputs returns every input written so far.
func (p *Process) Inputs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.inputs...)
}

// Paused reports whether the process is suspended.
func (p *Process) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Factory builds Processes and remembers them.
type Factory struct {
	Respond Responder

	mu    sync.Mutex
	procs []*Process
}

// NewFactory returns a factory whose processes answer through respond.
func NewFactory(respond Responder) *Factory {
	return &Factory{Respond: respond}
}

// New satisfies session.ProcessFactory.
func (f *Factory) New(cfg terminal.Config) session.Process {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &Process{
		respond: f.Respond,
		pid:     2000 + len(f.procs),
		done:    make(chan struct{}),
	}
	f.procs = append(f.procs, p)
	return p
}

// Last returns the most recently built process, or nil.
func (f *Factory) Last() *Process {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.procs) == 0 {
		return nil
	}
	return f.procs[len(f.procs)-1]
}

var _ session.Process = (*Process)(nil)
