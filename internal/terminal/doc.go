// Package terminal runs one interactive program on a pseudo-terminal and turns
// its output into debounced, sanitized units.
//
// A Process owns one PTY master and one child process. Three goroutines serve
// it: a reader blocked on the PTY, a pump that sanitizes chunks and flushes
// them into a FIFO queue after a quiet period, and an exit waiter.
//
//	p := terminal.New(terminal.Config{Command: "claude", Workspace: dir})
//	pid, err := p.Start(ctx)
//	_ = p.SendInput("hello")
//	for unit := range p.ReadOutput(ctx, 60*time.Second) {
//		fmt.Println(unit)
//	}
//	p.Terminate(10 * time.Second)
package terminal
