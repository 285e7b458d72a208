package terminal

import (
	"errors"
	"fmt"
)

// ErrNotRunning is matched by every *NotRunningError.
var ErrNotRunning = errors.New("process not running")

// StartError reports a failure to launch the process.
type StartError struct {
	Op  string
	Err error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("failed to start process (%s): %v", e.Op, e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}

// NotRunningError reports an operation on a process that was never started
// or has exited. ExitCode is meaningful only when Exited is true.
type NotRunningError struct {
	Exited   bool
	ExitCode int
}

func (e *NotRunningError) Error() string {
	if e.Exited {
		return fmt.Sprintf("process not running (exit code: %d)", e.ExitCode)
	}
	return "process not running (exit code: unknown)"
}

// Is makes errors.Is(err, ErrNotRunning) true.
func (e *NotRunningError) Is(target error) bool {
	return target == ErrNotRunning
}
