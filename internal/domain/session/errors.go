package session

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/omnik/internal/shared/types"
)

var (
	// ErrSessionNotFound is returned when no record exists for an ID.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionTerminated is returned when an operation needs a session
	// that has already been terminated.
	ErrSessionTerminated = errors.New("session terminated")
	// ErrSessionPaused is returned when input is sent to a paused session.
	ErrSessionPaused = errors.New("session paused")
	// ErrSessionLimit is returned when an owner already has the maximum
	// number of live sessions.
	ErrSessionLimit = errors.New("session limit reached")
	// ErrNoActiveSession is returned when an owner has no active selection.
	ErrNoActiveSession = errors.New("no active session")
	// ErrClosed is returned once the registry has been shut down.
	ErrClosed = errors.New("registry closed")
	// ErrInvalidTransition is matched by every *TransitionError.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// TransitionError reports a status change the lifecycle does not allow.
type TransitionError struct {
	ID   string
	From types.Status
	To   types.Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("session %s: cannot move from %s to %s", e.ID, e.From, e.To)
}

// Is makes errors.Is(err, ErrInvalidTransition) true.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
