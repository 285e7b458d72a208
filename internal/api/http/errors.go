package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/omnik/internal/domain/session"
	"github.com/GriffinCanCode/omnik/internal/domain/workspace"
	"github.com/GriffinCanCode/omnik/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/omnik/internal/shared/paths"
	"github.com/GriffinCanCode/omnik/internal/terminal"
)

// StatusFor maps domain errors onto HTTP status codes. Start failures and
// anything unrecognised are 500.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrNoActiveSession),
		errors.Is(err, workspace.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, terminal.ErrNotRunning),
		errors.Is(err, session.ErrSessionTerminated),
		errors.Is(err, session.ErrSessionPaused),
		errors.Is(err, session.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, session.ErrSessionLimit):
		return http.StatusTooManyRequests
	case errors.Is(err, resilience.ErrCrashLoop),
		errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, workspace.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, workspace.ErrIsDirectory),
		errors.Is(err, paths.ErrOutsideRoot):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// respondError writes err with its mapped status and attaches it to the
// context for the request logger.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(StatusFor(err), gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func queryLimit(c *gin.Context, def, max int) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil || n <= 0 {
		return def
	}
	return min(n, max)
}
