package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/omnik/internal/api/middleware"
	"github.com/GriffinCanCode/omnik/internal/domain/session"
	"github.com/GriffinCanCode/omnik/internal/shared/types"
	"github.com/GriffinCanCode/omnik/internal/shared/utils"
)

// ownedSession loads the :id session and answers 404 unless the caller owns
// it.
func (h *Handlers) ownedSession(c *gin.Context) (*types.Session, bool) {
	sessionID := c.Param("id")
	if err := utils.ValidateID(sessionID, "session_id", true); err != nil {
		badRequest(c, err.Error())
		return nil, false
	}

	sess, err := h.sessions.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	if sess.OwnerID != middleware.OwnerID(c) {
		respondError(c, session.ErrSessionNotFound)
		return nil, false
	}
	return sess, true
}

// CreateSession starts a new session and makes it the caller's active one
func (h *Handlers) CreateSession(c *gin.Context) {
	var req types.CreateSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request format")
			return
		}
	}

	owner := middleware.OwnerID(c)
	name := utils.SanitizeName(req.Name)

	sess, err := h.sessions.CreateSession(c.Request.Context(), owner, name)
	h.chat.Audit(c.Request.Context(), owner, "new_session", sessionIDOf(sess), map[string]any{"name": name}, err)
	if err != nil {
		h.logger.Error("Failed to create session", zap.Int64("owner", owner), zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"session": sess})
}

// ListSessions lists the caller's sessions, newest first
func (h *Handlers) ListSessions(c *gin.Context) {
	owner := middleware.OwnerID(c)
	ctx := c.Request.Context()

	sessions, err := h.sessions.ListSessions(ctx, owner)
	if err != nil {
		respondError(c, err)
		return
	}
	if sessions == nil {
		sessions = []*types.Session{}
	}

	var activeID string
	if active, err := h.sessions.GetActiveSession(ctx, owner); err == nil {
		activeID = active.ID
	}
	h.chat.Audit(ctx, owner, "list_sessions", "", map[string]any{"count": len(sessions)}, nil)

	c.JSON(http.StatusOK, gin.H{
		"sessions":  sessions,
		"active_id": activeID,
		"count":     len(sessions),
	})
}

// GetActiveSession returns the caller's current session
func (h *Handlers) GetActiveSession(c *gin.Context) {
	sess, err := h.sessions.GetActiveSession(c.Request.Context(), middleware.OwnerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

// SetActiveSession switches the caller's current session
func (h *Handlers) SetActiveSession(c *gin.Context) {
	var req types.SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format")
		return
	}
	if err := utils.ValidateID(req.SessionID, "session_id", true); err != nil {
		badRequest(c, err.Error())
		return
	}

	owner := middleware.OwnerID(c)
	ok, err := h.sessions.SetActiveSession(c.Request.Context(), owner, req.SessionID)
	if err == nil && !ok {
		err = session.ErrSessionNotFound
	}
	h.chat.Audit(c.Request.Context(), owner, "switch_session", req.SessionID, nil, err)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "session_id": req.SessionID})
}

// GetSession returns one session
func (h *Handlers) GetSession(c *gin.Context) {
	sess, ok := h.ownedSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

// TerminateSession stops a session for good
func (h *Handlers) TerminateSession(c *gin.Context) {
	sess, ok := h.ownedSession(c)
	if !ok {
		return
	}

	found, err := h.sessions.TerminateSession(c.Request.Context(), sess.ID)
	if err == nil && !found {
		err = session.ErrSessionNotFound
	}
	h.chat.Audit(c.Request.Context(), sess.OwnerID, "kill_session", sess.ID, nil, err)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "session_id": sess.ID})
}

// RestartSession replaces a session's process
func (h *Handlers) RestartSession(c *gin.Context) {
	sess, ok := h.ownedSession(c)
	if !ok {
		return
	}

	restarted, err := h.sessions.RestartSession(c.Request.Context(), sess.ID)
	if err == nil && !restarted {
		err = session.ErrSessionNotFound
	}
	h.chat.Audit(c.Request.Context(), sess.OwnerID, "restart_session", sess.ID, nil, err)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "session_id": sess.ID})
}

// PauseSession suspends a session's process group
func (h *Handlers) PauseSession(c *gin.Context) {
	h.changeRunState(c, "pause_session", h.sessions.PauseSession)
}

// ResumeSession continues a paused session
func (h *Handlers) ResumeSession(c *gin.Context) {
	h.changeRunState(c, "resume_session", h.sessions.ResumeSession)
}

func (h *Handlers) changeRunState(c *gin.Context, action string, apply func(ctx context.Context, sessionID string) error) {
	sess, ok := h.ownedSession(c)
	if !ok {
		return
	}

	err := apply(c.Request.Context(), sess.ID)
	h.chat.Audit(c.Request.Context(), sess.OwnerID, action, sess.ID, nil, err)
	if err != nil {
		respondError(c, err)
		return
	}

	updated, err := h.sessions.GetSession(c.Request.Context(), sess.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": updated})
}

func sessionIDOf(sess *types.Session) string {
	if sess == nil {
		return ""
	}
	return sess.ID
}
