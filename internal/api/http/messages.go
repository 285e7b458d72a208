package http

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"

	"github.com/GriffinCanCode/omnik/internal/api/middleware"
	"github.com/GriffinCanCode/omnik/internal/shared/types"
	"github.com/GriffinCanCode/omnik/internal/shared/utils"
)

// SendMessage forwards text to the session and returns the rendered reply
func (h *Handlers) SendMessage(c *gin.Context) {
	sess, ok := h.ownedSession(c)
	if !ok {
		return
	}
	h.send(c, sess)
}

// SendToActive forwards text to the caller's active session
func (h *Handlers) SendToActive(c *gin.Context) {
	sess, err := h.sessions.GetActiveSession(c.Request.Context(), middleware.OwnerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	h.send(c, sess)
}

func (h *Handlers) send(c *gin.Context, sess *types.Session) {
	var req types.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format")
		return
	}
	if err := utils.ValidateMessage(req.Text); err != nil {
		badRequest(c, err.Error())
		return
	}

	reply, err := h.chat.Send(c.Request.Context(), sess.OwnerID, sess.ID, req.Text, nil)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

// SelectOption answers a numbered prompt with the chosen option
func (h *Handlers) SelectOption(c *gin.Context) {
	sess, ok := h.ownedSession(c)
	if !ok {
		return
	}

	var req types.SelectOptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format")
		return
	}
	option, err := utils.ParseOption(req.Option)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	reply, err := h.chat.Select(c.Request.Context(), sess.OwnerID, sess.ID, option, nil)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

// ListMessages returns the session's stored turns, oldest first
func (h *Handlers) ListMessages(c *gin.Context) {
	sess, ok := h.ownedSession(c)
	if !ok {
		return
	}

	messages, err := h.history.GetMessages(c.Request.Context(), sess.ID, queryLimit(c, 100, 1000))
	if err != nil {
		respondError(c, err)
		return
	}
	if messages == nil {
		messages = []*types.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages, "count": len(messages)})
}

// Transcript exports the whole conversation as text (default) or JSON.
// gzip=1 compresses the download. The ETag is a digest of the uncompressed
// body.
func (h *Handlers) Transcript(c *gin.Context) {
	sess, ok := h.ownedSession(c)
	if !ok {
		return
	}

	messages, err := h.history.GetMessages(c.Request.Context(), sess.ID, 0)
	if err != nil {
		respondError(c, err)
		return
	}

	var (
		body        []byte
		contentType string
		ext         string
	)
	switch format := c.DefaultQuery("format", "text"); format {
	case "json":
		body, err = sonic.Marshal(gin.H{"session": sess, "messages": messages})
		if err != nil {
			respondError(c, err)
			return
		}
		contentType, ext = "application/json", "json"
	case "text":
		body = []byte(formatTranscript(sess, messages))
		contentType, ext = "text/plain; charset=utf-8", "txt"
	default:
		badRequest(c, fmt.Sprintf("unknown format %q", format))
		return
	}

	etag := `"` + h.hasher.Hash(body) + `"`
	c.Header("ETag", etag)
	if c.GetHeader("If-None-Match") == etag {
		c.Status(http.StatusNotModified)
		return
	}

	filename := "transcript-" + sess.ID + "." + ext
	if c.Query("gzip") != "1" {
		c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
		c.Data(http.StatusOK, contentType, body)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+filename+`.gz"`)
	c.Header("Content-Type", "application/gzip")
	c.Status(http.StatusOK)
	zw, err := gzip.NewWriterLevel(c.Writer, gzip.BestSpeed)
	if err != nil {
		_ = c.Error(err)
		return
	}
	zw.Name = filename
	zw.ModTime = sess.LastActivity
	if _, err := zw.Write(body); err != nil {
		_ = c.Error(err)
	}
	if err := zw.Close(); err != nil {
		_ = c.Error(err)
	}
}

func formatTranscript(sess *types.Session, messages []*types.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session %s (%s)\n", sess.DisplayName(), sess.ID)
	fmt.Fprintf(&b, "Workspace: %s\n", sess.WorkspacePath)
	fmt.Fprintf(&b, "Created: %s\n\n", sess.CreatedAt.Format(time.RFC3339))
	for _, m := range messages {
		fmt.Fprintf(&b, "[%s] %s:\n%s\n\n", m.Timestamp.Format(time.RFC3339), m.Role, m.Content)
	}
	return b.String()
}
