package http

import (
	"net/http"
	"path"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/omnik/internal/shared/utils"
)

const uploadField = "file"

// ListFiles lists a workspace directory, or the matches of a glob under it
func (h *Handlers) ListFiles(c *gin.Context) {
	sess, ok := h.ownedSession(c)
	if !ok {
		return
	}

	dir := c.Query("path")
	if err := utils.ValidatePath(dir); err != nil {
		badRequest(c, err.Error())
		return
	}

	info, err := h.files.List(c.Request.Context(), sess.ID, dir, c.Query("glob"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// ReadFile returns a workspace file's content
func (h *Handlers) ReadFile(c *gin.Context) {
	sess, ok := h.ownedSession(c)
	if !ok {
		return
	}

	rel := c.Query("path")
	if rel == "" {
		badRequest(c, "path is required")
		return
	}
	if err := utils.ValidatePath(rel); err != nil {
		badRequest(c, err.Error())
		return
	}

	content, err := h.files.Read(c.Request.Context(), sess.ID, rel)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, content)
}

// UploadFile stores a multipart upload in the workspace. The optional path
// form field names the target directory.
func (h *Handlers) UploadFile(c *gin.Context) {
	sess, ok := h.ownedSession(c)
	if !ok {
		return
	}

	header, err := c.FormFile(uploadField)
	if err != nil {
		badRequest(c, "multipart field \"file\" is required")
		return
	}
	dir := c.PostForm("path")
	if err := utils.ValidatePath(dir); err != nil {
		badRequest(c, err.Error())
		return
	}
	name := filepath.Base(header.Filename)
	if name == "." || name == string(filepath.Separator) {
		badRequest(c, "invalid file name")
		return
	}

	f, err := header.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer f.Close()

	rel := path.Join(dir, name)
	entry, err := h.files.Write(c.Request.Context(), sess.ID, rel, f)
	h.chat.Audit(c.Request.Context(), sess.OwnerID, "file_upload", sess.ID,
		map[string]any{"path": rel, "size": header.Size}, err)
	if err != nil {
		h.logger.Error("Failed to upload file",
			zap.String("session_id", sess.ID),
			zap.String("path", rel),
			zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"file": entry})
}
