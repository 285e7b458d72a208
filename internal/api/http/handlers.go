package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/omnik/internal/api/middleware"
	"github.com/GriffinCanCode/omnik/internal/domain/chat"
	"github.com/GriffinCanCode/omnik/internal/domain/workspace"
	"github.com/GriffinCanCode/omnik/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/omnik/internal/shared/types"
	"github.com/GriffinCanCode/omnik/internal/shared/utils"
)

const (
	serviceName    = "omnik"
	serviceVersion = "1.0.0"
)

// SessionService is the session registry as seen by the handlers.
type SessionService interface {
	CreateSession(ctx context.Context, owner int64, name string) (*types.Session, error)
	GetSession(ctx context.Context, sessionID string) (*types.Session, error)
	ListSessions(ctx context.Context, owner int64) ([]*types.Session, error)
	GetActiveSession(ctx context.Context, owner int64) (*types.Session, error)
	SetActiveSession(ctx context.Context, owner int64, sessionID string) (bool, error)
	TerminateSession(ctx context.Context, sessionID string) (bool, error)
	RestartSession(ctx context.Context, sessionID string) (bool, error)
	PauseSession(ctx context.Context, sessionID string) error
	ResumeSession(ctx context.Context, sessionID string) error
	Stats() types.SessionStats
}

// HistoryStore reads stored transcripts and audit records.
type HistoryStore interface {
	GetMessages(ctx context.Context, sessionID string, limit int) ([]*types.Message, error)
	GetAuditLogs(ctx context.Context, owner int64, limit int) ([]*types.AuditLog, error)
	Ping(ctx context.Context) error
}

// Deps holds the collaborators of Handlers.
type Deps struct {
	Sessions SessionService
	Chat     *chat.Service
	History  HistoryStore
	Files    *workspace.Manager
	Metrics  *monitoring.Metrics
	Logger   *zap.Logger
}

// Handlers contains all HTTP handlers
type Handlers struct {
	sessions  SessionService
	chat      *chat.Service
	history   HistoryStore
	files     *workspace.Manager
	metrics   *monitoring.Metrics
	hasher    *utils.Hasher
	logger    *zap.Logger
	startedAt time.Time
}

// NewHandlers creates a new handler set
func NewHandlers(d Deps) *Handlers {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		sessions:  d.Sessions,
		chat:      d.Chat,
		history:   d.History,
		files:     d.Files,
		metrics:   d.Metrics,
		hasher:    utils.DefaultHasher(),
		logger:    logger.Named("http"),
		startedAt: time.Now(),
	}
}

// Root identifies the service
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": serviceName,
		"version": serviceVersion,
	})
}

// Health reports database reachability and session counts
func (h *Handlers) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status, code := "healthy", http.StatusOK
	database := gin.H{"connected": true}
	if err := h.history.Ping(ctx); err != nil {
		status, code = "degraded", http.StatusServiceUnavailable
		database = gin.H{"connected": false, "error": err.Error()}
	}

	c.JSON(code, gin.H{
		"status":         status,
		"sessions":       h.sessions.Stats(),
		"database":       database,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	})
}

// ListAudit returns the caller's audit trail, newest first
func (h *Handlers) ListAudit(c *gin.Context) {
	limit := queryLimit(c, 100, 1000)
	logs, err := h.history.GetAuditLogs(c.Request.Context(), middleware.OwnerID(c), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": logs, "count": len(logs)})
}
