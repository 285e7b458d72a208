package http

import (
	"github.com/gin-gonic/gin"
)

// Register mounts the REST routes. owner resolves the caller; messages limits
// how fast each owner may send.
func (h *Handlers) Register(router gin.IRouter, owner, messages gin.HandlerFunc) {
	router.GET("/", h.Root)
	router.GET("/health", h.Health)

	api := router.Group("/", owner)
	api.GET("/audit", h.ListAudit)
	api.POST("/messages", messages, h.SendToActive)

	sessions := api.Group("/sessions")
	sessions.POST("", h.CreateSession)
	sessions.GET("", h.ListSessions)
	sessions.GET("/active", h.GetActiveSession)
	sessions.PUT("/active", h.SetActiveSession)

	sessions.GET("/:id", h.GetSession)
	sessions.DELETE("/:id", h.TerminateSession)
	sessions.POST("/:id/restart", h.RestartSession)
	sessions.POST("/:id/pause", h.PauseSession)
	sessions.POST("/:id/resume", h.ResumeSession)

	sessions.POST("/:id/messages", messages, h.SendMessage)
	sessions.POST("/:id/select", messages, h.SelectOption)
	sessions.GET("/:id/messages", h.ListMessages)
	sessions.GET("/:id/transcript", h.Transcript)

	sessions.GET("/:id/files", h.ListFiles)
	sessions.GET("/:id/files/content", h.ReadFile)
	sessions.POST("/:id/files", h.UploadFile)
}
