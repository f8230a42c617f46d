package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ammar1510/docconnect/internal/metrics"
)

// Handlers bundles every REST handler served under /api
type Handlers struct {
	Auth          *AuthHandler
	Conversations *ConversationHandler
	Messages      *MessageHandler
	Notifications *NotificationHandler
	Presence      *PresenceHandler
}

// RegisterRoutes mounts the public and protected routes on router
func RegisterRoutes(router *gin.Engine, h Handlers) {
	// Public routes (no authentication required)
	router.POST("/api/auth/register", h.Auth.Register)
	router.POST("/api/auth/login", h.Auth.Login)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", metrics.Handler())

	// Protected routes (authentication required)
	authorized := router.Group("/api")
	authorized.Use(AuthMiddleware())
	{
		authorized.GET("/auth/me", h.Auth.GetMe)
		authorized.GET("/users", h.Auth.GetAllUsers)

		conversations := authorized.Group("/conversations")
		conversations.GET("", h.Conversations.List)
		conversations.POST("", h.Conversations.Create)
		conversations.GET("/:id", h.Conversations.Get)
		conversations.PUT("/:id/archive", h.Conversations.ToggleArchive)
		conversations.PUT("/:id/mute", h.Conversations.ToggleMute)
		conversations.PUT("/:id/read", h.Conversations.MarkRead)
		conversations.GET("/:id/messages", h.Messages.List)
		conversations.POST("/:id/messages", h.Messages.Send)

		messages := authorized.Group("/messages")
		messages.PUT("/delivered", h.Messages.MarkDelivered)
		messages.PUT("/read", h.Messages.MarkRead)
		messages.PUT("/:id", h.Messages.Edit)
		messages.DELETE("/:id", h.Messages.Delete)

		authorized.GET("/notifications", h.Notifications.List)
		authorized.PUT("/notifications/read", h.Notifications.MarkRead)

		authorized.PUT("/presence/status", h.Presence.SetStatus)
		authorized.GET("/presence/:userID", h.Presence.Get)
	}
}
