package api

import (
	"github.com/gin-gonic/gin"

	"github.com/sustainabilityhub/sustainabilityhub/internal/handlers"
	"github.com/sustainabilityhub/sustainabilityhub/internal/middleware"
)

func registerNotificationRoutes(engine *gin.Engine, api *gin.RouterGroup, handler *handlers.NotificationHandler) {
	// The stream authenticates its own token since browsers cannot send
	// headers on a WebSocket upgrade.
	engine.GET("/api/notifications/stream", handler.Stream)

	group := api.Group("/notifications")
	{
		group.GET("", handler.List)
		group.GET("/unread-count", handler.UnreadCount)
		group.POST("/read-all", handler.MarkAllRead)
		group.POST("/:id/read", handler.MarkRead)
		group.DELETE("/:id", handler.Delete)

		group.POST("", middleware.RequireStaff(), handler.Create)
	}
}
