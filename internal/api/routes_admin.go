package api

import (
	"github.com/gin-gonic/gin"

	"github.com/sustainabilityhub/sustainabilityhub/internal/handlers"
	"github.com/sustainabilityhub/sustainabilityhub/internal/middleware"
)

type adminRouteDeps struct {
	Users    *handlers.AdminUserHandler
	Warnings *handlers.WarningHandler
	Health   *handlers.HealthHandler
}

func registerAdminRoutes(api *gin.RouterGroup, deps adminRouteDeps) {
	admin := api.Group("/admin")
	admin.Use(middleware.RequireSuperuser())
	{
		admin.GET("/users", deps.Users.List)
		admin.POST("/users/:id/toggle-status", deps.Users.ToggleStatus)
		admin.GET("/users/:id/warnings", deps.Warnings.ListForUser)
		admin.POST("/users/:id/warnings", deps.Warnings.Issue)
		admin.GET("/maintenance", deps.Health.Maintenance)
	}
}
