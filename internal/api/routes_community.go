package api

import (
	"github.com/gin-gonic/gin"

	"github.com/sustainabilityhub/sustainabilityhub/internal/handlers"
)

type communityRouteDeps struct {
	Forums        *handlers.ForumHandler
	Conversations *handlers.ConversationHandler
	Projects      *handlers.ProjectHandler
	Warnings      *handlers.WarningHandler
}

func registerCommunityRoutes(api *gin.RouterGroup, deps communityRouteDeps) {
	forums := api.Group("/forums/topics")
	{
		forums.POST("", deps.Forums.CreateTopic)
		forums.GET("/:id", deps.Forums.GetTopic)
		forums.POST("/:id/posts", deps.Forums.CreatePost)
	}

	conversations := api.Group("/conversations")
	{
		conversations.POST("", deps.Conversations.Start)
		conversations.GET("/:id", deps.Conversations.Get)
		conversations.POST("/:id/messages", deps.Conversations.SendMessage)
	}

	projects := api.Group("/projects")
	{
		projects.POST("", deps.Projects.Create)
		projects.GET("/:id", deps.Projects.Get)
		projects.POST("/:id/members", deps.Projects.AddMember)
		projects.DELETE("/:id/members/:userID", deps.Projects.RemoveMember)
		projects.POST("/:id/updates", deps.Projects.PostUpdate)
	}

	api.GET("/accounts/warnings", deps.Warnings.Mine)
	api.POST("/accounts/warnings/:id/justification", deps.Warnings.SubmitJustification)
}
