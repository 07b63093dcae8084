package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sustainabilityhub/sustainabilityhub/internal/services"
	"github.com/sustainabilityhub/sustainabilityhub/pkg/response"
)

// ForumHandler serves forum topics and replies.
type ForumHandler struct {
	forums *services.ForumService
}

// NewForumHandler constructs a ForumHandler.
func NewForumHandler(forums *services.ForumService) *ForumHandler {
	return &ForumHandler{forums: forums}
}

type createTopicRequest struct {
	Title   string `json:"title" validate:"required,max=200"`
	Content string `json:"content" validate:"required"`
}

type contentRequest struct {
	Content string `json:"content" validate:"required"`
}

// POST /api/forums/topics
func (h *ForumHandler) CreateTopic(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req createTopicRequest
	if !bindAndValidate(c, &req) {
		return
	}

	topic, err := h.forums.CreateTopic(requestContext(c), services.CreateTopicInput{
		AuthorID: userID,
		Title:    req.Title,
		Content:  req.Content,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, topic)
}

// GET /api/forums/topics/:id
func (h *ForumHandler) GetTopic(c *gin.Context) {
	topic, err := h.forums.GetTopic(requestContext(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, topic)
}

// POST /api/forums/topics/:id/posts
func (h *ForumHandler) CreatePost(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req contentRequest
	if !bindAndValidate(c, &req) {
		return
	}

	post, err := h.forums.CreatePost(requestContext(c), services.CreatePostInput{
		TopicID:  c.Param("id"),
		AuthorID: userID,
		Content:  req.Content,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, post)
}
