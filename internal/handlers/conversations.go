package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sustainabilityhub/sustainabilityhub/internal/services"
	"github.com/sustainabilityhub/sustainabilityhub/pkg/response"
)

// ConversationHandler serves direct messages.
type ConversationHandler struct {
	conversations *services.ConversationService
}

// NewConversationHandler constructs a ConversationHandler.
func NewConversationHandler(conversations *services.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversations: conversations}
}

type startConversationRequest struct {
	RecipientID string `json:"recipient_id" validate:"required"`
	Content     string `json:"content"`
}

// POST /api/conversations
func (h *ConversationHandler) Start(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req startConversationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	conversation, err := h.conversations.Start(requestContext(c), services.StartConversationInput{
		SenderID:    userID,
		RecipientID: req.RecipientID,
		Content:     req.Content,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, conversation)
}

// GET /api/conversations/:id
func (h *ConversationHandler) Get(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	conversation, err := h.conversations.Get(requestContext(c), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, conversation)
}

// POST /api/conversations/:id/messages
func (h *ConversationHandler) SendMessage(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req contentRequest
	if !bindAndValidate(c, &req) {
		return
	}

	message, err := h.conversations.SendMessage(requestContext(c), services.SendMessageInput{
		ConversationID: c.Param("id"),
		SenderID:       userID,
		Content:        req.Content,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, message)
}
