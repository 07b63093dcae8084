package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/sustainabilityhub/sustainabilityhub/internal/auth"
	"github.com/sustainabilityhub/sustainabilityhub/internal/models"
	"github.com/sustainabilityhub/sustainabilityhub/internal/realtime"
	"github.com/sustainabilityhub/sustainabilityhub/internal/services"
	"github.com/sustainabilityhub/sustainabilityhub/pkg/errors"
	"github.com/sustainabilityhub/sustainabilityhub/pkg/response"
)

// NotificationHandler exposes HTTP endpoints for notifications.
type NotificationHandler struct {
	service *services.NotificationService
	hub     *realtime.Hub
	jwt     *iauth.JWTService
}

// NewNotificationHandler constructs a notification handler. hub may be nil,
// in which case the stream endpoint reports 404.
func NewNotificationHandler(service *services.NotificationService, hub *realtime.Hub, jwt *iauth.JWTService) *NotificationHandler {
	return &NotificationHandler{service: service, hub: hub, jwt: jwt}
}

type dispatchRequest struct {
	UserID  string `json:"user_id" validate:"required"`
	Kind    string `json:"kind" validate:"required"`
	Title   string `json:"title" validate:"required"`
	Message string `json:"message"`
	Link    string `json:"link" validate:"max=2048"`
}

// List returns a page of the current user's notifications, newest first.
func (h *NotificationHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	page, err := h.service.List(requestContext(c), services.ListNotificationsInput{
		UserID:     userID,
		Page:       parseIntQuery(c, "page", 1),
		PerPage:    parseIntQuery(c, "per_page", 0),
		UnreadOnly: parseBoolQuery(c, "unread"),
		Kind:       models.NotificationKind(strings.TrimSpace(c.Query("kind"))),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	meta := response.NewPageMeta(page.Page, page.PerPage, page.Total)
	meta.UnreadCount = &page.Unread
	response.SuccessWithMeta(c, http.StatusOK, page.Items, meta)
}

// UnreadCount reports the current user's unread total.
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	count, err := h.service.UnreadCount(requestContext(c), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"unread_count": count})
}

// MarkRead marks one notification read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	dto, err := h.service.MarkRead(requestContext(c), userID, strings.TrimSpace(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, dto)
}

// MarkAllRead marks all of the user's notifications read.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	updated, err := h.service.MarkAllRead(requestContext(c), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"updated": updated})
}

// Delete removes a notification.
func (h *NotificationHandler) Delete(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.service.Delete(requestContext(c), userID, strings.TrimSpace(c.Param("id"))); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// Create lets staff send a notification by hand.
func (h *NotificationHandler) Create(c *gin.Context) {
	var req dispatchRequest
	if !bindAndValidate(c, &req) {
		return
	}

	dto, err := h.service.Dispatch(requestContext(c), services.DispatchInput{
		RecipientID: req.UserID,
		Kind:        models.NotificationKind(strings.TrimSpace(req.Kind)),
		Title:       req.Title,
		Message:     req.Message,
		Link:        req.Link,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, dto)
}

// Stream upgrades the connection to a WebSocket carrying notification events.
// Browsers cannot set headers on upgrades, so the token may come as ?token=.
func (h *NotificationHandler) Stream(c *gin.Context) {
	if h.jwt == nil || h.hub == nil {
		response.Error(c, errors.ErrNotFound)
		return
	}

	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		authz := c.GetHeader("Authorization")
		if len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") {
			token = strings.TrimSpace(authz[7:])
		}
	}
	if token == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	claims, err := h.jwt.ValidateAccessToken(token)
	if err != nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	streams := []string{realtime.StreamNotifications, realtime.StreamAccount}
	h.hub.Serve(claims.UserID, streams, nil, c.Writer, c.Request)
}
