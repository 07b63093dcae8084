package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	iauth "github.com/sustainabilityhub/sustainabilityhub/internal/auth"
	"github.com/sustainabilityhub/sustainabilityhub/internal/auth/providers"
	"github.com/sustainabilityhub/sustainabilityhub/internal/middleware"
	"github.com/sustainabilityhub/sustainabilityhub/internal/models"
	"github.com/sustainabilityhub/sustainabilityhub/pkg/errors"
	"github.com/sustainabilityhub/sustainabilityhub/pkg/logger"
	"github.com/sustainabilityhub/sustainabilityhub/pkg/metrics"
	"github.com/sustainabilityhub/sustainabilityhub/pkg/response"
)

// AuthHandler manages password authentication (register/login/refresh/logout/me).
type AuthHandler struct {
	db       *gorm.DB
	local    *providers.LocalProvider
	sessions *iauth.SessionService
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, local *providers.LocalProvider, sessions *iauth.SessionService) *AuthHandler {
	return &AuthHandler{db: db, local: local, sessions: sessions}
}

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=150,username"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8"`
	Bio      string `json:"bio" validate:"max=2000"`
}

type loginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type sessionPayload struct {
	Tokens iauth.TokenPair `json:"tokens"`
	User   userPayload     `json:"user"`
}

type userPayload struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	Bio         string `json:"bio,omitempty"`
	IsActive    bool   `json:"is_active"`
	IsStaff     bool   `json:"is_staff"`
	IsSuperuser bool   `json:"is_superuser"`
}

func newUserPayload(user *models.User) userPayload {
	return userPayload{
		ID:          user.ID,
		Username:    user.Username,
		Email:       user.Email,
		Bio:         user.Bio,
		IsActive:    user.IsActive,
		IsStaff:     user.IsStaff,
		IsSuperuser: user.IsSuperuser,
	}
}

// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.local.Register(requestContext(c), providers.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Bio:      req.Bio,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, newUserPayload(user))
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	user, err := h.local.Authenticate(ctx, providers.AuthenticateInput{
		Identifier: strings.TrimSpace(req.Identifier),
		Password:   req.Password,
		IPAddress:  c.ClientIP(),
	})
	if err != nil {
		metrics.AuthAttempts.WithLabelValues(iauth.MethodPassword, "failure").Inc()
		respondError(c, err)
		return
	}

	pair, _, err := h.sessions.CreateSession(ctx, user.ID, iauth.SessionMetadata{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Method:    iauth.MethodPassword,
	})
	if err != nil {
		metrics.AuthAttempts.WithLabelValues(iauth.MethodPassword, "failure").Inc()
		respondError(c, err)
		return
	}

	metrics.AuthAttempts.WithLabelValues(iauth.MethodPassword, "success").Inc()
	response.Success(c, http.StatusOK, sessionPayload{Tokens: pair, User: newUserPayload(user)})
}

// POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	pair, session, err := h.sessions.RefreshSession(ctx, req.RefreshToken)
	if err != nil {
		respondError(c, err)
		return
	}

	var user models.User
	if err := h.db.WithContext(ctx).Select("id", "is_active").Take(&user, "id = ?", session.UserID).Error; err != nil {
		respondError(c, err)
		return
	}
	if !user.IsActive {
		if revokeErr := h.sessions.RevokeSession(ctx, session.ID); revokeErr != nil {
			logger.WithModule("auth").Warn("revoke session of inactive user failed", zap.String("session_id", session.ID), zap.Error(revokeErr))
		}
		response.Error(c, errors.ErrAccountDisabled)
		return
	}

	response.Success(c, http.StatusOK, pair)
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	sid := c.GetString(middleware.CtxSessionIDKey)
	if sid == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	if err := h.sessions.RevokeSession(requestContext(c), sid); err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, newUserPayload(user))
}
