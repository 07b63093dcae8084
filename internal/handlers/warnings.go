package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sustainabilityhub/sustainabilityhub/internal/models"
	"github.com/sustainabilityhub/sustainabilityhub/internal/services"
	"github.com/sustainabilityhub/sustainabilityhub/pkg/response"
)

// WarningHandler serves moderation warnings to users and administrators.
type WarningHandler struct {
	moderation *services.ModerationService
}

// NewWarningHandler constructs a WarningHandler.
func NewWarningHandler(moderation *services.ModerationService) *WarningHandler {
	return &WarningHandler{moderation: moderation}
}

type issueWarningRequest struct {
	Severity    string `json:"severity" validate:"required,oneof=low medium high critical"`
	Reason      string `json:"reason" validate:"required,max=200"`
	Description string `json:"description"`
}

type justificationRequest struct {
	Justification string `json:"justification" validate:"required"`
}

// GET /api/accounts/warnings
func (h *WarningHandler) Mine(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	warnings, err := h.moderation.MyWarnings(requestContext(c), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, warnings)
}

// POST /api/accounts/warnings/:id/justification
func (h *WarningHandler) SubmitJustification(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req justificationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	warning, err := h.moderation.SubmitJustification(requestContext(c), userID, c.Param("id"), req.Justification)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, warning)
}

// POST /api/admin/users/:id/warnings
func (h *WarningHandler) Issue(c *gin.Context) {
	admin, ok := currentUser(c)
	if !ok {
		return
	}
	var req issueWarningRequest
	if !bindAndValidate(c, &req) {
		return
	}

	warning, err := h.moderation.IssueWarning(requestContext(c), services.IssueWarningInput{
		UserID:      c.Param("id"),
		IssuedByID:  admin.ID,
		Severity:    models.WarningSeverity(req.Severity),
		Reason:      req.Reason,
		Description: req.Description,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, warning)
}

// GET /api/admin/users/:id/warnings
func (h *WarningHandler) ListForUser(c *gin.Context) {
	warnings, err := h.moderation.ListForUser(requestContext(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, warnings)
}
