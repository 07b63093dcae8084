package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sustainabilityhub/sustainabilityhub/internal/services"
	"github.com/sustainabilityhub/sustainabilityhub/pkg/response"
)

const (
	defaultPerPage = 25
	maxPerPage     = 100
)

// AdminUserHandler serves the superuser user-management endpoints.
type AdminUserHandler struct {
	users *services.UserService
}

// NewAdminUserHandler constructs an AdminUserHandler.
func NewAdminUserHandler(users *services.UserService) *AdminUserHandler {
	return &AdminUserHandler{users: users}
}

// GET /api/admin/users?q=&status=&page=&per_page=
func (h *AdminUserHandler) List(c *gin.Context) {
	page := parseIntQuery(c, "page", 1)
	perPage := parseIntQuery(c, "per_page", defaultPerPage)
	ctx := requestContext(c)

	users, total, err := h.users.List(ctx, services.ListUsersOptions{
		Page:     page,
		PageSize: perPage,
		Filters: services.UserFilters{
			Query:  strings.TrimSpace(c.Query("q")),
			Status: strings.TrimSpace(c.Query("status")),
		},
	})
	if err != nil {
		respondError(c, err)
		return
	}

	counts, err := h.users.StatusCounts(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	response.SuccessWithMeta(c, http.StatusOK, gin.H{
		"users":  users,
		"counts": counts,
	}, response.NewPageMeta(page, perPage, total))
}

// POST /api/admin/users/:id/toggle-status
func (h *AdminUserHandler) ToggleStatus(c *gin.Context) {
	user, err := h.users.ToggleStatus(requestContext(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"id":        user.ID,
		"username":  user.Username,
		"is_active": user.IsActive,
	})
}
