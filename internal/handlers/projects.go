package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sustainabilityhub/sustainabilityhub/internal/models"
	"github.com/sustainabilityhub/sustainabilityhub/internal/services"
	"github.com/sustainabilityhub/sustainabilityhub/pkg/response"
)

// ProjectHandler serves community projects.
type ProjectHandler struct {
	projects *services.ProjectService
}

// NewProjectHandler constructs a ProjectHandler.
func NewProjectHandler(projects *services.ProjectService) *ProjectHandler {
	return &ProjectHandler{projects: projects}
}

type createProjectRequest struct {
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description"`
	Status      string     `json:"status" validate:"omitempty,oneof=planning active completed on_hold"`
	Tags        []string   `json:"tags" validate:"max=20"`
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
}

type addMemberRequest struct {
	// UserID defaults to the caller, i.e. joining the project.
	UserID string `json:"user_id"`
}

// POST /api/projects
func (h *ProjectHandler) Create(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req createProjectRequest
	if !bindAndValidate(c, &req) {
		return
	}

	project, err := h.projects.Create(requestContext(c), services.CreateProjectInput{
		CreatorID:   userID,
		Title:       req.Title,
		Description: req.Description,
		Status:      models.ProjectStatus(req.Status),
		Tags:        req.Tags,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, project)
}

// GET /api/projects/:id
func (h *ProjectHandler) Get(c *gin.Context) {
	project, err := h.projects.Get(requestContext(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, project)
}

// POST /api/projects/:id/members
func (h *ProjectHandler) AddMember(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req addMemberRequest
	if c.Request.ContentLength > 0 && !bindAndValidate(c, &req) {
		return
	}
	memberID := strings.TrimSpace(req.UserID)
	if memberID == "" {
		memberID = user.ID
	}

	if err := h.projects.AddMember(requestContext(c), user, c.Param("id"), memberID); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"project_id": c.Param("id"), "user_id": memberID})
}

// DELETE /api/projects/:id/members/:userID
func (h *ProjectHandler) RemoveMember(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.projects.RemoveMember(requestContext(c), user, c.Param("id"), c.Param("userID")); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"removed": true})
}

// POST /api/projects/:id/updates
func (h *ProjectHandler) PostUpdate(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req contentRequest
	if !bindAndValidate(c, &req) {
		return
	}

	update, err := h.projects.PostUpdate(requestContext(c), services.PostUpdateInput{
		ProjectID: c.Param("id"),
		AuthorID:  userID,
		Content:   req.Content,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, update)
}
