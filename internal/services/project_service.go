package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/sustainabilityhub/sustainabilityhub/internal/database"
	"github.com/sustainabilityhub/sustainabilityhub/internal/models"
)

// CreateProjectInput describes a new project.
type CreateProjectInput struct {
	CreatorID   string
	Title       string
	Description string
	Status      models.ProjectStatus
	Tags        []string
	StartDate   *time.Time
	EndDate     *time.Time
}

// PostUpdateInput describes a progress update on a project.
type PostUpdateInput struct {
	ProjectID string
	AuthorID  string
	Content   string
}

// ProjectService manages projects, their members and updates.
type ProjectService struct {
	db       *gorm.DB
	triggers *NotificationTriggers
	now      func() time.Time
}

// NewProjectService constructs a ProjectService.
func NewProjectService(db *gorm.DB, triggers *NotificationTriggers) (*ProjectService, error) {
	if db == nil {
		return nil, errors.New("project service: db is required")
	}
	if triggers == nil {
		return nil, errors.New("project service: notification triggers are required")
	}
	return &ProjectService{db: db, triggers: triggers, now: time.Now}, nil
}

// Create stores a new project owned by the creator. The creator is not added
// as a member.
func (s *ProjectService) Create(ctx context.Context, input CreateProjectInput) (*models.Project, error) {
	ctx = ensureContext(ctx)
	title, err := requireTitle(input.Title)
	if err != nil {
		return nil, err
	}
	status := input.Status
	if status == "" {
		status = models.ProjectStatusPlanning
	}
	if !status.Valid() {
		return nil, validationError("unknown project status %q", status)
	}
	if input.StartDate != nil && input.EndDate != nil && input.EndDate.Before(*input.StartDate) {
		return nil, validationError("end date must not be before start date")
	}

	tags := normaliseIDs(input.Tags)
	if tags == nil {
		tags = []string{}
	}
	encoded, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("project service: encode tags: %w", err)
	}

	project := models.Project{
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		CreatorID:   strings.TrimSpace(input.CreatorID),
		Status:      status,
		StartDate:   input.StartDate,
		EndDate:     input.EndDate,
		Tags:        datatypes.JSON(encoded),
	}
	if err := s.db.WithContext(ctx).Create(&project).Error; err != nil {
		return nil, fmt.Errorf("project service: create project: %w", err)
	}
	return &project, nil
}

// Get loads a project with its members and updates, newest update first.
func (s *ProjectService) Get(ctx context.Context, id string) (*models.Project, error) {
	ctx = ensureContext(ctx)
	var project models.Project
	err := s.db.WithContext(ctx).
		Preload("Creator").
		Preload("Members", func(db *gorm.DB) *gorm.DB { return db.Order("joined_at ASC") }).
		Preload("Members.User").
		Preload("Updates", func(db *gorm.DB) *gorm.DB { return db.Order("created_at DESC") }).
		Preload("Updates.Author").
		Take(&project, "id = ?", strings.TrimSpace(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(ErrNotFound, "project not found")
	}
	if err != nil {
		return nil, fmt.Errorf("project service: get project: %w", err)
	}
	return &project, nil
}

// AddMember adds userID to the project. Users may join themselves; adding
// someone else requires being the creator or staff.
func (s *ProjectService) AddMember(ctx context.Context, actor *models.User, projectID, userID string) error {
	ctx = ensureContext(ctx)
	project, err := s.authorizeMembership(ctx, actor, projectID, userID)
	if err != nil {
		return err
	}

	member := models.ProjectMember{ProjectID: project.ID, UserID: strings.TrimSpace(userID), JoinedAt: s.now().UTC()}
	if err := s.db.WithContext(ctx).Create(&member).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("project service: add member: %w", err)
	}
	return nil
}

// RemoveMember removes userID from the project under the same rules as AddMember.
func (s *ProjectService) RemoveMember(ctx context.Context, actor *models.User, projectID, userID string) error {
	ctx = ensureContext(ctx)
	project, err := s.authorizeMembership(ctx, actor, projectID, userID)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).
		Where("project_id = ? AND user_id = ?", project.ID, strings.TrimSpace(userID)).
		Delete(&models.ProjectMember{}).Error; err != nil {
		return fmt.Errorf("project service: remove member: %w", err)
	}
	return nil
}

// PostUpdate stores a progress update and fans notifications out to the
// project's members and creator in the same transaction. Only the creator and
// members may post.
func (s *ProjectService) PostUpdate(ctx context.Context, input PostUpdateInput) (*models.ProjectUpdate, error) {
	ctx = ensureContext(ctx)
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, validationError("content is required")
	}

	update := models.ProjectUpdate{
		ProjectID: strings.TrimSpace(input.ProjectID),
		AuthorID:  strings.TrimSpace(input.AuthorID),
		Content:   content,
	}

	var sent []NotificationDTO
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		project, err := loadProject(tx, update.ProjectID)
		if err != nil {
			return err
		}
		if project.CreatorID != update.AuthorID {
			var count int64
			if err := tx.Model(&models.ProjectMember{}).
				Where("project_id = ? AND user_id = ?", project.ID, update.AuthorID).
				Count(&count).Error; err != nil {
				return fmt.Errorf("project service: check membership: %w", err)
			}
			if count == 0 {
				return newError(ErrForbidden, "only project members can post updates")
			}
		}

		if err := tx.Create(&update).Error; err != nil {
			return fmt.Errorf("project service: create update: %w", err)
		}
		sent, err = s.triggers.OnProjectUpdateCreated(ctx, tx, &update)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.triggers.Publish(sent)
	return &update, nil
}

func (s *ProjectService) authorizeMembership(ctx context.Context, actor *models.User, projectID, userID string) (*models.Project, error) {
	if actor == nil {
		return nil, newError(ErrForbidden, "authentication required")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, validationError("user is required")
	}

	project, err := loadProject(s.db.WithContext(ctx), projectID)
	if err != nil {
		return nil, err
	}
	if actor.ID != userID && actor.ID != project.CreatorID && !actor.HasStaffAccess() {
		return nil, newError(ErrForbidden, "only the project creator can manage other members")
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("project service: load user: %w", err)
	}
	if count == 0 {
		return nil, newError(ErrNotFound, "user not found")
	}
	return project, nil
}

func loadProject(db *gorm.DB, id string) (*models.Project, error) {
	var project models.Project
	err := db.Select("id", "title", "creator_id").Take(&project, "id = ?", strings.TrimSpace(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(ErrNotFound, "project not found")
	}
	if err != nil {
		return nil, fmt.Errorf("project service: load project: %w", err)
	}
	return &project, nil
}
