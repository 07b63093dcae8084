package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sustainabilityhub/sustainabilityhub/internal/models"
	"github.com/sustainabilityhub/sustainabilityhub/pkg/logger"
)

// User status filters accepted by List.
const (
	UserStatusAll       = "all"
	UserStatusActive    = "active"
	UserStatusInactive  = "inactive"
	UserStatusStaff     = "staff"
	UserStatusSuperuser = "superuser"
	UserStatusWarned    = "warned"
)

// UserFilters encapsulates filtering options for listing users.
type UserFilters struct {
	Query  string
	Status string
}

// ListUsersOptions controls pagination and filtering for user listings.
type ListUsersOptions struct {
	Page     int
	PageSize int
	Filters  UserFilters
}

// UserSummary is a user row as shown to administrators.
type UserSummary struct {
	models.User
	WarningCount int64 `json:"warning_count"`
}

// UserStatusCounts tallies users per admin filter.
type UserStatusCounts struct {
	Total     int64 `json:"total"`
	Active    int64 `json:"active"`
	Inactive  int64 `json:"inactive"`
	Staff     int64 `json:"staff"`
	Superuser int64 `json:"superuser"`
	Warned    int64 `json:"warned"`
}

// SessionRevoker ends every refresh session of a user.
type SessionRevoker interface {
	RevokeUserSessions(ctx context.Context, userID string) (int64, error)
}

// UserService exposes the administrative user operations.
type UserService struct {
	db       *gorm.DB
	triggers *NotificationTriggers
	sessions SessionRevoker
}

// NewUserService constructs a UserService. sessions may be nil.
func NewUserService(db *gorm.DB, triggers *NotificationTriggers, sessions SessionRevoker) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	if triggers == nil {
		return nil, errors.New("user service: notification triggers are required")
	}
	return &UserService{db: db, triggers: triggers, sessions: sessions}, nil
}

// GetByID fetches a user.
func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	ctx = ensureContext(ctx)
	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "id = ?", strings.TrimSpace(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(ErrNotFound, "user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("user service: get user: %w", err)
	}
	return &user, nil
}

// List returns users newest first together with their active warning count.
func (s *UserService) List(ctx context.Context, opts ListUsersOptions) ([]UserSummary, int64, error) {
	ctx = ensureContext(ctx)
	_, perPage, offset := pageWindow(opts.Page, opts.PageSize)

	query, err := s.filtered(ctx, opts.Filters)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("user service: count users: %w", err)
	}

	var users []models.User
	if err := query.Session(&gorm.Session{}).
		Order("created_at DESC").
		Offset(offset).
		Limit(perPage).
		Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("user service: list users: %w", err)
	}

	counts, err := s.warningCounts(ctx, users)
	if err != nil {
		return nil, 0, err
	}

	out := make([]UserSummary, 0, len(users))
	for _, user := range users {
		out = append(out, UserSummary{User: user, WarningCount: counts[user.ID]})
	}
	return out, total, nil
}

// StatusCounts returns how many users fall under each admin filter.
func (s *UserService) StatusCounts(ctx context.Context) (*UserStatusCounts, error) {
	ctx = ensureContext(ctx)
	counts := &UserStatusCounts{}
	targets := []struct {
		status string
		dest   *int64
	}{
		{UserStatusAll, &counts.Total},
		{UserStatusActive, &counts.Active},
		{UserStatusInactive, &counts.Inactive},
		{UserStatusStaff, &counts.Staff},
		{UserStatusSuperuser, &counts.Superuser},
		{UserStatusWarned, &counts.Warned},
	}
	for _, target := range targets {
		query, err := s.filtered(ctx, UserFilters{Status: target.status})
		if err != nil {
			return nil, err
		}
		if err := query.Count(target.dest).Error; err != nil {
			return nil, fmt.Errorf("user service: count %s users: %w", target.status, err)
		}
	}
	return counts, nil
}

// ToggleStatus flips a user's active flag and notifies them. Superusers cannot
// be toggled. Deactivation also revokes the user's sessions.
func (s *UserService) ToggleStatus(ctx context.Context, userID string) (*models.User, error) {
	ctx = ensureContext(ctx)
	var (
		user models.User
		sent []NotificationDTO
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Take(&user, "id = ?", strings.TrimSpace(userID)).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newError(ErrNotFound, "user not found")
		}
		if err != nil {
			return fmt.Errorf("user service: load user: %w", err)
		}
		if user.IsSuperuser {
			return newError(ErrForbidden, "cannot modify superuser status")
		}

		user.IsActive = !user.IsActive
		if err := tx.Model(&models.User{}).Where("id = ?", user.ID).Update("is_active", user.IsActive).Error; err != nil {
			return fmt.Errorf("user service: update status: %w", err)
		}

		sent, err = s.triggers.OnAccountStatusChanged(ctx, tx, &user)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.triggers.Publish(sent)

	if !user.IsActive && s.sessions != nil {
		if _, err := s.sessions.RevokeUserSessions(ctx, user.ID); err != nil {
			logger.WithModule("users").Warn("revoke sessions after deactivation failed",
				zap.String("user_id", user.ID), zap.Error(err))
		}
	}
	return &user, nil
}

func (s *UserService) filtered(ctx context.Context, filters UserFilters) (*gorm.DB, error) {
	query := s.db.WithContext(ctx).Model(&models.User{})
	if q := strings.TrimSpace(filters.Query); q != "" {
		pattern := "%" + strings.ToLower(q) + "%"
		query = query.Where("LOWER(username) LIKE ? OR LOWER(email) LIKE ?", pattern, pattern)
	}

	switch strings.ToLower(strings.TrimSpace(filters.Status)) {
	case "", UserStatusAll:
	case UserStatusActive:
		query = query.Where("is_active = ? AND is_superuser = ?", true, false)
	case UserStatusInactive:
		query = query.Where("is_active = ?", false)
	case UserStatusStaff:
		query = query.Where("is_staff = ?", true)
	case UserStatusSuperuser:
		query = query.Where("is_superuser = ?", true)
	case UserStatusWarned:
		warned := s.db.Model(&models.UserWarning{}).Select("user_id").Where("is_active = ?", true)
		query = query.Where("id IN (?)", warned)
	default:
		return nil, validationError("unknown status filter %q", filters.Status)
	}
	return query, nil
}

func (s *UserService) warningCounts(ctx context.Context, users []models.User) (map[string]int64, error) {
	counts := make(map[string]int64, len(users))
	if len(users) == 0 {
		return counts, nil
	}
	ids := make([]string, 0, len(users))
	for _, user := range users {
		ids = append(ids, user.ID)
	}

	var rows []struct {
		UserID string
		Total  int64
	}
	if err := s.db.WithContext(ctx).
		Model(&models.UserWarning{}).
		Select("user_id, COUNT(*) AS total").
		Where("user_id IN ? AND is_active = ?", ids, true).
		Group("user_id").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("user service: count warnings: %w", err)
	}
	for _, row := range rows {
		counts[row.UserID] = row.Total
	}
	return counts, nil
}
