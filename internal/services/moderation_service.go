package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/sustainabilityhub/sustainabilityhub/internal/models"
)

const maxWarningReason = 200

// IssueWarningInput describes a warning an administrator hands to a user.
type IssueWarningInput struct {
	UserID      string
	IssuedByID  string
	Severity    models.WarningSeverity
	Reason      string
	Description string
}

// ModerationService manages user warnings and the justifications users
// submit in response.
type ModerationService struct {
	db       *gorm.DB
	triggers *NotificationTriggers
	now      func() time.Time
}

// NewModerationService constructs a ModerationService.
func NewModerationService(db *gorm.DB, triggers *NotificationTriggers) (*ModerationService, error) {
	if db == nil {
		return nil, errors.New("moderation service: db is required")
	}
	if triggers == nil {
		return nil, errors.New("moderation service: notification triggers are required")
	}
	return &ModerationService{db: db, triggers: triggers, now: time.Now}, nil
}

// IssueWarning stores a warning and notifies the warned user in the same
// transaction.
func (s *ModerationService) IssueWarning(ctx context.Context, input IssueWarningInput) (*models.UserWarning, error) {
	ctx = ensureContext(ctx)
	if !input.Severity.Valid() {
		return nil, validationError("unknown severity %q", input.Severity)
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, validationError("reason is required")
	}
	if utf8.RuneCountInString(reason) > maxWarningReason {
		return nil, validationError("reason must be at most %d characters", maxWarningReason)
	}

	warning := models.UserWarning{
		UserID:     strings.TrimSpace(input.UserID),
		IssuedByID: strings.TrimSpace(input.IssuedByID),
		Severity:   input.Severity,
		Reason:     reason,
		Details:    strings.TrimSpace(input.Description),
		IsActive:   true,
	}

	var sent []NotificationDTO
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("id = ?", warning.UserID).Count(&count).Error; err != nil {
			return fmt.Errorf("moderation service: load user: %w", err)
		}
		if count == 0 {
			return newError(ErrNotFound, "user not found")
		}
		if err := tx.Create(&warning).Error; err != nil {
			return fmt.Errorf("moderation service: create warning: %w", err)
		}
		var err error
		sent, err = s.triggers.OnWarningIssued(ctx, tx, &warning)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.triggers.Publish(sent)
	return &warning, nil
}

// ListForUser returns every warning of userID, newest first.
func (s *ModerationService) ListForUser(ctx context.Context, userID string) ([]models.UserWarning, error) {
	ctx = ensureContext(ctx)
	var warnings []models.UserWarning
	if err := s.db.WithContext(ctx).
		Preload("IssuedBy").
		Where("user_id = ?", strings.TrimSpace(userID)).
		Order("created_at DESC").
		Find(&warnings).Error; err != nil {
		return nil, fmt.Errorf("moderation service: list warnings: %w", err)
	}
	return warnings, nil
}

// MyWarnings returns the active warnings of userID and stamps the unseen ones
// as viewed.
func (s *ModerationService) MyWarnings(ctx context.Context, userID string) ([]models.UserWarning, error) {
	ctx = ensureContext(ctx)
	userID = strings.TrimSpace(userID)
	if err := s.db.WithContext(ctx).
		Model(&models.UserWarning{}).
		Where("user_id = ? AND is_active = ? AND viewed_at IS NULL", userID, true).
		Update("viewed_at", s.now().UTC()).Error; err != nil {
		return nil, fmt.Errorf("moderation service: mark viewed: %w", err)
	}

	var warnings []models.UserWarning
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("created_at DESC").
		Find(&warnings).Error; err != nil {
		return nil, fmt.Errorf("moderation service: list warnings: %w", err)
	}
	return warnings, nil
}

// SubmitJustification records the user's response to one of their warnings.
func (s *ModerationService) SubmitJustification(ctx context.Context, userID, warningID, justification string) (*models.UserWarning, error) {
	ctx = ensureContext(ctx)
	justification = strings.TrimSpace(justification)
	if justification == "" {
		return nil, validationError("please provide a justification")
	}

	var warning models.UserWarning
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", strings.TrimSpace(warningID), strings.TrimSpace(userID)).
		Take(&warning).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(ErrNotFound, "warning not found")
	}
	if err != nil {
		return nil, fmt.Errorf("moderation service: load warning: %w", err)
	}

	now := s.now().UTC()
	if err := s.db.WithContext(ctx).Model(&warning).Updates(map[string]any{
		"justification":              justification,
		"justification_submitted_at": now,
	}).Error; err != nil {
		return nil, fmt.Errorf("moderation service: save justification: %w", err)
	}
	warning.Justification = justification
	warning.JustificationSubmittedAt = &now
	return &warning, nil
}
