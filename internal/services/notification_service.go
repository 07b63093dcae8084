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
	"github.com/sustainabilityhub/sustainabilityhub/internal/realtime"
	"github.com/sustainabilityhub/sustainabilityhub/pkg/metrics"
)

const (
	EventNotificationCreated = "notification.created"
	EventNotificationRead    = "notification.read"
	EventNotificationDeleted = "notification.deleted"
	EventNotificationReadAll = "notification.read_all"

	maxNotificationTitle = 200
)

// NotificationDTO represents the API-friendly notification payload.
type NotificationDTO struct {
	ID        string                  `json:"id"`
	UserID    string                  `json:"user_id"`
	Kind      models.NotificationKind `json:"kind"`
	Title     string                  `json:"title"`
	Message   string                  `json:"message"`
	Link      string                  `json:"link,omitempty"`
	Origin    *models.Origin          `json:"origin,omitempty"`
	IsRead    bool                    `json:"is_read"`
	CreatedAt time.Time               `json:"created_at"`
	ReadAt    *time.Time              `json:"read_at,omitempty"`
}

// DispatchInput describes a single notification for one recipient.
type DispatchInput struct {
	RecipientID string
	Kind        models.NotificationKind
	Title       string
	Message     string
	Link        string
	Origin      models.Origin
}

// ListNotificationsInput defines filters for querying user notifications.
type ListNotificationsInput struct {
	UserID     string
	Page       int
	PerPage    int
	UnreadOnly bool
	Kind       models.NotificationKind
}

// NotificationPage is one page of a user's notifications, newest first.
type NotificationPage struct {
	Items   []NotificationDTO
	Page    int
	PerPage int
	Total   int64
	Unread  int64
}

// NotificationEventPayload represents data sent to realtime consumers.
type NotificationEventPayload struct {
	Notification   *NotificationDTO `json:"notification,omitempty"`
	NotificationID string           `json:"notification_id,omitempty"`
}

// NotificationOption customises a NotificationService.
type NotificationOption func(*NotificationService)

// WithNotificationClock overrides the time source used for read timestamps.
func WithNotificationClock(now func() time.Time) NotificationOption {
	return func(s *NotificationService) {
		if now != nil {
			s.now = now
		}
	}
}

// NotificationService stores, lists and dispatches in-app notifications.
type NotificationService struct {
	db        *gorm.DB
	publisher realtime.Publisher
	now       func() time.Time
}

// NewNotificationService constructs a NotificationService. publisher may be nil,
// in which case no realtime events are emitted.
func NewNotificationService(db *gorm.DB, publisher realtime.Publisher, opts ...NotificationOption) (*NotificationService, error) {
	if db == nil {
		return nil, errors.New("notification service: db is required")
	}
	svc := &NotificationService{db: db, publisher: publisher, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Dispatch persists one notification and pushes it to connected clients.
func (s *NotificationService) Dispatch(ctx context.Context, input DispatchInput) (*NotificationDTO, error) {
	ctx = ensureContext(ctx)
	var dto *NotificationDTO
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		dto, err = s.DispatchTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Publish(*dto)
	return dto, nil
}

// DispatchTx persists one notification using tx. Nothing is published; the
// caller hands the result to Publish once tx has committed.
func (s *NotificationService) DispatchTx(ctx context.Context, tx *gorm.DB, input DispatchInput) (*NotificationDTO, error) {
	ctx = ensureContext(ctx)
	if tx == nil {
		tx = s.db
	}

	recipientID := strings.TrimSpace(input.RecipientID)
	if recipientID == "" {
		return nil, validationError("recipient is required")
	}
	if !input.Kind.Valid() {
		return nil, validationError("unknown notification kind %q", input.Kind)
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, validationError("title is required")
	}
	if utf8.RuneCountInString(title) > maxNotificationTitle {
		title = string([]rune(title)[:maxNotificationTitle])
	}
	if !input.Origin.IsZero() && (!input.Origin.Kind.Valid() || strings.TrimSpace(input.Origin.ID) == "") {
		return nil, validationError("invalid notification origin")
	}

	var recipients int64
	if err := tx.WithContext(ctx).Model(&models.User{}).Where("id = ?", recipientID).Count(&recipients).Error; err != nil {
		return nil, fmt.Errorf("notification service: load recipient: %w", err)
	}
	if recipients == 0 {
		return nil, newError(ErrNotFound, "recipient not found")
	}

	notification := models.Notification{
		UserID:  recipientID,
		Kind:    input.Kind,
		Title:   title,
		Message: input.Message,
		Link:    strings.TrimSpace(input.Link),
	}
	notification.SetOrigin(input.Origin)

	if err := tx.WithContext(ctx).Create(&notification).Error; err != nil {
		return nil, fmt.Errorf("notification service: create notification: %w", err)
	}

	metrics.NotificationsDispatched.WithLabelValues(string(input.Kind)).Inc()
	dto := mapNotification(notification)
	return &dto, nil
}

// Publish pushes notification.created events for already committed rows.
func (s *NotificationService) Publish(items ...NotificationDTO) {
	for i := range items {
		item := items[i]
		s.broadcast(item.UserID, EventNotificationCreated, &NotificationEventPayload{Notification: &item})
	}
}

// List returns a page of the user's notifications ordered by recency.
func (s *NotificationService) List(ctx context.Context, input ListNotificationsInput) (*NotificationPage, error) {
	ctx = ensureContext(ctx)
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, validationError("user id is required")
	}
	if input.Kind != "" && !input.Kind.Valid() {
		return nil, validationError("unknown notification kind %q", input.Kind)
	}

	page, perPage, offset := pageWindow(input.Page, input.PerPage)

	query := s.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", userID)
	if input.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}
	if input.Kind != "" {
		query = query.Where("kind = ?", input.Kind)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("notification service: count notifications: %w", err)
	}

	var rows []models.Notification
	if err := query.Session(&gorm.Session{}).
		Order("created_at DESC").
		Order("id DESC").
		Limit(perPage).
		Offset(offset).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("notification service: list notifications: %w", err)
	}

	unread, err := s.UnreadCount(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &NotificationPage{
		Items:   mapNotificationRows(rows),
		Page:    page,
		PerPage: perPage,
		Total:   total,
		Unread:  unread,
	}, nil
}

// UnreadCount returns how many of the user's notifications are unread.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	ctx = ensureContext(ctx)
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", strings.TrimSpace(userID), false).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("notification service: count unread: %w", err)
	}
	return count, nil
}

// MarkRead sets the read flag on a notification owned by userID. Marking an
// already read notification keeps its original read time.
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) (*NotificationDTO, error) {
	ctx = ensureContext(ctx)
	notification, err := s.loadOwned(ctx, userID, notificationID)
	if err != nil {
		return nil, err
	}
	if notification.IsRead {
		dto := mapNotification(*notification)
		return &dto, nil
	}

	now := s.now().UTC()
	if err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND is_read = ?", notification.ID, false).
		Updates(map[string]any{
			"is_read": true,
			"read_at": now,
		}).Error; err != nil {
		return nil, fmt.Errorf("notification service: mark read: %w", err)
	}

	notification.IsRead = true
	notification.ReadAt = &now
	dto := mapNotification(*notification)

	s.broadcast(userID, EventNotificationRead, &NotificationEventPayload{
		Notification:   &dto,
		NotificationID: notification.ID,
	})
	return &dto, nil
}

// MarkAllRead marks every unread notification of the user as read and returns
// how many changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	ctx = ensureContext(ctx)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, validationError("user id is required")
	}

	result := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]any{
			"is_read": true,
			"read_at": s.now().UTC(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("notification service: mark all read: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		s.broadcast(userID, EventNotificationReadAll, nil)
	}
	return result.RowsAffected, nil
}

// Delete removes a notification owned by the supplied user.
func (s *NotificationService) Delete(ctx context.Context, userID, notificationID string) error {
	ctx = ensureContext(ctx)
	result := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", strings.TrimSpace(notificationID), strings.TrimSpace(userID)).
		Delete(&models.Notification{})
	if result.Error != nil {
		return fmt.Errorf("notification service: delete notification: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return newError(ErrNotFound, "notification not found")
	}

	s.broadcast(userID, EventNotificationDeleted, &NotificationEventPayload{
		NotificationID: notificationID,
	})
	return nil
}

// PurgeRead deletes read notifications older than cutoff.
func (s *NotificationService) PurgeRead(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx = ensureContext(ctx)
	result := s.db.WithContext(ctx).
		Where("is_read = ? AND created_at < ?", true, cutoff).
		Delete(&models.Notification{})
	if result.Error != nil {
		return 0, fmt.Errorf("notification service: purge read: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// loadOwned fetches a notification only when userID is its recipient. Other
// users get ErrNotFound so ids of foreign notifications are not disclosed.
func (s *NotificationService) loadOwned(ctx context.Context, userID, notificationID string) (*models.Notification, error) {
	var notification models.Notification
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", strings.TrimSpace(notificationID), strings.TrimSpace(userID)).
		First(&notification).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(ErrNotFound, "notification not found")
	}
	if err != nil {
		return nil, fmt.Errorf("notification service: load notification: %w", err)
	}
	return &notification, nil
}

func (s *NotificationService) broadcast(userID, event string, payload *NotificationEventPayload) {
	if s.publisher == nil {
		return
	}
	message := realtime.Message{
		Stream: realtime.StreamNotifications,
		Event:  event,
	}
	if payload != nil {
		message.Data = payload
	}
	s.publisher.BroadcastToUser(realtime.StreamNotifications, userID, message)
}

func mapNotificationRows(rows []models.Notification) []NotificationDTO {
	items := make([]NotificationDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapNotification(row))
	}
	return items
}

func mapNotification(row models.Notification) NotificationDTO {
	dto := NotificationDTO{
		ID:        row.ID,
		UserID:    row.UserID,
		Kind:      row.Kind,
		Title:     row.Title,
		Message:   row.Message,
		Link:      row.Link,
		IsRead:    row.IsRead,
		CreatedAt: row.CreatedAt,
		ReadAt:    row.ReadAt,
	}
	if origin := row.Origin(); !origin.IsZero() {
		dto.Origin = &origin
	}
	return dto
}
