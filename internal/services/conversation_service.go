package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/sustainabilityhub/sustainabilityhub/internal/models"
)

// StartConversationInput opens (or reuses) a direct conversation between
// SenderID and RecipientID, optionally posting a first message.
type StartConversationInput struct {
	SenderID    string
	RecipientID string
	Content     string
}

// SendMessageInput describes a message posted to a conversation.
type SendMessageInput struct {
	ConversationID string
	SenderID       string
	Content        string
}

// ConversationService manages direct-message conversations.
type ConversationService struct {
	db       *gorm.DB
	triggers *NotificationTriggers
	now      func() time.Time
}

// NewConversationService constructs a ConversationService.
func NewConversationService(db *gorm.DB, triggers *NotificationTriggers) (*ConversationService, error) {
	if db == nil {
		return nil, errors.New("conversation service: db is required")
	}
	if triggers == nil {
		return nil, errors.New("conversation service: notification triggers are required")
	}
	return &ConversationService{db: db, triggers: triggers, now: time.Now}, nil
}

// Start returns the existing conversation between the two users or creates
// one with the sender first in join order.
func (s *ConversationService) Start(ctx context.Context, input StartConversationInput) (*models.Conversation, error) {
	ctx = ensureContext(ctx)
	senderID := strings.TrimSpace(input.SenderID)
	recipientID := strings.TrimSpace(input.RecipientID)
	if recipientID == "" {
		return nil, validationError("recipient is required")
	}
	if recipientID == senderID {
		return nil, validationError("cannot start a conversation with yourself")
	}
	content := strings.TrimSpace(input.Content)

	var (
		conversation models.Conversation
		sent         []NotificationDTO
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("id = ?", recipientID).Count(&count).Error; err != nil {
			return fmt.Errorf("conversation service: load recipient: %w", err)
		}
		if count == 0 {
			return newError(ErrNotFound, "recipient not found")
		}

		shared := tx.Model(&models.ConversationParticipant{}).Select("conversation_id").Where("user_id = ?", recipientID)
		err := tx.Model(&models.ConversationParticipant{}).
			Where("user_id = ? AND conversation_id IN (?)", senderID, shared).
			Select("conversation_id").
			Limit(1).
			Scan(&conversation.ID).Error
		if err != nil {
			return fmt.Errorf("conversation service: find conversation: %w", err)
		}

		if conversation.ID == "" {
			if err := tx.Create(&conversation).Error; err != nil {
				return fmt.Errorf("conversation service: create conversation: %w", err)
			}
			now := s.now().UTC()
			participants := []models.ConversationParticipant{
				{ConversationID: conversation.ID, UserID: senderID, Position: 0, JoinedAt: now},
				{ConversationID: conversation.ID, UserID: recipientID, Position: 1, JoinedAt: now},
			}
			if err := tx.Create(&participants).Error; err != nil {
				return fmt.Errorf("conversation service: add participants: %w", err)
			}
		}

		if content == "" {
			return nil
		}
		message := models.Message{ConversationID: conversation.ID, SenderID: senderID, Content: content}
		if err := tx.Create(&message).Error; err != nil {
			return fmt.Errorf("conversation service: create message: %w", err)
		}
		sent, err = s.triggers.OnMessageCreated(ctx, tx, &message)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.triggers.Publish(sent)
	return s.Get(ctx, senderID, conversation.ID)
}

// Get loads a conversation the user participates in.
func (s *ConversationService) Get(ctx context.Context, userID, conversationID string) (*models.Conversation, error) {
	ctx = ensureContext(ctx)
	if err := s.requireParticipant(ctx, s.db, userID, conversationID, ErrNotFound); err != nil {
		return nil, err
	}

	var conversation models.Conversation
	if err := s.db.WithContext(ctx).
		Preload("Participants", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Participants.User").
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Take(&conversation, "id = ?", strings.TrimSpace(conversationID)).Error; err != nil {
		return nil, fmt.Errorf("conversation service: get conversation: %w", err)
	}
	return &conversation, nil
}

// SendMessage posts a message and notifies the other participant in the same
// transaction. Only participants may post.
func (s *ConversationService) SendMessage(ctx context.Context, input SendMessageInput) (*models.Message, error) {
	ctx = ensureContext(ctx)
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, validationError("content is required")
	}

	message := models.Message{
		ConversationID: strings.TrimSpace(input.ConversationID),
		SenderID:       strings.TrimSpace(input.SenderID),
		Content:        content,
	}

	var sent []NotificationDTO
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.requireParticipant(ctx, tx, message.SenderID, message.ConversationID, ErrForbidden); err != nil {
			return err
		}
		if err := tx.Create(&message).Error; err != nil {
			return fmt.Errorf("conversation service: create message: %w", err)
		}
		var err error
		sent, err = s.triggers.OnMessageCreated(ctx, tx, &message)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.triggers.Publish(sent)
	return &message, nil
}

func (s *ConversationService) requireParticipant(ctx context.Context, db *gorm.DB, userID, conversationID string, kind error) error {
	var count int64
	if err := db.WithContext(ctx).
		Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", strings.TrimSpace(conversationID), strings.TrimSpace(userID)).
		Count(&count).Error; err != nil {
		return fmt.Errorf("conversation service: check participant: %w", err)
	}
	if count == 0 {
		if errors.Is(kind, ErrForbidden) {
			return newError(ErrForbidden, "you are not part of this conversation")
		}
		return newError(ErrNotFound, "conversation not found")
	}
	return nil
}
