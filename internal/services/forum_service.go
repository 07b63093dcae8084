package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/sustainabilityhub/sustainabilityhub/internal/models"
)

const maxTitleLength = 200

// CreateTopicInput describes a new forum topic.
type CreateTopicInput struct {
	AuthorID string
	Title    string
	Content  string
}

// CreatePostInput describes a reply to a topic.
type CreatePostInput struct {
	TopicID  string
	AuthorID string
	Content  string
}

// ForumService manages forum topics and replies.
type ForumService struct {
	db       *gorm.DB
	triggers *NotificationTriggers
}

// NewForumService constructs a ForumService.
func NewForumService(db *gorm.DB, triggers *NotificationTriggers) (*ForumService, error) {
	if db == nil {
		return nil, errors.New("forum service: db is required")
	}
	if triggers == nil {
		return nil, errors.New("forum service: notification triggers are required")
	}
	return &ForumService{db: db, triggers: triggers}, nil
}

// CreateTopic opens a new topic.
func (s *ForumService) CreateTopic(ctx context.Context, input CreateTopicInput) (*models.ForumTopic, error) {
	ctx = ensureContext(ctx)
	title, err := requireTitle(input.Title)
	if err != nil {
		return nil, err
	}

	topic := models.ForumTopic{
		Title:    title,
		Content:  strings.TrimSpace(input.Content),
		AuthorID: strings.TrimSpace(input.AuthorID),
	}
	if err := s.db.WithContext(ctx).Create(&topic).Error; err != nil {
		return nil, fmt.Errorf("forum service: create topic: %w", err)
	}
	return &topic, nil
}

// GetTopic loads a topic with its replies in posting order.
func (s *ForumService) GetTopic(ctx context.Context, id string) (*models.ForumTopic, error) {
	ctx = ensureContext(ctx)
	var topic models.ForumTopic
	err := s.db.WithContext(ctx).
		Preload("Author").
		Preload("Posts", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Posts.Author").
		Take(&topic, "id = ?", strings.TrimSpace(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(ErrNotFound, "topic not found")
	}
	if err != nil {
		return nil, fmt.Errorf("forum service: get topic: %w", err)
	}
	return &topic, nil
}

// CreatePost stores a reply and notifies the topic author in the same
// transaction.
func (s *ForumService) CreatePost(ctx context.Context, input CreatePostInput) (*models.ForumPost, error) {
	ctx = ensureContext(ctx)
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, validationError("content is required")
	}

	post := models.ForumPost{
		TopicID:  strings.TrimSpace(input.TopicID),
		AuthorID: strings.TrimSpace(input.AuthorID),
		Content:  content,
	}

	var sent []NotificationDTO
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.ForumTopic{}).Where("id = ?", post.TopicID).Count(&count).Error; err != nil {
			return fmt.Errorf("forum service: load topic: %w", err)
		}
		if count == 0 {
			return newError(ErrNotFound, "topic not found")
		}
		if err := tx.Create(&post).Error; err != nil {
			return fmt.Errorf("forum service: create post: %w", err)
		}
		var err error
		sent, err = s.triggers.OnPostCreated(ctx, tx, &post)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.triggers.Publish(sent)
	return &post, nil
}

func requireTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", validationError("title is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return "", validationError("title must be at most %d characters", maxTitleLength)
	}
	return title, nil
}
