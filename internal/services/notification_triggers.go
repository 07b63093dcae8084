package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/sustainabilityhub/sustainabilityhub/internal/models"
)

const (
	myWarningsLink = "/accounts/my-warnings"
	homeLink       = "/"
)

// NotificationTriggers turn domain mutations into notifications. Every method
// runs on the caller's transaction so a failed dispatch rolls the mutation
// back; the returned notifications must be handed to
// NotificationService.Publish after commit.
type NotificationTriggers struct {
	notifications *NotificationService
}

// NewNotificationTriggers constructs the trigger set around a dispatcher.
func NewNotificationTriggers(notifications *NotificationService) (*NotificationTriggers, error) {
	if notifications == nil {
		return nil, errors.New("notification triggers: notification service is required")
	}
	return &NotificationTriggers{notifications: notifications}, nil
}

// OnPostCreated notifies the topic author about a reply written by someone else.
func (t *NotificationTriggers) OnPostCreated(ctx context.Context, tx *gorm.DB, post *models.ForumPost) ([]NotificationDTO, error) {
	var topic models.ForumTopic
	if err := tx.WithContext(ctx).Select("id", "title", "author_id").First(&topic, "id = ?", post.TopicID).Error; err != nil {
		return nil, fmt.Errorf("notification triggers: load topic: %w", err)
	}
	if topic.AuthorID == post.AuthorID {
		return nil, nil
	}

	replier, err := loadUsername(ctx, tx, post.AuthorID)
	if err != nil {
		return nil, err
	}

	return t.dispatch(ctx, tx, DispatchInput{
		RecipientID: topic.AuthorID,
		Kind:        models.NotificationKindTopicReply,
		Title:       `New reply to "` + topic.Title + `"`,
		Message:     fmt.Sprintf("%s replied: %s", replier, excerpt(post.Content)),
		Link:        "/api/forums/topics/" + topic.ID,
		Origin:      models.Origin{Kind: models.OriginForumPost, ID: post.ID},
	})
}

// OnMessageCreated notifies the first other participant of the conversation,
// in join order. A conversation with no other participant produces nothing.
func (t *NotificationTriggers) OnMessageCreated(ctx context.Context, tx *gorm.DB, message *models.Message) ([]NotificationDTO, error) {
	var participant models.ConversationParticipant
	err := tx.WithContext(ctx).
		Where("conversation_id = ? AND user_id <> ?", message.ConversationID, message.SenderID).
		Order("position ASC").
		Take(&participant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("notification triggers: load participants: %w", err)
	}

	sender, err := loadUsername(ctx, tx, message.SenderID)
	if err != nil {
		return nil, err
	}

	return t.dispatch(ctx, tx, DispatchInput{
		RecipientID: participant.UserID,
		Kind:        models.NotificationKindMessage,
		Title:       "New message from " + sender,
		Message:     excerpt(message.Content),
		Link:        "/api/conversations/" + message.ConversationID,
		Origin:      models.Origin{Kind: models.OriginMessage, ID: message.ID},
	})
}

// OnProjectUpdateCreated notifies every member except the author, plus the
// creator when the creator is neither a member nor the author.
func (t *NotificationTriggers) OnProjectUpdateCreated(ctx context.Context, tx *gorm.DB, update *models.ProjectUpdate) ([]NotificationDTO, error) {
	var project models.Project
	if err := tx.WithContext(ctx).Select("id", "title", "creator_id").First(&project, "id = ?", update.ProjectID).Error; err != nil {
		return nil, fmt.Errorf("notification triggers: load project: %w", err)
	}

	var memberIDs []string
	if err := tx.WithContext(ctx).
		Model(&models.ProjectMember{}).
		Where("project_id = ?", project.ID).
		Order("joined_at ASC").
		Order("user_id ASC").
		Pluck("user_id", &memberIDs).Error; err != nil {
		return nil, fmt.Errorf("notification triggers: load members: %w", err)
	}

	recipients := make([]string, 0, len(memberIDs)+1)
	creatorIsMember := false
	for _, id := range memberIDs {
		if id == project.CreatorID {
			creatorIsMember = true
		}
		if id != update.AuthorID {
			recipients = append(recipients, id)
		}
	}
	if !creatorIsMember && project.CreatorID != update.AuthorID {
		recipients = append(recipients, project.CreatorID)
	}

	inputs := make([]DispatchInput, 0, len(recipients))
	for _, id := range recipients {
		inputs = append(inputs, DispatchInput{
			RecipientID: id,
			Kind:        models.NotificationKindProjectUpdate,
			Title:       "Update on " + project.Title,
			Message:     excerpt(update.Content),
			Link:        "/api/projects/" + project.ID,
			Origin:      models.Origin{Kind: models.OriginProjectUpdate, ID: update.ID},
		})
	}
	return t.dispatch(ctx, tx, inputs...)
}

// OnWarningIssued notifies the warned user.
func (t *NotificationTriggers) OnWarningIssued(ctx context.Context, tx *gorm.DB, warning *models.UserWarning) ([]NotificationDTO, error) {
	return t.dispatch(ctx, tx, DispatchInput{
		RecipientID: warning.UserID,
		Kind:        models.NotificationKindWarning,
		Title:       warning.Severity.Display() + " Warning",
		Message:     "Reason: " + warning.Reason,
		Link:        myWarningsLink,
		Origin:      models.Origin{Kind: models.OriginUserWarning, ID: warning.ID},
	})
}

// OnAccountStatusChanged tells the user their account was activated or deactivated.
func (t *NotificationTriggers) OnAccountStatusChanged(ctx context.Context, tx *gorm.DB, user *models.User) ([]NotificationDTO, error) {
	status, title := "deactivated", "Account Deactivated"
	if user.IsActive {
		status, title = "activated", "Account Activated"
	}
	return t.dispatch(ctx, tx, DispatchInput{
		RecipientID: user.ID,
		Kind:        models.NotificationKindAccountStatus,
		Title:       title,
		Message:     fmt.Sprintf("Your account has been %s by an administrator.", status),
		Link:        homeLink,
		Origin:      models.Origin{Kind: models.OriginUser, ID: user.ID},
	})
}

func (t *NotificationTriggers) dispatch(ctx context.Context, tx *gorm.DB, inputs ...DispatchInput) ([]NotificationDTO, error) {
	out := make([]NotificationDTO, 0, len(inputs))
	for _, input := range inputs {
		dto, err := t.notifications.DispatchTx(ctx, tx, input)
		if err != nil {
			return nil, fmt.Errorf("notification triggers: dispatch %s: %w", input.Kind, err)
		}
		out = append(out, *dto)
	}
	return out, nil
}

func loadUsername(ctx context.Context, tx *gorm.DB, userID string) (string, error) {
	var user models.User
	if err := tx.WithContext(ctx).Select("id", "username").First(&user, "id = ?", userID).Error; err != nil {
		return "", fmt.Errorf("notification triggers: load user: %w", err)
	}
	return user.Username, nil
}

// Publish forwards committed trigger output to the realtime publisher.
func (t *NotificationTriggers) Publish(items []NotificationDTO) {
	t.notifications.Publish(items...)
}
