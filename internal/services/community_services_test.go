package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sustainabilityhub/sustainabilityhub/internal/models"
)

type communityFixture struct {
	db            *gorm.DB
	publisher     *recordingPublisher
	notifications *NotificationService
	triggers      *NotificationTriggers
}

func newCommunityFixture(t *testing.T) *communityFixture {
	t.Helper()
	db := openServiceDB(t)
	notifications, publisher := newNotificationService(t, db)
	return &communityFixture{
		db:            db,
		publisher:     publisher,
		notifications: notifications,
		triggers:      newTriggers(t, notifications),
	}
}

func TestForumServiceCreatePostNotifies(t *testing.T) {
	f := newCommunityFixture(t)
	author := createUser(t, f.db, "author")
	replier := createUser(t, f.db, "replier")
	forums, err := NewForumService(f.db, f.triggers)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = forums.CreateTopic(ctx, CreateTopicInput{AuthorID: author.ID, Title: "  "})
	require.ErrorIs(t, err, ErrValidation)

	topic, err := forums.CreateTopic(ctx, CreateTopicInput{AuthorID: author.ID, Title: "Rain barrels", Content: "Ideas?"})
	require.NoError(t, err)

	_, err = forums.CreatePost(ctx, CreatePostInput{TopicID: topic.ID, AuthorID: author.ID, Content: "Anyone?"})
	require.NoError(t, err)
	_, err = forums.CreatePost(ctx, CreatePostInput{TopicID: topic.ID, AuthorID: replier.ID, Content: "Use a first-flush diverter"})
	require.NoError(t, err)

	require.Len(t, notificationsFor(t, f.db, author.ID), 1)
	require.Equal(t, []string{EventNotificationCreated}, f.publisher.eventsFor(author.ID))

	_, err = forums.CreatePost(ctx, CreatePostInput{TopicID: "missing", AuthorID: replier.ID, Content: "hi"})
	require.ErrorIs(t, err, ErrNotFound)
	_, err = forums.CreatePost(ctx, CreatePostInput{TopicID: topic.ID, AuthorID: replier.ID})
	require.ErrorIs(t, err, ErrValidation)

	loaded, err := forums.GetTopic(ctx, topic.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Posts, 2)
	require.Equal(t, "author", loaded.Author.Username)
}

func TestConversationServiceStartAndSend(t *testing.T) {
	f := newCommunityFixture(t)
	alice := createUser(t, f.db, "alice")
	bob := createUser(t, f.db, "bob")
	mallory := createUser(t, f.db, "mallory")
	conversations, err := NewConversationService(f.db, f.triggers)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = conversations.Start(ctx, StartConversationInput{SenderID: alice.ID, RecipientID: alice.ID})
	require.ErrorIs(t, err, ErrValidation)
	_, err = conversations.Start(ctx, StartConversationInput{SenderID: alice.ID, RecipientID: "ghost"})
	require.ErrorIs(t, err, ErrNotFound)

	conversation, err := conversations.Start(ctx, StartConversationInput{SenderID: alice.ID, RecipientID: bob.ID, Content: "Hi Bob"})
	require.NoError(t, err)
	require.Len(t, conversation.Participants, 2)
	require.Equal(t, alice.ID, conversation.Participants[0].UserID)
	require.Len(t, conversation.Messages, 1)

	again, err := conversations.Start(ctx, StartConversationInput{SenderID: bob.ID, RecipientID: alice.ID})
	require.NoError(t, err)
	require.Equal(t, conversation.ID, again.ID, "existing conversation is reused")

	_, err = conversations.SendMessage(ctx, SendMessageInput{ConversationID: conversation.ID, SenderID: bob.ID, Content: "Hey Alice"})
	require.NoError(t, err)

	_, err = conversations.SendMessage(ctx, SendMessageInput{ConversationID: conversation.ID, SenderID: mallory.ID, Content: "psst"})
	require.ErrorIs(t, err, ErrForbidden)
	_, err = conversations.Get(ctx, mallory.ID, conversation.ID)
	require.ErrorIs(t, err, ErrNotFound)

	bobRows := notificationsFor(t, f.db, bob.ID)
	require.Len(t, bobRows, 1)
	require.Equal(t, "New message from alice", bobRows[0].Title)

	aliceRows := notificationsFor(t, f.db, alice.ID)
	require.Len(t, aliceRows, 1)
	require.Equal(t, "Hey Alice", aliceRows[0].Message)
}

func TestProjectServiceMembershipAndUpdates(t *testing.T) {
	f := newCommunityFixture(t)
	u1 := createUser(t, f.db, "u1")
	u2 := createUser(t, f.db, "u2")
	u3 := createUser(t, f.db, "u3")
	outsider := createUser(t, f.db, "outsider")
	projects, err := NewProjectService(f.db, f.triggers)
	require.NoError(t, err)
	ctx := context.Background()

	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, -1, 0)
	_, err = projects.Create(ctx, CreateProjectInput{CreatorID: u1.ID, Title: "Bad dates", StartDate: &start, EndDate: &end})
	require.ErrorIs(t, err, ErrValidation)
	_, err = projects.Create(ctx, CreateProjectInput{CreatorID: u1.ID, Title: "Bad status", Status: "done"})
	require.ErrorIs(t, err, ErrValidation)

	project, err := projects.Create(ctx, CreateProjectInput{CreatorID: u1.ID, Title: "Tree planting", Tags: []string{"trees", "trees", "city"}})
	require.NoError(t, err)
	require.Equal(t, models.ProjectStatusPlanning, project.Status)
	require.JSONEq(t, `["trees","city"]`, string(project.Tags))

	require.NoError(t, projects.AddMember(ctx, u2, project.ID, u2.ID))
	require.NoError(t, projects.AddMember(ctx, u1, project.ID, u3.ID))
	require.NoError(t, projects.AddMember(ctx, u2, project.ID, u2.ID), "joining twice is a no-op")
	require.ErrorIs(t, projects.AddMember(ctx, u2, project.ID, outsider.ID), ErrForbidden)

	_, err = projects.PostUpdate(ctx, PostUpdateInput{ProjectID: project.ID, AuthorID: outsider.ID, Content: "hello"})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = projects.PostUpdate(ctx, PostUpdateInput{ProjectID: project.ID, AuthorID: u2.ID, Content: "Planted 20 saplings"})
	require.NoError(t, err)

	require.Len(t, notificationsFor(t, f.db, u1.ID), 1)
	require.Len(t, notificationsFor(t, f.db, u3.ID), 1)
	require.Empty(t, notificationsFor(t, f.db, u2.ID))
	require.Empty(t, notificationsFor(t, f.db, outsider.ID))

	loaded, err := projects.Get(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Members, 2)
	require.Len(t, loaded.Updates, 1)

	require.NoError(t, projects.RemoveMember(ctx, u3, project.ID, u3.ID))
	loaded, err = projects.Get(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Members, 1)
}

func TestModerationServiceWarningsLifecycle(t *testing.T) {
	f := newCommunityFixture(t)
	admin := createUser(t, f.db, "admin", asSuperuser())
	user := createUser(t, f.db, "user")
	other := createUser(t, f.db, "other")
	moderation, err := NewModerationService(f.db, f.triggers)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = moderation.IssueWarning(ctx, IssueWarningInput{UserID: user.ID, IssuedByID: admin.ID, Severity: "severe", Reason: "x"})
	require.ErrorIs(t, err, ErrValidation)
	_, err = moderation.IssueWarning(ctx, IssueWarningInput{UserID: "ghost", IssuedByID: admin.ID, Severity: models.WarningSeverityLow, Reason: "x"})
	require.ErrorIs(t, err, ErrNotFound)

	warning, err := moderation.IssueWarning(ctx, IssueWarningInput{
		UserID:      user.ID,
		IssuedByID:  admin.ID,
		Severity:    models.WarningSeverityMedium,
		Reason:      "Off-topic posts",
		Description: "Please keep threads focused.",
	})
	require.NoError(t, err)
	require.True(t, warning.IsActive)

	rows := notificationsFor(t, f.db, user.ID)
	require.Len(t, rows, 1)
	require.Equal(t, "Medium Warning", rows[0].Title)

	mine, err := moderation.MyWarnings(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.NotNil(t, mine[0].ViewedAt)

	_, err = moderation.SubmitJustification(ctx, other.ID, warning.ID, "not me")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = moderation.SubmitJustification(ctx, user.ID, warning.ID, "   ")
	require.ErrorIs(t, err, ErrValidation)

	justified, err := moderation.SubmitJustification(ctx, user.ID, warning.ID, "It was related to composting")
	require.NoError(t, err)
	require.NotNil(t, justified.JustificationSubmittedAt)

	all, err := moderation.ListForUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "It was related to composting", all[0].Justification)
	require.Equal(t, "admin", all[0].IssuedBy.Username)
}

type revokeRecorder struct{ users []string }

func (r *revokeRecorder) RevokeUserSessions(_ context.Context, userID string) (int64, error) {
	r.users = append(r.users, userID)
	return 1, nil
}

func TestUserServiceToggleStatusAndList(t *testing.T) {
	f := newCommunityFixture(t)
	admin := createUser(t, f.db, "admin", asSuperuser())
	user := createUser(t, f.db, "member")
	createUser(t, f.db, "dormant", asInactive())
	revoker := &revokeRecorder{}
	users, err := NewUserService(f.db, f.triggers, revoker)
	require.NoError(t, err)
	moderation, err := NewModerationService(f.db, f.triggers)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = users.ToggleStatus(ctx, admin.ID)
	require.ErrorIs(t, err, ErrForbidden)
	_, err = users.ToggleStatus(ctx, "ghost")
	require.ErrorIs(t, err, ErrNotFound)

	toggled, err := users.ToggleStatus(ctx, user.ID)
	require.NoError(t, err)
	require.False(t, toggled.IsActive)
	require.Equal(t, []string{user.ID}, revoker.users)

	toggled, err = users.ToggleStatus(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, toggled.IsActive)
	require.Len(t, revoker.users, 1)

	rows := notificationsFor(t, f.db, user.ID)
	require.Len(t, rows, 2)
	titles := []string{rows[0].Title, rows[1].Title}
	require.ElementsMatch(t, []string{"Account Deactivated", "Account Activated"}, titles)

	_, err = moderation.IssueWarning(ctx, IssueWarningInput{UserID: user.ID, IssuedByID: admin.ID, Severity: models.WarningSeverityLow, Reason: "Spam"})
	require.NoError(t, err)

	warned, total, err := users.List(ctx, ListUsersOptions{Filters: UserFilters{Status: UserStatusWarned}})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, user.ID, warned[0].ID)
	require.EqualValues(t, 1, warned[0].WarningCount)

	_, total, err = users.List(ctx, ListUsersOptions{Filters: UserFilters{Query: "DORM"}})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)

	_, _, err = users.List(ctx, ListUsersOptions{Filters: UserFilters{Status: "banned"}})
	require.ErrorIs(t, err, ErrValidation)

	counts, err := users.StatusCounts(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, counts.Total)
	require.EqualValues(t, 1, counts.Active)
	require.EqualValues(t, 1, counts.Inactive)
	require.EqualValues(t, 1, counts.Superuser)
	require.EqualValues(t, 1, counts.Warned)
}
