package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sustainabilityhub/sustainabilityhub/internal/handlers/testutil"
	"github.com/sustainabilityhub/sustainabilityhub/internal/models"
)

func TestConversationHandler_MessagesNotifyRecipient(t *testing.T) {
	env := testutil.NewEnv(t)
	sender := env.CreateUser()
	recipient := env.CreateUser()
	senderToken := env.Token(sender)
	recipientToken := env.Token(recipient)

	start := env.Request(http.MethodPost, "/api/conversations", map[string]string{
		"recipient_id": recipient.ID,
		"content":      "Want to swap seedlings?",
	}, senderToken)
	require.Equal(t, http.StatusCreated, start.Code, start.Body.String())
	var conversation idPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, start).Data, &conversation)

	items, _ := listNotifications(t, env, recipientToken, "")
	require.Len(t, items, 1)
	require.Equal(t, string(models.NotificationKindMessage), items[0].Kind)
	require.Equal(t, "New message from "+sender.Username, items[0].Title)
	require.Equal(t, "/api/conversations/"+conversation.ID, items[0].Link)

	// Starting again reuses the existing conversation.
	again := env.Request(http.MethodPost, "/api/conversations", map[string]string{"recipient_id": recipient.ID}, senderToken)
	require.Equal(t, http.StatusCreated, again.Code, again.Body.String())
	var reused idPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, again).Data, &reused)
	require.Equal(t, conversation.ID, reused.ID)

	reply := env.Request(http.MethodPost, "/api/conversations/"+conversation.ID+"/messages", map[string]string{"content": "Yes please"}, recipientToken)
	require.Equal(t, http.StatusCreated, reply.Code, reply.Body.String())

	senderItems, _ := listNotifications(t, env, senderToken, "")
	require.Len(t, senderItems, 1)
	require.Equal(t, "New message from "+recipient.Username, senderItems[0].Title)

	self := env.Request(http.MethodPost, "/api/conversations", map[string]string{"recipient_id": sender.ID}, senderToken)
	require.Equal(t, http.StatusBadRequest, self.Code)

	missing := env.Request(http.MethodPost, "/api/conversations", map[string]string{"recipient_id": "00000000-0000-0000-0000-000000000000"}, senderToken)
	require.Equal(t, http.StatusNotFound, missing.Code)
}

func TestProjectHandler_UpdateFansOutToMembers(t *testing.T) {
	env := testutil.NewEnv(t)
	creator := env.CreateUser()
	author := env.CreateUser()
	member := env.CreateUser()
	outsider := env.CreateUser()
	creatorToken := env.Token(creator)
	authorToken := env.Token(author)
	memberToken := env.Token(member)
	outsiderToken := env.Token(outsider)

	create := env.Request(http.MethodPost, "/api/projects", map[string]any{
		"title": "Community garden",
		"tags":  []string{"garden", "food"},
	}, creatorToken)
	require.Equal(t, http.StatusCreated, create.Code, create.Body.String())
	var project idPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, create).Data, &project)

	// Joining without a body adds the caller.
	join := env.Request(http.MethodPost, "/api/projects/"+project.ID+"/members", nil, authorToken)
	require.Equal(t, http.StatusOK, join.Code, join.Body.String())
	add := env.Request(http.MethodPost, "/api/projects/"+project.ID+"/members", map[string]string{"user_id": member.ID}, creatorToken)
	require.Equal(t, http.StatusOK, add.Code, add.Body.String())

	// Regular users cannot enrol someone else in a project they did not create.
	foreign := env.Request(http.MethodPost, "/api/projects/"+project.ID+"/members", map[string]string{"user_id": outsider.ID}, memberToken)
	require.Equal(t, http.StatusForbidden, foreign.Code)

	update := env.Request(http.MethodPost, "/api/projects/"+project.ID+"/updates", map[string]string{"content": "Beds are built!"}, authorToken)
	require.Equal(t, http.StatusCreated, update.Code, update.Body.String())

	for _, token := range []string{creatorToken, memberToken} {
		items, _ := listNotifications(t, env, token, "")
		require.Len(t, items, 1)
		require.Equal(t, string(models.NotificationKindProjectUpdate), items[0].Kind)
		require.Equal(t, "/api/projects/"+project.ID, items[0].Link)
	}
	authorItems, _ := listNotifications(t, env, authorToken, "")
	require.Empty(t, authorItems)

	denied := env.Request(http.MethodPost, "/api/projects/"+project.ID+"/updates", map[string]string{"content": "hi"}, outsiderToken)
	require.Equal(t, http.StatusForbidden, denied.Code)

	leave := env.Request(http.MethodDelete, "/api/projects/"+project.ID+"/members/"+member.ID, nil, memberToken)
	require.Equal(t, http.StatusOK, leave.Code, leave.Body.String())

	get := env.Request(http.MethodGet, "/api/projects/"+project.ID, nil, outsiderToken)
	require.Equal(t, http.StatusOK, get.Code)
	var detail struct {
		Title   string   `json:"title"`
		Tags    []string `json:"tags"`
		Members []struct {
			UserID string `json:"user_id"`
		} `json:"members"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, get).Data, &detail)
	require.Equal(t, "Community garden", detail.Title)
	require.ElementsMatch(t, []string{"garden", "food"}, detail.Tags)
	require.Len(t, detail.Members, 1)
	require.Equal(t, author.ID, detail.Members[0].UserID)

	notFound := env.Request(http.MethodGet, "/api/projects/00000000-0000-0000-0000-000000000000", nil, outsiderToken)
	require.Equal(t, http.StatusNotFound, notFound.Code)
}

func TestForumHandler_Validation(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.Token(env.CreateUser())

	missing := env.Request(http.MethodPost, "/api/forums/topics", map[string]string{"title": "No body"}, token)
	require.Equal(t, http.StatusBadRequest, missing.Code)

	unknown := env.Request(http.MethodPost, "/api/forums/topics/00000000-0000-0000-0000-000000000000/posts", map[string]string{"content": "hello"}, token)
	require.Equal(t, http.StatusNotFound, unknown.Code)

	unauthenticated := env.Request(http.MethodPost, "/api/forums/topics", map[string]string{"title": "t", "content": "c"}, "")
	require.Equal(t, http.StatusUnauthorized, unauthenticated.Code)
}
