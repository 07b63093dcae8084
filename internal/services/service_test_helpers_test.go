package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sustainabilityhub/sustainabilityhub/internal/database/testutil"
	"github.com/sustainabilityhub/sustainabilityhub/internal/delivery"
	"github.com/sustainabilityhub/sustainabilityhub/internal/models"
	"github.com/sustainabilityhub/sustainabilityhub/internal/realtime"
	"github.com/sustainabilityhub/sustainabilityhub/pkg/crypto"
)

const testPassword = "correct-horse"

type published struct {
	stream  string
	userID  string
	message realtime.Message
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) BroadcastToUser(stream, userID string, message realtime.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{stream: stream, userID: userID, message: message})
}

func (p *recordingPublisher) eventsFor(userID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		if e.userID == userID {
			out = append(out, e.message.Event)
		}
	}
	return out
}

type captureChannel struct {
	mu        sync.Mutex
	err       error
	passcodes []delivery.Passcode
}

func (c *captureChannel) Name() string { return "capture" }

func (c *captureChannel) Deliver(_ context.Context, p delivery.Passcode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.passcodes = append(c.passcodes, p)
	return c.err
}

func (c *captureChannel) last(t *testing.T) delivery.Passcode {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.passcodes, "no passcode delivered")
	return c.passcodes[len(c.passcodes)-1]
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func openServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
}

type userOption func(*models.User)

func asInactive() userOption { return func(u *models.User) { u.IsActive = false } }

func asSuperuser() userOption {
	return func(u *models.User) {
		u.IsStaff = true
		u.IsSuperuser = true
	}
}

func createUser(t *testing.T, db *gorm.DB, username string, opts ...userOption) *models.User {
	t.Helper()
	hashed, err := crypto.HashPassword(testPassword)
	require.NoError(t, err)

	user := &models.User{
		Username: username,
		Email:    strings.ToLower(username) + "@example.com",
		Password: hashed,
		IsActive: true,
	}
	for _, opt := range opts {
		opt(user)
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func newNotificationService(t *testing.T, db *gorm.DB) (*NotificationService, *recordingPublisher) {
	t.Helper()
	publisher := &recordingPublisher{}
	svc, err := NewNotificationService(db, publisher)
	require.NoError(t, err)
	return svc, publisher
}

func newTriggers(t *testing.T, notifications *NotificationService) *NotificationTriggers {
	t.Helper()
	triggers, err := NewNotificationTriggers(notifications)
	require.NoError(t, err)
	return triggers
}

func notificationsFor(t *testing.T, db *gorm.DB, userID string) []models.Notification {
	t.Helper()
	var rows []models.Notification
	require.NoError(t, db.Where("user_id = ?", userID).Order("created_at ASC").Find(&rows).Error)
	return rows
}
