package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sustainabilityhub/sustainabilityhub/internal/api"
	"github.com/sustainabilityhub/sustainabilityhub/internal/app"
	iauth "github.com/sustainabilityhub/sustainabilityhub/internal/auth"
	"github.com/sustainabilityhub/sustainabilityhub/internal/auth/otp"
	"github.com/sustainabilityhub/sustainabilityhub/internal/auth/providers"
	sharedtestutil "github.com/sustainabilityhub/sustainabilityhub/internal/database/testutil"
	"github.com/sustainabilityhub/sustainabilityhub/internal/delivery"
	"github.com/sustainabilityhub/sustainabilityhub/internal/middleware"
	"github.com/sustainabilityhub/sustainabilityhub/internal/models"
	"github.com/sustainabilityhub/sustainabilityhub/internal/monitoring"
	"github.com/sustainabilityhub/sustainabilityhub/internal/realtime"
	"github.com/sustainabilityhub/sustainabilityhub/internal/services"
	"github.com/sustainabilityhub/sustainabilityhub/pkg/crypto"
	"github.com/sustainabilityhub/sustainabilityhub/pkg/response"
)

// Password is the plain-text password of every user created by the helpers.
const Password = "correct-horse-battery"

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T        *testing.T
	DB       *gorm.DB
	Router   *gin.Engine
	JWT      *iauth.JWTService
	Config   *app.Config
	Mailbox  *Mailbox
	Hub      *realtime.Hub
	Health   *monitoring.HealthManager
	Jobs     *monitoring.JobTracker
	Sessions *iauth.SessionService
}

// Option adjusts the configuration before the router is built.
type Option func(*app.Config)

// WithRateLimit sets the auth route budget.
func WithRateLimit(requests int, window time.Duration) Option {
	return func(cfg *app.Config) {
		cfg.Auth.RateLimit = app.RateLimitSettings{Requests: requests, Window: window}
	}
}

// WithMaxAttempts sets how many wrong passcodes a flow tolerates.
func WithMaxAttempts(n int) Option {
	return func(cfg *app.Config) {
		cfg.Auth.OTP.MaxAttempts = n
	}
}

// Mailbox records delivered passcodes in place of a real channel.
type Mailbox struct {
	mu        sync.Mutex
	passcodes []delivery.Passcode
}

// Name implements delivery.Channel.
func (m *Mailbox) Name() string { return "mailbox" }

// Deliver implements delivery.Channel.
func (m *Mailbox) Deliver(_ context.Context, p delivery.Passcode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passcodes = append(m.passcodes, p)
	return nil
}

// Last returns the most recent passcode sent to email.
func (m *Mailbox) Last(t *testing.T, email string) delivery.Passcode {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.passcodes) - 1; i >= 0; i-- {
		if m.passcodes[i].Email == email {
			return m.passcodes[i]
		}
	}
	t.Fatalf("no passcode delivered to %s", email)
	return delivery.Passcode{}
}

// Count reports how many passcodes were delivered.
func (m *Mailbox) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.passcodes)
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T, opts ...Option) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())

	cfg := &app.Config{
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
		Features: app.FeatureConfig{
			Realtime:     app.RealtimeConfig{Enabled: true},
			Registration: app.RegistrationConfig{Enabled: true},
		},
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: "test-suite-super-secret-key-32-bytes!!",
				Issuer: "test-suite",
				TTL:    time.Hour,
			},
			Session: app.SessionSettings{
				RefreshTTL:    24 * time.Hour,
				RefreshLength: 48,
			},
			OTP: app.OTPSettings{
				Digits:     6,
				CookieName: "sh_auth_flow",
			},
			RateLimit: app.RateLimitSettings{Requests: 1000, Window: time.Minute},
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)
	sessionSvc, err := iauth.NewSessionService(db, jwtSvc, cfg.Auth.SessionServiceConfig())
	require.NoError(t, err)
	local, err := providers.NewLocalProvider(db, cfg.Auth.LocalProviderConfig())
	require.NoError(t, err)

	mailbox := &Mailbox{}
	generator, err := otp.NewGenerator(cfg.Auth.OTP.Digits)
	require.NoError(t, err)
	otpSvc, err := services.NewOTPService(db, mailbox, generator, cfg.Auth.OTPServiceConfig())
	require.NoError(t, err)
	flows, err := services.NewAuthFlowService(db, otpSvc, sessionSvc, local, cfg.Auth.AuthFlowServiceConfig())
	require.NoError(t, err)

	hub := realtime.NewHub()
	notifications, err := services.NewNotificationService(db, hub)
	require.NoError(t, err)
	triggers, err := services.NewNotificationTriggers(notifications)
	require.NoError(t, err)
	forums, err := services.NewForumService(db, triggers)
	require.NoError(t, err)
	conversations, err := services.NewConversationService(db, triggers)
	require.NoError(t, err)
	projects, err := services.NewProjectService(db, triggers)
	require.NoError(t, err)
	moderation, err := services.NewModerationService(db, triggers)
	require.NoError(t, err)
	users, err := services.NewUserService(db, triggers, sessionSvc)
	require.NoError(t, err)

	health := monitoring.NewHealthManager()
	jobs := monitoring.NewJobTracker()

	router, err := api.NewRouter(api.Dependencies{
		Config:        cfg,
		DB:            db,
		JWT:           jwtSvc,
		Sessions:      sessionSvc,
		Local:         local,
		AuthFlows:     flows,
		Notifications: notifications,
		Forums:        forums,
		Conversations: conversations,
		Projects:      projects,
		Moderation:    moderation,
		Users:         users,
		Hub:           hub,
		Health:        health,
		Jobs:          jobs,
		RateStore:     middleware.NewMemoryRateStore(),
	})
	require.NoError(t, err)

	return &Env{
		T:        t,
		DB:       db,
		Router:   router,
		JWT:      jwtSvc,
		Config:   cfg,
		Mailbox:  mailbox,
		Hub:      hub,
		Health:   health,
		Jobs:     jobs,
		Sessions: sessionSvc,
	}
}

// UserOption adjusts a user before it is inserted.
type UserOption func(*models.User)

// Staff grants staff access.
func Staff() UserOption {
	return func(u *models.User) { u.IsStaff = true }
}

// Superuser grants superuser access.
func Superuser() UserOption {
	return func(u *models.User) {
		u.IsStaff = true
		u.IsSuperuser = true
	}
}

// CreateUser inserts an active user with a random username and Password.
func (e *Env) CreateUser(opts ...UserOption) *models.User {
	e.T.Helper()

	username := "user" + uuid.NewString()[:8]
	hashed, err := crypto.HashPassword(Password)
	require.NoError(e.T, err)

	user := &models.User{
		Username: username,
		Email:    username + "@example.org",
		Password: hashed,
		IsActive: true,
	}
	for _, opt := range opts {
		opt(user)
	}

	require.NoError(e.T, e.DB.Create(user).Error)
	return user
}

// TokenPair mirrors the token part of the login response.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// UserPayload captures the user fields returned from auth endpoints.
type UserPayload struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	IsActive    bool   `json:"is_active"`
	IsStaff     bool   `json:"is_staff"`
	IsSuperuser bool   `json:"is_superuser"`
}

// LoginResult bundles the JSON response from POST /api/auth/login.
type LoginResult struct {
	Tokens TokenPair   `json:"tokens"`
	User   UserPayload `json:"user"`
}

// Login authenticates with the password endpoint and returns the issued session.
func (e *Env) Login(identifier string) LoginResult {
	e.T.Helper()

	payload := map[string]string{
		"identifier": identifier,
		"password":   Password,
	}

	w := e.Request(http.MethodPost, "/api/auth/login", payload, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var result LoginResult
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.Tokens.AccessToken)
	require.NotEmpty(e.T, result.Tokens.RefreshToken)
	return result
}

// Token logs user in and returns the access token.
func (e *Env) Token(user *models.User) string {
	e.T.Helper()
	return e.Login(user.Username).Tokens.AccessToken
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// ErrorCode returns the error code of a failed response.
func ErrorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	resp := DecodeResponse(t, w)
	require.False(t, resp.Success, w.Body.String())
	require.NotNil(t, resp.Error, w.Body.String())
	return resp.Error.Code
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

// Cookie returns the named cookie set by a response, or nil.
func Cookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
