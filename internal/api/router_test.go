package api_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sustainabilityhub/sustainabilityhub/internal/api"
	"github.com/sustainabilityhub/sustainabilityhub/internal/app"
	"github.com/sustainabilityhub/sustainabilityhub/internal/handlers/testutil"
)

func TestRouter_PublicAndProtectedRoutes(t *testing.T) {
	env := testutil.NewEnv(t)

	require.Equal(t, http.StatusOK, env.Request(http.MethodGet, "/health", nil, "").Code)

	for _, path := range []string{"/api/auth/me", "/api/notifications", "/api/admin/users", "/api/accounts/warnings"} {
		w := env.Request(http.MethodGet, path, nil, "")
		require.Equal(t, http.StatusUnauthorized, w.Code, path)
	}

	public := env.Request(http.MethodPost, "/api/auth/otp/request", map[string]string{"email": "nobody@example.org"}, "")
	require.NotEqual(t, http.StatusUnauthorized, public.Code)
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	env := testutil.NewEnv(t)

	env.Request(http.MethodGet, "/health", nil, "")
	w := env.Request(http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, strings.Contains(w.Body.String(), "sustainabilityhub_"), "metrics should expose application collectors")
}

func TestRouter_NoRoute(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/api/does-not-exist", nil, "")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "NOT_FOUND", testutil.ErrorCode(t, w))
}

func TestRouter_FeatureFlags(t *testing.T) {
	env := testutil.NewEnv(t, func(cfg *app.Config) {
		cfg.Features.Registration.Enabled = false
		cfg.Monitoring.Prometheus.Enabled = false
		cfg.Monitoring.Health.Enabled = false
	})

	register := env.Request(http.MethodPost, "/api/auth/register", map[string]string{
		"username": "newcomer",
		"email":    "newcomer@example.org",
		"password": testutil.Password,
	}, "")
	require.Equal(t, http.StatusNotFound, register.Code)
	require.Equal(t, http.StatusNotFound, env.Request(http.MethodGet, "/metrics", nil, "").Code)
	require.Equal(t, http.StatusNotFound, env.Request(http.MethodGet, "/health", nil, "").Code)
}

func TestRouter_RealtimeDisabled(t *testing.T) {
	env := testutil.NewEnv(t, func(cfg *app.Config) {
		cfg.Features.Realtime.Enabled = false
	})
	user := env.CreateUser()

	w := env.Request(http.MethodGet, "/api/notifications/stream?token="+env.Token(user), nil, "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestNewRouter_RequiresDependencies(t *testing.T) {
	_, err := api.NewRouter(api.Dependencies{})
	require.Error(t, err)

	_, err = api.NewRouter(api.Dependencies{Config: &app.Config{}})
	require.ErrorContains(t, err, "database")
}
