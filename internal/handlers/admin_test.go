package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sustainabilityhub/sustainabilityhub/internal/handlers/testutil"
	"github.com/sustainabilityhub/sustainabilityhub/internal/models"
	"github.com/sustainabilityhub/sustainabilityhub/internal/monitoring"
)

func TestAdminUsers_RequiresSuperuser(t *testing.T) {
	env := testutil.NewEnv(t)

	member := env.Request(http.MethodGet, "/api/admin/users", nil, env.Token(env.CreateUser()))
	require.Equal(t, http.StatusForbidden, member.Code)
	require.Equal(t, "FORBIDDEN", testutil.ErrorCode(t, member))

	staff := env.Request(http.MethodGet, "/api/admin/users", nil, env.Token(env.CreateUser(testutil.Staff())))
	require.Equal(t, http.StatusForbidden, staff.Code)
}

func TestAdminUsers_ListWithCounts(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.CreateUser(testutil.Superuser())
	env.CreateUser(testutil.Staff())
	inactive := env.CreateUser()
	require.NoError(t, env.DB.Model(&models.User{}).Where("id = ?", inactive.ID).Update("is_active", false).Error)

	w := env.Request(http.MethodGet, "/api/admin/users?per_page=2", nil, env.Token(admin))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := testutil.DecodeResponse(t, w)

	var payload struct {
		Users  []testutil.UserPayload `json:"users"`
		Counts struct {
			Total     int64 `json:"total"`
			Active    int64 `json:"active"`
			Inactive  int64 `json:"inactive"`
			Staff     int64 `json:"staff"`
			Superuser int64 `json:"superuser"`
		} `json:"counts"`
	}
	testutil.DecodeInto(t, resp.Data, &payload)
	require.Len(t, payload.Users, 2)
	require.EqualValues(t, 3, payload.Counts.Total)
	require.EqualValues(t, 1, payload.Counts.Active)
	require.EqualValues(t, 1, payload.Counts.Inactive)
	require.EqualValues(t, 2, payload.Counts.Staff)
	require.EqualValues(t, 1, payload.Counts.Superuser)
	require.EqualValues(t, 3, resp.Meta.Total)
	require.Equal(t, 2, resp.Meta.TotalPages)

	filtered := env.Request(http.MethodGet, "/api/admin/users?status=inactive", nil, env.Token(admin))
	require.Equal(t, http.StatusOK, filtered.Code)
	testutil.DecodeInto(t, testutil.DecodeResponse(t, filtered).Data, &payload)
	require.Len(t, payload.Users, 1)
	require.Equal(t, inactive.ID, payload.Users[0].ID)
}

func TestAdminUsers_IssueWarningAndJustify(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.CreateUser(testutil.Superuser())
	user := env.CreateUser()
	adminToken := env.Token(admin)
	userToken := env.Token(user)

	issue := env.Request(http.MethodPost, "/api/admin/users/"+user.ID+"/warnings", map[string]string{
		"severity": "high",
		"reason":   "Spam in forums",
	}, adminToken)
	require.Equal(t, http.StatusCreated, issue.Code, issue.Body.String())
	var warning idPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, issue).Data, &warning)

	items, _ := listNotifications(t, env, userToken, "")
	require.Len(t, items, 1)
	require.Equal(t, string(models.NotificationKindWarning), items[0].Kind)
	require.Equal(t, "High Warning", items[0].Title)

	badSeverity := env.Request(http.MethodPost, "/api/admin/users/"+user.ID+"/warnings", map[string]string{
		"severity": "apocalyptic",
		"reason":   "x",
	}, adminToken)
	require.Equal(t, http.StatusBadRequest, badSeverity.Code)

	mine := env.Request(http.MethodGet, "/api/accounts/warnings", nil, userToken)
	require.Equal(t, http.StatusOK, mine.Code)
	var warnings []struct {
		ID       string `json:"id"`
		Severity string `json:"severity"`
		Reason   string `json:"reason"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, mine).Data, &warnings)
	require.Len(t, warnings, 1)
	require.Equal(t, "Spam in forums", warnings[0].Reason)

	other := env.Request(http.MethodPost, "/api/accounts/warnings/"+warning.ID+"/justification",
		map[string]string{"justification": "not mine"}, env.Token(env.CreateUser()))
	require.Equal(t, http.StatusNotFound, other.Code)

	justify := env.Request(http.MethodPost, "/api/accounts/warnings/"+warning.ID+"/justification",
		map[string]string{"justification": "Those were event announcements."}, userToken)
	require.Equal(t, http.StatusOK, justify.Code, justify.Body.String())

	list := env.Request(http.MethodGet, "/api/admin/users/"+user.ID+"/warnings", nil, adminToken)
	require.Equal(t, http.StatusOK, list.Code)
	var adminView []struct {
		Justification string `json:"justification"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, list).Data, &adminView)
	require.Len(t, adminView, 1)
	require.Equal(t, "Those were event announcements.", adminView[0].Justification)
}

func TestAdminUsers_ToggleStatus(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.CreateUser(testutil.Superuser())
	other := env.CreateUser(testutil.Superuser())
	user := env.CreateUser()
	adminToken := env.Token(admin)
	session := env.Login(user.Username)

	off := env.Request(http.MethodPost, "/api/admin/users/"+user.ID+"/toggle-status", nil, adminToken)
	require.Equal(t, http.StatusOK, off.Code, off.Body.String())
	var toggled struct {
		ID       string `json:"id"`
		IsActive bool   `json:"is_active"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, off).Data, &toggled)
	require.Equal(t, user.ID, toggled.ID)
	require.False(t, toggled.IsActive)

	me := env.Request(http.MethodGet, "/api/auth/me", nil, session.Tokens.AccessToken)
	require.Equal(t, http.StatusForbidden, me.Code)
	require.Equal(t, "ACCOUNT_DISABLED", testutil.ErrorCode(t, me))

	refresh := env.Request(http.MethodPost, "/api/auth/refresh", map[string]string{"refresh_token": session.Tokens.RefreshToken}, "")
	require.NotEqual(t, http.StatusOK, refresh.Code)

	var notifications []models.Notification
	require.NoError(t, env.DB.Where("user_id = ?", user.ID).Find(&notifications).Error)
	require.Len(t, notifications, 1)
	require.Equal(t, models.NotificationKindAccountStatus, notifications[0].Kind)
	require.Equal(t, "Account Deactivated", notifications[0].Title)

	on := env.Request(http.MethodPost, "/api/admin/users/"+user.ID+"/toggle-status", nil, adminToken)
	require.Equal(t, http.StatusOK, on.Code)
	testutil.DecodeInto(t, testutil.DecodeResponse(t, on).Data, &toggled)
	require.True(t, toggled.IsActive)
	env.Login(user.Username)

	protected := env.Request(http.MethodPost, "/api/admin/users/"+other.ID+"/toggle-status", nil, adminToken)
	require.Equal(t, http.StatusForbidden, protected.Code)

	missing := env.Request(http.MethodPost, "/api/admin/users/00000000-0000-0000-0000-000000000000/toggle-status", nil, adminToken)
	require.Equal(t, http.StatusNotFound, missing.Code)
}

func TestHealthEndpoints(t *testing.T) {
	env := testutil.NewEnv(t)

	for _, path := range []string{"/health", "/health/live", "/health/ready", "/api/health"} {
		w := env.Request(http.MethodGet, path, nil, "")
		require.Equal(t, http.StatusOK, w.Code, path)
	}

	env.Health.RegisterReadiness(monitoring.NewCheck("database", func(context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "connection refused"}
	}))

	ready := env.Request(http.MethodGet, "/health/ready", nil, "")
	require.Equal(t, http.StatusServiceUnavailable, ready.Code)
	var report monitoring.HealthReport
	require.NoError(t, json.Unmarshal(ready.Body.Bytes(), &report))
	require.False(t, report.Success)
	require.Len(t, report.Checks, 1)
	require.Equal(t, "database", report.Checks[0].Component)

	live := env.Request(http.MethodGet, "/health/live", nil, "")
	require.Equal(t, http.StatusOK, live.Code)
}

func TestAdminMaintenanceReportsJobs(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Jobs.Record("otp_cleanup", nil, time.Millisecond)
	env.Jobs.Record("session_cleanup", errors.New("locked"), time.Millisecond)

	w := env.Request(http.MethodGet, "/api/admin/maintenance", nil, env.Token(env.CreateUser(testutil.Superuser())))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var payload struct {
		Jobs []monitoring.JobSummary `json:"jobs"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &payload)
	require.Len(t, payload.Jobs, 2)
	require.Equal(t, "otp_cleanup", payload.Jobs[0].Job)
	require.Equal(t, "success", payload.Jobs[0].LastStatus)
	require.Equal(t, "failure", payload.Jobs[1].LastStatus)
	require.Equal(t, "locked", payload.Jobs[1].LastError)
}
