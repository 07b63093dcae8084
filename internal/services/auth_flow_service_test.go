package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sustainabilityhub/sustainabilityhub/internal/auth"
	"github.com/sustainabilityhub/sustainabilityhub/internal/auth/providers"
	"github.com/sustainabilityhub/sustainabilityhub/internal/models"
	"github.com/sustainabilityhub/sustainabilityhub/pkg/crypto"
)

type flowFixture struct {
	db       *gorm.DB
	clock    *testClock
	channel  *captureChannel
	otp      *OTPService
	sessions *auth.SessionService
	jwt      *auth.JWTService
	flows    *AuthFlowService
}

func newFlowFixture(t *testing.T) *flowFixture {
	t.Helper()
	db := openServiceDB(t)
	clock := newTestClock()
	otpService, channel := newOTPService(t, db, clock)

	jwtService, err := auth.NewJWTService(auth.JWTConfig{
		Secret: "0123456789abcdef0123456789abcdef",
		Issuer: "sustainabilityhub-test",
	})
	require.NoError(t, err)
	sessions, err := auth.NewSessionService(db, jwtService, auth.SessionConfig{Clock: clock.Now})
	require.NoError(t, err)
	local, err := providers.NewLocalProvider(db, providers.LocalConfig{Clock: clock.Now})
	require.NoError(t, err)

	flows, err := NewAuthFlowService(db, otpService, sessions, local, AuthFlowConfig{Clock: clock.Now})
	require.NoError(t, err)

	return &flowFixture{
		db:       db,
		clock:    clock,
		channel:  channel,
		otp:      otpService,
		sessions: sessions,
		jwt:      jwtService,
		flows:    flows,
	}
}

func (f *flowFixture) flowCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&models.AuthFlow{}).Count(&count).Error)
	return count
}

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func TestAuthFlowRequestValidation(t *testing.T) {
	f := newFlowFixture(t)
	createUser(t, f.db, "sleepy", asInactive())
	ctx := context.Background()

	_, err := f.flows.RequestLogin(ctx, "")
	require.ErrorIs(t, err, ErrValidation)

	_, err = f.flows.RequestLogin(ctx, "nobody@example.com")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.flows.RequestReset(ctx, "sleepy@example.com")
	require.ErrorIs(t, err, ErrAccountDisabled)

	require.Empty(t, f.channel.passcodes)
	require.Zero(t, f.flowCount(t))
}

func TestAuthFlowLoginSuccess(t *testing.T) {
	f := newFlowFixture(t)
	user := createUser(t, f.db, "alice")
	ctx := context.Background()

	start, err := f.flows.RequestLogin(ctx, "ALICE@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, start.Token)
	require.Equal(t, models.AuthFlowLogin, start.Flow)
	require.True(t, start.ExpiresAt.Equal(f.clock.Now().Add(DefaultOTPTTL)))

	var flow models.AuthFlow
	require.NoError(t, f.db.Take(&flow).Error)
	require.Equal(t, crypto.HashToken(start.Token), flow.TokenHash)
	require.Equal(t, models.AuthFlowStageOTPIssued, flow.Stage)

	code := f.channel.last(t).Code
	result, err := f.flows.Verify(ctx, start.Token, code, auth.SessionMetadata{IPAddress: "10.0.0.1", UserAgent: "test"})
	require.NoError(t, err)
	require.Equal(t, models.AuthFlowLogin, result.Flow)
	require.NotNil(t, result.Tokens)
	require.Equal(t, user.ID, result.User.ID)
	require.False(t, result.ResetPending)

	claims, err := f.jwt.ValidateAccessToken(result.Tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.UserID)
	require.Equal(t, auth.MethodOTP, claims.Method)

	require.Zero(t, f.flowCount(t), "login flow is deleted on success")

	var reloaded models.User
	require.NoError(t, f.db.Take(&reloaded, "id = ?", user.ID).Error)
	require.NotNil(t, reloaded.LastLoginAt)
	require.Equal(t, "10.0.0.1", reloaded.LastLoginIP)

	_, err = f.flows.Verify(ctx, start.Token, code, auth.SessionMetadata{})
	require.ErrorIs(t, err, ErrFlowMissing)
}

func TestAuthFlowVerifyMismatchKeepsFlow(t *testing.T) {
	f := newFlowFixture(t)
	createUser(t, f.db, "bob")
	ctx := context.Background()

	start, err := f.flows.RequestLogin(ctx, "bob@example.com")
	require.NoError(t, err)
	code := f.channel.last(t).Code

	_, err = f.flows.Verify(ctx, start.Token, wrongCode(code), auth.SessionMetadata{})
	require.ErrorIs(t, err, ErrMismatch)

	var flow models.AuthFlow
	require.NoError(t, f.db.Take(&flow).Error)
	require.Equal(t, 1, flow.Attempts)

	result, err := f.flows.Verify(ctx, start.Token, code, auth.SessionMetadata{})
	require.NoError(t, err)
	require.NotNil(t, result.Tokens)
}

func TestAuthFlowTooManyAttempts(t *testing.T) {
	f := newFlowFixture(t)
	createUser(t, f.db, "carol")
	ctx := context.Background()

	start, err := f.flows.RequestLogin(ctx, "carol@example.com")
	require.NoError(t, err)
	code := f.channel.last(t).Code
	bad := wrongCode(code)

	for i := 1; i < DefaultMaxFlowAttempts; i++ {
		_, err = f.flows.Verify(ctx, start.Token, bad, auth.SessionMetadata{})
		require.ErrorIs(t, err, ErrMismatch, "attempt %d", i)
	}
	_, err = f.flows.Verify(ctx, start.Token, bad, auth.SessionMetadata{})
	require.ErrorIs(t, err, ErrTooManyAttempts)

	require.Zero(t, f.flowCount(t))
	var passcodes int64
	require.NoError(t, f.db.Model(&models.OneTimePasscode{}).Count(&passcodes).Error)
	require.Zero(t, passcodes)

	_, err = f.flows.Verify(ctx, start.Token, code, auth.SessionMetadata{})
	require.ErrorIs(t, err, ErrFlowMissing)
}

func TestAuthFlowMissLimitUsesStoredCount(t *testing.T) {
	f := newFlowFixture(t)
	createUser(t, f.db, "cora")
	ctx := context.Background()

	_, err := f.flows.RequestLogin(ctx, "cora@example.com")
	require.NoError(t, err)

	var stale models.AuthFlow
	require.NoError(t, f.db.Take(&stale).Error)
	require.Zero(t, stale.Attempts)

	// Other requests already spent all but one attempt after stale was read.
	require.NoError(t, f.db.Model(&models.AuthFlow{}).Where("id = ?", stale.ID).
		Update("attempts", DefaultMaxFlowAttempts-1).Error)

	outcome, err := f.flows.recordMiss(ctx, f.db, &stale, newError(ErrMismatch, "wrong code"))
	require.NoError(t, err)
	require.ErrorIs(t, outcome, ErrTooManyAttempts)
	require.Zero(t, f.flowCount(t))

	var passcodes int64
	require.NoError(t, f.db.Model(&models.OneTimePasscode{}).Count(&passcodes).Error)
	require.Zero(t, passcodes)

	outcome, err = f.flows.recordMiss(ctx, f.db, &stale, newError(ErrMismatch, "wrong code"))
	require.NoError(t, err)
	require.ErrorIs(t, outcome, ErrFlowMissing, "a flow discarded by a concurrent miss is not counted again")
}

func TestAuthFlowExpiredFlowIsMissing(t *testing.T) {
	f := newFlowFixture(t)
	createUser(t, f.db, "dave")
	ctx := context.Background()

	start, err := f.flows.RequestLogin(ctx, "dave@example.com")
	require.NoError(t, err)
	code := f.channel.last(t).Code

	f.clock.Advance(DefaultOTPTTL + time.Second)
	_, err = f.flows.Verify(ctx, start.Token, code, auth.SessionMetadata{})
	require.ErrorIs(t, err, ErrFlowMissing)

	removed, err := f.flows.CleanupExpired(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	_, err = f.flows.Verify(ctx, "", code, auth.SessionMetadata{})
	require.ErrorIs(t, err, ErrFlowMissing)
}

func TestAuthFlowNewRequestReplacesFlow(t *testing.T) {
	f := newFlowFixture(t)
	createUser(t, f.db, "erin")
	ctx := context.Background()

	first, err := f.flows.RequestLogin(ctx, "erin@example.com")
	require.NoError(t, err)
	second, err := f.flows.RequestReset(ctx, "erin@example.com")
	require.NoError(t, err)
	require.EqualValues(t, 1, f.flowCount(t))

	code := f.channel.last(t).Code
	_, err = f.flows.Verify(ctx, first.Token, code, auth.SessionMetadata{})
	require.ErrorIs(t, err, ErrFlowMissing)

	result, err := f.flows.Verify(ctx, second.Token, code, auth.SessionMetadata{})
	require.NoError(t, err)
	require.True(t, result.ResetPending)
}

func TestAuthFlowPasswordResetEndToEnd(t *testing.T) {
	f := newFlowFixture(t)
	user := createUser(t, f.db, "frank")
	ctx := context.Background()

	_, existing, err := f.sessions.CreateSession(ctx, user.ID, auth.SessionMetadata{Method: auth.MethodPassword})
	require.NoError(t, err)

	start, err := f.flows.RequestReset(ctx, "frank@example.com")
	require.NoError(t, err)
	require.Equal(t, models.OTPPurposeReset, f.channel.last(t).Purpose)

	err = f.flows.ResetPassword(ctx, start.Token, "brand-new-pass", "brand-new-pass")
	require.ErrorIs(t, err, ErrFlowMissing, "reset requires a verified code")

	result, err := f.flows.Verify(ctx, start.Token, f.channel.last(t).Code, auth.SessionMetadata{})
	require.NoError(t, err)
	require.True(t, result.ResetPending)
	require.Nil(t, result.Tokens)

	var flow models.AuthFlow
	require.NoError(t, f.db.Take(&flow).Error)
	require.Equal(t, models.AuthFlowStageResetPending, flow.Stage)

	_, err = f.flows.Verify(ctx, start.Token, "123456", auth.SessionMetadata{})
	require.ErrorIs(t, err, ErrFlowMissing, "verified flow no longer accepts codes")

	err = f.flows.ResetPassword(ctx, start.Token, "brand-new-pass", "brand-new-pazz")
	require.ErrorIs(t, err, ErrMismatch)
	err = f.flows.ResetPassword(ctx, start.Token, "short", "short")
	require.ErrorIs(t, err, ErrValidation)
	err = f.flows.ResetPassword(ctx, start.Token, "ééééééé", "ééééééé")
	require.ErrorIs(t, err, ErrValidation, "length is counted in characters")
	err = f.flows.ResetPassword(ctx, start.Token, "short", "other")
	require.ErrorIs(t, err, ErrMismatch, "confirmation is checked before length")

	var unchanged models.User
	require.NoError(t, f.db.Take(&unchanged, "id = ?", user.ID).Error)
	require.True(t, crypto.VerifyPassword(unchanged.Password, testPassword))

	require.NoError(t, f.flows.ResetPassword(ctx, start.Token, "brand-new-pass", "brand-new-pass"))

	var updated models.User
	require.NoError(t, f.db.Take(&updated, "id = ?", user.ID).Error)
	require.True(t, crypto.VerifyPassword(updated.Password, "brand-new-pass"))
	require.False(t, crypto.VerifyPassword(updated.Password, testPassword))
	require.Zero(t, f.flowCount(t))

	var session models.Session
	require.NoError(t, f.db.Take(&session, "id = ?", existing.ID).Error)
	require.NotNil(t, session.RevokedAt)

	err = f.flows.ResetPassword(ctx, start.Token, "another-pass", "another-pass")
	require.ErrorIs(t, err, ErrFlowMissing)
}

func TestAuthFlowResetPendingExpires(t *testing.T) {
	f := newFlowFixture(t)
	createUser(t, f.db, "gina")
	ctx := context.Background()

	start, err := f.flows.RequestReset(ctx, "gina@example.com")
	require.NoError(t, err)
	_, err = f.flows.Verify(ctx, start.Token, f.channel.last(t).Code, auth.SessionMetadata{})
	require.NoError(t, err)

	f.clock.Advance(DefaultResetTTL)
	err = f.flows.ResetPassword(ctx, start.Token, "brand-new-pass", "brand-new-pass")
	require.ErrorIs(t, err, ErrFlowMissing)
}

func TestAuthFlowCancel(t *testing.T) {
	f := newFlowFixture(t)
	createUser(t, f.db, "hank")
	ctx := context.Background()

	start, err := f.flows.RequestLogin(ctx, "hank@example.com")
	require.NoError(t, err)

	require.NoError(t, f.flows.Cancel(ctx, start.Token))
	require.Zero(t, f.flowCount(t))

	var passcodes int64
	require.NoError(t, f.db.Model(&models.OneTimePasscode{}).Count(&passcodes).Error)
	require.Zero(t, passcodes)

	require.NoError(t, f.flows.Cancel(ctx, start.Token))
	require.NoError(t, f.flows.Cancel(ctx, ""))
}

func TestAuthFlowDeactivatedBeforeVerify(t *testing.T) {
	f := newFlowFixture(t)
	user := createUser(t, f.db, "ivy")
	ctx := context.Background()

	start, err := f.flows.RequestLogin(ctx, "ivy@example.com")
	require.NoError(t, err)
	require.NoError(t, f.db.Model(user).Update("is_active", false).Error)

	_, err = f.flows.Verify(ctx, start.Token, f.channel.last(t).Code, auth.SessionMetadata{})
	require.ErrorIs(t, err, ErrAccountDisabled)
}
