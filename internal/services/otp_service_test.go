package services

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sustainabilityhub/sustainabilityhub/internal/auth/otp"
	"github.com/sustainabilityhub/sustainabilityhub/internal/models"
)

var sixDigits = regexp.MustCompile(`^[0-9]{6}$`)

func newOTPService(t *testing.T, db *gorm.DB, clock *testClock) (*OTPService, *captureChannel) {
	t.Helper()
	generator, err := otp.NewGenerator(6)
	require.NoError(t, err)
	channel := &captureChannel{}
	svc, err := NewOTPService(db, channel, generator, OTPConfig{Clock: clock.Now})
	require.NoError(t, err)
	return svc, channel
}

func TestOTPServiceIssueStoresDigestOnly(t *testing.T) {
	db := openServiceDB(t)
	clock := newTestClock()
	svc, channel := newOTPService(t, db, clock)

	expiresAt, err := svc.Issue(context.Background(), " Alice@Example.com ", models.OTPPurposeLogin)
	require.NoError(t, err)
	require.True(t, expiresAt.Equal(clock.Now().Add(DefaultOTPTTL)))

	sent := channel.last(t)
	require.Equal(t, "alice@example.com", sent.Email)
	require.Regexp(t, sixDigits, sent.Code)
	require.Equal(t, models.OTPPurposeLogin, sent.Purpose)

	var rows []models.OneTimePasscode
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.NotEqual(t, sent.Code, rows[0].CodeHash)
	require.Len(t, rows[0].CodeHash, 64)
	require.False(t, rows[0].Used)
}

func TestOTPServiceReissueReplacesPreviousCode(t *testing.T) {
	db := openServiceDB(t)
	clock := newTestClock()
	svc, channel := newOTPService(t, db, clock)
	ctx := context.Background()

	_, err := svc.Issue(ctx, "bob@example.com", models.OTPPurposeLogin)
	require.NoError(t, err)
	first := channel.last(t).Code

	_, err = svc.Issue(ctx, "bob@example.com", models.OTPPurposeLogin)
	require.NoError(t, err)
	second := channel.last(t).Code

	var count int64
	require.NoError(t, db.Model(&models.OneTimePasscode{}).Where("email = ?", "bob@example.com").Count(&count).Error)
	require.EqualValues(t, 1, count)

	if first != second {
		require.ErrorIs(t, svc.Consume(ctx, "bob@example.com", first, models.OTPPurposeLogin), ErrMismatch)
	}
	require.NoError(t, svc.Consume(ctx, "bob@example.com", second, models.OTPPurposeLogin))
}

func TestOTPServiceConsumeOnce(t *testing.T) {
	db := openServiceDB(t)
	clock := newTestClock()
	svc, channel := newOTPService(t, db, clock)
	ctx := context.Background()

	_, err := svc.Issue(ctx, "carol@example.com", models.OTPPurposeReset)
	require.NoError(t, err)
	code := channel.last(t).Code

	require.ErrorIs(t, svc.Consume(ctx, "carol@example.com", code, models.OTPPurposeLogin), ErrMismatch)
	require.NoError(t, svc.Consume(ctx, "carol@example.com", code, models.OTPPurposeReset))
	require.ErrorIs(t, svc.Consume(ctx, "carol@example.com", code, models.OTPPurposeReset), ErrAlreadyUsed)

	var row models.OneTimePasscode
	require.NoError(t, db.Where("email = ?", "carol@example.com").Take(&row).Error)
	require.True(t, row.Used)
	require.NotNil(t, row.UsedAt)
}

func TestOTPServiceExpiredCodeNeverVerifies(t *testing.T) {
	db := openServiceDB(t)
	clock := newTestClock()
	svc, channel := newOTPService(t, db, clock)
	ctx := context.Background()

	_, err := svc.Issue(ctx, "dave@example.com", models.OTPPurposeLogin)
	require.NoError(t, err)
	code := channel.last(t).Code

	clock.Advance(DefaultOTPTTL)
	require.ErrorIs(t, svc.Consume(ctx, "dave@example.com", code, models.OTPPurposeLogin), ErrExpired)

	clock.Advance(time.Hour)
	require.ErrorIs(t, svc.Consume(ctx, "dave@example.com", code, models.OTPPurposeLogin), ErrExpired)
}

func TestOTPServiceIssueValidatesInput(t *testing.T) {
	db := openServiceDB(t)
	svc, channel := newOTPService(t, db, newTestClock())
	ctx := context.Background()

	_, err := svc.Issue(ctx, "  ", models.OTPPurposeLogin)
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Issue(ctx, "erin@example.com", "signup")
	require.ErrorIs(t, err, ErrValidation)
	require.Empty(t, channel.passcodes)
}

func TestOTPServiceDeliveryFailureKeepsCode(t *testing.T) {
	db := openServiceDB(t)
	svc, channel := newOTPService(t, db, newTestClock())
	channel.err = errors.New("smtp down")
	ctx := context.Background()

	_, err := svc.Issue(ctx, "frank@example.com", models.OTPPurposeLogin)
	require.ErrorContains(t, err, "smtp down")

	code := channel.last(t).Code
	require.NoError(t, svc.Consume(ctx, "frank@example.com", code, models.OTPPurposeLogin))
}

func TestOTPServicePurgeExpired(t *testing.T) {
	db := openServiceDB(t)
	clock := newTestClock()
	svc, channel := newOTPService(t, db, clock)
	ctx := context.Background()

	_, err := svc.Issue(ctx, "old@example.com", models.OTPPurposeLogin)
	require.NoError(t, err)
	_, err = svc.Issue(ctx, "used@example.com", models.OTPPurposeLogin)
	require.NoError(t, err)
	require.NoError(t, svc.Consume(ctx, "used@example.com", channel.last(t).Code, models.OTPPurposeLogin))

	clock.Advance(DefaultOTPTTL / 2)
	_, err = svc.Issue(ctx, "fresh@example.com", models.OTPPurposeLogin)
	require.NoError(t, err)

	removed, err := svc.PurgeExpired(ctx, clock.Now().Add(DefaultOTPTTL/2+time.Second))
	require.NoError(t, err)
	require.EqualValues(t, 2, removed)

	var remaining []string
	require.NoError(t, db.Model(&models.OneTimePasscode{}).Pluck("email", &remaining).Error)
	require.Equal(t, []string{"fresh@example.com"}, remaining)
}
