package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/sustainabilityhub/sustainabilityhub/internal/auth/otp"
	"github.com/sustainabilityhub/sustainabilityhub/internal/database"
	"github.com/sustainabilityhub/sustainabilityhub/internal/delivery"
	"github.com/sustainabilityhub/sustainabilityhub/internal/models"
	"github.com/sustainabilityhub/sustainabilityhub/pkg/crypto"
	"github.com/sustainabilityhub/sustainabilityhub/pkg/metrics"
)

// DefaultOTPTTL is how long an issued passcode stays valid.
const DefaultOTPTTL = 10 * time.Minute

// OTPConfig tunes passcode issuance.
type OTPConfig struct {
	TTL   time.Duration
	Clock func() time.Time
}

// OTPService issues and consumes email passcodes. At most one passcode exists
// per email; issuing a new one replaces the previous.
type OTPService struct {
	db        *gorm.DB
	channel   delivery.Channel
	generator *otp.Generator
	ttl       time.Duration
	now       func() time.Time
}

// NewOTPService constructs an OTPService.
func NewOTPService(db *gorm.DB, channel delivery.Channel, generator *otp.Generator, cfg OTPConfig) (*OTPService, error) {
	if db == nil {
		return nil, errors.New("otp service: db is required")
	}
	if channel == nil {
		return nil, errors.New("otp service: delivery channel is required")
	}
	if generator == nil {
		return nil, errors.New("otp service: generator is required")
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultOTPTTL
	}
	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &OTPService{
		db:        db,
		channel:   channel,
		generator: generator,
		ttl:       ttl,
		now:       now,
	}, nil
}

// TTL returns the passcode lifetime.
func (s *OTPService) TTL() time.Duration {
	return s.ttl
}

// Issue replaces the passcode for email and delivers the new one. The code is
// only ever handed to the delivery channel. A delivery failure is returned but
// the stored passcode stays valid.
func (s *OTPService) Issue(ctx context.Context, email string, purpose models.OTPPurpose) (time.Time, error) {
	ctx = ensureContext(ctx)
	var passcode delivery.Passcode
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		passcode, err = s.issueTx(ctx, tx, email, purpose)
		return err
	})
	if err != nil {
		return time.Time{}, err
	}
	if err := s.deliver(ctx, passcode); err != nil {
		return passcode.ExpiresAt, err
	}
	return passcode.ExpiresAt, nil
}

// Consume marks the passcode for email as used when code matches. It fails
// with ErrMismatch, ErrAlreadyUsed or ErrExpired otherwise.
func (s *OTPService) Consume(ctx context.Context, email, code string, purpose models.OTPPurpose) error {
	ctx = ensureContext(ctx)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.consumeTx(ctx, tx, email, code, purpose)
	})
}

// PurgeExpired removes passcodes that expired or were used before cutoff.
func (s *OTPService) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx = ensureContext(ctx)
	result := s.db.WithContext(ctx).
		Where("expires_at < ? OR (used = ? AND used_at < ?)", cutoff, true, cutoff).
		Delete(&models.OneTimePasscode{})
	if result.Error != nil {
		return 0, fmt.Errorf("otp service: purge expired: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// issueTx deletes every passcode for email and stores a fresh one using tx.
func (s *OTPService) issueTx(ctx context.Context, tx *gorm.DB, email string, purpose models.OTPPurpose) (delivery.Passcode, error) {
	email = normaliseEmail(email)
	if email == "" {
		return delivery.Passcode{}, validationError("email is required")
	}
	if purpose != models.OTPPurposeLogin && purpose != models.OTPPurposeReset {
		return delivery.Passcode{}, validationError("unknown passcode purpose %q", purpose)
	}

	code, err := s.generator.Generate()
	if err != nil {
		return delivery.Passcode{}, fmt.Errorf("otp service: generate code: %w", err)
	}

	if err := tx.WithContext(ctx).Where("email = ?", email).Delete(&models.OneTimePasscode{}).Error; err != nil {
		return delivery.Passcode{}, fmt.Errorf("otp service: delete previous codes: %w", err)
	}

	record := models.OneTimePasscode{
		Email:     email,
		CodeHash:  crypto.HashToken(code),
		Purpose:   purpose,
		ExpiresAt: s.now().UTC().Add(s.ttl),
	}
	if err := tx.WithContext(ctx).Create(&record).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return delivery.Passcode{}, newError(ErrConflict, "a passcode was issued concurrently, please retry")
		}
		return delivery.Passcode{}, fmt.Errorf("otp service: store code: %w", err)
	}

	metrics.OTPIssued.WithLabelValues(string(purpose)).Inc()
	return delivery.Passcode{
		Email:     email,
		Code:      code,
		Purpose:   purpose,
		ExpiresAt: record.ExpiresAt,
	}, nil
}

func (s *OTPService) deliver(ctx context.Context, passcode delivery.Passcode) error {
	if err := s.channel.Deliver(ctx, passcode); err != nil {
		return fmt.Errorf("otp service: deliver via %s: %w", s.channel.Name(), err)
	}
	return nil
}

// consumeTx looks the passcode up by (email, hash(code)) and flips used with a
// conditional update, so two concurrent verifications cannot both succeed.
func (s *OTPService) consumeTx(ctx context.Context, tx *gorm.DB, email, code string, purpose models.OTPPurpose) error {
	email = normaliseEmail(email)
	if email == "" || code == "" {
		return s.verification(newError(ErrMismatch, "invalid code"))
	}

	var record models.OneTimePasscode
	err := tx.WithContext(ctx).
		Where("email = ? AND code_hash = ? AND purpose = ?", email, crypto.HashToken(code), purpose).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.verification(newError(ErrMismatch, "invalid code"))
	}
	if err != nil {
		return fmt.Errorf("otp service: load code: %w", err)
	}

	now := s.now().UTC()
	if record.Used {
		return s.verification(newError(ErrAlreadyUsed, "code has already been used"))
	}
	if !record.Valid(now) {
		return s.verification(newError(ErrExpired, "code has expired"))
	}

	result := tx.WithContext(ctx).
		Model(&models.OneTimePasscode{}).
		Where("id = ? AND used = ?", record.ID, false).
		Updates(map[string]any{"used": true, "used_at": now})
	if result.Error != nil {
		return fmt.Errorf("otp service: mark used: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return s.verification(newError(ErrAlreadyUsed, "code has already been used"))
	}
	return s.verification(nil)
}

func (s *OTPService) verification(err error) error {
	result := "success"
	switch {
	case errors.Is(err, ErrMismatch):
		result = "mismatch"
	case errors.Is(err, ErrAlreadyUsed):
		result = "already_used"
	case errors.Is(err, ErrExpired):
		result = "expired"
	case err != nil:
		result = "error"
	}
	metrics.OTPVerifications.WithLabelValues(result).Inc()
	return err
}

// deleteForEmail removes any passcode for email using tx.
func (s *OTPService) deleteForEmail(ctx context.Context, tx *gorm.DB, email string) error {
	if err := tx.WithContext(ctx).Where("email = ?", normaliseEmail(email)).Delete(&models.OneTimePasscode{}).Error; err != nil {
		return fmt.Errorf("otp service: delete code: %w", err)
	}
	return nil
}
