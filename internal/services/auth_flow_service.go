package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sustainabilityhub/sustainabilityhub/internal/auth"
	"github.com/sustainabilityhub/sustainabilityhub/internal/auth/providers"
	"github.com/sustainabilityhub/sustainabilityhub/internal/delivery"
	"github.com/sustainabilityhub/sustainabilityhub/internal/models"
	"github.com/sustainabilityhub/sustainabilityhub/pkg/crypto"
	"github.com/sustainabilityhub/sustainabilityhub/pkg/logger"
	"github.com/sustainabilityhub/sustainabilityhub/pkg/metrics"
)

const (
	// DefaultMaxFlowAttempts is how many wrong codes a flow tolerates.
	DefaultMaxFlowAttempts = 5
	// DefaultResetTTL is how long a verified reset flow waits for the new password.
	DefaultResetTTL = 10 * time.Minute

	flowTokenBytes = 32
)

// AuthFlowConfig tunes the passcode login and reset flows.
type AuthFlowConfig struct {
	MaxAttempts int
	ResetTTL    time.Duration
	Clock       func() time.Time
}

// FlowStart is handed to the client after a passcode was issued. Token is the
// only handle on the flow; its digest is all the server keeps.
type FlowStart struct {
	Token     string              `json:"flow_token"`
	Flow      models.AuthFlowKind `json:"flow"`
	ExpiresAt time.Time           `json:"expires_at"`
}

// VerifyResult is the outcome of a successful passcode verification. Login
// flows carry tokens; reset flows report ResetPending.
type VerifyResult struct {
	Flow           models.AuthFlowKind
	User           *models.User
	Tokens         *auth.TokenPair
	ResetPending   bool
	ResetExpiresAt time.Time
}

// AuthFlowService drives passcode login and password reset:
// request, verify, then either a session or a new password.
type AuthFlowService struct {
	db          *gorm.DB
	otp         *OTPService
	sessions    *auth.SessionService
	local       *providers.LocalProvider
	maxAttempts int
	resetTTL    time.Duration
	now         func() time.Time
}

// NewAuthFlowService constructs an AuthFlowService.
func NewAuthFlowService(db *gorm.DB, otpService *OTPService, sessions *auth.SessionService, local *providers.LocalProvider, cfg AuthFlowConfig) (*AuthFlowService, error) {
	if db == nil {
		return nil, errors.New("auth flow service: db is required")
	}
	if otpService == nil {
		return nil, errors.New("auth flow service: otp service is required")
	}
	if sessions == nil {
		return nil, errors.New("auth flow service: session service is required")
	}
	if local == nil {
		return nil, errors.New("auth flow service: local provider is required")
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxFlowAttempts
	}
	resetTTL := cfg.ResetTTL
	if resetTTL <= 0 {
		resetTTL = DefaultResetTTL
	}
	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &AuthFlowService{
		db:          db,
		otp:         otpService,
		sessions:    sessions,
		local:       local,
		maxAttempts: maxAttempts,
		resetTTL:    resetTTL,
		now:         now,
	}, nil
}

// RequestLogin issues a login passcode for email and opens a login flow.
func (s *AuthFlowService) RequestLogin(ctx context.Context, email string) (*FlowStart, error) {
	return s.start(ctx, email, models.AuthFlowLogin)
}

// RequestReset issues a reset passcode for email and opens a reset flow.
func (s *AuthFlowService) RequestReset(ctx context.Context, email string) (*FlowStart, error) {
	return s.start(ctx, email, models.AuthFlowReset)
}

func (s *AuthFlowService) start(ctx context.Context, email string, kind models.AuthFlowKind) (*FlowStart, error) {
	ctx = ensureContext(ctx)
	email = normaliseEmail(email)
	if email == "" {
		return nil, validationError("email is required")
	}

	user, err := s.userByEmail(ctx, s.db, email)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, newError(ErrAccountDisabled, "this account has been deactivated")
	}

	token, err := crypto.GenerateToken(flowTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("auth flow service: generate flow token: %w", err)
	}

	var passcode delivery.Passcode
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		passcode, err = s.otp.issueTx(ctx, tx, email, models.OTPPurpose(kind))
		if err != nil {
			return err
		}
		if err := tx.Where("email = ?", email).Delete(&models.AuthFlow{}).Error; err != nil {
			return fmt.Errorf("auth flow service: delete previous flows: %w", err)
		}
		flow := models.AuthFlow{
			TokenHash: crypto.HashToken(token),
			Email:     email,
			Flow:      kind,
			Stage:     models.AuthFlowStageOTPIssued,
			ExpiresAt: passcode.ExpiresAt,
		}
		if err := tx.Create(&flow).Error; err != nil {
			return fmt.Errorf("auth flow service: create flow: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.otp.deliver(ctx, passcode); err != nil {
		return nil, err
	}

	return &FlowStart{Token: token, Flow: kind, ExpiresAt: passcode.ExpiresAt}, nil
}

// Verify checks code against the flow's passcode. A wrong code keeps the flow
// and counts an attempt; the last allowed miss discards the flow and its
// passcode.
func (s *AuthFlowService) Verify(ctx context.Context, flowToken, code string, meta auth.SessionMetadata) (*VerifyResult, error) {
	ctx = ensureContext(ctx)
	flow, err := s.liveFlow(ctx, flowToken)
	if err != nil {
		return nil, err
	}
	if flow.Stage != models.AuthFlowStageOTPIssued {
		return nil, newError(ErrFlowMissing, "no passcode is pending for this flow")
	}

	code = strings.TrimSpace(code)
	now := s.now().UTC()
	var outcome error
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := s.otp.consumeTx(ctx, tx, flow.Email, code, models.OTPPurpose(flow.Flow))
		switch {
		case errors.Is(err, ErrMismatch):
			outcome, err = s.recordMiss(ctx, tx, flow, err)
			return err
		case err != nil:
			return err
		}

		if flow.Flow == models.AuthFlowReset {
			return tx.Model(&models.AuthFlow{}).Where("id = ?", flow.ID).Updates(map[string]any{
				"stage":      models.AuthFlowStageResetPending,
				"attempts":   0,
				"expires_at": now.Add(s.resetTTL),
			}).Error
		}
		return tx.Where("id = ?", flow.ID).Delete(&models.AuthFlow{}).Error
	})
	if err != nil {
		return nil, err
	}
	if outcome != nil {
		if errors.Is(outcome, ErrTooManyAttempts) {
			metrics.AuthAttempts.WithLabelValues(auth.MethodOTP, "failure").Inc()
		}
		return nil, outcome
	}

	if flow.Flow == models.AuthFlowReset {
		return &VerifyResult{
			Flow:           flow.Flow,
			ResetPending:   true,
			ResetExpiresAt: now.Add(s.resetTTL),
		}, nil
	}
	return s.completeLogin(ctx, flow.Email, meta)
}

// recordMiss counts a wrong code. Once the limit is reached the flow and the
// passcode are deleted and the miss becomes ErrTooManyAttempts. The counter is
// checked in the UPDATE itself, so concurrent misses cannot overshoot it.
func (s *AuthFlowService) recordMiss(ctx context.Context, tx *gorm.DB, flow *models.AuthFlow, miss error) (error, error) {
	counted := tx.Model(&models.AuthFlow{}).
		Where("id = ? AND attempts < ?", flow.ID, s.maxAttempts-1).
		Update("attempts", gorm.Expr("attempts + ?", 1))
	if counted.Error != nil {
		return nil, fmt.Errorf("auth flow service: record attempt: %w", counted.Error)
	}
	if counted.RowsAffected > 0 {
		return miss, nil
	}

	discarded := tx.Where("id = ?", flow.ID).Delete(&models.AuthFlow{})
	if discarded.Error != nil {
		return nil, fmt.Errorf("auth flow service: discard flow: %w", discarded.Error)
	}
	if discarded.RowsAffected == 0 {
		return newError(ErrFlowMissing, "this request has expired, please start again"), nil
	}
	if err := s.otp.deleteForEmail(ctx, tx, flow.Email); err != nil {
		return nil, err
	}
	return newError(ErrTooManyAttempts, "too many incorrect codes, request a new one"), nil
}

func (s *AuthFlowService) completeLogin(ctx context.Context, email string, meta auth.SessionMetadata) (*VerifyResult, error) {
	user, err := s.userByEmail(ctx, s.db, email)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, newError(ErrAccountDisabled, "this account has been deactivated")
	}

	meta.Method = auth.MethodOTP
	pair, _, err := s.sessions.CreateSession(ctx, user.ID, meta)
	if err != nil {
		return nil, fmt.Errorf("auth flow service: create session: %w", err)
	}
	if err := s.local.RecordLogin(ctx, user, meta.IPAddress); err != nil {
		logger.WithModule("auth").Warn("record passcode login failed", zap.String("user_id", user.ID), zap.Error(err))
	}
	metrics.AuthAttempts.WithLabelValues(auth.MethodOTP, "success").Inc()

	return &VerifyResult{Flow: models.AuthFlowLogin, User: user, Tokens: &pair}, nil
}

// ResetPassword sets a new password on a verified reset flow. The
// confirmation is compared before the length check; either failure leaves
// the flow in place. All refresh sessions of the user are revoked.
func (s *AuthFlowService) ResetPassword(ctx context.Context, flowToken, password, confirm string) error {
	ctx = ensureContext(ctx)
	flow, err := s.liveFlow(ctx, flowToken)
	if err != nil {
		return err
	}
	if flow.Flow != models.AuthFlowReset || flow.Stage != models.AuthFlowStageResetPending {
		return newError(ErrFlowMissing, "no verified password reset for this flow")
	}
	if password != confirm {
		return newError(ErrMismatch, "passwords do not match")
	}
	if providers.PasswordTooShort(password) {
		return validationError("password must be at least %d characters", providers.MinPasswordLength)
	}

	var userID string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.userByEmail(ctx, tx, flow.Email)
		if err != nil {
			return err
		}
		userID = user.ID
		if err := s.local.SetPassword(ctx, tx, user.ID, password); err != nil {
			return err
		}
		result := tx.Where("id = ? AND stage = ?", flow.ID, models.AuthFlowStageResetPending).Delete(&models.AuthFlow{})
		if result.Error != nil {
			return fmt.Errorf("auth flow service: delete flow: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return newError(ErrFlowMissing, "no verified password reset for this flow")
		}
		return nil
	})
	if err != nil {
		return err
	}

	if _, err := s.sessions.RevokeUserSessions(ctx, userID); err != nil {
		return fmt.Errorf("auth flow service: revoke sessions: %w", err)
	}
	return nil
}

// Cancel abandons a flow. Unknown tokens are ignored.
func (s *AuthFlowService) Cancel(ctx context.Context, flowToken string) error {
	ctx = ensureContext(ctx)
	flow, err := s.findFlow(ctx, flowToken)
	if errors.Is(err, ErrFlowMissing) {
		return nil
	}
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", flow.ID).Delete(&models.AuthFlow{}).Error; err != nil {
			return fmt.Errorf("auth flow service: delete flow: %w", err)
		}
		if flow.Stage == models.AuthFlowStageOTPIssued {
			return s.otp.deleteForEmail(ctx, tx, flow.Email)
		}
		return nil
	})
}

// CleanupExpired deletes flows past their expiry.
func (s *AuthFlowService) CleanupExpired(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)
	result := s.db.WithContext(ctx).Where("expires_at <= ?", s.now().UTC()).Delete(&models.AuthFlow{})
	if result.Error != nil {
		return 0, fmt.Errorf("auth flow service: cleanup expired: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *AuthFlowService) liveFlow(ctx context.Context, flowToken string) (*models.AuthFlow, error) {
	flow, err := s.findFlow(ctx, flowToken)
	if err != nil {
		return nil, err
	}
	if flow.Expired(s.now().UTC()) {
		return nil, newError(ErrFlowMissing, "this request has expired, please start again")
	}
	return flow, nil
}

func (s *AuthFlowService) findFlow(ctx context.Context, flowToken string) (*models.AuthFlow, error) {
	flowToken = strings.TrimSpace(flowToken)
	if flowToken == "" {
		return nil, newError(ErrFlowMissing, "no sign-in request in progress")
	}

	var flow models.AuthFlow
	err := s.db.WithContext(ctx).Where("token_hash = ?", crypto.HashToken(flowToken)).Take(&flow).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(ErrFlowMissing, "no sign-in request in progress")
	}
	if err != nil {
		return nil, fmt.Errorf("auth flow service: load flow: %w", err)
	}
	return &flow, nil
}

func (s *AuthFlowService) userByEmail(ctx context.Context, db *gorm.DB, email string) (*models.User, error) {
	var user models.User
	err := db.WithContext(ctx).Where("LOWER(email) = ?", normaliseEmail(email)).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(ErrNotFound, "no account is registered with that email")
	}
	if err != nil {
		return nil, fmt.Errorf("auth flow service: load user: %w", err)
	}
	return &user, nil
}
