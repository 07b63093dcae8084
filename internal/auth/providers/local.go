package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/sustainabilityhub/sustainabilityhub/internal/database"
	"github.com/sustainabilityhub/sustainabilityhub/internal/models"
	"github.com/sustainabilityhub/sustainabilityhub/pkg/crypto"
)

// MinPasswordLength is the shortest password accepted on registration and reset.
const MinPasswordLength = 8

// PasswordTooShort reports whether password has fewer than MinPasswordLength
// characters. Length is counted in runes, matching the request validators.
func PasswordTooShort(password string) bool {
	return utf8.RuneCountInString(password) < MinPasswordLength
}

var (
	// ErrInvalidCredentials is returned when the supplied identity/password pair is invalid.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrAccountLocked signals that the user has exceeded the permitted failed attempts.
	ErrAccountLocked = errors.New("auth: account locked")
	// ErrAccountDisabled signals that the user has been deactivated.
	ErrAccountDisabled = errors.New("auth: account disabled")
	// ErrUserExists is returned when the username or email is already registered.
	ErrUserExists = errors.New("auth: user already exists")
	// ErrWeakPassword is returned for passwords shorter than MinPasswordLength.
	ErrWeakPassword = errors.New("auth: password too short")
)

// LocalConfig defines tunable behaviour for the local provider.
type LocalConfig struct {
	LockoutThreshold int
	LockoutDuration  time.Duration
	Clock            func() time.Time
}

// AuthenticateInput contains metadata required to authenticate a local user.
type AuthenticateInput struct {
	Identifier string
	Password   string
	IPAddress  string
}

// RegisterInput captures the details required to register a new local user.
type RegisterInput struct {
	Username string
	Email    string
	Password string
	Bio      string
}

// LocalProvider implements username/password authentication with account lockout controls.
type LocalProvider struct {
	db        *gorm.DB
	clock     func() time.Time
	threshold int
	duration  time.Duration
}

// NewLocalProvider builds a provider with sane defaults.
func NewLocalProvider(db *gorm.DB, cfg LocalConfig) (*LocalProvider, error) {
	if db == nil {
		return nil, errors.New("local provider: db is required")
	}

	threshold := cfg.LockoutThreshold
	if threshold <= 0 {
		threshold = 5
	}

	duration := cfg.LockoutDuration
	if duration <= 0 {
		duration = 15 * time.Minute
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &LocalProvider{
		db:        db,
		clock:     clock,
		threshold: threshold,
		duration:  duration,
	}, nil
}

// Authenticate verifies the supplied credentials and returns the associated user when successful.
func (p *LocalProvider) Authenticate(ctx context.Context, input AuthenticateInput) (*models.User, error) {
	identity := strings.TrimSpace(input.Identifier)
	if identity == "" || input.Password == "" {
		return nil, ErrInvalidCredentials
	}

	db := p.db.WithContext(ctx)
	var user models.User
	err := db.Where("LOWER(username) = LOWER(?) OR LOWER(email) = LOWER(?)", identity, identity).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("local provider: query user: %w", err)
	}

	now := p.clock()
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}
	if user.LockedUntil != nil && user.LockedUntil.After(now) {
		return nil, ErrAccountLocked
	}

	if !crypto.VerifyPassword(user.Password, input.Password) {
		return nil, p.handleFailedAttempt(db, &user, now)
	}

	if err := p.RecordLogin(ctx, &user, input.IPAddress); err != nil {
		return nil, err
	}
	return &user, nil
}

// RecordLogin clears lockout state and stamps the last login on user.
func (p *LocalProvider) RecordLogin(ctx context.Context, user *models.User, ip string) error {
	now := p.clock()
	ip = strings.TrimSpace(ip)
	if err := p.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]any{
		"failed_attempts": 0,
		"locked_until":    nil,
		"last_login_at":   now,
		"last_login_ip":   ip,
	}).Error; err != nil {
		return fmt.Errorf("local provider: update user: %w", err)
	}

	user.FailedAttempts = 0
	user.LockedUntil = nil
	user.LastLoginAt = &now
	user.LastLoginIP = ip
	return nil
}

func (p *LocalProvider) handleFailedAttempt(db *gorm.DB, user *models.User, now time.Time) error {
	// An elapsed lock starts a fresh count.
	if user.LockedUntil != nil && !user.LockedUntil.After(now) {
		user.FailedAttempts = 0
		user.LockedUntil = nil
	}
	user.FailedAttempts++

	updates := map[string]any{
		"failed_attempts": user.FailedAttempts,
		"locked_until":    nil,
	}
	if user.FailedAttempts >= p.threshold {
		lockUntil := now.Add(p.duration)
		user.LockedUntil = &lockUntil
		updates["locked_until"] = lockUntil
	}

	if err := db.Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("local provider: update failed attempts: %w", err)
	}

	if user.LockedUntil != nil {
		return ErrAccountLocked
	}
	return ErrInvalidCredentials
}

// Register creates a new active local user with a hashed password.
func (p *LocalProvider) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if username == "" || email == "" || input.Password == "" {
		return nil, errors.New("local provider: username, email and password are required")
	}
	if PasswordTooShort(input.Password) {
		return nil, ErrWeakPassword
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("local provider: hash password: %w", err)
	}

	user := &models.User{
		Username: username,
		Email:    email,
		Password: hashed,
		Bio:      strings.TrimSpace(input.Bio),
		IsActive: true,
	}

	if err := p.db.WithContext(ctx).Create(user).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("local provider: create user: %w", err)
	}
	return user, nil
}

// SetPassword replaces the stored hash for userID using tx, so callers can
// bundle it with other writes.
func (p *LocalProvider) SetPassword(ctx context.Context, tx *gorm.DB, userID, newPassword string) error {
	if strings.TrimSpace(userID) == "" {
		return errors.New("local provider: user id is required")
	}
	if PasswordTooShort(newPassword) {
		return ErrWeakPassword
	}
	if tx == nil {
		tx = p.db
	}

	hashed, err := crypto.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("local provider: hash password: %w", err)
	}

	result := tx.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(map[string]any{
		"password":        hashed,
		"failed_attempts": 0,
		"locked_until":    nil,
	})
	if result.Error != nil {
		return fmt.Errorf("local provider: update password: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrInvalidCredentials
	}
	return nil
}
