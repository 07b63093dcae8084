package app

import (
	"strings"
	"time"

	"github.com/sustainabilityhub/sustainabilityhub/internal/auth"
	"github.com/sustainabilityhub/sustainabilityhub/internal/auth/providers"
	"github.com/sustainabilityhub/sustainabilityhub/internal/services"
)

const (
	defaultLockoutThreshold = 5
	defaultLockoutDuration  = 15 * time.Minute
	defaultRateLimitCount   = 10
	defaultRateLimitWindow  = time.Minute
	defaultDeliveryChannel  = "console"
)

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}

	return auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         c.JWT.Issuer,
		AccessTokenTTL: ttl,
	}
}

// SessionServiceConfig converts AuthConfig into SessionService parameters.
// The cache is wired separately once the store is known.
func (c AuthConfig) SessionServiceConfig() auth.SessionConfig {
	ttl := c.Session.RefreshTTL
	if ttl <= 0 {
		ttl = auth.DefaultRefreshTokenTTL
	}

	length := c.Session.RefreshLength
	if length <= 0 {
		length = 48
	}

	return auth.SessionConfig{
		RefreshTokenTTL: ttl,
		RefreshLength:   length,
	}
}

// LocalProviderConfig converts AuthConfig into LocalProvider parameters.
func (c AuthConfig) LocalProviderConfig() providers.LocalConfig {
	duration := c.Local.LockoutDuration
	if duration <= 0 {
		duration = defaultLockoutDuration
	}

	threshold := c.Local.LockoutThreshold
	if threshold <= 0 {
		threshold = defaultLockoutThreshold
	}

	return providers.LocalConfig{
		LockoutThreshold: threshold,
		LockoutDuration:  duration,
	}
}

// OTPServiceConfig converts the passcode settings for the OTP service.
func (c AuthConfig) OTPServiceConfig() services.OTPConfig {
	ttl := c.OTP.TTL
	if ttl <= 0 {
		ttl = services.DefaultOTPTTL
	}
	return services.OTPConfig{TTL: ttl}
}

// AuthFlowServiceConfig converts the passcode settings for the flow service.
func (c AuthConfig) AuthFlowServiceConfig() services.AuthFlowConfig {
	attempts := c.OTP.MaxAttempts
	if attempts <= 0 {
		attempts = services.DefaultMaxFlowAttempts
	}
	resetTTL := c.OTP.ResetTTL
	if resetTTL <= 0 {
		resetTTL = services.DefaultResetTTL
	}
	return services.AuthFlowConfig{MaxAttempts: attempts, ResetTTL: resetTTL}
}

// DeliveryChannel returns the normalised passcode delivery channel name.
func (o OTPSettings) DeliveryChannel() string {
	name := strings.ToLower(strings.TrimSpace(o.Delivery))
	if name == "" {
		return defaultDeliveryChannel
	}
	return name
}

// Limits returns the request budget and window, falling back to defaults.
func (r RateLimitSettings) Limits() (int, time.Duration) {
	requests := r.Requests
	if requests <= 0 {
		requests = defaultRateLimitCount
	}
	window := r.Window
	if window <= 0 {
		window = defaultRateLimitWindow
	}
	return requests, window
}
