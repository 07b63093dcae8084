package handlers

import (
	stdErrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	iauth "github.com/sustainabilityhub/sustainabilityhub/internal/auth"
	"github.com/sustainabilityhub/sustainabilityhub/internal/auth/providers"
	"github.com/sustainabilityhub/sustainabilityhub/internal/services"
	"github.com/sustainabilityhub/sustainabilityhub/pkg/errors"
	"github.com/sustainabilityhub/sustainabilityhub/pkg/response"
)

var (
	errOTPInvalid = errors.New("OTP_INVALID", "Invalid OTP", http.StatusBadRequest)
	errOTPExpired = errors.New("OTP_EXPIRED", "OTP has expired. Please request a new one.", http.StatusBadRequest)
	errOTPUsed    = errors.New("OTP_USED", "OTP has already been used", http.StatusBadRequest)
	errFlowGone   = errors.New("FLOW_EXPIRED", "Session expired. Please start again.", http.StatusBadRequest)
	errTooMany    = errors.New("TOO_MANY_ATTEMPTS", "Too many incorrect codes. Please request a new one.", http.StatusTooManyRequests)
	errLocked     = errors.New("ACCOUNT_LOCKED", "Account temporarily locked", http.StatusForbidden)
	errWeak       = errors.New("WEAK_PASSWORD", "Password must be at least 8 characters", http.StatusBadRequest)
)

// respondError renders err using the AppError its kind maps to. Messages from
// services.Error are client safe and replace the default text.
func respondError(c *gin.Context, err error) {
	response.Error(c, toAppError(err))
}

func toAppError(err error) error {
	var appErr *errors.AppError
	if stdErrors.As(err, &appErr) {
		return appErr
	}

	mapped := classify(err)
	if mapped == nil {
		return errors.ErrInternalServer.WithInternal(err)
	}

	var svcErr *services.Error
	if stdErrors.As(err, &svcErr) && svcErr.Message != "" {
		return mapped.WithMessage(svcErr.Message).WithInternal(err)
	}
	return mapped.WithInternal(err)
}

func classify(err error) *errors.AppError {
	switch {
	case stdErrors.Is(err, services.ErrNotFound):
		return errors.ErrNotFound
	case stdErrors.Is(err, services.ErrValidation):
		return errors.ErrBadRequest
	case stdErrors.Is(err, services.ErrMismatch):
		return errOTPInvalid
	case stdErrors.Is(err, services.ErrExpired):
		return errOTPExpired
	case stdErrors.Is(err, services.ErrAlreadyUsed):
		return errOTPUsed
	case stdErrors.Is(err, services.ErrFlowMissing):
		return errFlowGone
	case stdErrors.Is(err, services.ErrTooManyAttempts):
		return errTooMany
	case stdErrors.Is(err, services.ErrConflict):
		return errors.ErrConflict
	case stdErrors.Is(err, services.ErrAccountDisabled),
		stdErrors.Is(err, providers.ErrAccountDisabled):
		return errors.ErrAccountDisabled
	case stdErrors.Is(err, services.ErrForbidden):
		return errors.ErrForbidden
	case stdErrors.Is(err, providers.ErrInvalidCredentials):
		return errors.ErrInvalidCredentials
	case stdErrors.Is(err, providers.ErrAccountLocked):
		return errLocked
	case stdErrors.Is(err, providers.ErrUserExists):
		return errors.ErrConflict.WithMessage("Username or email already registered")
	case stdErrors.Is(err, providers.ErrWeakPassword):
		return errWeak
	case stdErrors.Is(err, iauth.ErrSessionNotFound),
		stdErrors.Is(err, iauth.ErrSessionRevoked),
		stdErrors.Is(err, iauth.ErrSessionExpired),
		stdErrors.Is(err, iauth.ErrSessionInvalidToken):
		return errors.ErrUnauthorized
	default:
		return nil
	}
}
