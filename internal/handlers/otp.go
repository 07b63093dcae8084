package handlers

import (
	"context"
	stdErrors "errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	iauth "github.com/sustainabilityhub/sustainabilityhub/internal/auth"
	"github.com/sustainabilityhub/sustainabilityhub/internal/models"
	"github.com/sustainabilityhub/sustainabilityhub/internal/services"
	"github.com/sustainabilityhub/sustainabilityhub/pkg/errors"
	"github.com/sustainabilityhub/sustainabilityhub/pkg/response"
)

// DefaultFlowCookie names the cookie carrying the passcode flow token.
const DefaultFlowCookie = "sh_auth_flow"

// FlowCookieConfig controls the flow token cookie.
type FlowCookieConfig struct {
	Name   string
	Secure bool
}

// OTPHandler serves the passcode login and password reset flows. The flow
// token travels in an HttpOnly cookie; a flow_token body field takes
// precedence for clients without cookies.
type OTPHandler struct {
	flows  *services.AuthFlowService
	cookie FlowCookieConfig
	now    func() time.Time
}

// NewOTPHandler constructs an OTPHandler.
func NewOTPHandler(flows *services.AuthFlowService, cookie FlowCookieConfig) *OTPHandler {
	if strings.TrimSpace(cookie.Name) == "" {
		cookie.Name = DefaultFlowCookie
	}
	return &OTPHandler{flows: flows, cookie: cookie, now: time.Now}
}

type otpRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type verifyRequest struct {
	FlowToken string `json:"flow_token"`
	Code      string `json:"code" validate:"required,numeric,min=4,max=10"`
}

type resetRequest struct {
	FlowToken       string `json:"flow_token"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required"`
}

type flowTokenRequest struct {
	FlowToken string `json:"flow_token"`
}

type resetPendingPayload struct {
	ResetPending bool      `json:"reset_pending"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// POST /api/auth/otp/request
func (h *OTPHandler) RequestLogin(c *gin.Context) {
	h.start(c, h.flows.RequestLogin)
}

// POST /api/auth/password/forgot
func (h *OTPHandler) RequestReset(c *gin.Context) {
	h.start(c, h.flows.RequestReset)
}

func (h *OTPHandler) start(c *gin.Context, begin func(ctx context.Context, email string) (*services.FlowStart, error)) {
	var req otpRequest
	if !bindAndValidate(c, &req) {
		return
	}

	flow, err := begin(requestContext(c), req.Email)
	if err != nil {
		respondError(c, err)
		return
	}

	h.setFlowCookie(c, flow.Token, flow.ExpiresAt)
	response.Success(c, http.StatusOK, flow)
}

// POST /api/auth/otp/verify
func (h *OTPHandler) Verify(c *gin.Context) {
	var req verifyRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.flows.Verify(requestContext(c), h.flowToken(c, req.FlowToken), req.Code, iauth.SessionMetadata{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		if flowEnded(err) {
			h.clearFlowCookie(c)
		}
		respondError(c, err)
		return
	}

	if result.Flow == models.AuthFlowReset {
		h.setFlowCookie(c, h.flowToken(c, req.FlowToken), result.ResetExpiresAt)
		response.Success(c, http.StatusOK, resetPendingPayload{ResetPending: true, ExpiresAt: result.ResetExpiresAt})
		return
	}

	h.clearFlowCookie(c)
	response.Success(c, http.StatusOK, sessionPayload{Tokens: *result.Tokens, User: newUserPayload(result.User)})
}

// POST /api/auth/password/reset
func (h *OTPHandler) ResetPassword(c *gin.Context) {
	var req resetRequest
	if !bindAndValidate(c, &req) {
		return
	}

	err := h.flows.ResetPassword(requestContext(c), h.flowToken(c, req.FlowToken), req.Password, req.PasswordConfirm)
	if err != nil {
		if stdErrors.Is(err, services.ErrMismatch) {
			response.Error(c, errors.NewBadRequest("Passwords do not match"))
			return
		}
		if flowEnded(err) {
			h.clearFlowCookie(c)
		}
		respondError(c, err)
		return
	}

	h.clearFlowCookie(c)
	response.Success(c, http.StatusOK, gin.H{"reset": true})
}

// POST /api/auth/otp/cancel
func (h *OTPHandler) Cancel(c *gin.Context) {
	var req flowTokenRequest
	// The body is optional; the cookie alone is enough.
	_ = c.ShouldBindJSON(&req)

	if err := h.flows.Cancel(requestContext(c), h.flowToken(c, req.FlowToken)); err != nil {
		respondError(c, err)
		return
	}

	h.clearFlowCookie(c)
	response.Success(c, http.StatusOK, gin.H{"cancelled": true})
}

func (h *OTPHandler) flowToken(c *gin.Context, fromBody string) string {
	if token := strings.TrimSpace(fromBody); token != "" {
		return token
	}
	token, err := c.Cookie(h.cookie.Name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(token)
}

func (h *OTPHandler) setFlowCookie(c *gin.Context, token string, expiresAt time.Time) {
	maxAge := int(expiresAt.Sub(h.now()).Seconds())
	if maxAge <= 0 || token == "" {
		return
	}
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(h.cookie.Name, token, maxAge, "/api/auth", "", h.cookie.Secure, true)
}

func (h *OTPHandler) clearFlowCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(h.cookie.Name, "", -1, "/api/auth", "", h.cookie.Secure, true)
}

func flowEnded(err error) bool {
	return stdErrors.Is(err, services.ErrFlowMissing) ||
		stdErrors.Is(err, services.ErrTooManyAttempts) ||
		stdErrors.Is(err, services.ErrAccountDisabled)
}
