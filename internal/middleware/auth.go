package middleware

import (
	stdErrors "errors"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	iauth "github.com/sustainabilityhub/sustainabilityhub/internal/auth"
	"github.com/sustainabilityhub/sustainabilityhub/internal/models"
	"github.com/sustainabilityhub/sustainabilityhub/pkg/errors"
	"github.com/sustainabilityhub/sustainabilityhub/pkg/response"
)

const (
	CtxClaimsKey    = "authClaims"
	CtxUserIDKey    = "userID"
	CtxSessionIDKey = "sessionID"
	CtxUserKey      = "authUser"
)

// Auth enforces JWT authentication using the supplied JWT service.
func Auth(jwt *iauth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		token := strings.TrimSpace(authz[7:])
		claims, err := jwt.ValidateAccessToken(token)
		if err != nil {
			// Normalise all validation failures to 401
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, claims.UserID)
		if claims.SessionID != "" {
			c.Set(CtxSessionIDKey, claims.SessionID)
		}

		c.Next()
	}
}

// ActiveUser loads the authenticated user and rejects deactivated accounts.
// It must run after Auth.
func ActiveUser(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(CtxUserIDKey)
		if userID == "" {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		var user models.User
		err := db.WithContext(c.Request.Context()).Take(&user, "id = ?", userID).Error
		if err != nil {
			if stdErrors.Is(err, gorm.ErrRecordNotFound) {
				response.Error(c, errors.ErrUnauthorized)
			} else {
				response.Error(c, errors.ErrInternalServer.WithInternal(err))
			}
			c.Abort()
			return
		}
		if !user.IsActive {
			response.Error(c, errors.ErrAccountDisabled)
			c.Abort()
			return
		}

		c.Set(CtxUserKey, &user)
		c.Next()
	}
}

// RequireStaff allows staff and superusers through. It must run after ActiveUser.
func RequireStaff() gin.HandlerFunc {
	return requireUser(func(u *models.User) bool { return u.HasStaffAccess() })
}

// RequireSuperuser allows superusers through. It must run after ActiveUser.
func RequireSuperuser() gin.HandlerFunc {
	return requireUser(func(u *models.User) bool { return u.IsSuperuser })
}

// CurrentUser returns the user loaded by ActiveUser.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	value, ok := c.Get(CtxUserKey)
	if !ok {
		return nil, false
	}
	user, ok := value.(*models.User)
	return user, ok && user != nil
}

func requireUser(allow func(*models.User) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !allow(user) {
			response.Error(c, errors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
