package api

import (
	"github.com/gin-gonic/gin"

	"github.com/sustainabilityhub/sustainabilityhub/internal/handlers"
)

type authRouteDeps struct {
	Auth         *handlers.AuthHandler
	OTP          *handlers.OTPHandler
	Limiter      gin.HandlerFunc
	Registration bool
}

func registerAuthRoutes(engine *gin.Engine, api *gin.RouterGroup, deps authRouteDeps) {
	auth := engine.Group("/api/auth")
	auth.Use(deps.Limiter)
	{
		if deps.Registration {
			auth.POST("/register", deps.Auth.Register)
		}
		auth.POST("/login", deps.Auth.Login)
		auth.POST("/refresh", deps.Auth.Refresh)

		auth.POST("/otp/request", deps.OTP.RequestLogin)
		auth.POST("/otp/verify", deps.OTP.Verify)
		auth.POST("/otp/cancel", deps.OTP.Cancel)
		auth.POST("/password/forgot", deps.OTP.RequestReset)
		auth.POST("/password/reset", deps.OTP.ResetPassword)
	}

	api.GET("/auth/me", deps.Auth.Me)
	api.POST("/auth/logout", deps.Auth.Logout)
}
