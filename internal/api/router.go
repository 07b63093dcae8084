package api

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/sustainabilityhub/sustainabilityhub/internal/app"
	iauth "github.com/sustainabilityhub/sustainabilityhub/internal/auth"
	"github.com/sustainabilityhub/sustainabilityhub/internal/auth/providers"
	"github.com/sustainabilityhub/sustainabilityhub/internal/handlers"
	"github.com/sustainabilityhub/sustainabilityhub/internal/middleware"
	"github.com/sustainabilityhub/sustainabilityhub/internal/monitoring"
	"github.com/sustainabilityhub/sustainabilityhub/internal/realtime"
	"github.com/sustainabilityhub/sustainabilityhub/internal/services"
)

// Dependencies are the long-lived services the HTTP layer is built from.
// Hub, Health, Jobs and RateStore are optional.
type Dependencies struct {
	Config        *app.Config
	DB            *gorm.DB
	JWT           *iauth.JWTService
	Sessions      *iauth.SessionService
	Local         *providers.LocalProvider
	AuthFlows     *services.AuthFlowService
	Notifications *services.NotificationService
	Forums        *services.ForumService
	Conversations *services.ConversationService
	Projects      *services.ProjectService
	Moderation    *services.ModerationService
	Users         *services.UserService
	Hub           *realtime.Hub
	Health        *monitoring.HealthManager
	Jobs          *monitoring.JobTracker
	RateStore     middleware.RateStore
}

func (d Dependencies) validate() error {
	switch {
	case d.Config == nil:
		return errors.New("config must be provided")
	case d.DB == nil:
		return errors.New("database handle must be provided")
	case d.JWT == nil:
		return errors.New("jwt service must be provided")
	case d.Sessions == nil:
		return errors.New("session service must be provided")
	case d.Local == nil:
		return errors.New("local auth provider must be provided")
	case d.AuthFlows == nil:
		return errors.New("auth flow service must be provided")
	case d.Notifications == nil:
		return errors.New("notification service must be provided")
	case d.Forums == nil || d.Conversations == nil || d.Projects == nil:
		return errors.New("community services must be provided")
	case d.Moderation == nil || d.Users == nil:
		return errors.New("moderation and user services must be provided")
	}
	return nil
}

// NewRouter builds the Gin engine, wires middleware and registers every route.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	cfg := deps.Config

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())

	health := handlers.NewHealthHandler(deps.Health, deps.Jobs)
	if cfg.Monitoring.Health.Enabled {
		registerHealthRoutes(r, health)
	}
	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	requests, window := cfg.Auth.RateLimit.Limits()
	limiter := middleware.RateLimit(deps.RateStore, requests, window)

	// Authenticated routes
	api := r.Group("/api")
	api.Use(middleware.Auth(deps.JWT), middleware.ActiveUser(deps.DB))

	registerAuthRoutes(r, api, authRouteDeps{
		Auth: handlers.NewAuthHandler(deps.DB, deps.Local, deps.Sessions),
		OTP: handlers.NewOTPHandler(deps.AuthFlows, handlers.FlowCookieConfig{
			Name:   cfg.Auth.OTP.CookieName,
			Secure: cfg.Auth.OTP.CookieSecure,
		}),
		Limiter:      limiter,
		Registration: cfg.Features.Registration.Enabled,
	})

	var hub *realtime.Hub
	if cfg.Features.Realtime.Enabled {
		hub = deps.Hub
	}
	registerNotificationRoutes(r, api, handlers.NewNotificationHandler(deps.Notifications, hub, deps.JWT))

	registerCommunityRoutes(api, communityRouteDeps{
		Forums:        handlers.NewForumHandler(deps.Forums),
		Conversations: handlers.NewConversationHandler(deps.Conversations),
		Projects:      handlers.NewProjectHandler(deps.Projects),
		Warnings:      handlers.NewWarningHandler(deps.Moderation),
	})

	registerAdminRoutes(api, adminRouteDeps{
		Users:    handlers.NewAdminUserHandler(deps.Users),
		Warnings: handlers.NewWarningHandler(deps.Moderation),
		Health:   health,
	})

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
