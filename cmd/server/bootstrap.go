package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sustainabilityhub/sustainabilityhub/internal/api"
	"github.com/sustainabilityhub/sustainabilityhub/internal/app"
	"github.com/sustainabilityhub/sustainabilityhub/internal/app/maintenance"
	iauth "github.com/sustainabilityhub/sustainabilityhub/internal/auth"
	"github.com/sustainabilityhub/sustainabilityhub/internal/auth/otp"
	"github.com/sustainabilityhub/sustainabilityhub/internal/auth/providers"
	"github.com/sustainabilityhub/sustainabilityhub/internal/cache"
	"github.com/sustainabilityhub/sustainabilityhub/internal/database"
	"github.com/sustainabilityhub/sustainabilityhub/internal/delivery"
	"github.com/sustainabilityhub/sustainabilityhub/internal/middleware"
	"github.com/sustainabilityhub/sustainabilityhub/internal/models"
	"github.com/sustainabilityhub/sustainabilityhub/internal/monitoring"
	"github.com/sustainabilityhub/sustainabilityhub/internal/monitoring/checks"
	"github.com/sustainabilityhub/sustainabilityhub/internal/realtime"
	"github.com/sustainabilityhub/sustainabilityhub/internal/services"
	"github.com/sustainabilityhub/sustainabilityhub/pkg/crypto"
	"github.com/sustainabilityhub/sustainabilityhub/pkg/logger"
	"github.com/sustainabilityhub/sustainabilityhub/pkg/mail"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB        *gorm.DB
	Redis     *cache.RedisStore
	Hub       *realtime.Hub
	Cleaner   *maintenance.Cleaner
	RateStore middleware.RateStore
	Router    *gin.Engine

	closers []io.Closer
	relay   *delivery.Relay
}

// bootstrapRuntime initialises databases, caches, services, and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	dbStore := cache.NewDatabaseStore(stack.DB)
	var store cache.Store = dbStore

	if cfg.Cache.Redis.Enabled {
		if stack.Redis, err = cache.NewRedisStore(ctx, cfg.Cache.RedisClientConfig()); err != nil {
			log.Warn("redis unavailable; falling back to database-backed operations", zap.Error(err))
			stack.Redis = nil
		} else {
			store = stack.Redis
			stack.closers = append(stack.closers, stack.Redis)
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	sessionCfg := cfg.Auth.SessionServiceConfig()
	sessionCfg.Cache = iauth.NewSessionCache(store)
	sessionSvc, err := iauth.NewSessionService(stack.DB, jwtSvc, sessionCfg)
	if err != nil {
		return nil, fmt.Errorf("initialise session service: %w", err)
	}

	local, err := providers.NewLocalProvider(stack.DB, cfg.Auth.LocalProviderConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise local provider: %w", err)
	}

	channel, err := stack.deliveryChannel(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	generator, err := otp.NewGenerator(cfg.Auth.OTP.Digits)
	if err != nil {
		return nil, fmt.Errorf("initialise otp generator: %w", err)
	}
	otpSvc, err := services.NewOTPService(stack.DB, channel, generator, cfg.Auth.OTPServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise otp service: %w", err)
	}
	flows, err := services.NewAuthFlowService(stack.DB, otpSvc, sessionSvc, local, cfg.Auth.AuthFlowServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise auth flow service: %w", err)
	}

	stack.Hub = realtime.NewHub(cfg.Server.AllowedOrigins...)
	notifications, err := services.NewNotificationService(stack.DB, stack.Hub)
	if err != nil {
		return nil, fmt.Errorf("initialise notification service: %w", err)
	}
	triggers, err := services.NewNotificationTriggers(notifications)
	if err != nil {
		return nil, fmt.Errorf("initialise notification triggers: %w", err)
	}
	forums, err := services.NewForumService(stack.DB, triggers)
	if err != nil {
		return nil, fmt.Errorf("initialise forum service: %w", err)
	}
	conversations, err := services.NewConversationService(stack.DB, triggers)
	if err != nil {
		return nil, fmt.Errorf("initialise conversation service: %w", err)
	}
	projects, err := services.NewProjectService(stack.DB, triggers)
	if err != nil {
		return nil, fmt.Errorf("initialise project service: %w", err)
	}
	moderation, err := services.NewModerationService(stack.DB, triggers)
	if err != nil {
		return nil, fmt.Errorf("initialise moderation service: %w", err)
	}
	users, err := services.NewUserService(stack.DB, triggers, sessionSvc)
	if err != nil {
		return nil, fmt.Errorf("initialise user service: %w", err)
	}

	jobs := monitoring.DefaultJobs()
	health := monitoring.NewHealthManager()
	timeout := cfg.Monitoring.Health.Timeout
	health.RegisterReadiness(checks.Database(stack.DB, timeout))
	if stack.Redis != nil {
		health.RegisterReadiness(checks.Redis(stack.Redis, timeout))
	}
	if cfg.Maintenance.Enabled {
		health.RegisterReadiness(checks.Maintenance(jobs, 0))
	}

	if cfg.Maintenance.Enabled {
		stack.Cleaner = maintenance.NewCleaner(maintenance.Dependencies{
			OTPs:          otpSvc,
			AuthFlows:     flows,
			Sessions:      sessionSvc,
			Cache:         dbStore,
			Notifications: notifications,
		},
			maintenance.WithSchedule(cfg.Maintenance.Schedule),
			maintenance.WithNotificationRetention(cfg.Maintenance.NotificationRetention),
			maintenance.WithTracker(jobs),
		)
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
	}

	if stack.Redis != nil {
		stack.RateStore = middleware.NewRedisRateStore(stack.Redis)
	} else {
		stack.RateStore = middleware.NewDatabaseRateStore(dbStore)
	}

	stack.Router, err = api.NewRouter(api.Dependencies{
		Config:        cfg,
		DB:            stack.DB,
		JWT:           jwtSvc,
		Sessions:      sessionSvc,
		Local:         local,
		AuthFlows:     flows,
		Notifications: notifications,
		Forums:        forums,
		Conversations: conversations,
		Projects:      projects,
		Moderation:    moderation,
		Users:         users,
		Hub:           stack.Hub,
		Health:        health,
		Jobs:          jobs,
		RateStore:     stack.RateStore,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// deliveryChannel builds the configured passcode channel. With the Kafka relay
// enabled it also starts consuming the topic into SMTP.
func (s *runtimeStack) deliveryChannel(ctx context.Context, cfg *app.Config, log *zap.Logger) (delivery.Channel, error) {
	var mailer mail.Mailer
	if cfg.Email.SMTP.Enabled {
		smtp, err := mail.NewSMTPMailer(cfg.Email.SMTPSettings())
		if err != nil {
			return nil, fmt.Errorf("initialise smtp mailer: %w", err)
		}
		mailer = smtp
	}

	var channel delivery.Channel
	switch name := cfg.Auth.OTP.DeliveryChannel(); name {
	case delivery.ChannelConsole:
		channel = delivery.NewConsoleChannel(logger.WithModule("otp"))
	case delivery.ChannelSMTP:
		if mailer == nil {
			return nil, errors.New("smtp delivery requires email.smtp.enabled")
		}
		ch, err := delivery.NewMailChannel(mailer)
		if err != nil {
			return nil, fmt.Errorf("initialise mail channel: %w", err)
		}
		channel = ch
	case delivery.ChannelKafka:
		ch, err := delivery.NewKafkaChannel(cfg.Messaging.Kafka.ProducerConfig())
		if err != nil {
			return nil, fmt.Errorf("initialise kafka channel: %w", err)
		}
		s.closers = append(s.closers, ch)
		channel = ch
	default:
		return nil, fmt.Errorf("unsupported otp delivery %q", name)
	}

	if cfg.Messaging.Kafka.Relay {
		if mailer == nil {
			return nil, errors.New("kafka relay requires email.smtp.enabled")
		}
		relay, err := delivery.NewRelay(cfg.Messaging.Kafka.RelayConfig(), mailer)
		if err != nil {
			return nil, fmt.Errorf("initialise kafka relay: %w", err)
		}
		s.relay = relay
		go func() {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("kafka relay stopped", zap.Error(err))
			}
		}()
	}

	log.Info("otp delivery configured", zap.String("channel", channel.Name()), zap.Bool("relay", s.relay != nil))
	return delivery.Instrument(channel), nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		if stopCtx != nil {
			ctx = stopCtx
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.relay != nil {
		if err := s.relay.Close(); err != nil {
			log.Warn("kafka relay shutdown", zap.Error(err))
		}
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			log.Warn("resource shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.ConnectionConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	seeds, err := superuserSeeds()
	if err != nil {
		closeDatabase(db, logger.WithModule("database"))
		return nil, err
	}
	if err := database.AutoMigrateAndSeed(db, seeds...); err != nil {
		closeDatabase(db, logger.WithModule("database"))
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", dbCfg.Driver))

	return db, nil
}

// superuserSeeds reads the optional bootstrap administrator from the
// environment. Username, email and password must be set together.
func superuserSeeds() ([]database.Seed, error) {
	username := strings.TrimSpace(os.Getenv(app.EnvPrefix + "_SUPERUSER_USERNAME"))
	email := strings.TrimSpace(os.Getenv(app.EnvPrefix + "_SUPERUSER_EMAIL"))
	password := os.Getenv(app.EnvPrefix + "_SUPERUSER_PASSWORD")

	if username == "" && email == "" && password == "" {
		return nil, nil
	}
	if username == "" || email == "" || password == "" {
		return nil, fmt.Errorf("%s_SUPERUSER_USERNAME, _EMAIL and _PASSWORD must be set together", app.EnvPrefix)
	}

	hashed, err := crypto.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash superuser password: %w", err)
	}
	return []database.Seed{database.SuperuserSeed(models.User{
		Username: username,
		Email:    email,
		Password: hashed,
	})}, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
