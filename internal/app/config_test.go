package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sustainabilityhub/sustainabilityhub/internal/auth"
	"github.com/sustainabilityhub/sustainabilityhub/internal/auth/providers"
	"github.com/sustainabilityhub/sustainabilityhub/internal/services"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig("testdata")
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.Equal(t, []string{"https://hub.example.org"}, cfg.Server.AllowedOrigins)
	require.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)
	require.Equal(t, 20, cfg.Database.MaxOpenConns)

	require.True(t, cfg.Cache.Redis.Enabled)
	require.Equal(t, "redis.example.com:6380", cfg.Cache.Redis.Address)
	require.Equal(t, 5*time.Second, cfg.Cache.Redis.Timeout)

	require.Equal(t, "jwt-secret", cfg.Auth.JWT.Secret)
	require.Equal(t, 30*time.Minute, cfg.Auth.JWT.TTL)
	require.Equal(t, 1440*time.Hour, cfg.Auth.Session.RefreshTTL)
	require.Equal(t, 64, cfg.Auth.Session.RefreshLength)
	require.Equal(t, 7, cfg.Auth.Local.LockoutThreshold)
	require.Equal(t, 20*time.Minute, cfg.Auth.Local.LockoutDuration)

	require.Equal(t, 5*time.Minute, cfg.Auth.OTP.TTL)
	require.Equal(t, 8, cfg.Auth.OTP.Digits)
	require.Equal(t, 3, cfg.Auth.OTP.MaxAttempts)
	require.Equal(t, 10*time.Minute, cfg.Auth.OTP.ResetTTL)
	require.Equal(t, "kafka", cfg.Auth.OTP.DeliveryChannel())
	require.Equal(t, "hub_flow", cfg.Auth.OTP.CookieName)
	require.True(t, cfg.Auth.OTP.CookieSecure)

	requests, window := cfg.Auth.RateLimit.Limits()
	require.Equal(t, 20, requests)
	require.Equal(t, 30*time.Second, window)

	require.True(t, cfg.Email.SMTP.Enabled)
	require.Equal(t, "smtp.example.com", cfg.Email.SMTP.Host)
	require.Equal(t, 2525, cfg.Email.SMTP.Port)
	require.Equal(t, 15*time.Second, cfg.Email.SMTP.Timeout)

	require.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Messaging.Kafka.Brokers)
	require.Equal(t, "hub.otp", cfg.Messaging.Kafka.Topic)
	require.True(t, cfg.Messaging.Kafka.Relay)

	require.True(t, cfg.Maintenance.Enabled)
	require.Equal(t, "@every 5m", cfg.Maintenance.Schedule)
	require.Equal(t, 168*time.Hour, cfg.Maintenance.NotificationRetention)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("SUSTAINABILITYHUB_SERVER_PORT", "7070")
	t.Setenv("SUSTAINABILITYHUB_AUTH_JWT_SECRET", "from-env")
	t.Setenv("SUSTAINABILITYHUB_AUTH_OTP_DELIVERY", "console")

	cfg, err := LoadConfig("testdata")
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, "from-env", cfg.Auth.JWT.Secret)
	require.Equal(t, "console", cfg.Auth.OTP.DeliveryChannel())
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("SUSTAINABILITYHUB_AUTH_JWT_SECRET", "s3cret")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.False(t, cfg.Cache.Redis.Enabled)
	require.Equal(t, 6, cfg.Auth.OTP.Digits)
	require.Equal(t, 5, cfg.Auth.OTP.MaxAttempts)
	require.Equal(t, "console", cfg.Auth.OTP.DeliveryChannel())
	require.Equal(t, "sh_auth_flow", cfg.Auth.OTP.CookieName)
	require.Equal(t, "@every 15m", cfg.Maintenance.Schedule)
}

func TestLoadConfigRequiresJWTSecret(t *testing.T) {
	t.Setenv("SUSTAINABILITYHUB_AUTH_JWT_SECRET", "")

	_, err := LoadConfig(t.TempDir())
	require.ErrorContains(t, err, "auth.jwt.secret")
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server: ServerConfig{Port: 8000},
			Auth:   AuthConfig{JWT: JWTSettings{Secret: "x"}},
		}
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"ok", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"smtp delivery without smtp", func(c *Config) { c.Auth.OTP.Delivery = "smtp" }, "email.smtp is disabled"},
		{"kafka delivery without brokers", func(c *Config) { c.Auth.OTP.Delivery = "kafka" }, "messaging.kafka"},
		{"unknown delivery", func(c *Config) { c.Auth.OTP.Delivery = "pigeon" }, "unknown auth.otp.delivery"},
		{"relay without smtp", func(c *Config) { c.Messaging.Kafka.Relay = true }, "relay requires email.smtp"},
		{"smtp without host", func(c *Config) { c.Email.SMTP = SMTPConfig{Enabled: true, Port: 25} }, "host is required"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.want == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tc.want)
		})
	}
}

func TestAuthConfigAdapters(t *testing.T) {
	cfg := AuthConfig{
		JWT:     JWTSettings{Secret: "secret", Issuer: "issuer", TTL: 30 * time.Minute},
		Session: SessionSettings{RefreshTTL: 10 * time.Hour, RefreshLength: 32},
		Local:   LocalAuthSettings{LockoutThreshold: 4, LockoutDuration: 10 * time.Minute},
		OTP:     OTPSettings{TTL: 3 * time.Minute, MaxAttempts: 2, ResetTTL: time.Minute},
	}

	require.Equal(t, auth.JWTConfig{
		Secret:         "secret",
		Issuer:         "issuer",
		AccessTokenTTL: 30 * time.Minute,
	}, cfg.JWTServiceConfig())

	require.Equal(t, auth.SessionConfig{
		RefreshTokenTTL: 10 * time.Hour,
		RefreshLength:   32,
	}, cfg.SessionServiceConfig())

	require.Equal(t, providers.LocalConfig{
		LockoutThreshold: 4,
		LockoutDuration:  10 * time.Minute,
	}, cfg.LocalProviderConfig())

	require.Equal(t, 3*time.Minute, cfg.OTPServiceConfig().TTL)
	flowCfg := cfg.AuthFlowServiceConfig()
	require.Equal(t, 2, flowCfg.MaxAttempts)
	require.Equal(t, time.Minute, flowCfg.ResetTTL)
}

func TestAuthConfigAdaptersFallback(t *testing.T) {
	var cfg AuthConfig

	require.Equal(t, auth.DefaultAccessTokenTTL, cfg.JWTServiceConfig().AccessTokenTTL)

	sessionCfg := cfg.SessionServiceConfig()
	require.Equal(t, auth.DefaultRefreshTokenTTL, sessionCfg.RefreshTokenTTL)
	require.Equal(t, 48, sessionCfg.RefreshLength)

	localCfg := cfg.LocalProviderConfig()
	require.Equal(t, defaultLockoutThreshold, localCfg.LockoutThreshold)
	require.Equal(t, defaultLockoutDuration, localCfg.LockoutDuration)

	require.Equal(t, services.DefaultOTPTTL, cfg.OTPServiceConfig().TTL)
	require.Equal(t, services.DefaultMaxFlowAttempts, cfg.AuthFlowServiceConfig().MaxAttempts)
	require.Equal(t, services.DefaultResetTTL, cfg.AuthFlowServiceConfig().ResetTTL)

	requests, window := cfg.RateLimit.Limits()
	require.Equal(t, defaultRateLimitCount, requests)
	require.Equal(t, defaultRateLimitWindow, window)
}

func TestDatabaseConnectionConfig(t *testing.T) {
	cfg := DatabaseConfig{
		Driver:   " Postgres ",
		Postgres: DBAuthConfig{Host: "db", Port: 5432, Database: "hub", Username: "u", Password: "p"},
		MySQL:    DBAuthConfig{Host: "ignored"},
	}
	conn := cfg.ConnectionConfig()
	require.Equal(t, "postgres", conn.Driver)
	require.Equal(t, "db", conn.Host)
	require.Equal(t, "hub", conn.Name)

	sqlite := DatabaseConfig{Driver: "sqlite", Path: "./data/hub.sqlite", Postgres: DBAuthConfig{Host: "db"}}
	require.Empty(t, sqlite.ConnectionConfig().Host)
	require.Equal(t, "./data/hub.sqlite", sqlite.ConnectionConfig().Path)
}

func TestKafkaAdapters(t *testing.T) {
	k := KafkaSettings{Brokers: []string{" a:9092 ", "", "b:9092"}, Topic: "t", GroupID: "g", Timeout: time.Second}
	require.Equal(t, []string{"a:9092", "b:9092"}, k.ProducerConfig().Brokers)
	require.Equal(t, time.Second, k.ProducerConfig().Timeout)
	require.Equal(t, "g", k.RelayConfig().GroupID)
}

func TestEmailConfigAdapter(t *testing.T) {
	cfg := EmailConfig{
		SMTP: SMTPConfig{
			Enabled:  true,
			Host:     "smtp.example.com",
			Port:     2525,
			Username: "user",
			Password: "pass",
			From:     "no-reply@example.com",
			UseTLS:   true,
			Timeout:  10 * time.Second,
		},
	}

	settings := cfg.SMTPSettings()
	require.True(t, settings.Enabled)
	require.Equal(t, "smtp.example.com", settings.Host)
	require.Equal(t, 2525, settings.Port)
	require.Equal(t, "no-reply@example.com", settings.From)
	require.Equal(t, 10*time.Second, settings.Timeout)
}
