package delivery

import (
	"context"

	"go.uber.org/zap"

	"github.com/sustainabilityhub/sustainabilityhub/pkg/logger"
)

// ConsoleChannel writes passcodes to the application log. Development only.
type ConsoleChannel struct {
	log *zap.Logger
}

// NewConsoleChannel logs through log, or the "otp-delivery" module logger when nil.
func NewConsoleChannel(log *zap.Logger) *ConsoleChannel {
	if log == nil {
		log = logger.WithModule("otp-delivery")
	}
	return &ConsoleChannel{log: log}
}

// Name implements Channel.
func (c *ConsoleChannel) Name() string {
	return ChannelConsole
}

// Deliver implements Channel.
func (c *ConsoleChannel) Deliver(_ context.Context, p Passcode) error {
	c.log.Warn("one-time passcode issued (console delivery)",
		zap.String("email", p.Email),
		zap.String("purpose", string(p.Purpose)),
		zap.String("code", p.Code),
		zap.Time("expires_at", p.ExpiresAt),
	)
	return nil
}
