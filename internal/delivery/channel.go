package delivery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sustainabilityhub/sustainabilityhub/internal/models"
	"github.com/sustainabilityhub/sustainabilityhub/pkg/metrics"
)

// Channel names accepted in configuration.
const (
	ChannelConsole = "console"
	ChannelSMTP    = "smtp"
	ChannelKafka   = "kafka"
)

// Passcode is a freshly issued code addressed to Email.
type Passcode struct {
	Email     string
	Code      string
	Purpose   models.OTPPurpose
	ExpiresAt time.Time
}

// Channel delivers passcodes out of band.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, passcode Passcode) error
}

// Instrument wraps ch so every delivery is counted by channel and outcome.
func Instrument(ch Channel) Channel {
	if ch == nil {
		return nil
	}
	return instrumented{Channel: ch}
}

type instrumented struct {
	Channel
}

func (i instrumented) Deliver(ctx context.Context, passcode Passcode) error {
	err := i.Channel.Deliver(ctx, passcode)
	result := "success"
	if err != nil {
		result = "failure"
	}
	metrics.OTPDeliveries.WithLabelValues(i.Name(), result).Inc()
	return err
}

func subject(purpose models.OTPPurpose) string {
	if purpose == models.OTPPurposeReset {
		return "Your SustainabilityHub password reset code"
	}
	return "Your SustainabilityHub login code"
}

func body(p Passcode) string {
	var b strings.Builder
	if p.Purpose == models.OTPPurposeReset {
		b.WriteString("Use this code to reset your SustainabilityHub password:\n\n")
	} else {
		b.WriteString("Use this code to sign in to SustainabilityHub:\n\n")
	}
	fmt.Fprintf(&b, "    %s\n\n", p.Code)
	fmt.Fprintf(&b, "The code expires at %s UTC and can be used once.\n", p.ExpiresAt.UTC().Format("2006-01-02 15:04"))
	b.WriteString("If you did not request it, you can ignore this email.\n")
	return b.String()
}
