package delivery

import (
	"context"
	"errors"

	"github.com/sustainabilityhub/sustainabilityhub/pkg/mail"
)

// MailChannel sends passcodes as plain text email.
type MailChannel struct {
	mailer mail.Mailer
}

// NewMailChannel builds a channel on top of mailer.
func NewMailChannel(mailer mail.Mailer) (*MailChannel, error) {
	if mailer == nil {
		return nil, errors.New("delivery: mailer is required")
	}
	return &MailChannel{mailer: mailer}, nil
}

// Name implements Channel.
func (c *MailChannel) Name() string {
	return ChannelSMTP
}

// Deliver implements Channel.
func (c *MailChannel) Deliver(ctx context.Context, p Passcode) error {
	return c.mailer.Send(ctx, mail.Message{
		To:      []string{p.Email},
		Subject: subject(p.Purpose),
		Body:    body(p),
	})
}
