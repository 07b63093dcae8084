package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/sustainabilityhub/sustainabilityhub/internal/models"
	"github.com/sustainabilityhub/sustainabilityhub/pkg/logger"
	"github.com/sustainabilityhub/sustainabilityhub/pkg/mail"
)

const defaultRelayBackoff = time.Second

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// RelayConfig configures the Kafka consumer side of passcode delivery.
type RelayConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Relay consumes EmailMessage payloads and sends them over SMTP.
type Relay struct {
	reader  messageReader
	mailer  mail.Mailer
	log     *zap.Logger
	backoff time.Duration
}

// NewRelay builds a consumer-group reader for cfg.
func NewRelay(cfg RelayConfig, mailer mail.Mailer) (*Relay, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("delivery: relay requires brokers and topic")
	}
	if mailer == nil {
		return nil, errors.New("delivery: relay requires a mailer")
	}
	groupID := cfg.GroupID
	if groupID == "" {
		groupID = "sustainabilityhub-mail-relay"
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:           cfg.Brokers,
		GroupID:           groupID,
		Topic:             cfg.Topic,
		MinBytes:          1,
		MaxBytes:          10e6,
		CommitInterval:    time.Second,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
	})
	return &Relay{
		reader:  reader,
		mailer:  mailer,
		log:     logger.WithModule("mail-relay"),
		backoff: defaultRelayBackoff,
	}, nil
}

// Run consumes until ctx is cancelled. Malformed messages and send failures are
// logged and skipped; read errors pause the loop for the backoff interval.
func (r *Relay) Run(ctx context.Context) error {
	backoff := r.backoff
	if backoff <= 0 {
		backoff = defaultRelayBackoff
	}

	r.log.Info("mail relay started")
	for {
		msg, err := r.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) || ctx.Err() != nil {
				r.log.Info("mail relay stopped")
				return nil
			}
			r.log.Error("read message", zap.Error(err), zap.Duration("retry_in", backoff))
			select {
			case <-ctx.Done():
				r.log.Info("mail relay stopped")
				return nil
			case <-time.After(backoff):
			}
			continue
		}
		r.handle(ctx, msg)
	}
}

// Close releases the consumer.
func (r *Relay) Close() error {
	return r.reader.Close()
}

func (r *Relay) handle(ctx context.Context, msg kafka.Message) {
	var em EmailMessage
	if err := json.Unmarshal(msg.Value, &em); err != nil {
		r.log.Error("decode email message", zap.Int("size", len(msg.Value)), zap.Int64("offset", msg.Offset), zap.Error(err))
		return
	}
	code, _ := em.Data["code"].(string)
	if em.To == "" || code == "" {
		r.log.Warn("incomplete email message", zap.String("to", em.To), zap.String("template", em.Template))
		return
	}

	passcode := Passcode{Email: em.To, Code: code, Purpose: models.OTPPurposeLogin}
	if em.Template == TemplateResetCode {
		passcode.Purpose = models.OTPPurposeReset
	}
	if raw, ok := em.Data["expires_at"].(string); ok {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			passcode.ExpiresAt = ts
		}
	}

	subj := em.Subject
	if subj == "" {
		subj = subject(passcode.Purpose)
	}
	if err := r.mailer.Send(ctx, mail.Message{To: []string{em.To}, Subject: subj, Body: body(passcode)}); err != nil {
		r.log.Error("send email failed", zap.String("to", em.To), zap.String("template", em.Template), zap.Error(err))
		return
	}
	r.log.Info("email sent", zap.String("to", em.To), zap.String("template", em.Template))
}
