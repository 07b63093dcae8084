package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/sustainabilityhub/sustainabilityhub/internal/models"
)

// Email templates understood by the relay.
const (
	TemplateLoginCode = "otp_login"
	TemplateResetCode = "otp_reset"
)

const defaultPublishTimeout = 5 * time.Second

// EmailMessage is the JSON payload published for the mail relay.
type EmailMessage struct {
	To       string         `json:"to"`
	Subject  string         `json:"subject"`
	Template string         `json:"template"`
	Data     map[string]any `json:"data"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures the Kafka producer.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	Timeout time.Duration
}

// KafkaChannel publishes passcode emails to a topic consumed by the mail relay.
type KafkaChannel struct {
	writer  messageWriter
	timeout time.Duration
}

// NewKafkaChannel builds a producer that waits for all in-sync replicas.
func NewKafkaChannel(cfg KafkaConfig) (*KafkaChannel, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("delivery: kafka brokers are required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("delivery: kafka topic is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}

	return &KafkaChannel{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireAll,
		},
		timeout: timeout,
	}, nil
}

// Name implements Channel.
func (c *KafkaChannel) Name() string {
	return ChannelKafka
}

// Deliver implements Channel. Messages are keyed by email so codes for one
// address stay ordered within a partition.
func (c *KafkaChannel) Deliver(ctx context.Context, p Passcode) error {
	template := TemplateLoginCode
	if p.Purpose == models.OTPPurposeReset {
		template = TemplateResetCode
	}

	value, err := json.Marshal(EmailMessage{
		To:       p.Email,
		Subject:  subject(p.Purpose),
		Template: template,
		Data: map[string]any{
			"code":       p.Code,
			"purpose":    string(p.Purpose),
			"expires_at": p.ExpiresAt.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return fmt.Errorf("delivery: encode kafka message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.writer.WriteMessages(ctx, kafka.Message{Key: []byte(p.Email), Value: value}); err != nil {
		return fmt.Errorf("delivery: publish passcode: %w", err)
	}
	return nil
}

// Close flushes and closes the producer.
func (c *KafkaChannel) Close() error {
	return c.writer.Close()
}
