package app

import (
	"strings"

	"github.com/sustainabilityhub/sustainabilityhub/internal/delivery"
)

func (k KafkaSettings) brokers() []string {
	out := make([]string, 0, len(k.Brokers))
	for _, b := range k.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// ProducerConfig converts the Kafka settings for the passcode producer.
func (k KafkaSettings) ProducerConfig() delivery.KafkaConfig {
	return delivery.KafkaConfig{
		Brokers: k.brokers(),
		Topic:   strings.TrimSpace(k.Topic),
		Timeout: k.Timeout,
	}
}

// RelayConfig converts the Kafka settings for the mail relay consumer.
func (k KafkaSettings) RelayConfig() delivery.RelayConfig {
	return delivery.RelayConfig{
		Brokers: k.brokers(),
		Topic:   strings.TrimSpace(k.Topic),
		GroupID: strings.TrimSpace(k.GroupID),
	}
}
