package config

import (
	"os"
	"strings"
)

// KafkaConfig names the brokers booking events are mirrored to.  An empty
// broker list disables the Kafka publisher.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Enabled reports whether at least one broker is configured.
func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 }

// LoadKafkaConfig reads KAFKA_BROKERS (comma separated host:port list) and
// KAFKA_TOPIC.
func LoadKafkaConfig() KafkaConfig {
	var brokers []string
	for _, b := range strings.Split(os.Getenv("KAFKA_BROKERS"), ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return KafkaConfig{
		Brokers: brokers,
		Topic:   envStr("KAFKA_TOPIC", "booking-events"),
	}
}
