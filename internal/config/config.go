// Package config loads process configuration from SCG_* environment variables.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Transport selects where the relay sends integration events.
type Transport string

const (
	TransportNone     Transport = "none"
	TransportMemory   Transport = "memory"
	TransportNATS     Transport = "nats"
	TransportKafka    Transport = "kafka"
	TransportRabbitMQ Transport = "rabbitmq"
)

// Config describes one mediator process.
type Config struct {
	LogLevel    slog.Level `env:"SCG_LOG_LEVEL"    envDefault:"info"`
	ServiceName string     `env:"SCG_SERVICE_NAME" envDefault:"scg-cqrs"`
	EventSource string     `env:"SCG_EVENT_SOURCE" envDefault:"urn:scg-cqrs"`

	Transport      Transport     `env:"SCG_RELAY_TRANSPORT" envDefault:"none"`
	PublishTimeout time.Duration `env:"SCG_PUBLISH_TIMEOUT" envDefault:"5s"`

	NATSURL       string   `env:"SCG_NATS_URL"`
	KafkaBrokers  []string `env:"SCG_KAFKA_BROKERS"   envSeparator:","`
	KafkaClientID string   `env:"SCG_KAFKA_CLIENT_ID" envDefault:"scg-cqrs"`
	RabbitMQURL   string   `env:"SCG_RABBITMQ_URL"`

	AuditDBPath  string `env:"SCG_AUDIT_DB"`
	OTLPEndpoint string `env:"SCG_OTEL_ENDPOINT"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	c.KafkaBrokers = compact(c.KafkaBrokers)

	if err := c.Validate(); err != nil {
		return Config{}, err
	}

	return c, nil
}

func compact(items []string) []string {
	out := items[:0]

	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}

	return out
}

// Validate checks that the selected transport has what it needs.
func (c Config) Validate() error {
	switch c.Transport {
	case TransportNone, TransportMemory:
	case TransportNATS:
		if c.NATSURL == "" {
			return fmt.Errorf("config: SCG_NATS_URL is required for transport %q", c.Transport)
		}
	case TransportKafka:
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("config: SCG_KAFKA_BROKERS is required for transport %q", c.Transport)
		}
	case TransportRabbitMQ:
		if c.RabbitMQURL == "" {
			return fmt.Errorf("config: SCG_RABBITMQ_URL is required for transport %q", c.Transport)
		}
	default:
		return fmt.Errorf("config: unknown relay transport %q", c.Transport)
	}

	if c.PublishTimeout < 0 {
		return fmt.Errorf("config: SCG_PUBLISH_TIMEOUT must not be negative")
	}

	return nil
}
