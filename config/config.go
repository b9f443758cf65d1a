// Package config loads event bus settings from a YAML file and the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "EVENTBUS"

// Transport kinds.
const (
	KindRabbitMQ = "rabbitmq"
	KindNATS     = "nats"
	KindKafka    = "kafka"
	KindMemory   = "memory"
)

// Config holds all event bus configuration
type Config struct {
	Transport TransportConfig `mapstructure:"transport"`
	RabbitMQ  RabbitMQConfig  `mapstructure:"rabbitmq"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Memory    MemoryConfig    `mapstructure:"memory"`
	Log       LogConfig       `mapstructure:"log"`
}

// TransportConfig selects the broker.
type TransportConfig struct {
	Kind string `mapstructure:"kind"`
}

type RabbitMQConfig struct {
	URL         string        `mapstructure:"url"`
	ConnTimeout time.Duration `mapstructure:"conn_timeout"`
}

type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Name          string        `mapstructure:"name"`
	ConnTimeout   time.Duration `mapstructure:"conn_timeout"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
}

type KafkaConfig struct {
	Brokers  []string `mapstructure:"brokers"`
	ClientID string   `mapstructure:"client_id"`
}

// MemoryConfig sizes the per-queue buffer of the in-process transport.
type MemoryConfig struct {
	Buffer int `mapstructure:"buffer"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configPath (skipped when empty) and applies EVENTBUS_* environment
// overrides, e.g. EVENTBUS_RABBITMQ_URL for rabbitmq.url.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Every key needs a default so AutomaticEnv can see it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("transport.kind", KindMemory)

	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("rabbitmq.conn_timeout", 10*time.Second)

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.name", "")
	v.SetDefault("nats.conn_timeout", 2*time.Second)
	v.SetDefault("nats.max_reconnects", 60)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.client_id", "scg-event-bus")

	v.SetDefault("memory.buffer", 1024)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Transport.Kind {
	case KindRabbitMQ:
		if c.RabbitMQ.URL == "" {
			return fmt.Errorf("rabbitmq.url is required")
		}
	case KindNATS:
		if c.NATS.URL == "" {
			return fmt.Errorf("nats.url is required")
		}
	case KindKafka:
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required")
		}
	case KindMemory:
		if c.Memory.Buffer <= 0 {
			return fmt.Errorf("memory.buffer must be positive")
		}
	default:
		return fmt.Errorf("transport.kind %q is not one of rabbitmq, nats, kafka, memory", c.Transport.Kind)
	}

	if _, err := c.Log.level(); err != nil {
		return err
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q is not one of text, json", c.Log.Format)
	}

	return nil
}

func (l LogConfig) level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}

	return lvl, nil
}
