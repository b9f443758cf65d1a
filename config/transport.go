package config

import (
	"fmt"

	"github.com/next-trace/scg-event-bus/adapters/inmemory"
	"github.com/next-trace/scg-event-bus/adapters/kafka"
	"github.com/next-trace/scg-event-bus/adapters/nats"
	"github.com/next-trace/scg-event-bus/adapters/rabbitmq"
	cbus "github.com/next-trace/scg-event-bus/contract/bus"
	berr "github.com/next-trace/scg-event-bus/contract/errors"
)

// OpenTransport builds the transport selected by transport.kind.
func (c *Config) OpenTransport() (cbus.Transport, error) {
	switch c.Transport.Kind {
	case KindRabbitMQ:
		t, err := rabbitmq.New(rabbitmq.Config{URL: c.RabbitMQ.URL, ConnTimeout: c.RabbitMQ.ConnTimeout})
		if err != nil {
			return nil, err
		}

		return t, nil
	case KindNATS:
		t, err := nats.New(nats.Config{
			URL:           c.NATS.URL,
			Name:          c.NATS.Name,
			ConnTimeout:   c.NATS.ConnTimeout,
			MaxReconnects: c.NATS.MaxReconnects,
		})
		if err != nil {
			return nil, err
		}

		return t, nil
	case KindKafka:
		t, err := kafka.New(kafka.Config{Brokers: c.Kafka.Brokers, ClientID: c.Kafka.ClientID})
		if err != nil {
			return nil, err
		}

		return t, nil
	case KindMemory:
		return inmemory.NewWithBuffer(c.Memory.Buffer), nil
	default:
		return nil, fmt.Errorf("%w: unknown transport %q", berr.ErrTransportNotConfigured, c.Transport.Kind)
	}
}
