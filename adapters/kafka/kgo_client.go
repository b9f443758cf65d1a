package kafka

import (
	"context"
	"crypto/tls"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Config configures the franz-go clients built by the transport.
type Config struct {
	Brokers     []string
	ClientID    string
	TLS         *tls.Config
	Acks        *kgo.Acks
	Idempotent  bool
	Compression []kgo.CompressionCodec
}

// Client is the subset of *kgo.Client used by the transport.
type Client interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	PollFetches(ctx context.Context) kgo.Fetches
	CommitRecords(ctx context.Context, rs ...*kgo.Record) error
	Close()
}

// ClientFactory builds a client from options. kgo.NewClient is adapted by NewKgoFactory.
type ClientFactory func(opts ...kgo.Opt) (Client, error)

// NewKgoFactory returns a factory backed by kgo.NewClient.
func NewKgoFactory() ClientFactory {
	return func(opts ...kgo.Opt) (Client, error) {
		cl, err := kgo.NewClient(opts...)
		if err != nil {
			return nil, err
		}

		return cl, nil
	}
}

func (c Config) baseOpts() []kgo.Opt {
	opts := []kgo.Opt{kgo.SeedBrokers(c.Brokers...), kgo.AllowAutoTopicCreation()}

	if c.ClientID != "" {
		opts = append(opts, kgo.ClientID(c.ClientID))
	}

	if c.TLS != nil {
		opts = append(opts, kgo.DialTLSConfig(c.TLS))
	}

	return opts
}

func (c Config) producerOpts() []kgo.Opt {
	opts := c.baseOpts()

	if !c.Idempotent {
		opts = append(opts, kgo.DisableIdempotentWrite())
	}

	if c.Acks != nil {
		opts = append(opts, kgo.RequiredAcks(*c.Acks))
	}

	if len(c.Compression) > 0 {
		opts = append(opts, kgo.ProducerBatchCompression(c.Compression...))
	}

	return opts
}

// consumerOpts joins the group named after the topic. Offsets are committed
// explicitly on receipt, before the record is handed to the bus.
func (c Config) consumerOpts(topic string) []kgo.Opt {
	opts := c.baseOpts()

	return append(opts,
		kgo.ConsumeTopics(topic),
		kgo.ConsumerGroup(topic),
		kgo.DisableAutoCommit(),
	)
}
