package producer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer wraps a franz-go client for outbound publication. Status and
// alert messages are fire-and-forget; dead-letter routing is synchronous
// because the inbound offset must not be committed until the DLQ write is
// durable.
type Producer struct {
	client *kgo.Client
	logger *slog.Logger
}

// New creates a producer for the given brokers.
func New(brokers []string, logger *slog.Logger) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka producer requires at least one broker")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Producer{client: client, logger: logger}, nil
}

// Publish sends a record without waiting for acknowledgment. Failures are
// logged, not retried inline; outbound reliability is the broker's concern.
func (p *Producer) Publish(ctx context.Context, topic string, key, value []byte) {
	rec := &kgo.Record{Topic: topic, Key: key, Value: value}
	p.client.Produce(ctx, rec, func(r *kgo.Record, err error) {
		if err != nil {
			p.logger.Error("outbound publish failed",
				"topic", r.Topic,
				"key", string(r.Key),
				"error", err,
			)
		}
	})
}

// PublishSync sends a record and blocks until the broker acknowledges it.
func (p *Producer) PublishSync(ctx context.Context, topic string, key, value []byte) error {
	rec := &kgo.Record{Topic: topic, Key: key, Value: value}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", topic, err)
	}
	return nil
}

// Close flushes buffered records and shuts down the client.
func (p *Producer) Close() {
	p.client.Close()
}
