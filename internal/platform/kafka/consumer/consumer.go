package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Header is a single Kafka record header.
type Header struct {
	Key   string
	Value []byte
}

// Message is the transport-level view of one inbound record. Handlers never
// see kgo types directly so they stay testable without a broker.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   []Header
	Timestamp time.Time
}

// Handler processes one message. Returning nil acknowledges the message:
// the handler has determined its fate (processed or dead-lettered) and the
// offset is committed. Returning an error leaves the offset uncommitted so
// the message redelivers.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

// Consumer wraps a franz-go consumer group client. Records within one
// partition are dispatched in order by a single goroutine; distinct
// partitions process in parallel.
type Consumer struct {
	client *kgo.Client
	logger *slog.Logger
}

// New creates a consumer group client for the given topics. Auto-commit is
// disabled: offsets are committed per record only after the handler
// acknowledges it, so a crash mid-handler redelivers instead of losing.
func New(brokers []string, groupID string, topics []string, logger *slog.Logger) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka consumer requires at least one broker")
	}
	if groupID == "" {
		return nil, fmt.Errorf("kafka consumer requires a group id")
	}
	if len(topics) == 0 {
		return nil, fmt.Errorf("kafka consumer requires at least one topic")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topics...),
		kgo.DisableAutoCommit(),
		kgo.FetchMaxWait(500*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	return &Consumer{client: client, logger: logger}, nil
}

// Run polls until the context is cancelled, dispatching each partition's
// records sequentially to the handler. The call blocks; run it in its own
// goroutine.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.Error("kafka fetch error",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})

		var wg sync.WaitGroup
		fetches.EachPartition(func(p kgo.FetchTopicPartition) {
			if len(p.Records) == 0 {
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				c.consumePartition(ctx, handler, p.Records)
			}()
		})
		wg.Wait()
	}
}

// consumePartition processes one partition's batch in delivery order. The
// first unacknowledged record stops the batch so ordering survives
// redelivery.
func (c *Consumer) consumePartition(ctx context.Context, handler Handler, records []*kgo.Record) {
	for _, rec := range records {
		msg := fromRecord(rec)
		if err := handler.Handle(ctx, msg); err != nil {
			c.logger.Error("handler did not resolve message, leaving uncommitted",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			return
		}
		if err := c.client.CommitRecords(ctx, rec); err != nil {
			c.logger.Error("offset commit failed",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			return
		}
	}
}

func fromRecord(rec *kgo.Record) *Message {
	headers := make([]Header, 0, len(rec.Headers))
	for _, h := range rec.Headers {
		headers = append(headers, Header{Key: h.Key, Value: h.Value})
	}
	return &Message{
		Topic:     rec.Topic,
		Partition: rec.Partition,
		Offset:    rec.Offset,
		Key:       rec.Key,
		Value:     rec.Value,
		Headers:   headers,
		Timestamp: rec.Timestamp,
	}
}

// Close shuts down the underlying client. Pending offsets are not committed.
func (c *Consumer) Close() {
	c.client.Close()
}
