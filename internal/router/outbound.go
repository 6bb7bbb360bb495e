package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"comply/internal/filing"
	"comply/internal/platform/kafka/producer"
	"comply/internal/resilience"
)

// SyncPublisher is the confirmed-write slice of the Kafka producer. The
// outbound sinks that decide an event's fate need the broker's ack before
// the inbound offset may commit.
type SyncPublisher interface {
	PublishSync(ctx context.Context, topic string, key, value []byte) error
}

// KafkaDeadLetterer writes dead letters to the dead-letter topic. The write
// is synchronous: the pipeline acknowledges the inbound event only after
// the dead letter is durably on the broker.
type KafkaDeadLetterer struct {
	producer SyncPublisher
	topic    string
}

// NewKafkaDeadLetterer constructs the sink.
func NewKafkaDeadLetterer(p SyncPublisher, topic string) *KafkaDeadLetterer {
	return &KafkaDeadLetterer{producer: p, topic: topic}
}

func (d *KafkaDeadLetterer) Send(ctx context.Context, dl resilience.DeadLetter) error {
	value, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("encode dead letter: %w", err)
	}
	if err := d.producer.PublishSync(ctx, d.topic, []byte(dl.CorrelationID), value); err != nil {
		return fmt.Errorf("publish dead letter for %s: %w", dl.CorrelationID, err)
	}
	return nil
}

// ManualReviewQueue parks events whose operation circuit is open on a
// manual-review topic instead of dead-lettering them. Compliance deadlines
// keep running while a downstream dependency is out, so an operator picks
// the event up by hand rather than waiting for the circuit to close.
type ManualReviewQueue struct {
	producer SyncPublisher
	topic    string
	logger   *slog.Logger
}

// NewManualReviewQueue constructs the queue.
func NewManualReviewQueue(p SyncPublisher, topic string, logger *slog.Logger) *ManualReviewQueue {
	return &ManualReviewQueue{producer: p, topic: topic, logger: logger}
}

// manualReviewEnvelope is the outbound wire format for parked events.
type manualReviewEnvelope struct {
	Operation     string    `json:"operation"`
	CorrelationID string    `json:"correlation_id"`
	Payload       []byte    `json:"payload"`
	QueuedAt      time.Time `json:"queued_at"`
}

// Fallback returns the open-circuit handler for an operation. The publish is
// synchronous: an event is only acknowledged once it is parked durably.
func (q *ManualReviewQueue) Fallback(operation string) resilience.Fallback {
	return func(ctx context.Context, correlationID string, payload []byte) error {
		value, err := json.Marshal(manualReviewEnvelope{
			Operation:     operation,
			CorrelationID: correlationID,
			Payload:       payload,
			QueuedAt:      time.Now(),
		})
		if err != nil {
			return fmt.Errorf("encode manual-review envelope: %w", err)
		}
		if err := q.producer.PublishSync(ctx, q.topic, []byte(correlationID), value); err != nil {
			return fmt.Errorf("park %s event for manual review: %w", operation, err)
		}
		q.logger.Warn("event parked for manual review",
			"operation", operation,
			"correlation_id", correlationID,
		)
		return nil
	}
}

// StatusPublisher emits filing workflow events to the status topic.
// Fire-and-forget: outbound reliability is the broker's concern.
type StatusPublisher struct {
	producer *producer.Producer
	topic    string
	logger   *slog.Logger
}

// NewStatusPublisher constructs the publisher.
func NewStatusPublisher(p *producer.Producer, topic string, logger *slog.Logger) *StatusPublisher {
	return &StatusPublisher{producer: p, topic: topic, logger: logger}
}

// filingEvent is the outbound wire format for filing status updates.
type filingEvent struct {
	Event         string          `json:"event"`
	FilingID      string          `json:"filing_id"`
	SubjectID     string          `json:"subject_id"`
	Type          filing.Type     `json:"type"`
	Status        filing.Status   `json:"status"`
	Priority      filing.Priority `json:"priority"`
	Amount        float64         `json:"amount"`
	Deadline      time.Time       `json:"deadline"`
	CorrelationID string          `json:"correlation_id"`
	EmittedAt     time.Time       `json:"emitted_at"`
}

func (p *StatusPublisher) PublishFilingEvent(ctx context.Context, event string, f *filing.Filing) {
	value, err := json.Marshal(filingEvent{
		Event:         event,
		FilingID:      f.ID.String(),
		SubjectID:     f.SubjectID,
		Type:          f.Type,
		Status:        f.Status,
		Priority:      f.Priority,
		Amount:        f.Amount,
		Deadline:      f.Deadline,
		CorrelationID: f.CorrelationID,
		EmittedAt:     time.Now(),
	})
	if err != nil {
		p.logger.Error("encode filing event", "event", event, "filing_id", f.ID, "error", err)
		return
	}
	p.producer.Publish(ctx, p.topic, []byte(f.ID.String()), value)
}
