// Package alerts defines the outbound notification surface. Implementations
// are best-effort by contract: a failed notification must never abort the
// caller's transaction.
package alerts

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Severity levels, in increasing order of operator urgency.
const (
	SeverityInfo      = "info"
	SeverityHigh      = "high"
	SeverityCritical  = "critical"
	SeverityEmergency = "emergency"
)

// Notifier sends operator alerts and subject-facing notifications.
type Notifier interface {
	SendAlert(ctx context.Context, title, body, severity string) error
	SendToSubject(ctx context.Context, subjectID, title, body string) error
}

// Publisher is the transport the Kafka notifier publishes through.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte)
}

// KafkaNotifier publishes alerts to the alert topic fire-and-forget.
// Outbound reliability is the broker's concern.
type KafkaNotifier struct {
	publisher Publisher
	topic     string
	logger    *slog.Logger
}

// NewKafkaNotifier creates a notifier publishing to the given alert topic.
func NewKafkaNotifier(publisher Publisher, topic string, logger *slog.Logger) *KafkaNotifier {
	return &KafkaNotifier{publisher: publisher, topic: topic, logger: logger}
}

type alertMessage struct {
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Severity  string    `json:"severity"`
	SubjectID string    `json:"subject_id,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}

// SendAlert publishes an operator alert.
func (n *KafkaNotifier) SendAlert(ctx context.Context, title, body, severity string) error {
	return n.send(ctx, alertMessage{Title: title, Body: body, Severity: severity, SentAt: time.Now()})
}

// SendToSubject publishes a subject-facing notification.
func (n *KafkaNotifier) SendToSubject(ctx context.Context, subjectID, title, body string) error {
	return n.send(ctx, alertMessage{Title: title, Body: body, Severity: SeverityInfo, SubjectID: subjectID, SentAt: time.Now()})
}

func (n *KafkaNotifier) send(ctx context.Context, msg alertMessage) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	n.publisher.Publish(ctx, n.topic, []byte(msg.SubjectID), value)
	return nil
}

// LogNotifier writes notifications to the structured log. Used in
// development and as a last-resort sink when no broker is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendAlert(_ context.Context, title, body, severity string) error {
	n.logger.Warn("ALERT", "title", title, "body", body, "severity", severity)
	return nil
}

func (n *LogNotifier) SendToSubject(_ context.Context, subjectID, title, body string) error {
	n.logger.Info("subject notification", "subject_id", subjectID, "title", title, "body", body)
	return nil
}
