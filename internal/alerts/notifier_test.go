package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

type capturingPublisher struct {
	topic string
	key   []byte
	value []byte
}

func (p *capturingPublisher) Publish(_ context.Context, topic string, key, value []byte) {
	p.topic, p.key, p.value = topic, key, value
}

func TestKafkaNotifierPublishesAlert(t *testing.T) {
	pub := &capturingPublisher{}
	n := NewKafkaNotifier(pub, "compliance.alerts", slog.Default())

	require.NoError(t, n.SendAlert(context.Background(), "deadline breached", "filing f-1 overdue", SeverityCritical))

	require.Equal(t, "compliance.alerts", pub.topic)
	var msg alertMessage
	require.NoError(t, json.Unmarshal(pub.value, &msg))
	require.Equal(t, "deadline breached", msg.Title)
	require.Equal(t, SeverityCritical, msg.Severity)
	require.Empty(t, msg.SubjectID)
}

func TestKafkaNotifierKeysSubjectNotifications(t *testing.T) {
	pub := &capturingPublisher{}
	n := NewKafkaNotifier(pub, "compliance.alerts", slog.Default())

	require.NoError(t, n.SendToSubject(context.Background(), "cust-1", "filing approved", "your claim was approved"))

	require.Equal(t, []byte("cust-1"), pub.key)
	var msg alertMessage
	require.NoError(t, json.Unmarshal(pub.value, &msg))
	require.Equal(t, SeverityInfo, msg.Severity)
	require.Equal(t, "cust-1", msg.SubjectID)
}

func TestLogNotifierNeverFails(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewTextHandler(&buf, nil)))

	require.NoError(t, n.SendAlert(context.Background(), "breaker open", "screening source EU down", SeverityHigh))
	require.NoError(t, n.SendToSubject(context.Background(), "cust-1", "filing update", "status changed"))

	out := buf.String()
	require.Contains(t, out, "breaker open")
	require.Contains(t, out, "cust-1")
}
