//go:build integration

package consumer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"comply/internal/platform/kafka/admin"
	"comply/internal/platform/kafka/producer"
	"comply/pkg/testutil/containers"
)

// collectHandler records delivered messages. failFirst makes the first
// delivery of each key fail once so redelivery can be observed.
type collectHandler struct {
	mu        sync.Mutex
	seen      []*Message
	failFirst bool
	failed    map[string]bool
	notify    chan struct{}
}

func newCollectHandler(failFirst bool) *collectHandler {
	return &collectHandler{
		failFirst: failFirst,
		failed:    make(map[string]bool),
		notify:    make(chan struct{}, 64),
	}
}

func (h *collectHandler) Handle(ctx context.Context, msg *Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := string(msg.Key) + string(msg.Value)
	if h.failFirst && !h.failed[key] {
		h.failed[key] = true
		return fmt.Errorf("synthetic handler failure")
	}
	h.seen = append(h.seen, msg)
	h.notify <- struct{}{}
	return nil
}

func (h *collectHandler) values() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.seen))
	for _, m := range h.seen {
		out = append(out, string(m.Value))
	}
	return out
}

func (h *collectHandler) waitFor(t *testing.T, n int, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		h.mu.Lock()
		got := len(h.seen)
		h.mu.Unlock()
		if got >= n {
			return
		}
		select {
		case <-h.notify:
		case <-deadline:
			t.Fatalf("timed out waiting for %d messages, got %d", n, got)
		}
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// runConsumer starts a consumer in the background. The returned stop
// function shuts it down completely, releasing its group membership so a
// replacement consumer can take over the partitions.
func runConsumer(t *testing.T, brokers []string, group, topic string, h Handler) func() {
	t.Helper()
	cons, err := New(brokers, group, []string{topic}, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = cons.Run(ctx, h)
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			cons.Close()
			<-done
		})
	}
	t.Cleanup(stop)
	return stop
}

func TestConsumerDeliversInOrder(t *testing.T) {
	rp := containers.NewRedpandaContainer(t)
	log := testLogger()
	topic := "compliance.it-order"

	require.NoError(t, admin.EnsureTopics(context.Background(), rp.Brokers, log, topic))

	prod, err := producer.New(rp.Brokers, log)
	require.NoError(t, err)
	t.Cleanup(prod.Close)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, prod.PublishSync(ctx, topic,
			[]byte("cust-1"), []byte(fmt.Sprintf("event-%d", i))))
	}

	h := newCollectHandler(false)
	runConsumer(t, rp.Brokers, "it-order", topic, h)

	h.waitFor(t, 3, 30*time.Second)
	require.Equal(t, []string{"event-0", "event-1", "event-2"}, h.values())
}

func TestConsumerCommitsAcknowledgedOffsets(t *testing.T) {
	rp := containers.NewRedpandaContainer(t)
	log := testLogger()
	topic := "compliance.it-commit"

	require.NoError(t, admin.EnsureTopics(context.Background(), rp.Brokers, log, topic))

	prod, err := producer.New(rp.Brokers, log)
	require.NoError(t, err)
	t.Cleanup(prod.Close)

	ctx := context.Background()
	require.NoError(t, prod.PublishSync(ctx, topic, []byte("cust-1"), []byte("first")))

	h1 := newCollectHandler(false)
	stop := runConsumer(t, rp.Brokers, "it-commit", topic, h1)
	h1.waitFor(t, 1, 30*time.Second)
	stop()

	// A second consumer in the same group must resume after the committed
	// offset: only the new message arrives, "first" is not redelivered.
	require.NoError(t, prod.PublishSync(ctx, topic, []byte("cust-1"), []byte("second")))

	h2 := newCollectHandler(false)
	runConsumer(t, rp.Brokers, "it-commit", topic, h2)
	h2.waitFor(t, 1, 30*time.Second)
	require.Equal(t, []string{"second"}, h2.values())
}

func TestUnacknowledgedMessageRedelivers(t *testing.T) {
	rp := containers.NewRedpandaContainer(t)
	log := testLogger()
	topic := "compliance.it-redeliver"

	require.NoError(t, admin.EnsureTopics(context.Background(), rp.Brokers, log, topic))

	prod, err := producer.New(rp.Brokers, log)
	require.NoError(t, err)
	t.Cleanup(prod.Close)

	ctx := context.Background()
	require.NoError(t, prod.PublishSync(ctx, topic, []byte("cust-1"), []byte("flaky")))

	// First consumer fails the delivery, leaving the offset uncommitted.
	h1 := newCollectHandler(true)
	stop := runConsumer(t, rp.Brokers, "it-redeliver", topic, h1)
	deadline := time.After(30 * time.Second)
	for {
		h1.mu.Lock()
		failed := h1.failed["cust-1flaky"]
		h1.mu.Unlock()
		if failed {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for first delivery attempt")
		case <-time.After(100 * time.Millisecond):
		}
	}
	stop()

	// The replacement consumer in the same group gets the record again
	// because its fate was never resolved.
	h2 := newCollectHandler(false)
	runConsumer(t, rp.Brokers, "it-redeliver", topic, h2)
	h2.waitFor(t, 1, 60*time.Second)
	require.Equal(t, []string{"flaky"}, h2.values())
}
