package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// EnsureTopics creates any missing topics at startup so a fresh cluster can
// serve the router without manual provisioning. Existing topics are left
// untouched.
func EnsureTopics(ctx context.Context, brokers []string, logger *slog.Logger, topics ...string) error {
	client, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return fmt.Errorf("create kafka client: %w", err)
	}
	defer client.Close()

	adm := kadm.NewClient(client)
	resps, err := adm.CreateTopics(ctx, 3, 1, nil, topics...)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	for _, resp := range resps.Sorted() {
		if resp.Err != nil {
			if errors.Is(resp.Err, kerr.TopicAlreadyExists) {
				continue
			}
			return fmt.Errorf("create topic %s: %w", resp.Topic, resp.Err)
		}
		logger.Info("created topic", "topic", resp.Topic)
	}
	return nil
}
