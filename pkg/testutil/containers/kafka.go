//go:build integration

package containers

import (
	"context"
	"errors"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaContainer is a single-broker Redpanda instance speaking the Kafka
// protocol, used by the event stream suites.
type KafkaContainer struct {
	Container testcontainers.Container
	Brokers   string
}

// NewKafkaContainer starts the broker. It outlives t because the Manager
// shares it; Ryuk removes it when the test binary exits.
func NewKafkaContainer(t *testing.T) *KafkaContainer {
	t.Helper()
	ctx := context.Background()

	container, err := kafka.Run(ctx,
		"redpandadata/redpanda:latest",
		kafka.WithClusterID("certify-test"),
	)
	if err != nil {
		t.Fatalf("start kafka container: %v", err)
	}

	brokers, err := container.Brokers(ctx)
	if err != nil || len(brokers) == 0 {
		_ = container.Terminate(ctx)
		t.Fatalf("resolve kafka brokers: %v", err)
	}

	return &KafkaContainer{Container: container, Brokers: brokers[0]}
}

// EnsureTopic creates a single-partition topic. An existing topic is fine;
// suites share the broker and only need the topic to be there.
func (k *KafkaContainer) EnsureTopic(ctx context.Context, topic string) error {
	client, err := kgo.NewClient(kgo.SeedBrokers(k.Brokers))
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := kadm.NewClient(client).CreateTopic(ctx, 1, 1, nil, topic)
	if err != nil {
		return err
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return resp.Err
	}
	return nil
}
