// Package kafka wraps a franz-go client for publishing certificate events.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"certregistry/internal/platform/config"
)

// Producer publishes records synchronously so callers learn about broker
// failures before acknowledging a write.
type Producer struct {
	client *kgo.Client
	logger *slog.Logger
}

// NewProducer connects to the configured brokers. Connections are established
// lazily by franz-go; use Ping to fail fast.
func NewProducer(cfg config.KafkaConfig, logger *slog.Logger) (*Producer, error) {
	if !cfg.Enabled() {
		return nil, errors.New("kafka brokers are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.RecordDeliveryTimeout(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Producer{client: client, logger: logger}, nil
}

// Ping checks that at least one broker answers.
func (p *Producer) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx); err != nil {
		return fmt.Errorf("ping kafka: %w", err)
	}
	return nil
}

// Publish writes one record and waits for the broker acknowledgement.
func (p *Producer) Publish(ctx context.Context, topic string, key, value []byte) error {
	record := &kgo.Record{Topic: topic, Key: key, Value: value}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", topic, err)
	}
	return nil
}

// EnsureTopic creates topic when it does not exist yet.
func (p *Producer) EnsureTopic(ctx context.Context, topic string, partitions int32, replicationFactor int16) error {
	admin := kadm.NewClient(p.client)
	resp, err := admin.CreateTopics(ctx, partitions, replicationFactor, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	for _, t := range resp.Sorted() {
		if t.Err == nil {
			p.logger.Info("created kafka topic", "topic", t.Topic, "partitions", partitions)
			continue
		}
		if errors.Is(t.Err, kerr.TopicAlreadyExists) {
			continue
		}
		return fmt.Errorf("create topic %s: %w", t.Topic, t.Err)
	}
	return nil
}

// Close flushes buffered records and releases the client.
func (p *Producer) Close() {
	p.client.Close()
}
