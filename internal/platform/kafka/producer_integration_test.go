//go:build integration

package kafka

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"certregistry/internal/platform/config"
	"certregistry/pkg/testutil/containers"
)

type ProducerSuite struct {
	suite.Suite
	broker   *containers.RedpandaContainer
	producer *Producer
}

func TestProducerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(ProducerSuite))
}

func (s *ProducerSuite) SetupSuite() {
	s.broker = containers.GetManager().GetRedpanda(s.T())
	producer, err := NewProducer(config.KafkaConfig{
		Brokers:  s.broker.Brokers,
		ClientID: "producer-test",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Require().NoError(err)
	s.producer = producer
}

func (s *ProducerSuite) TearDownSuite() {
	s.producer.Close()
}

func (s *ProducerSuite) TestEnsureTopicIsRepeatable() {
	ctx := context.Background()
	s.Require().NoError(s.producer.EnsureTopic(ctx, "certregistry.ensure", 1, 1))
	s.Require().NoError(s.producer.EnsureTopic(ctx, "certregistry.ensure", 1, 1))
}

func (s *ProducerSuite) TestPublishedRecordIsConsumable() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	const topic = "certregistry.publish"
	s.Require().NoError(s.producer.Ping(ctx))
	s.Require().NoError(s.producer.EnsureTopic(ctx, topic, 1, 1))
	s.Require().NoError(s.producer.Publish(ctx, topic, []byte("0xabc"), []byte(`{"action":"certificate_created"}`)))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.broker.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetches := consumer.PollRecords(ctx, 1)
	s.Require().Empty(fetches.Errors())
	records := fetches.Records()
	s.Require().Len(records, 1)
	s.Equal("0xabc", string(records[0].Key))
	s.JSONEq(`{"action":"certificate_created"}`, string(records[0].Value))
}
