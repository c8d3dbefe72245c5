//go:build integration

package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"kycgate/internal/platform/config"
	"kycgate/pkg/testutil/containers"
)

type KafkaSuite struct {
	suite.Suite
	cfg config.KafkaConfig
}

func TestKafkaSuite(t *testing.T) {
	suite.Run(t, new(KafkaSuite))
}

func (s *KafkaSuite) SetupSuite() {
	rp := containers.GetManager().GetRedpanda(s.T())
	s.cfg = config.KafkaConfig{
		Brokers:           rp.Brokers,
		Topic:             "kyc.case.validate.test",
		GroupID:           "kyc-validation-test",
		Partitions:        3,
		ReplicationFactor: 1,
	}
	ctx := context.Background()
	s.Require().NoError(EnsureTopic(ctx, s.cfg))
	s.Require().NoError(EnsureTopic(ctx, s.cfg), "second call tolerates an existing topic")
}

func (s *KafkaSuite) TestProduceAndConsume() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	producer, err := NewKafkaProducer(s.cfg)
	s.Require().NoError(err)
	defer producer.Close()

	runner := newRecordingRunner(3)
	consumer, err := NewKafkaConsumer(s.cfg, runner, nil)
	s.Require().NoError(err)
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	for _, id := range []string{"INT-a", "INT-b", "INT-a"} {
		s.Require().NoError(producer.Enqueue(ctx, id))
	}
	// A malformed record is skipped without stopping the consumer.
	s.Require().NoError(producer.client.ProduceSync(ctx, &kgo.Record{Topic: s.cfg.Topic, Value: []byte("junk")}).FirstErr())

	runner.wait(s.T(), 3)
	consumer.Close()
	s.Require().NoError(<-done)

	s.ElementsMatch([]string{"INT-a", "INT-b", "INT-a"}, runner.runs)
}
