package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"kycgate/internal/platform/config"
	"kycgate/pkg/requestcontext"
)

const backendKafka = "kafka"

// EnsureTopic creates the trigger topic if it does not exist.
func EnsureTopic(ctx context.Context, cfg config.KafkaConfig) error {
	client, err := kgo.NewClient(kgo.SeedBrokers(cfg.Brokers...))
	if err != nil {
		return fmt.Errorf("kafka admin client: %w", err)
	}
	defer client.Close()

	admin := kadm.NewClient(client)
	resp, err := admin.CreateTopics(ctx, cfg.Partitions, cfg.ReplicationFactor, nil, cfg.Topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", cfg.Topic, err)
	}
	for _, r := range resp.Sorted() {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

// KafkaProducer publishes triggers keyed by case id, so every trigger for
// one case lands on the same partition and is consumed in order.
type KafkaProducer struct {
	client *kgo.Client
	topic  string
}

func NewKafkaProducer(cfg config.KafkaConfig) (*KafkaProducer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return &KafkaProducer{client: client, topic: cfg.Topic}, nil
}

func (p *KafkaProducer) Enqueue(ctx context.Context, caseID string) error {
	value, err := json.Marshal(Trigger{
		CaseID:      caseID,
		RequestID:   requestcontext.RequestID(ctx),
		RequestedAt: requestcontext.Now(ctx),
	})
	if err != nil {
		return fmt.Errorf("encode trigger: %w", err)
	}
	rec := &kgo.Record{Topic: p.topic, Key: []byte(caseID), Value: value}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce trigger for %s: %w", caseID, err)
	}
	enqueued.WithLabelValues(backendKafka).Inc()
	return nil
}

func (p *KafkaProducer) Close() {
	p.client.Close()
}

// KafkaConsumer runs the orchestrator for each trigger. Partitions are
// processed concurrently; records within a partition run one at a time.
// Offsets are committed after a poll's records have all been run.
type KafkaConsumer struct {
	client *kgo.Client
	runner Runner
	logger *slog.Logger
}

func NewKafkaConsumer(cfg config.KafkaConfig, runner Runner, logger *slog.Logger) (*KafkaConsumer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.DisableAutoCommit(),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return &KafkaConsumer{client: client, runner: runner, logger: logger}, nil
}

// Run polls until ctx is done or the client is closed.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	defer c.client.Close()
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.ErrorContext(ctx, "kafka fetch failed",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})

		var g errgroup.Group
		fetches.EachPartition(func(p kgo.FetchTopicPartition) {
			g.Go(func() error {
				p.EachRecord(func(rec *kgo.Record) {
					c.handle(ctx, rec)
				})
				return nil
			})
		})
		_ = g.Wait()

		if err := c.client.CommitUncommittedOffsets(ctx); err != nil && ctx.Err() == nil {
			c.logger.ErrorContext(ctx, "kafka offset commit failed", "error", err)
		}
	}
}

func (c *KafkaConsumer) handle(ctx context.Context, rec *kgo.Record) {
	t, err := decodeTrigger(rec.Value)
	if err != nil {
		dispatched.WithLabelValues(backendKafka, "malformed").Inc()
		c.logger.WarnContext(ctx, "skipping malformed validation trigger",
			"partition", rec.Partition,
			"offset", rec.Offset,
			"error", err,
		)
		return
	}
	if t.RequestID != "" {
		ctx = requestcontext.WithRequestID(ctx, t.RequestID)
	}
	c.runner.Run(ctx, t.CaseID)
	dispatched.WithLabelValues(backendKafka, "ok").Inc()
}

func (c *KafkaConsumer) Close() {
	c.client.Close()
}
