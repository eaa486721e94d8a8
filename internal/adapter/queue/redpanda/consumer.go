package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/screenhire/screener/internal/domain"
	"github.com/screenhire/screener/internal/observability"
)

// Handler processes one evaluation payload. Returning an error leaves the
// record unmarked so it is redelivered; returning nil commits it.
type Handler func(ctx context.Context, payload domain.EvaluateTaskPayload) error

// Consumer consumes evaluation tasks from a consumer group and dispatches
// them to a bounded worker pool.
type Consumer struct {
	client  *kgo.Client
	handler Handler
	groupID string
	topic   string
	workers int
}

// NewConsumer constructs a Consumer for the evaluate topic.
func NewConsumer(brokers []string, groupID string, workers int, handler Handler) (*Consumer, error) {
	return NewConsumerWithTopic(brokers, groupID, workers, TopicEvaluate, handler)
}

// NewConsumerWithTopic constructs a Consumer for a custom topic, useful for
// test isolation. It ensures the topic exists before joining the group.
func NewConsumerWithTopic(brokers []string, groupID string, workers int, topic string, handler Handler) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no seed brokers provided")
	}
	if groupID == "" {
		return nil, fmt.Errorf("missing required group ID")
	}
	if workers <= 0 {
		workers = 2
	}

	bootstrap, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return nil, fmt.Errorf("bootstrap client: %w", err)
	}
	if err := createTopicIfNotExists(context.Background(), bootstrap, topic, 1, 1); err != nil {
		slog.Warn("topic bootstrap failed, continuing",
			slog.String("topic", topic),
			slog.Any("error", err))
	}
	bootstrap.Close()

	kotelService := kotel.NewKotel(
		kotel.WithTracer(kotel.NewTracer(
			kotel.TracerProvider(otel.GetTracerProvider()),
		)),
	)

	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topic),
		kgo.FetchIsolationLevel(kgo.ReadCommitted()),
		kgo.WithHooks(kotelService.Hooks()...),
		kgo.DialTimeout(10 * time.Second),
		kgo.SessionTimeout(30 * time.Second),
		kgo.HeartbeatInterval(3 * time.Second),
		kgo.AutoCommitMarks(),
		kgo.AutoCommitInterval(1 * time.Second),
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("redpanda consumer client: %w", err)
	}

	slog.Info("redpanda consumer created",
		slog.String("group_id", groupID),
		slog.String("topic", topic),
		slog.Int("workers", workers))
	return &Consumer{
		client:  client,
		handler: handler,
		groupID: groupID,
		topic:   topic,
		workers: workers,
	}, nil
}

// Start polls fetches and dispatches records until the context ends. The
// semaphore bounds concurrent handlers to the configured worker count.
func (c *Consumer) Start(ctx context.Context) error {
	slog.Info("redpanda consumer starting",
		slog.String("group_id", c.groupID),
		slog.String("topic", c.topic))

	sem := make(chan struct{}, c.workers)
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			slog.Error("fetch error",
				slog.String("topic", topic),
				slog.Int("partition", int(partition)),
				slog.Any("error", err))
		})
		fetches.EachRecord(func(record *kgo.Record) {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			go func(record *kgo.Record) {
				defer func() { <-sem }()
				c.processRecord(ctx, record)
			}(record)
		})
	}
}

func (c *Consumer) processRecord(ctx context.Context, record *kgo.Record) {
	var payload domain.EvaluateTaskPayload
	if err := json.Unmarshal(record.Value, &payload); err != nil {
		// malformed records can never succeed; commit and move on
		slog.Error("dropping malformed record",
			slog.String("topic", record.Topic),
			slog.Int64("offset", record.Offset),
			slog.Any("error", err))
		c.client.MarkCommitRecords(record)
		return
	}

	if payload.RequestID != "" {
		ctx = observability.ContextWithRequestID(ctx, payload.RequestID)
	}
	lg := observability.LoggerFromContext(ctx).With(
		slog.String("job_id", payload.JobID),
		slog.Int64("offset", record.Offset))
	ctx = observability.ContextWithLogger(ctx, lg)

	if err := c.handler(ctx, payload); err != nil {
		// unmarked record is redelivered after rebalance or restart
		lg.Error("handler failed, leaving record for redelivery", slog.Any("error", err))
		return
	}
	c.client.MarkCommitRecords(record)
}

// Close leaves the group and releases the client.
func (c *Consumer) Close() {
	if c.client != nil {
		c.client.Close()
	}
}
