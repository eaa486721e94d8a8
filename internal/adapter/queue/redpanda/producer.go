// Package redpanda provides the Redpanda/Kafka queue adapters: a
// transactional producer implementing the queue port and a consumer group
// with a bounded worker pool.
package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/screenhire/screener/internal/domain"
	"github.com/screenhire/screener/internal/observability"
)

// TopicEvaluate is the topic carrying evaluation tasks.
const TopicEvaluate = "evaluate-jobs"

// Producer wraps a transactional Kafka producer and implements domain.Queue.
type Producer struct {
	client *kgo.Client
	// transactionChan serializes transactions; franz-go allows only one
	// open transaction per client.
	transactionChan chan struct{}
}

// NewProducer constructs a Producer with exactly-once semantics and ensures
// the evaluate topic exists.
func NewProducer(brokers []string) (*Producer, error) {
	return NewProducerWithTransactionalID(brokers, "screener-producer")
}

// NewProducerWithTransactionalID constructs a Producer with a custom
// transactional id, useful for test isolation.
func NewProducerWithTransactionalID(brokers []string, transactionalID string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no seed brokers provided")
	}
	slog.Info("creating redpanda producer", slog.Any("brokers", brokers), slog.String("transactional_id", transactionalID))

	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.TransactionalID(transactionalID),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1000000),
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("redpanda client: %w", err)
	}

	if err := createTopicIfNotExists(context.Background(), client, TopicEvaluate, 1, 1); err != nil {
		slog.Warn("topic bootstrap failed, continuing",
			slog.String("topic", TopicEvaluate),
			slog.Any("error", err))
	}

	return &Producer{
		client:          client,
		transactionChan: make(chan struct{}, 1),
	}, nil
}

// EnqueueEvaluate publishes an evaluation task inside a transaction and
// returns the job id as the task id.
func (p *Producer) EnqueueEvaluate(ctx context.Context, payload domain.EvaluateTaskPayload) (string, error) {
	return p.enqueueToTopic(ctx, payload, TopicEvaluate)
}

func (p *Producer) enqueueToTopic(ctx context.Context, payload domain.EvaluateTaskPayload, topic string) (string, error) {
	select {
	case p.transactionChan <- struct{}{}:
		defer func() { <-p.transactionChan }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	if err := p.client.BeginTransaction(); err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}

	record := &kgo.Record{
		Topic: topic,
		// job id as key keeps per-job ordering
		Key:   []byte(payload.JobID),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: "job_id", Value: []byte(payload.JobID)},
			{Key: "request_id", Value: []byte(payload.RequestID)},
		},
	}

	e := kgo.AbortingFirstErrPromise(p.client)
	p.client.Produce(ctx, record, e.Promise())
	if err := e.Err(); err != nil {
		if abortErr := p.client.EndTransaction(ctx, kgo.TryAbort); abortErr != nil {
			slog.Error("failed to abort transaction", slog.Any("error", abortErr))
		}
		return "", fmt.Errorf("produce: %w", err)
	}

	if err := p.client.EndTransaction(ctx, kgo.TryCommit); err != nil {
		return "", fmt.Errorf("commit transaction: %w", err)
	}

	observability.EnqueueJob("evaluate")
	slog.Info("evaluate task enqueued", slog.String("topic", topic), slog.String("job_id", payload.JobID))
	return payload.JobID, nil
}

// Close closes the underlying client.
func (p *Producer) Close() error {
	if p.client != nil {
		p.client.Close()
	}
	return nil
}
