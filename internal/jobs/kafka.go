package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// Kafka is a queue backed by a Kafka topic. Jobs are keyed by subject so
// per-entity ordering holds within a partition.
type Kafka struct {
	client *kgo.Client
	topic  string
	log    *zap.Logger

	mu       sync.Mutex
	handlers map[Kind]Handler
}

func NewKafka(brokers []string, topic, group string, log *zap.Logger) (*Kafka, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topic),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("connect kafka: %w", err)
	}
	return &Kafka{
		client:   client,
		topic:    topic,
		log:      log,
		handlers: make(map[Kind]Handler),
	}, nil
}

func (k *Kafka) Handle(kind Kind, h Handler) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.handlers[kind] = h
}

func (k *Kafka) Enqueue(ctx context.Context, j Job) error {
	value, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	record := &kgo.Record{Key: []byte(j.Subject), Value: value}
	if err := k.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce job: %w", err)
	}
	return nil
}

func (k *Kafka) Close() error {
	k.client.Close()
	return nil
}

// Run polls the topic and dispatches records until the context is cancelled.
// Offsets commit after each poll batch; a handler failure is logged and the
// record is skipped rather than blocking the partition.
func (k *Kafka) Run(ctx context.Context) error {
	for {
		fetches := k.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			k.log.Error("kafka fetch error",
				zap.String("topic", topic),
				zap.Int32("partition", partition),
				zap.Error(err))
		})
		fetches.EachRecord(func(record *kgo.Record) {
			var j Job
			if err := json.Unmarshal(record.Value, &j); err != nil {
				k.log.Error("malformed job record", zap.Error(err))
				return
			}
			k.dispatch(ctx, j)
		})
		if err := k.client.CommitUncommittedOffsets(ctx); err != nil {
			k.log.Error("commit offsets", zap.Error(err))
		}
	}
}

func (k *Kafka) dispatch(ctx context.Context, j Job) {
	k.mu.Lock()
	h, ok := k.handlers[j.Kind]
	k.mu.Unlock()
	if !ok {
		k.log.Warn("no handler for job kind", zap.String("kind", string(j.Kind)))
		return
	}
	if err := h(ctx, j); err != nil {
		k.log.Error("job failed",
			zap.String("kind", string(j.Kind)),
			zap.String("subject", j.Subject),
			zap.Error(err))
	}
}
