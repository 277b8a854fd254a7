// Package kafka is a queue backend on a Kafka topic with a consumer group.
// Offsets are committed only after the handler succeeds.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/papercomputeco/sensei/pkg/metrics"
	"github.com/papercomputeco/sensei/pkg/queue"
)

type Config struct {
	// Brokers is a comma separated broker list.
	Brokers string
	Topic   string
	Group   string

	// RetryDelay is how long the consumer waits before redelivering a task
	// whose handler failed.
	RetryDelay time.Duration

	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

type Queue struct {
	writer *kafkago.Writer
	reader *kafkago.Reader
	c      Config
	logger *zap.Logger
}

func NewQueue(c Config) (*Queue, error) {
	brokers := splitBrokers(c.Brokers)
	if len(brokers) == 0 {
		return nil, errors.New("kafka queue: at least one broker is required")
	}
	if c.Topic == "" || c.Group == "" {
		return nil, errors.New("kafka queue: topic and group are required")
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Second
	}
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Queue{
		writer: &kafkago.Writer{
			Addr:                   kafkago.TCP(brokers...),
			Topic:                  c.Topic,
			Balancer:               &kafkago.Hash{},
			RequiredAcks:           kafkago.RequireAll,
			AllowAutoTopicCreation: true,
		},
		reader: kafkago.NewReader(kafkago.ReaderConfig{
			Brokers: brokers,
			GroupID: c.Group,
			Topic:   c.Topic,
		}),
		c:      c,
		logger: logger,
	}, nil
}

func splitBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Enqueue writes the task envelope keyed by task name.
func (q *Queue) Enqueue(ctx context.Context, name string, kwargs map[string]any) error {
	task, err := queue.NewTask(name, kwargs)
	if err != nil {
		return err
	}
	raw, err := task.Marshal()
	if err != nil {
		return fmt.Errorf("encoding task: %w", err)
	}

	if err := q.writer.WriteMessages(ctx, kafkago.Message{Key: []byte(name), Value: raw}); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	q.logger.Debug("task queued", zap.String("task", name), zap.String("task_id", task.ID))
	return nil
}

// Consume fetches tasks until ctx is done. A failing handler is retried
// after RetryDelay without committing, which preserves partition order.
func (q *Queue) Consume(ctx context.Context, h queue.Handler) error {
	for {
		msg, err := q.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka fetch: %w", err)
		}

		task, err := queue.UnmarshalTask(msg.Value)
		if err != nil {
			q.logger.Error("dropping undecodable message", zap.Int64("offset", msg.Offset), zap.Error(err))
			q.commit(ctx, msg)
			continue
		}

		for {
			err := h(ctx, task)
			if err == nil {
				q.c.Metrics.IncTask(task.Name, "ok")
				break
			}
			q.c.Metrics.IncTask(task.Name, "error")
			q.logger.Error("task failed, retrying",
				zap.String("task", task.Name),
				zap.String("task_id", task.ID),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(q.c.RetryDelay):
			}
		}
		q.commit(ctx, msg)
	}
}

func (q *Queue) commit(ctx context.Context, msg kafkago.Message) {
	if err := q.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
		q.logger.Warn("kafka commit failed", zap.Int64("offset", msg.Offset), zap.Error(err))
	}
}

func (q *Queue) Close() error {
	return errors.Join(q.writer.Close(), q.reader.Close())
}

var (
	_ queue.Queue    = (*Queue)(nil)
	_ queue.Consumer = (*Queue)(nil)
)
