// Package redis is a durable queue backend on Redis Streams with consumer
// groups. Failed tasks stay pending and are reclaimed after MinIdle.
package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/papercomputeco/sensei/pkg/metrics"
	"github.com/papercomputeco/sensei/pkg/queue"
)

const (
	envelopeField = "envelope"

	DefaultBlock   = 5 * time.Second
	DefaultMinIdle = time.Minute
	DefaultCount   = 16
	DefaultMaxLen  = 100000
)

type Config struct {
	// Target is a redis:// URL or a bare host:port.
	Target string
	Stream string
	Group  string

	// Consumer names this process inside the group. Defaults to the hostname.
	Consumer string

	Block   time.Duration
	MinIdle time.Duration
	MaxLen  int64

	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

type Queue struct {
	client *goredis.Client
	c      Config
	logger *zap.Logger
}

// NewQueue connects and ensures the consumer group exists.
func NewQueue(ctx context.Context, c Config) (*Queue, error) {
	if c.Stream == "" || c.Group == "" {
		return nil, errors.New("redis queue: stream and group are required")
	}
	if c.Block <= 0 {
		c.Block = DefaultBlock
	}
	if c.MinIdle <= 0 {
		c.MinIdle = DefaultMinIdle
	}
	if c.MaxLen <= 0 {
		c.MaxLen = DefaultMaxLen
	}
	if c.Consumer == "" {
		host, _ := os.Hostname()
		c.Consumer = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	opts, err := clientOptions(c.Target)
	if err != nil {
		return nil, err
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	q := &Queue{client: client, c: c, logger: logger}
	if err := q.ensureGroup(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return q, nil
}

func clientOptions(target string) (*goredis.Options, error) {
	if target == "" {
		target = "localhost:6379"
	}
	if strings.Contains(target, "://") {
		opts, err := goredis.ParseURL(target)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		return opts, nil
	}
	return &goredis.Options{Addr: target}, nil
}

func (q *Queue) ensureGroup(ctx context.Context) error {
	if err := q.client.XGroupCreateMkStream(ctx, q.c.Stream, q.c.Group, "$").Err(); err != nil {
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return fmt.Errorf("xgroup create: %w", err)
	}
	return nil
}

// Enqueue appends the task envelope to the stream.
func (q *Queue) Enqueue(ctx context.Context, name string, kwargs map[string]any) error {
	task, err := queue.NewTask(name, kwargs)
	if err != nil {
		return err
	}
	raw, err := task.Marshal()
	if err != nil {
		return fmt.Errorf("encoding task: %w", err)
	}

	id, err := q.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: q.c.Stream,
		MaxLen: q.c.MaxLen,
		Approx: true,
		Values: map[string]any{envelopeField: raw},
	}).Result()
	if err != nil {
		return fmt.Errorf("xadd: %w", err)
	}

	q.logger.Debug("task queued",
		zap.String("task", name),
		zap.String("task_id", task.ID),
		zap.String("stream_id", id),
	)
	return nil
}

// Consume reads new and reclaimed entries until ctx is done. Entries are
// acknowledged only after h succeeds.
func (q *Queue) Consume(ctx context.Context, h queue.Handler) error {
	claimCursor := "0-0"
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		msgs, next, err := q.client.XAutoClaim(ctx, &goredis.XAutoClaimArgs{
			Stream:   q.c.Stream,
			Group:    q.c.Group,
			Consumer: q.c.Consumer,
			MinIdle:  q.c.MinIdle,
			Start:    claimCursor,
			Count:    DefaultCount,
		}).Result()
		if err != nil && ctx.Err() == nil {
			q.logger.Warn("xautoclaim failed", zap.Error(err))
		}
		if next != "" {
			claimCursor = next
		}
		q.handle(ctx, msgs, h)

		streams, err := q.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    q.c.Group,
			Consumer: q.c.Consumer,
			Streams:  []string{q.c.Stream, ">"},
			Count:    DefaultCount,
			Block:    q.c.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, goredis.Nil) || ctx.Err() != nil {
				continue
			}
			q.logger.Warn("xreadgroup failed", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		for _, st := range streams {
			q.handle(ctx, st.Messages, h)
		}
	}
}

func (q *Queue) handle(ctx context.Context, msgs []goredis.XMessage, h queue.Handler) {
	for _, msg := range msgs {
		task, err := decode(msg)
		if err != nil {
			q.logger.Error("dropping undecodable entry", zap.String("stream_id", msg.ID), zap.Error(err))
			q.ack(ctx, msg.ID)
			continue
		}

		if err := h(ctx, task); err != nil {
			q.logger.Error("task failed, left pending",
				zap.String("task", task.Name),
				zap.String("task_id", task.ID),
				zap.Error(err),
			)
			q.c.Metrics.IncTask(task.Name, "error")
			continue
		}
		q.c.Metrics.IncTask(task.Name, "ok")
		q.ack(ctx, msg.ID)
	}
}

func (q *Queue) ack(ctx context.Context, id string) {
	if err := q.client.XAck(ctx, q.c.Stream, q.c.Group, id).Err(); err != nil {
		q.logger.Warn("xack failed", zap.String("stream_id", id), zap.Error(err))
	}
}

func decode(msg goredis.XMessage) (*queue.Task, error) {
	raw, ok := msg.Values[envelopeField]
	if !ok {
		return nil, errors.New("missing envelope field")
	}
	switch v := raw.(type) {
	case string:
		return queue.UnmarshalTask([]byte(v))
	case []byte:
		return queue.UnmarshalTask(v)
	default:
		return nil, fmt.Errorf("unexpected envelope type %T", raw)
	}
}

func (q *Queue) Close() error {
	return q.client.Close()
}

var (
	_ queue.Queue    = (*Queue)(nil)
	_ queue.Consumer = (*Queue)(nil)
)
