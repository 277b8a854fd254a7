// Package queueutils builds a queue.Queue from configuration.
package queueutils

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/papercomputeco/sensei/pkg/metrics"
	"github.com/papercomputeco/sensei/pkg/queue"
	"github.com/papercomputeco/sensei/pkg/queue/kafka"
	"github.com/papercomputeco/sensei/pkg/queue/local"
	"github.com/papercomputeco/sensei/pkg/queue/nop"
	"github.com/papercomputeco/sensei/pkg/queue/redis"
)

type NewQueueOpts struct {
	Backend string
	Target  string
	Stream  string
	Group   string
	Workers uint

	// Handler runs tasks for the local backend. Broker backends deliver
	// through queue.Consumer instead.
	Handler queue.Handler

	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

func NewQueue(ctx context.Context, o *NewQueueOpts) (queue.Queue, error) {
	switch o.Backend {
	case "local":
		return local.NewQueue(&local.Config{
			Handler:    o.Handler,
			NumWorkers: o.Workers,
			Metrics:    o.Metrics,
			Logger:     o.Logger,
		})
	case "redis":
		return redis.NewQueue(ctx, redis.Config{
			Target:  o.Target,
			Stream:  o.Stream,
			Group:   o.Group,
			Metrics: o.Metrics,
			Logger:  o.Logger,
		})
	case "kafka":
		return kafka.NewQueue(kafka.Config{
			Brokers: o.Target,
			Topic:   o.Stream,
			Group:   o.Group,
			Metrics: o.Metrics,
			Logger:  o.Logger,
		})
	case "nop":
		return nop.NewQueue(), nil
	default:
		return nil, fmt.Errorf("%w: %q", queue.ErrUnknownBackend, o.Backend)
	}
}
