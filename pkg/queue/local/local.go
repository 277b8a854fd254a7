// Package local provides an in-process queue drained by a bounded worker
// pool. Tasks do not survive a restart.
package local

import (
	"context"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/papercomputeco/sensei/pkg/metrics"
	"github.com/papercomputeco/sensei/pkg/queue"
)

var (
	defaultNumWorkers uint = 4
	defaultQueueSize  uint = 256
)

// Config is the configuration for the local worker pool.
type Config struct {
	// Handler runs each task. Required.
	Handler queue.Handler

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered task channel (defaults to 256).
	QueueSize uint

	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// Queue processes tasks asynchronously via a worker pool.
type Queue struct {
	config *Config
	tasks  chan *queue.Task
	wg     sync.WaitGroup
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewQueue creates a Queue and starts its worker goroutines.
func NewQueue(c *Config) (*Queue, error) {
	if c.Handler == nil {
		return nil, fmt.Errorf("local queue: handler is required")
	}
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		config: c,
		tasks:  make(chan *queue.Task, c.QueueSize),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	q.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go q.worker(i)
	}

	return q, nil
}

// Enqueue submits a task without blocking. A full queue rejects the task
// with ErrQueueFull rather than stalling the caller's turn.
func (q *Queue) Enqueue(_ context.Context, name string, kwargs map[string]any) error {
	task, err := queue.NewTask(name, kwargs)
	if err != nil {
		return err
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return queue.ErrClosed
	}

	select {
	case q.tasks <- task:
		q.logger.Debug("task queued", zap.String("task", name), zap.String("task_id", task.ID))
		return nil
	default:
		q.logger.Error("task not queued, queue full", zap.String("task", name))
		q.config.Metrics.IncTask(name, "dropped")
		return queue.ErrQueueFull
	}
}

// Close stops accepting tasks and waits for in-flight tasks to drain.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	q.wg.Wait()
	q.cancel()
	return nil
}

func (q *Queue) worker(id uint) {
	defer q.wg.Done()
	q.logger.Debug("worker started", zap.Uint("worker_id", id))

	for task := range q.tasks {
		q.process(task)
	}

	q.logger.Debug("worker stopped", zap.Uint("worker_id", id))
}

func (q *Queue) process(task *queue.Task) {
	if err := q.config.Handler(q.ctx, task); err != nil {
		q.logger.Error("task failed",
			zap.String("task", task.Name),
			zap.String("task_id", task.ID),
			zap.Error(err),
		)
		q.config.Metrics.IncTask(task.Name, "error")
		return
	}
	q.config.Metrics.IncTask(task.Name, "ok")
}
