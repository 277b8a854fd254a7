package nop

import (
	"context"

	"github.com/papercomputeco/sensei/pkg/queue"
)

// Queue is a no-op queue used for tests and disabled background work.
type Queue struct{}

func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue validates input and otherwise does nothing.
func (q *Queue) Enqueue(_ context.Context, task string, _ map[string]any) error {
	if task == "" {
		return queue.ErrEmptyTaskName
	}
	return nil
}

// Close is a no-op.
func (q *Queue) Close() error {
	return nil
}
