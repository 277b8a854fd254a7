package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/sensei/pkg/queue"
)

// EnqueuedTask is a task captured by RecordingQueue.
type EnqueuedTask struct {
	Name   string
	Kwargs map[string]any
}

// RecordingQueue records every enqueued task instead of running it.
type RecordingQueue struct {
	mu    sync.Mutex
	tasks []EnqueuedTask

	// Err is returned from Enqueue when set.
	Err error
}

func NewRecordingQueue() *RecordingQueue {
	return &RecordingQueue{}
}

func (q *RecordingQueue) Enqueue(_ context.Context, task string, kwargs map[string]any) error {
	if task == "" {
		return queue.ErrEmptyTaskName
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.Err != nil {
		return q.Err
	}
	q.tasks = append(q.tasks, EnqueuedTask{Name: task, Kwargs: kwargs})
	return nil
}

func (q *RecordingQueue) Close() error {
	return nil
}

// Tasks returns a copy of the recorded tasks.
func (q *RecordingQueue) Tasks() []EnqueuedTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]EnqueuedTask(nil), q.tasks...)
}

// Named returns the recorded tasks with the given name.
func (q *RecordingQueue) Named(name string) []EnqueuedTask {
	var out []EnqueuedTask
	for _, t := range q.Tasks() {
		if t.Name == name {
			out = append(out, t)
		}
	}
	return out
}
