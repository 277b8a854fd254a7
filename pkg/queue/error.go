package queue

import "errors"

var (
	// ErrEmptyTaskName is returned when a task is enqueued without a name.
	ErrEmptyTaskName = errors.New("task name is required")

	// ErrUnknownBackend is returned by the factory for unrecognized backends.
	ErrUnknownBackend = errors.New("unknown queue backend")

	// ErrUnknownTask is returned by a Mux when no handler is registered.
	ErrUnknownTask = errors.New("no handler for task")

	// ErrQueueFull is returned by bounded in-process queues that cannot
	// accept more work.
	ErrQueueFull = errors.New("queue full")

	// ErrClosed is returned when enqueueing onto a closed queue.
	ErrClosed = errors.New("queue closed")
)
