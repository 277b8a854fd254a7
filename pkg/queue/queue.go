// Package queue carries background work out of the request path. The core
// only enqueues; durability and redelivery belong to the backend.
package queue

import (
	"context"
	"fmt"
	"sync"
)

// Queue accepts named tasks for out-of-band execution.
type Queue interface {
	Enqueue(ctx context.Context, task string, kwargs map[string]any) error
	Close() error
}

// Handler processes one task. A returned error leaves the task eligible for
// redelivery on backends that support it.
type Handler func(ctx context.Context, task *Task) error

// Consumer is implemented by backends that deliver tasks from an external
// broker. Consume blocks until ctx is done.
type Consumer interface {
	Consume(ctx context.Context, h Handler) error
}

// Mux routes tasks to handlers by name.
type Mux struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewMux() *Mux {
	return &Mux{handlers: make(map[string]Handler)}
}

func (m *Mux) Handle(name string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[name] = h
}

// Tasks returns the registered task names.
func (m *Mux) Tasks() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.handlers))
	for name := range m.handlers {
		out = append(out, name)
	}
	return out
}

// Serve dispatches task to its handler.
func (m *Mux) Serve(ctx context.Context, task *Task) error {
	m.mu.RLock()
	h, ok := m.handlers[task.Name]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, task.Name)
	}
	return h(ctx, task)
}
