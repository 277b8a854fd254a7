package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/papercomputeco/sensei/pkg/vector"
)

// MockVectorDriver is a test vector driver that returns canned results and
// records every added document.
type MockVectorDriver struct {
	mu        sync.Mutex
	documents []vector.Document

	// Results is returned by Query, truncated to topK.
	Results []vector.QueryResult

	// Err is returned by every call when set.
	Err error

	// Delay is slept (or the context is honored) before Query returns.
	Delay time.Duration
}

func NewMockVectorDriver() *MockVectorDriver {
	return &MockVectorDriver{}
}

func (m *MockVectorDriver) Add(_ context.Context, docs []vector.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.documents = append(m.documents, docs...)
	return nil
}

func (m *MockVectorDriver) Query(ctx context.Context, _ []float32, topK int, _ string) ([]vector.QueryResult, error) {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	if topK <= 0 || len(m.Results) < topK {
		return m.Results, nil
	}
	return m.Results[:topK], nil
}

func (m *MockVectorDriver) Get(_ context.Context, _ []string) ([]vector.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]vector.Document(nil), m.documents...), nil
}

// Documents returns everything passed to Add.
func (m *MockVectorDriver) Documents() []vector.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]vector.Document(nil), m.documents...)
}

func (m *MockVectorDriver) Delete(_ context.Context, _ []string) error {
	return nil
}

func (m *MockVectorDriver) Close() error {
	return nil
}
