package testutils

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
)

// MockEmbedder is a test embedder that returns predictable embeddings
type MockEmbedder struct {
	mu sync.Mutex

	Embeddings map[string][]float32

	// FailOn causes Embed to return an error when the input text matches
	FailOn string

	// Dimensions is the width of generated default embeddings.
	Dimensions int

	Calls []string
}

func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{
		Embeddings: make(map[string][]float32),
		Dimensions: 4,
	}
}

func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, text)

	if m.FailOn != "" && text == m.FailOn {
		return nil, fmt.Errorf("mock embedding failure for: %s", text)
	}

	if emb, ok := m.Embeddings[text]; ok {
		return emb, nil
	}

	return hashEmbedding(text, m.Dimensions), nil
}

// hashEmbedding derives a stable pseudo-random vector from text so distinct
// strings rarely look similar.
func hashEmbedding(text string, dims int) []float32 {
	if dims <= 0 {
		dims = 4
	}
	out := make([]float32, dims)
	for i := range out {
		h := fnv.New32a()
		_, _ = fmt.Fprintf(h, "%d:%s", i, text)
		out[i] = float32(h.Sum32()%2001)/1000 - 1
	}
	return out
}

func (m *MockEmbedder) Close() error {
	return nil
}
