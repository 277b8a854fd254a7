// Package inmemory is a process-local graph.Backend.
package inmemory

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/papercomputeco/sensei/pkg/memory/graph"
)

type edgeKey struct {
	user     string
	source   int64
	relation string
	target   int64
}

// Backend keeps every learner's graph in maps.
type Backend struct {
	mu       sync.RWMutex
	nextID   int64
	entities map[string][]graph.Entity
	byID     map[int64]graph.Entity
	edges    map[edgeKey]map[string]any
	order    []edgeKey
}

func NewBackend() *Backend {
	return &Backend{
		entities: make(map[string][]graph.Entity),
		byID:     make(map[int64]graph.Entity),
		edges:    make(map[edgeKey]map[string]any),
	}
}

func (b *Backend) Entities(_ context.Context, userID string) ([]graph.Entity, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]graph.Entity(nil), b.entities[userID]...), nil
}

func (b *Backend) CreateEntity(_ context.Context, e graph.Entity) (graph.Entity, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, existing := range b.entities[e.UserID] {
		if existing.Normalized == e.Normalized {
			return existing, nil
		}
	}

	b.nextID++
	e.ID = b.nextID
	e.Embedding = append([]float32(nil), e.Embedding...)
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	b.entities[e.UserID] = append(b.entities[e.UserID], e)
	b.byID[e.ID] = e
	return e, nil
}

func (b *Backend) UpsertRelationship(_ context.Context, userID string, r graph.Relationship) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	k := edgeKey{user: userID, source: r.SourceID, relation: r.Relation, target: r.TargetID}
	props, ok := b.edges[k]
	if !ok {
		props = map[string]any{}
		b.order = append(b.order, k)
	}
	maps.Copy(props, r.Properties)
	b.edges[k] = props
	return nil
}

func (b *Backend) Edges(_ context.Context, userID string) ([]graph.Edge, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []graph.Edge
	for _, k := range b.order {
		if k.user != userID {
			continue
		}
		props := b.edges[k]
		var cp map[string]any
		if len(props) > 0 {
			cp = maps.Clone(props)
		}
		out = append(out, graph.Edge{
			Source:     b.byID[k.source],
			Relation:   k.relation,
			Target:     b.byID[k.target],
			Properties: cp,
		})
	}
	return out, nil
}

func (b *Backend) Close() error {
	return nil
}

var _ graph.Backend = (*Backend)(nil)
