// Package graph implements memory.SemanticStore as a per-learner entity graph.
//
// Entities are resolved before any edge is written: an exact normalized-name
// match wins outright, otherwise the candidate's embedding is compared with
// every canonical entity of the learner and the best cosine score at or above
// the merge threshold is reused. Equal scores go to the earliest-created
// entity, so resolution is deterministic for a given graph.
package graph

import (
	"context"
	"time"
)

// Entity is a canonical node.
type Entity struct {
	ID         int64
	UserID     string
	Name       string
	Normalized string
	Embedding  []float32
	CreatedAt  time.Time
}

// Relationship is an edge between two resolved entities.
type Relationship struct {
	SourceID   int64
	Relation   string
	TargetID   int64
	Properties map[string]any
}

// Edge is a relationship joined with its endpoint entities.
type Edge struct {
	Source     Entity
	Relation   string
	Target     Entity
	Properties map[string]any
}

// Backend persists entities and relationships.
type Backend interface {
	// Entities lists userID's entities ordered by CreatedAt then ID.
	Entities(ctx context.Context, userID string) ([]Entity, error)

	// CreateEntity inserts e. When (UserID, Normalized) already exists the
	// stored entity is returned instead.
	CreateEntity(ctx context.Context, e Entity) (Entity, error)

	// UpsertRelationship inserts r or merges its properties into the
	// existing edge.
	UpsertRelationship(ctx context.Context, userID string, r Relationship) error

	// Edges lists userID's relationships.
	Edges(ctx context.Context, userID string) ([]Edge, error)

	Close() error
}
