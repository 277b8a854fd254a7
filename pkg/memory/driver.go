// Package memory defines the long-term memory contracts of the sensei
// runtime.
//
// Two stores back a learner's memory:
//
//   - EpisodicStore holds free-text summaries of past interactions and
//     episodes, retrieved by vector similarity.
//   - SemanticStore holds durable facts as graph triples whose entities are
//     merged by embedding similarity at write time.
//
// Writes only happen after the memory gatekeeper classifies an interaction
// as permanent. Session-scoped interactions never reach either store.
package memory

import (
	"context"
	"time"
)

// Snippet is the read projection of an episodic memory record.
type Snippet struct {
	Summary   string     `json:"summary"`
	Timestamp *time.Time `json:"timestamp,omitempty"`

	// Relevance is the store's similarity score, 0 when unscored.
	Relevance float32 `json:"relevance"`
}

// Triple is a semantic fact: (Source)-[Relation]->(Target).
type Triple struct {
	Source     string         `json:"source"`
	Relation   string         `json:"relation"`
	Target     string         `json:"target"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Metadata keys understood by EpisodicStore.Insert.
const (
	// MetaIdempotencyKey makes repeated inserts of the same record
	// overwrite rather than duplicate.
	MetaIdempotencyKey = "idempotency_key"
	MetaCreatedAt      = "created_at"
	MetaCategory       = "category"
	MetaEpisodeID      = "episode_id"
)

// EpisodicStore is vector-indexed episodic memory.
type EpisodicStore interface {
	// Retrieve returns up to limit snippets of userID most similar to query.
	Retrieve(ctx context.Context, query, userID string, limit int) ([]Snippet, error)

	// Insert stores summary for userID.
	Insert(ctx context.Context, summary, userID string, metadata map[string]string) error
}

// SemanticStore is graph-indexed semantic memory.
type SemanticStore interface {
	// Retrieve returns userID's facts related to query. An empty query
	// returns every fact of the user.
	Retrieve(ctx context.Context, userID, query string) ([]Triple, error)

	// UpsertRelationships resolves each triple's entities onto canonical
	// nodes and stores the edges. Re-upserting an edge is a no-op apart
	// from merging properties.
	UpsertRelationships(ctx context.Context, triples []Triple, userID string) error
}
