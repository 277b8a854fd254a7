// Package resource holds the learner's uploaded study material, chunked for
// retrieval during context assembly.
package resource

import "context"

// Chunk is one retrievable slice of a resource.
type Chunk struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	SourceID string `json:"source_id"`
}

// DefaultLimit caps how many chunks Context returns.
const DefaultLimit = 5

// Driver indexes and searches resource chunks.
type Driver interface {
	// Context returns the chunks of resourceIDs owned by userID that best
	// match query. An empty resourceIDs returns nothing.
	Context(ctx context.Context, query, userID string, resourceIDs []string) ([]Chunk, error)

	// Index stores chunks for userID, replacing chunks with the same
	// source and position.
	Index(ctx context.Context, userID string, chunks []Chunk) error

	Close() error
}
