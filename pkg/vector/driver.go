// Package vector provides interfaces and implementations for vector storage
// backing the episodic memory store.
package vector

import "context"

// Document represents a stored item with its embedding and metadata.
type Document struct {
	// ID is a unique identifier for the document.
	ID string

	// UserID scopes the document to one learner. Queries never cross users.
	UserID string

	// Content is the text that was embedded.
	Content string

	// Metadata carries free-form string attributes (episode id, category,
	// idempotency key) alongside the document.
	Metadata map[string]string

	// Embedding is the vector representation of Content.
	Embedding []float32
}

// QueryResult represents a search result with similarity score.
type QueryResult struct {
	Document

	// Score represents the similarity score (higher = more similar).
	Score float32
}

// VectorDriver handles storage and retrieval of vector embeddings.
type VectorDriver interface {
	// Add stores documents with their embeddings.
	// If a document with the same ID already exists, implementers should update
	// the document.
	Add(ctx context.Context, docs []Document) error

	// Query finds the topK documents of userID most similar to the given embedding.
	Query(ctx context.Context, embedding []float32, topK int, userID string) ([]QueryResult, error)

	// Get retrieves documents by their IDs. Unknown IDs are skipped.
	Get(ctx context.Context, ids []string) ([]Document, error)

	// Delete removes documents by their IDs.
	Delete(ctx context.Context, ids []string) error

	// Close releases any resources held by the driver.
	Close() error
}

// DefaultTopK is used when a query passes a non-positive topK.
const DefaultTopK = 10
