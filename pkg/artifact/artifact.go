// Package artifact defines learner-facing artifacts (flashcard decks, quizzes,
// notes) and the store contract used to give them durable identifiers.
package artifact

import (
	"context"
	"time"
)

// MinIDLength is the shortest identifier a real store record can carry: the
// length of a canonical UUID string. Anything shorter never came from a store.
const MinIDLength = 36

// Proposal is an artifact suggested by the model. Any identifier the model
// attached is deliberately not represented.
type Proposal struct {
	Type  string         `json:"type"`
	Title string         `json:"title"`
	Data  map[string]any `json:"data,omitempty"`
}

// Reference is a persisted artifact carrying its store-assigned ID.
type Reference struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id,omitempty"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ValidID reports whether id could have been assigned by a store.
func ValidID(id string) bool {
	return len(id) >= MinIDLength
}

// Store persists artifacts.
type Store interface {
	// CreateArtifact persists p for userID and returns the record with its
	// store-assigned ID.
	CreateArtifact(ctx context.Context, userID string, p Proposal) (*Reference, error)

	// GetArtifact fetches a persisted artifact by ID.
	GetArtifact(ctx context.Context, id string) (*Reference, error)

	// RecentArtifacts returns the user's newest artifacts, newest first.
	RecentArtifacts(ctx context.Context, userID string, limit int) ([]*Reference, error)
}
