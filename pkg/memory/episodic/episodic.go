// Package episodic implements memory.EpisodicStore on top of an embedder and a
// vector driver.
package episodic

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercomputeco/sensei/pkg/embeddings"
	"github.com/papercomputeco/sensei/pkg/memory"
	"github.com/papercomputeco/sensei/pkg/vector"
)

// Config wires the store's collaborators.
type Config struct {
	Embedder embeddings.Embedder
	Vectors  vector.VectorDriver
	Logger   *zap.Logger
}

// Store is a vector-backed episodic memory.
type Store struct {
	embedder embeddings.Embedder
	vectors  vector.VectorDriver
	logger   *zap.Logger
	now      func() time.Time
}

// NewStore creates an episodic store.
func NewStore(c Config) (*Store, error) {
	if c.Embedder == nil || c.Vectors == nil {
		return nil, errors.New("episodic store requires an embedder and a vector driver")
	}
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		embedder: c.Embedder,
		vectors:  c.Vectors,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Retrieve embeds query and returns the closest snippets of userID.
func (s *Store) Retrieve(ctx context.Context, query, userID string, limit int) ([]memory.Snippet, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	emb, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := s.vectors.Query(ctx, emb, limit, userID)
	if err != nil {
		return nil, fmt.Errorf("querying episodic memory: %w", err)
	}

	snippets := make([]memory.Snippet, 0, len(results))
	for _, r := range results {
		sn := memory.Snippet{
			Summary:   r.Content,
			Relevance: r.Score,
		}
		if ts, ok := r.Metadata[memory.MetaCreatedAt]; ok {
			if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
				sn.Timestamp = &t
			}
		}
		snippets = append(snippets, sn)
	}

	s.logger.Debug("retrieved episodic memory",
		zap.String("user_id", userID),
		zap.Int("snippets", len(snippets)),
	)

	return snippets, nil
}

// Insert embeds and stores summary. When metadata carries an idempotency
// key it becomes the document ID, so redelivered writes overwrite.
func (s *Store) Insert(ctx context.Context, summary, userID string, metadata map[string]string) error {
	if strings.TrimSpace(summary) == "" {
		return errors.New("cannot insert an empty memory")
	}

	emb, err := s.embedder.Embed(ctx, summary)
	if err != nil {
		return fmt.Errorf("embedding memory: %w", err)
	}

	meta := maps.Clone(metadata)
	if meta == nil {
		meta = map[string]string{}
	}
	if _, ok := meta[memory.MetaCreatedAt]; !ok {
		meta[memory.MetaCreatedAt] = s.now().Format(time.RFC3339Nano)
	}

	id := uuid.NewString()
	if key := meta[memory.MetaIdempotencyKey]; key != "" {
		id = userID + ":" + key
	}

	if err := s.vectors.Add(ctx, []vector.Document{{
		ID:        id,
		UserID:    userID,
		Content:   summary,
		Metadata:  meta,
		Embedding: emb,
	}}); err != nil {
		return fmt.Errorf("storing memory: %w", err)
	}

	s.logger.Debug("inserted episodic memory",
		zap.String("user_id", userID),
		zap.String("id", id),
	)

	return nil
}

var _ memory.EpisodicStore = (*Store)(nil)
