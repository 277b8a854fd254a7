package graph

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/papercomputeco/sensei/pkg/embeddings"
	"github.com/papercomputeco/sensei/pkg/memory"
	"github.com/papercomputeco/sensei/pkg/utils"
	"github.com/papercomputeco/sensei/pkg/vector/inmemory"
)

// DefaultMergeThreshold is the cosine similarity at which two entity names
// resolve to the same node.
const DefaultMergeThreshold = 0.85

// Config wires a Store.
type Config struct {
	Backend        Backend
	Embedder       embeddings.Embedder
	MergeThreshold float64
	Logger         *zap.Logger
}

// Store resolves entities and implements memory.SemanticStore.
type Store struct {
	backend   Backend
	embedder  embeddings.Embedder
	threshold float32
	logger    *zap.Logger

	// userLocks serializes resolution per learner so two concurrent
	// writers cannot both create near-duplicate entities.
	userLocks utils.KeyedMutex
}

// NewStore creates a semantic store.
func NewStore(c Config) (*Store, error) {
	if c.Backend == nil || c.Embedder == nil {
		return nil, errors.New("graph store requires a backend and an embedder")
	}
	threshold := c.MergeThreshold
	if threshold <= 0 {
		threshold = DefaultMergeThreshold
	}
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		backend:   c.Backend,
		embedder:  c.Embedder,
		threshold: float32(threshold),
		logger:    logger,
	}, nil
}

// Normalize is the exact-match key of an entity name.
func Normalize(name string) string {
	return utils.NormalizeSpace(name)
}

// match finds the canonical entity for normalized/emb among entities.
// entities must be ordered by creation.
func (s *Store) match(entities []Entity, normalized string, emb []float32) (Entity, float32, bool) {
	for _, e := range entities {
		if e.Normalized == normalized {
			return e, 1, true
		}
	}

	var (
		best      Entity
		bestScore float32
		found     bool
	)
	for _, e := range entities {
		score := inmemory.Cosine(emb, e.Embedding)
		// strict > keeps the earliest entity on ties
		if score >= s.threshold && (!found || score > bestScore) {
			best, bestScore, found = e, score, true
		}
	}
	return best, bestScore, found
}

// resolve returns the canonical entity for name, creating one when nothing
// is similar enough. entities is updated in place with any new entity.
func (s *Store) resolve(ctx context.Context, userID, name string, entities *[]Entity) (Entity, error) {
	normalized := Normalize(name)

	for _, e := range *entities {
		if e.Normalized == normalized {
			return e, nil
		}
	}

	emb, err := s.embedder.Embed(ctx, name)
	if err != nil {
		return Entity{}, fmt.Errorf("embedding entity %q: %w", name, err)
	}

	if e, score, ok := s.match(*entities, normalized, emb); ok {
		s.logger.Debug("merged entity",
			zap.String("user_id", userID),
			zap.String("name", name),
			zap.String("canonical", e.Name),
			zap.Float32("score", score),
		)
		return e, nil
	}

	created, err := s.backend.CreateEntity(ctx, Entity{
		UserID:     userID,
		Name:       strings.TrimSpace(name),
		Normalized: normalized,
		Embedding:  emb,
	})
	if err != nil {
		return Entity{}, fmt.Errorf("creating entity %q: %w", name, err)
	}
	*entities = append(*entities, created)
	return created, nil
}

// UpsertRelationships resolves and stores every triple.
func (s *Store) UpsertRelationships(ctx context.Context, triples []memory.Triple, userID string) error {
	if len(triples) == 0 {
		return nil
	}
	for _, t := range triples {
		if strings.TrimSpace(t.Source) == "" || strings.TrimSpace(t.Relation) == "" || strings.TrimSpace(t.Target) == "" {
			return fmt.Errorf("%w: %+v", memory.ErrInvalidTriple, t)
		}
	}

	unlock := s.userLocks.Lock(userID)
	defer unlock()

	entities, err := s.backend.Entities(ctx, userID)
	if err != nil {
		return fmt.Errorf("listing entities: %w", err)
	}

	for _, t := range triples {
		src, err := s.resolve(ctx, userID, t.Source, &entities)
		if err != nil {
			return err
		}
		dst, err := s.resolve(ctx, userID, t.Target, &entities)
		if err != nil {
			return err
		}

		if err := s.backend.UpsertRelationship(ctx, userID, Relationship{
			SourceID:   src.ID,
			Relation:   relationKey(t.Relation),
			TargetID:   dst.ID,
			Properties: t.Properties,
		}); err != nil {
			return fmt.Errorf("upserting relationship: %w", err)
		}
	}

	s.logger.Debug("upserted relationships",
		zap.String("user_id", userID),
		zap.Int("triples", len(triples)),
	)

	return nil
}

// relationKey canonicalizes relation labels to UPPER_SNAKE.
func relationKey(r string) string {
	return strings.ToUpper(strings.Join(strings.Fields(r), "_"))
}

// Retrieve returns the learner's facts touching any entity the query
// resolves to, either by name or by similarity. An empty query returns
// every fact.
func (s *Store) Retrieve(ctx context.Context, userID, query string) ([]memory.Triple, error) {
	edges, err := s.backend.Edges(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing edges: %w", err)
	}
	if len(edges) == 0 {
		return nil, nil
	}

	if strings.TrimSpace(query) == "" {
		return toTriples(edges, nil), nil
	}

	entities, err := s.backend.Entities(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing entities: %w", err)
	}

	hits := map[int64]bool{}
	normalized := Normalize(query)
	queryTokens := tokens(normalized)
	for _, e := range entities {
		if containsPhrase(queryTokens, tokens(e.Normalized)) {
			hits[e.ID] = true
		}
	}

	emb, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if e, _, ok := s.match(entities, normalized, emb); ok {
		hits[e.ID] = true
	}

	if len(hits) == 0 {
		return nil, nil
	}
	return toTriples(edges, hits), nil
}

// tokens splits s into runs of letters and digits.
func tokens(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// containsPhrase reports whether phrase occurs in text as a contiguous run
// of whole tokens.
func containsPhrase(text, phrase []string) bool {
	if len(phrase) == 0 {
		return false
	}
	for i := 0; i+len(phrase) <= len(text); i++ {
		if slices.Equal(text[i:i+len(phrase)], phrase) {
			return true
		}
	}
	return false
}

func toTriples(edges []Edge, keep map[int64]bool) []memory.Triple {
	var out []memory.Triple
	for _, e := range edges {
		if keep != nil && !keep[e.Source.ID] && !keep[e.Target.ID] {
			continue
		}
		out = append(out, memory.Triple{
			Source:     e.Source.Name,
			Relation:   e.Relation,
			Target:     e.Target.Name,
			Properties: e.Properties,
		})
	}
	return out
}

var _ memory.SemanticStore = (*Store)(nil)
