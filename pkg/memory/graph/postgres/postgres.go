// Package postgres is a graph.Backend on the sensei PostgreSQL schema.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/papercomputeco/sensei/pkg/memory/graph"
)

// Backend stores entities and relationships in graph_entities and
// graph_relationships. The schema is owned by the storage migrations.
type Backend struct {
	pool *pgxpool.Pool
}

// NewBackend uses an existing pool; Close does not close it.
func NewBackend(pool *pgxpool.Pool) *Backend {
	return &Backend{pool: pool}
}

func (b *Backend) Entities(ctx context.Context, userID string) ([]graph.Entity, error) {
	rows, err := b.pool.Query(ctx,
		`SELECT id, user_id, name, normalized_name, embedding, created_at
		   FROM graph_entities
		  WHERE user_id = $1
		  ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying entities: %w", err)
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (graph.Entity, error) {
		var e graph.Entity
		err := row.Scan(&e.ID, &e.UserID, &e.Name, &e.Normalized, &e.Embedding, &e.CreatedAt)
		return e, err
	})
}

// CreateEntity inserts e, returning the existing row on a name collision.
func (b *Backend) CreateEntity(ctx context.Context, e graph.Entity) (graph.Entity, error) {
	// The no-op update makes RETURNING yield the existing row on conflict.
	err := b.pool.QueryRow(ctx,
		`INSERT INTO graph_entities (user_id, name, normalized_name, embedding)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, normalized_name)
		 DO UPDATE SET normalized_name = EXCLUDED.normalized_name
		 RETURNING id, user_id, name, normalized_name, embedding, created_at`,
		e.UserID, e.Name, e.Normalized, e.Embedding,
	).Scan(&e.ID, &e.UserID, &e.Name, &e.Normalized, &e.Embedding, &e.CreatedAt)
	if err != nil {
		return graph.Entity{}, fmt.Errorf("inserting entity: %w", err)
	}
	return e, nil
}

func (b *Backend) UpsertRelationship(ctx context.Context, userID string, r graph.Relationship) error {
	props := r.Properties
	if props == nil {
		props = map[string]any{}
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("encoding properties: %w", err)
	}

	_, err = b.pool.Exec(ctx,
		`INSERT INTO graph_relationships (user_id, source_id, relation, target_id, properties)
		 VALUES ($1, $2, $3, $4, $5::jsonb)
		 ON CONFLICT (user_id, source_id, relation, target_id)
		 DO UPDATE SET properties = graph_relationships.properties || EXCLUDED.properties`,
		userID, r.SourceID, r.Relation, r.TargetID, string(raw))
	if err != nil {
		return fmt.Errorf("upserting relationship: %w", err)
	}
	return nil
}

func (b *Backend) Edges(ctx context.Context, userID string) ([]graph.Edge, error) {
	rows, err := b.pool.Query(ctx,
		`SELECT s.id, s.user_id, s.name, s.normalized_name, s.created_at,
		        r.relation, r.properties,
		        t.id, t.user_id, t.name, t.normalized_name, t.created_at
		   FROM graph_relationships r
		   JOIN graph_entities s ON s.id = r.source_id
		   JOIN graph_entities t ON t.id = r.target_id
		  WHERE r.user_id = $1
		  ORDER BY r.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying edges: %w", err)
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (graph.Edge, error) {
		var (
			e   graph.Edge
			raw []byte
		)
		err := row.Scan(
			&e.Source.ID, &e.Source.UserID, &e.Source.Name, &e.Source.Normalized, &e.Source.CreatedAt,
			&e.Relation, &raw,
			&e.Target.ID, &e.Target.UserID, &e.Target.Name, &e.Target.Normalized, &e.Target.CreatedAt,
		)
		if err != nil {
			return e, err
		}
		if len(raw) > 0 {
			props := map[string]any{}
			if err := json.Unmarshal(raw, &props); err != nil {
				return e, errors.Join(errors.New("decoding properties"), err)
			}
			if len(props) > 0 {
				e.Properties = props
			}
		}
		return e, nil
	})
}

func (b *Backend) Close() error {
	return nil
}

var _ graph.Backend = (*Backend)(nil)
