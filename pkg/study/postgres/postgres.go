// Package postgres is a study.Store on the sensei PostgreSQL schema.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/papercomputeco/sensei/pkg/study"
)

type Store struct {
	pool *pgxpool.Pool
}

// NewStore uses an existing pool whose schema is already migrated.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) ActivePlanSummary(ctx context.Context, userID string) (*study.PlanSummary, error) {
	var p study.PlanSummary
	err := s.pool.QueryRow(ctx,
		`SELECT target_level, current_milestone, health_status
		   FROM study_plans
		  WHERE user_id = $1 AND active`, userID,
	).Scan(&p.TargetLevel, &p.CurrentMilestone, &p.HealthStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying study plan: %w", err)
	}
	return &p, nil
}

func (s *Store) PerformanceTrends(ctx context.Context, userID string) (*study.Trends, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT topic FROM study_struggles WHERE user_id = $1 ORDER BY identified_at, topic`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying struggles: %w", err)
	}
	struggles, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scanning struggles: %w", err)
	}

	rows, err = s.pool.Query(ctx,
		`SELECT name, value, recorded_at
		   FROM study_metrics
		  WHERE user_id = $1
		  ORDER BY recorded_at DESC, id DESC
		  LIMIT $2`, userID, study.RecentMetricLimit)
	if err != nil {
		return nil, fmt.Errorf("querying metrics: %w", err)
	}
	metrics, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (study.Metric, error) {
		var m study.Metric
		err := row.Scan(&m.Name, &m.Value, &m.RecordedAt)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning metrics: %w", err)
	}

	return &study.Trends{IdentifiedStruggles: struggles, RecentMetrics: metrics}, nil
}

func (s *Store) SetPlan(ctx context.Context, userID string, plan study.PlanSummary) error {
	health := plan.HealthStatus
	if health == "" {
		health = "on_track"
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO study_plans (user_id, target_level, current_milestone, health_status, active, updated_at)
		 VALUES ($1, $2, $3, $4, TRUE, now())
		 ON CONFLICT (user_id) DO UPDATE
		    SET target_level = EXCLUDED.target_level,
		        current_milestone = EXCLUDED.current_milestone,
		        health_status = EXCLUDED.health_status,
		        active = TRUE,
		        updated_at = now()`,
		userID, plan.TargetLevel, plan.CurrentMilestone, health)
	if err != nil {
		return fmt.Errorf("upserting study plan: %w", err)
	}
	return nil
}

func (s *Store) RecordStruggle(ctx context.Context, userID, topic string) error {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO study_struggles (user_id, topic) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, topic)
	if err != nil {
		return fmt.Errorf("recording struggle: %w", err)
	}
	return nil
}

func (s *Store) RecordMetric(ctx context.Context, userID string, m study.Metric) error {
	if m.RecordedAt.IsZero() {
		m.RecordedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO study_metrics (user_id, name, value, recorded_at) VALUES ($1, $2, $3, $4)`,
		userID, m.Name, m.Value, m.RecordedAt)
	if err != nil {
		return fmt.Errorf("recording metric: %w", err)
	}
	return nil
}

var _ study.Store = (*Store)(nil)
