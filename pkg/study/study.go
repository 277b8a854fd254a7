// Package study exposes the learner's study progress to context assembly.
package study

import (
	"context"
	"time"
)

// PlanSummary is the learner's active study plan.
type PlanSummary struct {
	TargetLevel      string `json:"target_level"`
	CurrentMilestone string `json:"current_milestone"`
	HealthStatus     string `json:"health_status"`
}

// Metric is one recorded performance measurement.
type Metric struct {
	Name       string    `json:"name"`
	Value      float64   `json:"value"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Trends summarizes recent performance.
type Trends struct {
	IdentifiedStruggles []string `json:"identified_struggles"`
	RecentMetrics       []Metric `json:"recent_metrics"`
}

// State is the study branch of a learner context. Either half may be nil
// when the learner has no plan or no history.
type State struct {
	Plan   *PlanSummary `json:"plan,omitempty"`
	Trends *Trends      `json:"trends,omitempty"`
}

// Empty reports whether s carries nothing worth rendering.
func (s *State) Empty() bool {
	if s == nil {
		return true
	}
	return s.Plan == nil && (s.Trends == nil || (len(s.Trends.IdentifiedStruggles) == 0 && len(s.Trends.RecentMetrics) == 0))
}

// RecentMetricLimit caps how many metrics PerformanceTrends returns.
const RecentMetricLimit = 10

// Service reads study progress.
type Service interface {
	// ActivePlanSummary returns nil, nil when the learner has no active plan.
	ActivePlanSummary(ctx context.Context, userID string) (*PlanSummary, error)

	// PerformanceTrends returns the learner's struggles and most recent
	// metrics, newest first.
	PerformanceTrends(ctx context.Context, userID string) (*Trends, error)
}

// Recorder writes study progress.
type Recorder interface {
	SetPlan(ctx context.Context, userID string, plan PlanSummary) error
	RecordStruggle(ctx context.Context, userID, topic string) error
	RecordMetric(ctx context.Context, userID string, m Metric) error
}

// Store is the full read/write study backend.
type Store interface {
	Service
	Recorder
}
