// Package inmemory is a process-local study.Store.
package inmemory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/papercomputeco/sensei/pkg/study"
)

type Store struct {
	mu        sync.RWMutex
	plans     map[string]study.PlanSummary
	struggles map[string][]string
	metrics   map[string][]study.Metric
}

func NewStore() *Store {
	return &Store{
		plans:     make(map[string]study.PlanSummary),
		struggles: make(map[string][]string),
		metrics:   make(map[string][]study.Metric),
	}
}

func (s *Store) ActivePlanSummary(_ context.Context, userID string) (*study.PlanSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.plans[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *Store) PerformanceTrends(_ context.Context, userID string) (*study.Trends, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := &study.Trends{
		IdentifiedStruggles: slices.Clone(s.struggles[userID]),
	}

	metrics := slices.Clone(s.metrics[userID])
	slices.SortStableFunc(metrics, func(a, b study.Metric) int {
		return b.RecordedAt.Compare(a.RecordedAt)
	})
	if len(metrics) > study.RecentMetricLimit {
		metrics = metrics[:study.RecentMetricLimit]
	}
	t.RecentMetrics = metrics
	return t, nil
}

func (s *Store) SetPlan(_ context.Context, userID string, plan study.PlanSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[userID] = plan
	return nil
}

func (s *Store) RecordStruggle(_ context.Context, userID, topic string) error {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.Contains(s.struggles[userID], topic) {
		return nil
	}
	s.struggles[userID] = append(s.struggles[userID], topic)
	return nil
}

func (s *Store) RecordMetric(_ context.Context, userID string, m study.Metric) error {
	if m.RecordedAt.IsZero() {
		m.RecordedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics[userID] = append(s.metrics[userID], m)
	return nil
}

var _ study.Store = (*Store)(nil)
