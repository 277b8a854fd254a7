package testutils

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/papercomputeco/sensei/pkg/artifact"
	"github.com/papercomputeco/sensei/pkg/memory"
	"github.com/papercomputeco/sensei/pkg/resource"
	"github.com/papercomputeco/sensei/pkg/study"
)

// Stub stores return canned values after Delay. Delay ignores the context
// so specs can observe branches that outlive an assembly deadline.

// sleep waits d regardless of any context.
func sleep(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}

type StubResources struct {
	Chunks []resource.Chunk
	Delay  time.Duration
	Err    error
	Calls  atomic.Int32
}

func (s *StubResources) Context(_ context.Context, _, _ string, _ []string) ([]resource.Chunk, error) {
	s.Calls.Add(1)
	sleep(s.Delay)
	return s.Chunks, s.Err
}

func (s *StubResources) Index(context.Context, string, []resource.Chunk) error { return nil }
func (s *StubResources) Close() error                                          { return nil }

type StubEpisodic struct {
	Snippets []memory.Snippet
	Delay    time.Duration
	Err      error
	Calls    atomic.Int32
}

func (s *StubEpisodic) Retrieve(_ context.Context, _, _ string, limit int) ([]memory.Snippet, error) {
	s.Calls.Add(1)
	sleep(s.Delay)
	if s.Err != nil {
		return nil, s.Err
	}
	if limit > 0 && len(s.Snippets) > limit {
		return s.Snippets[:limit], nil
	}
	return s.Snippets, nil
}

func (s *StubEpisodic) Insert(context.Context, string, string, map[string]string) error {
	return s.Err
}

type StubStudy struct {
	Plan   *study.PlanSummary
	Trends *study.Trends
	Delay  time.Duration
	Err    error
	Calls  atomic.Int32
}

func (s *StubStudy) ActivePlanSummary(context.Context, string) (*study.PlanSummary, error) {
	s.Calls.Add(1)
	sleep(s.Delay)
	return s.Plan, s.Err
}

func (s *StubStudy) PerformanceTrends(context.Context, string) (*study.Trends, error) {
	s.Calls.Add(1)
	sleep(s.Delay)
	return s.Trends, s.Err
}

// StubArtifacts serves RecentArtifacts only; creation goes through a real
// storage driver in specs that need it.
type StubArtifacts struct {
	Recent []*artifact.Reference
	Delay  time.Duration
	Err    error
	Calls  atomic.Int32
}

func (s *StubArtifacts) CreateArtifact(context.Context, string, artifact.Proposal) (*artifact.Reference, error) {
	return nil, s.Err
}

func (s *StubArtifacts) GetArtifact(context.Context, string) (*artifact.Reference, error) {
	return nil, s.Err
}

func (s *StubArtifacts) RecentArtifacts(_ context.Context, _ string, limit int) ([]*artifact.Reference, error) {
	s.Calls.Add(1)
	sleep(s.Delay)
	if s.Err != nil {
		return nil, s.Err
	}
	if limit > 0 && len(s.Recent) > limit {
		return s.Recent[:limit], nil
	}
	return s.Recent, nil
}
