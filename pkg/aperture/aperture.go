// Package aperture assembles the per-turn learner context: four retrieval
// branches raced against one deadline.
package aperture

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/sensei/pkg/artifact"
	"github.com/papercomputeco/sensei/pkg/memory"
	"github.com/papercomputeco/sensei/pkg/metrics"
	"github.com/papercomputeco/sensei/pkg/resource"
	"github.com/papercomputeco/sensei/pkg/study"
)

const (
	DefaultTimeout       = 5 * time.Second
	DefaultMemoryLimit   = 5
	DefaultArtifactLimit = 5
)

// Degradation reasons reported to metrics.
const (
	reasonTimeout        = "timeout"
	reasonError          = "error"
	reasonPartialTimeout = "partial_timeout"
	reasonPartialError   = "partial_error"
)

// Config wires the assembler to its stores. A nil store skips its branch.
type Config struct {
	Resources resource.Driver
	Episodic  memory.EpisodicStore
	Study     study.Service
	Artifacts artifact.Store

	// Timeout is the shared deadline for all branches.
	Timeout time.Duration

	// PartialOnTimeout keeps branches that succeeded when a sibling timed
	// out or failed, instead of returning an empty context.
	PartialOnTimeout bool

	MemoryLimit   int
	ArtifactLimit int

	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// Request is one assembly request.
type Request struct {
	Query       string
	UserID      string
	ResourceIDs []string

	// Timeout overrides Config.Timeout when positive.
	Timeout time.Duration
}

type Assembler struct {
	c      Config
	logger *zap.Logger
}

func New(c Config) *Assembler {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MemoryLimit <= 0 {
		c.MemoryLimit = DefaultMemoryLimit
	}
	if c.ArtifactLimit <= 0 {
		c.ArtifactLimit = DefaultArtifactLimit
	}
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{c: c, logger: logger}
}

// outcome is one branch's result. Each slot is buffered so a branch that
// finishes after the deadline can still deliver and exit.
type outcome[T any] struct {
	val T
	err error
}

type slot[T any] chan outcome[T]

func newSlot[T any]() slot[T] { return make(slot[T], 1) }

// take returns the branch value if it finished successfully by now.
func (s slot[T]) take() (T, bool) {
	select {
	case o := <-s:
		if o.err == nil {
			return o.val, true
		}
	default:
	}
	var zero T
	return zero, false
}

// Assemble builds the learner context for req. It never fails: a timeout or
// branch error yields an empty context (or, with PartialOnTimeout, the
// branches that succeeded). Branches run under ctx rather than the assembly
// deadline, so a deadline abandons them without interrupting their I/O.
func (a *Assembler) Assemble(ctx context.Context, req Request) LearnerContext {
	start := time.Now()
	defer func() { a.c.Metrics.ObserveAssemble(time.Since(start)) }()

	timeout := a.c.Timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}

	var (
		g         errgroup.Group
		resources = newSlot[[]resource.Chunk]()
		memories  = newSlot[[]memory.Snippet]()
		state     = newSlot[*study.State]()
		artifacts = newSlot[[]artifact.Reference]()
		failed    = make(chan error, 4)
	)

	launch := func(fn func() error) {
		g.Go(func() error {
			err := fn()
			if err != nil {
				failed <- err
			}
			return err
		})
	}

	if a.c.Resources != nil && len(req.ResourceIDs) > 0 {
		launch(func() error {
			v, err := a.c.Resources.Context(ctx, req.Query, req.UserID, req.ResourceIDs)
			resources <- outcome[[]resource.Chunk]{v, err}
			return wrap("resources", err)
		})
	} else {
		resources <- outcome[[]resource.Chunk]{}
	}

	if a.c.Episodic != nil {
		launch(func() error {
			v, err := a.c.Episodic.Retrieve(ctx, req.Query, req.UserID, a.c.MemoryLimit)
			memories <- outcome[[]memory.Snippet]{v, err}
			return wrap("episodic memory", err)
		})
	} else {
		memories <- outcome[[]memory.Snippet]{}
	}

	if a.c.Study != nil {
		launch(func() error {
			v, err := a.studyState(ctx, req.UserID)
			state <- outcome[*study.State]{v, err}
			return wrap("study state", err)
		})
	} else {
		state <- outcome[*study.State]{}
	}

	if a.c.Artifacts != nil {
		launch(func() error {
			v, err := a.recentArtifacts(ctx, req.UserID)
			artifacts <- outcome[[]artifact.Reference]{v, err}
			return wrap("artifacts", err)
		})
	} else {
		artifacts <- outcome[[]artifact.Reference]{}
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	collect := func() LearnerContext {
		var lc LearnerContext
		lc.Resources, _ = resources.take()
		lc.Memories, _ = memories.take()
		lc.StudyState, _ = state.take()
		lc.Artifacts, _ = artifacts.take()
		return lc
	}

	log := a.logger.With(zap.String("user_id", req.UserID))

	for {
		select {
		case err := <-done:
			if err == nil {
				return collect()
			}
			return a.degrade(log, err, reasonError, reasonPartialError, collect)

		case err := <-failed:
			if a.c.PartialOnTimeout {
				// keep waiting for the siblings; done reports the first error
				continue
			}
			return a.degrade(log, err, reasonError, reasonPartialError, collect)

		case <-timer.C:
			return a.degrade(log, fmt.Errorf("deadline of %s exceeded", timeout), reasonTimeout, reasonPartialTimeout, collect)

		case <-ctx.Done():
			return a.degrade(log, ctx.Err(), reasonTimeout, reasonPartialTimeout, collect)
		}
	}
}

func (a *Assembler) degrade(log *zap.Logger, err error, reason, partialReason string, collect func() LearnerContext) LearnerContext {
	if a.c.PartialOnTimeout {
		log.Warn("context assembly degraded to partial", zap.String("reason", partialReason), zap.Error(err))
		a.c.Metrics.IncDegraded(partialReason)
		return collect()
	}
	log.Warn("context assembly degraded to empty", zap.String("reason", reason), zap.Error(err))
	a.c.Metrics.IncDegraded(reason)
	return LearnerContext{}
}

// studyState fans out to the plan and trend lookups. Both must succeed.
func (a *Assembler) studyState(ctx context.Context, userID string) (*study.State, error) {
	var (
		g     errgroup.Group
		state study.State
	)
	g.Go(func() error {
		plan, err := a.c.Study.ActivePlanSummary(ctx, userID)
		state.Plan = plan
		return err
	})
	g.Go(func() error {
		trends, err := a.c.Study.PerformanceTrends(ctx, userID)
		state.Trends = trends
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if state.Empty() {
		return nil, nil
	}
	return &state, nil
}

func (a *Assembler) recentArtifacts(ctx context.Context, userID string) ([]artifact.Reference, error) {
	refs, err := a.c.Artifacts.RecentArtifacts(ctx, userID, a.c.ArtifactLimit)
	if err != nil {
		return nil, err
	}
	out := make([]artifact.Reference, 0, len(refs))
	for _, r := range refs {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

func wrap(branch string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", branch, err)
}
