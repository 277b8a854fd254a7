package servecmder

import (
	"context"
	"fmt"
	"time"

	"github.com/gorhill/cronexpr"
	"go.uber.org/zap"
)

// sweeper runs a summarization sweep on a cron schedule.
type sweeper struct {
	expr   *cronexpr.Expression
	sweep  func(ctx context.Context) (int, error)
	logger *zap.Logger

	now   func() time.Time
	after func(d time.Duration) <-chan time.Time
}

func newSweeper(schedule string, sweep func(ctx context.Context) (int, error), logger *zap.Logger) (*sweeper, error) {
	expr, err := cronexpr.Parse(schedule)
	if err != nil {
		return nil, fmt.Errorf("parsing summarizer.schedule %q: %w", schedule, err)
	}
	return &sweeper{
		expr:   expr,
		sweep:  sweep,
		logger: logger,
		now:    time.Now,
		after:  time.After,
	}, nil
}

// run sweeps at every scheduled instant until ctx is done. A failed sweep
// is logged and retried at the next instant.
func (s *sweeper) run(ctx context.Context) error {
	for ctx.Err() == nil {
		now := s.now()
		next := s.expr.Next(now)
		if next.IsZero() {
			s.logger.Warn("summarization schedule has no future runs")
			<-ctx.Done()
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-s.after(next.Sub(now)):
		}

		n, err := s.sweep(ctx)
		if err != nil {
			s.logger.Error("summarization sweep failed", zap.Error(err))
			continue
		}
		s.logger.Debug("summarization sweep", zap.Int("enqueued", n))
	}
	return nil
}
