// Package worker registers the runtime's background task handlers and drives
// the queue consumer.
//
// The handlers are registered on a queue.Mux after the queue exists, since
// the episode manager that enqueues finalization needs the queue and the
// finalization handler needs the episode manager.
package worker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/papercomputeco/sensei/pkg/memorywriter"
	"github.com/papercomputeco/sensei/pkg/queue"
	"github.com/papercomputeco/sensei/pkg/resource"
	"github.com/papercomputeco/sensei/pkg/storage"
	"github.com/papercomputeco/sensei/pkg/summarizer"
)

// resource.ingest kwargs.
const (
	KwargUserID   = "user_id"
	KwargSourceID = "source_id"
	KwargTitle    = "title"
	KwargText     = "text"
)

// Config holds the task handlers' collaborators. Nil collaborators leave
// their tasks unregistered.
type Config struct {
	Writer     *memorywriter.Writer
	Summarizer *summarizer.Summarizer
	Resources  resource.Driver
	Logger     *zap.Logger
}

// Register installs every configured handler on mux.
func Register(mux *queue.Mux, c Config) {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if c.Writer != nil {
		mux.Handle(queue.TaskExtractInteraction, logged(logger, c.Writer.HandleExtractInteraction))
		mux.Handle(queue.TaskFinalizeEpisode, logged(logger, c.Writer.HandleFinalizeEpisode))
	}
	if c.Summarizer != nil {
		mux.Handle(queue.TaskSummarizeConversation, logged(logger, SummarizeHandler(c.Summarizer)))
	}
	if c.Resources != nil {
		mux.Handle(queue.TaskIngestResource, logged(logger, IngestHandler(c.Resources)))
	}
}

// logged reports the outcome of each task the way the rest of the runtime
// logs background work.
func logged(logger *zap.Logger, h queue.Handler) queue.Handler {
	return func(ctx context.Context, t *queue.Task) error {
		err := h(ctx, t)
		if err != nil {
			logger.Error("task failed",
				zap.String("task", t.Name),
				zap.String("task_id", t.ID),
				zap.Error(err),
			)
			return err
		}
		logger.Debug("task done", zap.String("task", t.Name), zap.String("task_id", t.ID))
		return nil
	}
}

// SummarizeHandler runs conversation.summarize. A bookmark conflict means
// another worker already advanced the summary and is not retried.
func SummarizeHandler(s *summarizer.Summarizer) queue.Handler {
	return func(ctx context.Context, t *queue.Task) error {
		id := t.String(summarizer.KwargConversationID)
		if id == "" {
			return fmt.Errorf("%w: %s needs %s", memorywriter.ErrMissingKwarg, t.Name, summarizer.KwargConversationID)
		}
		_, err := s.SummarizeConversation(ctx, id)
		if errors.Is(err, storage.ErrBookmarkConflict) {
			return nil
		}
		return err
	}
}

// IngestHandler runs resource.ingest: the text is chunked and indexed for
// the learner, replacing any earlier version of the source.
func IngestHandler(resources resource.Driver) queue.Handler {
	return func(ctx context.Context, t *queue.Task) error {
		userID := t.String(KwargUserID)
		sourceID := t.String(KwargSourceID)
		if userID == "" || sourceID == "" {
			return fmt.Errorf("%w: %s needs %s and %s", memorywriter.ErrMissingKwarg, t.Name, KwargUserID, KwargSourceID)
		}
		chunks := resource.ChunkMarkdown(sourceID, t.String(KwargTitle), t.String(KwargText))
		if err := resources.Index(ctx, userID, chunks); err != nil {
			return fmt.Errorf("indexing %s: %w", sourceID, err)
		}
		return nil
	}
}

// Run consumes tasks until ctx is done. Queues that deliver in-process
// already run their handler, so Run only waits for them.
func Run(ctx context.Context, q queue.Queue, h queue.Handler) error {
	consumer, ok := q.(queue.Consumer)
	if !ok {
		<-ctx.Done()
		return nil
	}
	err := consumer.Consume(ctx, h)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
