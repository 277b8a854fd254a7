package memorywriter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/sensei/pkg/episode"
	"github.com/papercomputeco/sensei/pkg/memory"
)

// CategoryEpisode tags episode summaries in episodic memory.
const CategoryEpisode = "episode"

// FinalizeEpisode summarizes a closed episode into userID's episodic memory
// and stores the summary on the episode. A failure leaves the episode
// FAILED and returns the error so the task can be retried.
func (w *Writer) FinalizeEpisode(ctx context.Context, episodeID, userID string) error {
	if w.c.Episodes == nil || w.c.Messages == nil || w.c.Summarizer == nil {
		return errors.New("episode finalization is not configured")
	}
	log := w.logger.With(zap.String("episode_id", episodeID), zap.String("user_id", userID))

	ep, err := w.c.Episodes.MarkProcessing(ctx, episodeID)
	if errors.Is(err, episode.ErrAlreadyFinalized) {
		log.Debug("episode already finalized")
		return nil
	}
	if err != nil {
		return err
	}

	summary, err := w.summarizeEpisode(ctx, ep.SessionID, ep.StartMessageID, ep.EndMessageID)
	if err == nil && userID != "" {
		err = w.c.Episodic.Insert(ctx, summary, userID, map[string]string{
			memory.MetaIdempotencyKey: "episode:" + ep.ID,
			memory.MetaEpisodeID:      ep.ID,
			memory.MetaCategory:       CategoryEpisode,
			memory.MetaCreatedAt:      w.now().Format(time.RFC3339Nano),
		})
		if err != nil {
			err = fmt.Errorf("inserting episode summary: %w", err)
		}
	}
	if err != nil {
		if _, markErr := w.c.Episodes.MarkFailed(ctx, ep.ID); markErr != nil {
			log.Error("could not mark episode failed", zap.Error(markErr))
		}
		return err
	}

	if _, err := w.c.Episodes.Complete(ctx, ep.ID, summary); err != nil {
		return err
	}
	log.Info("finalized episode", zap.Int64("messages", ep.MessageCount()))
	return nil
}

func (w *Writer) summarizeEpisode(ctx context.Context, sessionID string, start, end int64) (string, error) {
	msgs, err := w.c.Messages.ListMessageRange(ctx, sessionID, start, end)
	if err != nil {
		return "", fmt.Errorf("listing episode messages: %w", err)
	}
	if len(msgs) == 0 {
		return "", fmt.Errorf("episode range %d-%d of %s has no messages", start, end, sessionID)
	}
	summary, err := w.c.Summarizer.SummarizeMessages(ctx, "", msgs)
	if err != nil {
		return "", fmt.Errorf("summarizing episode: %w", err)
	}
	return summary, nil
}
