package memorywriter

import (
	"context"
	"fmt"

	"github.com/papercomputeco/sensei/pkg/episode"
	"github.com/papercomputeco/sensei/pkg/queue"
)

// memory.extract_interaction kwargs.
const (
	KwargSessionID    = "session_id"
	KwargUserID       = "user_id"
	KwargStartID      = "start_message_id"
	KwargEndID        = "end_message_id"
	KwargUserMessage  = "user_message"
	KwargAgentMessage = "agent_message"
)

// InteractionKwargs builds the memory.extract_interaction arguments for in.
func InteractionKwargs(in Interaction) map[string]any {
	return map[string]any{
		KwargSessionID:    in.SessionID,
		KwargUserID:       in.UserID,
		KwargStartID:      in.StartMessageID,
		KwargEndID:        in.EndMessageID,
		KwargUserMessage:  in.UserMessage,
		KwargAgentMessage: in.AgentMessage,
	}
}

// HandleExtractInteraction is the queue.Handler for memory.extract_interaction.
func (w *Writer) HandleExtractInteraction(ctx context.Context, t *queue.Task) error {
	start, okStart := t.Int64(KwargStartID)
	end, okEnd := t.Int64(KwargEndID)
	in := Interaction{
		SessionID:      t.String(KwargSessionID),
		UserID:         t.String(KwargUserID),
		StartMessageID: start,
		EndMessageID:   end,
		UserMessage:    t.String(KwargUserMessage),
		AgentMessage:   t.String(KwargAgentMessage),
	}
	if in.UserID == "" || in.SessionID == "" || !okStart || !okEnd {
		return fmt.Errorf("%w: %s needs %s, %s and its message span", ErrMissingKwarg, t.Name, KwargUserID, KwargSessionID)
	}
	_, err := w.WriteInteraction(ctx, in)
	return err
}

// HandleFinalizeEpisode is the queue.Handler for episode.finalize.
func (w *Writer) HandleFinalizeEpisode(ctx context.Context, t *queue.Task) error {
	id := t.String(episode.KwargEpisodeID)
	if id == "" {
		return fmt.Errorf("%w: %s needs %s", ErrMissingKwarg, t.Name, episode.KwargEpisodeID)
	}
	return w.FinalizeEpisode(ctx, id, t.String(episode.KwargUserID))
}
