// Package storage defines the relational persistence contracts of the sensei
// runtime: messages, episodes, conversation summaries and artifacts.
package storage

import (
	"context"

	"github.com/papercomputeco/sensei/pkg/artifact"
)

// MessageStore persists conversation messages.
type MessageStore interface {
	// AppendMessage stores m, assigning ID and CreatedAt.
	AppendMessage(ctx context.Context, m *Message) (*Message, error)

	// ListMessages returns every message of a conversation in ID order.
	ListMessages(ctx context.Context, conversationID string) ([]*Message, error)

	// ListMessageRange returns the conversation's messages with
	// startID <= ID <= endID in ID order.
	ListMessageRange(ctx context.Context, conversationID string, startID, endID int64) ([]*Message, error)
}

// EpisodeStore persists episodes. Implementations enforce at most one OPEN
// episode per session.
type EpisodeStore interface {
	// GetOpenEpisode returns the session's OPEN episode or a NotFoundError.
	GetOpenEpisode(ctx context.Context, sessionID string) (*Episode, error)

	// CreateEpisode inserts ep with status OPEN. Returns ErrOpenEpisodeExists
	// when the session already has one.
	CreateEpisode(ctx context.Context, ep *Episode) error

	// GetEpisode fetches an episode by ID.
	GetEpisode(ctx context.Context, id string) (*Episode, error)

	// ExtendEpisode sets start (when unset) and end message ids of an OPEN
	// episode. Returns ErrStatusConflict if the episode is no longer OPEN.
	ExtendEpisode(ctx context.Context, id string, messageID int64) (*Episode, error)

	// TransitionEpisode moves an episode from one status to another as a
	// compare-and-set. A non-nil summary is stored with the transition;
	// transitions into CLOSED or FAILED stamp ClosedAt when unset.
	TransitionEpisode(ctx context.Context, id string, from, to EpisodeStatus, summary *string) (*Episode, error)
}

// ConversationStore persists the running summary and bookmark.
type ConversationStore interface {
	// GetSummary returns the conversation summary. A conversation that was
	// never summarized yields a Summary with nil Text and bookmark 0.
	GetSummary(ctx context.Context, conversationID string) (*Summary, error)

	// AdvanceSummary writes text and newBookmark in one atomic step, only
	// if the stored bookmark still equals expected.
	AdvanceSummary(ctx context.Context, conversationID string, expected int64, text string, newBookmark int64) error

	// PendingSummaries lists conversations holding more than rawBuffer
	// messages past their bookmark.
	PendingSummaries(ctx context.Context, rawBuffer int) ([]string, error)
}

// Driver is the full relational storage backend.
type Driver interface {
	MessageStore
	EpisodeStore
	ConversationStore
	artifact.Store

	// Close closes the store and releases any resources.
	Close() error
}
