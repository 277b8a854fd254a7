package storage

import "time"

// EpisodeStatus is the lifecycle state of an Episode.
type EpisodeStatus string

const (
	EpisodeOpen       EpisodeStatus = "OPEN"
	EpisodeProcessing EpisodeStatus = "PROCESSING"
	EpisodeClosed     EpisodeStatus = "CLOSED"
	EpisodeFailed     EpisodeStatus = "FAILED"
)

// Attachment is a titled reference carried alongside a message.
type Attachment struct {
	Type  string `json:"type"`
	Title string `json:"title"`
}

// Message is one turn utterance. IDs are assigned by the store and strictly
// increase in insertion order.
type Message struct {
	ID             int64        `json:"id"`
	ConversationID string       `json:"conversation_id"`
	Role           string       `json:"role"`
	Content        string       `json:"content"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Episode is a bounded span of a session's messages.
type Episode struct {
	ID             string        `json:"id"`
	SessionID      string        `json:"session_id"`
	Status         EpisodeStatus `json:"status"`
	StartMessageID int64         `json:"start_message_id"`
	EndMessageID   int64         `json:"end_message_id"`
	Summary        *string       `json:"summary,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	ClosedAt       *time.Time    `json:"closed_at,omitempty"`
}

// MessageCount is the inclusive width of the episode's message range.
// Zero when no message has been attached yet.
func (e *Episode) MessageCount() int64 {
	if e.StartMessageID == 0 {
		return 0
	}
	return e.EndMessageID - e.StartMessageID + 1
}

// Summary is the running conversation summary and its bookmark: the last
// message id already folded into Text.
type Summary struct {
	ConversationID          string     `json:"conversation_id"`
	Text                    *string    `json:"text,omitempty"`
	LastSummarizedMessageID int64      `json:"last_summarized_message_id"`
	UpdatedAt               *time.Time `json:"updated_at,omitempty"`
}
