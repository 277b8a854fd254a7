// Package inmemory provides a map-backed storage.Driver for tests and
// single-process development.
package inmemory

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/sensei/pkg/artifact"
	"github.com/papercomputeco/sensei/pkg/storage"
)

// Driver implements storage.Driver using in-memory maps guarded by one lock.
type Driver struct {
	mu sync.RWMutex

	lastMessageID int64
	messages      map[string][]*storage.Message

	episodes map[string]*storage.Episode
	// open maps session id to the id of its OPEN episode.
	open map[string]string

	summaries map[string]*storage.Summary
	artifacts map[string]*artifact.Reference
}

// NewDriver creates a new in-memory driver.
func NewDriver() *Driver {
	return &Driver{
		messages:  make(map[string][]*storage.Message),
		episodes:  make(map[string]*storage.Episode),
		open:      make(map[string]string),
		summaries: make(map[string]*storage.Summary),
		artifacts: make(map[string]*artifact.Reference),
	}
}

func copyMessage(m *storage.Message) *storage.Message {
	c := *m
	c.Attachments = slices.Clone(m.Attachments)
	return &c
}

func copyEpisode(e *storage.Episode) *storage.Episode {
	c := *e
	if e.Summary != nil {
		s := *e.Summary
		c.Summary = &s
	}
	if e.ClosedAt != nil {
		t := *e.ClosedAt
		c.ClosedAt = &t
	}
	return &c
}

func copyArtifact(a *artifact.Reference) *artifact.Reference {
	c := *a
	c.Data = maps.Clone(a.Data)
	return &c
}

// AppendMessage stores m and assigns the next message ID.
func (d *Driver) AppendMessage(_ context.Context, m *storage.Message) (*storage.Message, error) {
	if m == nil {
		return nil, errors.New("cannot store nil message")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.lastMessageID++
	stored := copyMessage(m)
	stored.ID = d.lastMessageID
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	d.messages[m.ConversationID] = append(d.messages[m.ConversationID], stored)

	return copyMessage(stored), nil
}

// ListMessages returns every message of a conversation in ID order.
func (d *Driver) ListMessages(_ context.Context, conversationID string) ([]*storage.Message, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	msgs := d.messages[conversationID]
	out := make([]*storage.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, copyMessage(m))
	}
	return out, nil
}

// ListMessageRange returns the inclusive ID range of a conversation.
func (d *Driver) ListMessageRange(_ context.Context, conversationID string, startID, endID int64) ([]*storage.Message, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []*storage.Message
	for _, m := range d.messages[conversationID] {
		if m.ID >= startID && m.ID <= endID {
			out = append(out, copyMessage(m))
		}
	}
	return out, nil
}

// GetOpenEpisode returns the session's OPEN episode.
func (d *Driver) GetOpenEpisode(_ context.Context, sessionID string) (*storage.Episode, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.open[sessionID]
	if !ok {
		return nil, storage.NotFoundError{Kind: "open episode", ID: sessionID}
	}
	return copyEpisode(d.episodes[id]), nil
}

// CreateEpisode inserts an OPEN episode unless the session already has one.
func (d *Driver) CreateEpisode(_ context.Context, ep *storage.Episode) error {
	if ep == nil || ep.ID == "" || ep.SessionID == "" {
		return errors.New("episode requires an id and a session id")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.open[ep.SessionID]; ok {
		return storage.ErrOpenEpisodeExists
	}
	if _, ok := d.episodes[ep.ID]; ok {
		return errors.New("episode id already exists: " + ep.ID)
	}

	stored := copyEpisode(ep)
	stored.Status = storage.EpisodeOpen
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	d.episodes[stored.ID] = stored
	d.open[stored.SessionID] = stored.ID
	*ep = *copyEpisode(stored)
	return nil
}

// GetEpisode fetches an episode by ID.
func (d *Driver) GetEpisode(_ context.Context, id string) (*storage.Episode, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ep, ok := d.episodes[id]
	if !ok {
		return nil, storage.NotFoundError{Kind: "episode", ID: id}
	}
	return copyEpisode(ep), nil
}

// ExtendEpisode records messageID on an OPEN episode.
func (d *Driver) ExtendEpisode(_ context.Context, id string, messageID int64) (*storage.Episode, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ep, ok := d.episodes[id]
	if !ok {
		return nil, storage.NotFoundError{Kind: "episode", ID: id}
	}
	if ep.Status != storage.EpisodeOpen {
		return nil, storage.ErrStatusConflict
	}

	if ep.StartMessageID == 0 {
		ep.StartMessageID = messageID
	}
	if messageID > ep.EndMessageID {
		ep.EndMessageID = messageID
	}
	return copyEpisode(ep), nil
}

// TransitionEpisode performs a status compare-and-set.
func (d *Driver) TransitionEpisode(_ context.Context, id string, from, to storage.EpisodeStatus, summary *string) (*storage.Episode, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ep, ok := d.episodes[id]
	if !ok {
		return nil, storage.NotFoundError{Kind: "episode", ID: id}
	}
	if ep.Status != from {
		return nil, storage.ErrStatusConflict
	}

	ep.Status = to
	if summary != nil {
		s := *summary
		ep.Summary = &s
	}
	if (to == storage.EpisodeClosed || to == storage.EpisodeFailed) && ep.ClosedAt == nil {
		now := time.Now().UTC()
		ep.ClosedAt = &now
	}
	if from == storage.EpisodeOpen {
		delete(d.open, ep.SessionID)
	}
	return copyEpisode(ep), nil
}

// GetSummary returns the conversation summary, zero-valued when absent.
func (d *Driver) GetSummary(_ context.Context, conversationID string) (*storage.Summary, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, ok := d.summaries[conversationID]
	if !ok {
		return &storage.Summary{ConversationID: conversationID}, nil
	}
	c := *s
	return &c, nil
}

// AdvanceSummary is a compare-and-set on the bookmark.
func (d *Driver) AdvanceSummary(_ context.Context, conversationID string, expected int64, text string, newBookmark int64) error {
	if newBookmark < expected {
		return storage.ErrBookmarkRegression
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var current int64
	if s, ok := d.summaries[conversationID]; ok {
		current = s.LastSummarizedMessageID
	}
	if current != expected {
		return storage.ErrBookmarkConflict
	}

	now := time.Now().UTC()
	d.summaries[conversationID] = &storage.Summary{
		ConversationID:          conversationID,
		Text:                    &text,
		LastSummarizedMessageID: newBookmark,
		UpdatedAt:               &now,
	}
	return nil
}

// PendingSummaries lists conversations with more than rawBuffer messages
// past their bookmark.
func (d *Driver) PendingSummaries(_ context.Context, rawBuffer int) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []string
	for convID, msgs := range d.messages {
		var bookmark int64
		if s, ok := d.summaries[convID]; ok {
			bookmark = s.LastSummarizedMessageID
		}
		pending := 0
		for _, m := range msgs {
			if m.ID > bookmark {
				pending++
			}
		}
		if pending > rawBuffer {
			out = append(out, convID)
		}
	}
	sort.Strings(out)
	return out, nil
}

// CreateArtifact stores p with a fresh UUID.
func (d *Driver) CreateArtifact(_ context.Context, userID string, p artifact.Proposal) (*artifact.Reference, error) {
	ref := &artifact.Reference{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      p.Type,
		Title:     p.Title,
		Data:      maps.Clone(p.Data),
		CreatedAt: time.Now().UTC(),
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.artifacts[ref.ID] = ref
	return copyArtifact(ref), nil
}

// GetArtifact fetches an artifact by ID.
func (d *Driver) GetArtifact(_ context.Context, id string) (*artifact.Reference, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	a, ok := d.artifacts[id]
	if !ok {
		return nil, storage.NotFoundError{Kind: "artifact", ID: id}
	}
	return copyArtifact(a), nil
}

// RecentArtifacts returns the user's newest artifacts.
func (d *Driver) RecentArtifacts(_ context.Context, userID string, limit int) ([]*artifact.Reference, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []*artifact.Reference
	for _, a := range d.artifacts {
		if a.UserID == userID {
			out = append(out, copyArtifact(a))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}
