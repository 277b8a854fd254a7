// Package episode groups a session's messages into bounded episodes.
//
// A session has at most one OPEN episode. Messages extend it until it spans
// CloseThreshold messages, at which point it is CLOSED and a finalization
// task is queued. Finalization moves the episode through PROCESSING to
// CLOSED with a summary, or to FAILED; a failed episode is kept and can be
// claimed again.
package episode

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/sensei/pkg/queue"
	"github.com/papercomputeco/sensei/pkg/storage"
	"github.com/papercomputeco/sensei/pkg/utils"
)

// DefaultCloseThreshold is the episode width, in messages, that closes it.
const DefaultCloseThreshold = 10

// Finalization task kwargs.
const (
	KwargEpisodeID = "episode_id"
	KwargSessionID = "session_id"
	KwargStartID   = "start_message_id"
	KwargEndID     = "end_message_id"
	KwargUserID    = "user_id"
)

// AddOption tunes one AddMessageToEpisode call.
type AddOption func(*addOptions)

type addOptions struct {
	userID string
}

// WithUserID records the learner who owns the session on the finalization
// task, so the episode summary lands in that learner's memory.
func WithUserID(userID string) AddOption {
	return func(o *addOptions) { o.userID = userID }
}

type Config struct {
	Store storage.EpisodeStore

	// Queue receives episode.finalize tasks. Nil disables finalization.
	Queue queue.Queue

	CloseThreshold int
	Logger         *zap.Logger
}

// Manager implements the episode lifecycle over an EpisodeStore.
type Manager struct {
	store     storage.EpisodeStore
	queue     queue.Queue
	threshold int64
	logger    *zap.Logger

	sessions utils.KeyedMutex

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy
}

func New(c Config) (*Manager, error) {
	if c.Store == nil {
		return nil, errors.New("episode manager requires a store")
	}
	threshold := c.CloseThreshold
	if threshold <= 0 {
		threshold = DefaultCloseThreshold
	}
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:     c.Store,
		queue:     c.Queue,
		threshold: int64(threshold),
		logger:    logger,
		entropy:   ulid.Monotonic(rand.Reader, 0),
	}, nil
}

func (m *Manager) newID() string {
	m.entropyMu.Lock()
	defer m.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), m.entropy).String()
}

// GetOrCreateOpenEpisode returns the session's OPEN episode, creating one
// when there is none. Concurrent callers observe the same episode.
func (m *Manager) GetOrCreateOpenEpisode(ctx context.Context, sessionID string) (*storage.Episode, error) {
	if sessionID == "" {
		return nil, ErrEmptySession
	}
	unlock := m.sessions.Lock(sessionID)
	defer unlock()
	return m.getOrCreate(ctx, sessionID)
}

func (m *Manager) getOrCreate(ctx context.Context, sessionID string) (*storage.Episode, error) {
	ep, err := m.store.GetOpenEpisode(ctx, sessionID)
	if err == nil {
		return ep, nil
	}
	if !storage.IsNotFound(err) {
		return nil, fmt.Errorf("getting open episode: %w", err)
	}

	ep = &storage.Episode{ID: m.newID(), SessionID: sessionID}
	err = m.store.CreateEpisode(ctx, ep)
	switch {
	case err == nil:
		m.logger.Debug("opened episode", zap.String("session_id", sessionID), zap.String("episode_id", ep.ID))
		return ep, nil
	case errors.Is(err, storage.ErrOpenEpisodeExists):
		// another process won the race
		ep, err = m.store.GetOpenEpisode(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("re-reading open episode: %w", err)
		}
		return ep, nil
	default:
		return nil, fmt.Errorf("creating episode: %w", err)
	}
}

// AddMessageToEpisode attaches messageID to the session's OPEN episode. When
// the episode reaches the close threshold it is closed and a finalization
// task is enqueued. The returned episode reflects the state after the call.
// A failed enqueue is reported as an error alongside the closed episode.
func (m *Manager) AddMessageToEpisode(ctx context.Context, sessionID string, messageID int64, opts ...AddOption) (*storage.Episode, error) {
	if sessionID == "" {
		return nil, ErrEmptySession
	}
	var o addOptions
	for _, opt := range opts {
		opt(&o)
	}
	unlock := m.sessions.Lock(sessionID)
	defer unlock()

	var (
		ep  *storage.Episode
		err error
	)
	// an episode closed by another process between read and extend is
	// replaced once
	for attempt := 0; attempt < 2; attempt++ {
		ep, err = m.getOrCreate(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		ep, err = m.store.ExtendEpisode(ctx, ep.ID, messageID)
		if !errors.Is(err, storage.ErrStatusConflict) {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("extending episode: %w", err)
	}

	if !m.ShouldCloseEpisode(ep) {
		return ep, nil
	}

	closed, err := m.CloseEpisode(ctx, ep.ID)
	if err != nil {
		if errors.Is(err, storage.ErrStatusConflict) {
			// closed elsewhere; that closer owns finalization
			return ep, nil
		}
		return nil, err
	}

	if err := m.enqueueFinalize(ctx, closed, o.userID); err != nil {
		return closed, err
	}
	return closed, nil
}

func (m *Manager) enqueueFinalize(ctx context.Context, ep *storage.Episode, userID string) error {
	if m.queue == nil {
		return nil
	}
	kwargs := map[string]any{
		KwargEpisodeID: ep.ID,
		KwargSessionID: ep.SessionID,
		KwargStartID:   ep.StartMessageID,
		KwargEndID:     ep.EndMessageID,
	}
	if userID != "" {
		kwargs[KwargUserID] = userID
	}
	err := m.queue.Enqueue(ctx, queue.TaskFinalizeEpisode, kwargs)
	if err != nil {
		m.logger.Warn("could not enqueue episode finalization",
			zap.String("episode_id", ep.ID), zap.Error(err))
		return fmt.Errorf("enqueueing finalization of %s: %w", ep.ID, err)
	}
	return nil
}

// ShouldCloseEpisode reports whether ep spans at least the close threshold.
func (m *Manager) ShouldCloseEpisode(ep *storage.Episode) bool {
	return ep != nil && ep.MessageCount() >= m.threshold
}

// CloseEpisode moves an OPEN episode to CLOSED.
func (m *Manager) CloseEpisode(ctx context.Context, episodeID string) (*storage.Episode, error) {
	ep, err := m.store.TransitionEpisode(ctx, episodeID, storage.EpisodeOpen, storage.EpisodeClosed, nil)
	if err != nil {
		return nil, fmt.Errorf("closing episode %s: %w", episodeID, err)
	}
	m.logger.Info("closed episode",
		zap.String("episode_id", ep.ID),
		zap.String("session_id", ep.SessionID),
		zap.Int64("messages", ep.MessageCount()),
	)
	return ep, nil
}

// MarkProcessing claims a closed episode for finalization. A redelivered
// task may reclaim an episode left PROCESSING or FAILED. An episode that
// already carries its summary returns ErrAlreadyFinalized.
func (m *Manager) MarkProcessing(ctx context.Context, episodeID string) (*storage.Episode, error) {
	current, err := m.store.GetEpisode(ctx, episodeID)
	if err != nil {
		return nil, fmt.Errorf("getting episode %s: %w", episodeID, err)
	}

	switch current.Status {
	case storage.EpisodeProcessing:
		return current, nil
	case storage.EpisodeClosed, storage.EpisodeFailed:
		if current.Summary != nil {
			return nil, ErrAlreadyFinalized
		}
	default:
		return nil, fmt.Errorf("claiming episode %s in status %s: %w", episodeID, current.Status, storage.ErrStatusConflict)
	}

	ep, err := m.store.TransitionEpisode(ctx, episodeID, current.Status, storage.EpisodeProcessing, nil)
	if err == nil {
		return ep, nil
	}
	if !errors.Is(err, storage.ErrStatusConflict) {
		return nil, fmt.Errorf("claiming episode %s: %w", episodeID, err)
	}

	// Lost the race to another consumer; report what it left behind.
	after, err := m.store.GetEpisode(ctx, episodeID)
	if err != nil {
		return nil, fmt.Errorf("getting episode %s: %w", episodeID, err)
	}
	if after.Summary != nil {
		return nil, ErrAlreadyFinalized
	}
	if after.Status == storage.EpisodeProcessing {
		return after, nil
	}
	return nil, fmt.Errorf("claiming episode %s in status %s: %w", episodeID, after.Status, storage.ErrStatusConflict)
}

// Complete stores the episode summary and moves it back to CLOSED.
func (m *Manager) Complete(ctx context.Context, episodeID, summary string) (*storage.Episode, error) {
	ep, err := m.store.TransitionEpisode(ctx, episodeID, storage.EpisodeProcessing, storage.EpisodeClosed, &summary)
	if err != nil {
		return nil, fmt.Errorf("completing episode %s: %w", episodeID, err)
	}
	return ep, nil
}

// MarkFailed records a failed finalization. The episode is kept.
func (m *Manager) MarkFailed(ctx context.Context, episodeID string) (*storage.Episode, error) {
	ep, err := m.store.TransitionEpisode(ctx, episodeID, storage.EpisodeProcessing, storage.EpisodeFailed, nil)
	if err != nil {
		return nil, fmt.Errorf("failing episode %s: %w", episodeID, err)
	}
	m.logger.Warn("episode finalization failed", zap.String("episode_id", episodeID))
	return ep, nil
}
