package storage

import "errors"

var (
	// ErrOpenEpisodeExists is returned by CreateEpisode when the session
	// already has an OPEN episode.
	ErrOpenEpisodeExists = errors.New("session already has an open episode")

	// ErrStatusConflict is returned by TransitionEpisode when the episode is
	// not in the expected source status.
	ErrStatusConflict = errors.New("episode status changed concurrently")

	// ErrBookmarkConflict is returned by AdvanceSummary when the stored
	// bookmark no longer matches the expected value. Nothing is written.
	ErrBookmarkConflict = errors.New("summary bookmark changed concurrently")

	// ErrBookmarkRegression is returned by AdvanceSummary when the new
	// bookmark would move backwards.
	ErrBookmarkRegression = errors.New("summary bookmark cannot move backwards")
)

// NotFoundError is returned when a record doesn't exist in the store.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	kind := e.Kind
	if kind == "" {
		kind = "record"
	}
	if e.ID == "" {
		return kind + " not found"
	}
	return kind + " not found: " + e.ID
}

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}
