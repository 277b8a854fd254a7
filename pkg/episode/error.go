package episode

import "errors"

var (
	// ErrAlreadyFinalized is returned by MarkProcessing when the episode
	// already carries its summary.
	ErrAlreadyFinalized = errors.New("episode already finalized")

	// ErrEmptySession is returned when a session id is blank.
	ErrEmptySession = errors.New("session id is required")
)
