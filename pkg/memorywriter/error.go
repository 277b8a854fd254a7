package memorywriter

import "errors"

var (
	// ErrMissingKwarg is returned when a task lacks a required argument.
	ErrMissingKwarg = errors.New("task is missing a required argument")

	// ErrNoTriples is returned when extraction produced nothing usable.
	ErrNoTriples = errors.New("no triples extracted")
)
