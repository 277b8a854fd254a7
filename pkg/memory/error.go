package memory

import "errors"

// ErrNotConfigured is returned when memory operations are attempted
// but no memory store has been configured.
var ErrNotConfigured = errors.New("memory not configured")

// ErrInvalidTriple is returned for triples missing a source, relation or target.
var ErrInvalidTriple = errors.New("invalid triple")
