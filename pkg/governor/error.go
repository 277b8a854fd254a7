package governor

import "errors"

var (
	// ErrGhostID marks an artifact identifier that never came from the
	// artifact store.
	ErrGhostID = errors.New("artifact carries an unresolved id")

	// ErrNoReference is logged when the store reports success without
	// returning the created artifact.
	ErrNoReference = errors.New("artifact store returned no reference")
)
