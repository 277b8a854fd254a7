package llm

import "errors"

var (
	// ErrNoJSON is returned when a model reply contains no JSON object or array.
	ErrNoJSON = errors.New("no JSON in model reply")

	// ErrEmptyReply is returned when a provider answers without any content.
	ErrEmptyReply = errors.New("model returned no content")

	// ErrMissingAPIKey is returned when a hosted provider has no API key.
	ErrMissingAPIKey = errors.New("api key is required")
)
