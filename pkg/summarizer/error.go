package summarizer

import "errors"

// ErrNoConversation is returned when a conversation id is blank.
var ErrNoConversation = errors.New("conversation id is required")
