package resource

import "errors"

// ErrClosed is returned by drivers used after Close.
var ErrClosed = errors.New("resource index closed")
