package watch

import "errors"

// ErrClosed is returned by Next after Close.
var ErrClosed = errors.New("subscription closed")
