package pubsub

import "errors"

// ErrClosed is returned when operating on a closed pub/sub instance
var ErrClosed = errors.New("pubsub is closed")
