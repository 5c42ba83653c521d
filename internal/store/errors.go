package store

import "errors"

var (
	// ErrStorage wraps every read or write failure so callers can treat
	// persistence problems uniformly (log and carry on).
	ErrStorage = errors.New("storage failure")

	// ErrClosed is returned by operations submitted after Close.
	ErrClosed = errors.New("store is closed")

	// ErrWriteTimeout is returned when the writer goroutine cannot accept
	// an operation in time.
	ErrWriteTimeout = errors.New("store write timed out")
)
