package boulder

import "boulder/internal/engine"

// Sentinel errors a caller can match against with errors.Is.
var (
	// ErrNotFound is returned by Get when the key has no live value.
	ErrNotFound = engine.ErrNotFound
	// ErrClosed is returned by any operation on a DB after Close.
	ErrClosed = engine.ErrShuttingDown
	// ErrLockFailed is returned by Open when another process already holds
	// the directory's lock.
	ErrLockFailed = engine.ErrLockFailed
	// ErrInvalidArgument is returned for a malformed request, e.g. an empty
	// key.
	ErrInvalidArgument = engine.ErrInvalidArgument
)
