package store

import "errors"

var (
	// ErrConcurrencyConflict is returned by Append when the expected version
	// does not match the aggregate's current version. The caller reloads the
	// aggregate and retries; the conflicting write is never overwritten.
	ErrConcurrencyConflict = errors.New("concurrency conflict: expected version does not match current version")

	// ErrDuplicateEvent is returned when an append batch overlaps partially
	// with already-committed event ids. A batch whose ids are all committed
	// is treated as an idempotent no-op, not an error.
	ErrDuplicateEvent = errors.New("duplicate event id")

	// ErrReplayViolation signals that a previously committed event failed to
	// apply during replay. It is fatal: either the log is corrupt or an
	// apply function is non-deterministic.
	ErrReplayViolation = errors.New("replay determinism violation")

	// ErrEmptyAppend is returned when Append is called with no events.
	ErrEmptyAppend = errors.New("append requires at least one event")

	// ErrEventNotFound is returned by RedactEvent for an unknown
	// aggregate/sequence pair.
	ErrEventNotFound = errors.New("event not found")
)
