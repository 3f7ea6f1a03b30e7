package journal

import "time"

// Store is the storage-backend contract every concrete backend satisfies.
// It works purely in terms of the decoded Entry — byte-exact encoding
// (record.go) is shared infrastructure used by every backend, not
// something each one reinvents.
type Store interface {
	// Append persists a new entry (always created in StatePending by the
	// caller) and returns nothing further to do; the entry's ID is
	// already assigned by the journal layer.
	Append(e *Entry) error

	// UpdateState applies a state transition for an existing id. The
	// backend is responsible for crash-atomicity of the update; it does
	// not need to re-validate the transition, since Journal already has.
	UpdateState(id string, state State, attempts uint32) error

	// Get returns the most recently persisted version of entry id.
	Get(id string) (*Entry, bool, error)

	// ScanRecoverable calls fn once for every entry whose state is not
	// Completed, in no particular order. fn returning false stops the
	// scan early.
	ScanRecoverable(fn func(*Entry) bool) error

	// Rotate retires closed segments/pages; the store must keep accepting
	// Append calls while rotation runs.
	Rotate() error

	// Compact discards Completed entries older than the given time.
	// Failed entries are kept, whatever their attempt count.
	Compact(olderThan time.Time) error

	Sync() error
	Close() error
}
