package raft

// Storage persists hard state and log entries.
// All methods must be safe for concurrent use.
type Storage interface {
	// Load restores the full persistent state on startup.
	Load() (*PersistentState, error)

	// SaveHardState durably writes term, vote, committed index, and config.
	SaveHardState(state HardState) error

	// AppendLog appends new entries to the end of the stored log.
	AppendLog(entries []LogEntry) error

	// TruncateLog keeps the first keepN entries of the stored log and discards
	// the rest. Used when a follower detects a conflicting suffix.
	TruncateLog(keepN int64) error
}

// PersistentState is returned by Storage.Load.
type PersistentState struct {
	HardState

	Log []LogEntry `json:"log"`
}
