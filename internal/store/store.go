package store

// Store defines the interface for session snapshot persistence.
// Implementations must be thread-safe and handle concurrent access gracefully.
//
// Error handling conventions:
//   - Return nil error on success
//   - Return ErrNotFound if the snapshot doesn't exist (for Load/Delete)
//   - Return descriptive errors for I/O, serialization, or validation failures
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveSnapshot atomically saves a session snapshot.
	// If a snapshot already exists for this session, it is overwritten.
	// The implementation should use atomic write strategies (e.g., temp file
	// + rename) to prevent corruption in case of failures.
	SaveSnapshot(snapshot *Snapshot) error

	// LoadSnapshot retrieves the snapshot for the given session.
	// Returns ErrNotFound if no snapshot exists for this sessionID.
	// Returns an error if the snapshot exists but cannot be read or
	// deserialized.
	LoadSnapshot(sessionID string) (*Snapshot, error)

	// ListSnapshots returns metadata for all available snapshots.
	// The returned slice may be empty if no snapshots exist.
	// Returns an error if the sessions directory cannot be scanned.
	ListSnapshots() ([]SnapshotInfo, error)

	// DeleteSnapshot removes the snapshot and all associated artifacts
	// for the given session, including any tuner state files stored in
	// the session directory.
	//
	// Returns ErrNotFound if no snapshot exists for this sessionID.
	DeleteSnapshot(sessionID string) error

	// SessionDir returns the directory holding the session's artifacts,
	// creating it if necessary. Tuners write their own state files here
	// when the session checkpoints.
	SessionDir(sessionID string) (string, error)
}

// ErrNotFound is returned when a requested snapshot does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing snapshot error.
type NotFoundError struct {
	SessionID string
}

func (e *NotFoundError) Error() string {
	if e.SessionID != "" {
		return "snapshot not found: " + e.SessionID
	}
	return "snapshot not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
