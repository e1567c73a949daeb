package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// FSStore implements the Store interface using filesystem-based persistence.
// Snapshots are stored in a directory structure: <baseDir>/sessions/<sessionID>/
//
// Thread-safety: This implementation uses atomic file operations (rename)
// and does not require locks. Multiple goroutines can safely call methods
// concurrently.
type FSStore struct {
	baseDir string // Root directory for all session data (e.g., "./data")
}

// NewFSStore creates a new filesystem-based store.
// The baseDir will be created if it doesn't exist.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FSStore{
		baseDir: baseDir,
	}, nil
}

// sessionDir returns the directory path for a given session ID.
func (fs *FSStore) sessionDir(sessionID string) string {
	return filepath.Join(fs.baseDir, "sessions", sessionID)
}

// snapshotPath returns the path to the snapshot.json file for a session.
func (fs *FSStore) snapshotPath(sessionID string) string {
	return filepath.Join(fs.sessionDir(sessionID), "snapshot.json")
}

// SaveSnapshot atomically saves a session snapshot.
// Uses temp file + rename pattern to ensure atomicity.
func (fs *FSStore) SaveSnapshot(snapshot *Snapshot) error {
	if snapshot == nil {
		return fmt.Errorf("snapshot cannot be nil")
	}
	if err := snapshot.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid snapshot: %w", err)
	}

	dir := fs.sessionDir(snapshot.SessionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	path := fs.snapshotPath(snapshot.SessionID)
	if err := WriteJSON(path, snapshot); err != nil {
		return err
	}

	slog.Debug("Snapshot saved", "sessionID", snapshot.SessionID, "path", path)
	return nil
}

// LoadSnapshot retrieves the snapshot for the given session.
func (fs *FSStore) LoadSnapshot(sessionID string) (*Snapshot, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("sessionID cannot be empty")
	}

	path := fs.snapshotPath(sessionID)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, &NotFoundError{SessionID: sessionID}
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat snapshot file: %w", err)
	}

	var snapshot Snapshot
	if err := ReadJSON(path, &snapshot); err != nil {
		return nil, err
	}

	slog.Debug("Snapshot loaded", "sessionID", sessionID, "path", path)
	return &snapshot, nil
}

// ListSnapshots returns metadata for all available snapshots.
func (fs *FSStore) ListSnapshots() ([]SnapshotInfo, error) {
	sessionsDir := filepath.Join(fs.baseDir, "sessions")

	if _, err := os.Stat(sessionsDir); os.IsNotExist(err) {
		// No sessions exist yet, return empty slice
		return []SnapshotInfo{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat sessions directory: %w", err)
	}

	entries, err := os.ReadDir(sessionsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	var infos []SnapshotInfo

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		sessionID := entry.Name()
		if _, err := os.Stat(fs.snapshotPath(sessionID)); os.IsNotExist(err) {
			continue // Skip directories without snapshot.json
		}

		snapshot, err := fs.LoadSnapshot(sessionID)
		if err != nil {
			slog.Warn("Failed to load snapshot for listing", "sessionID", sessionID, "error", err)
			continue // Skip corrupted snapshots
		}

		infos = append(infos, snapshot.ToInfo())
	}

	slog.Debug("Listed snapshots", "count", len(infos))
	return infos, nil
}

// DeleteSnapshot removes the snapshot and all associated artifacts.
func (fs *FSStore) DeleteSnapshot(sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("sessionID cannot be empty")
	}

	dir := fs.sessionDir(sessionID)

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return &NotFoundError{SessionID: sessionID}
	} else if err != nil {
		return fmt.Errorf("failed to stat session directory: %w", err)
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove session directory: %w", err)
	}

	slog.Debug("Snapshot deleted", "sessionID", sessionID, "path", dir)
	return nil
}

// SessionDir returns the session's artifact directory, creating it if needed.
func (fs *FSStore) SessionDir(sessionID string) (string, error) {
	if sessionID == "" {
		return "", fmt.Errorf("sessionID cannot be empty")
	}

	dir := fs.sessionDir(sessionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create session directory: %w", err)
	}
	return dir, nil
}

// WriteJSON atomically writes v as indented JSON to path.
// Uses temp file + rename so readers never observe a partial file.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize %s: %w", filepath.Base(path), err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		// Clean up temp file on failure
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename %s: %w", filepath.Base(path), err)
	}
	return nil
}

// ReadJSON reads the JSON file at path into v. A missing file surfaces
// as an error matching fs.ErrNotExist.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
