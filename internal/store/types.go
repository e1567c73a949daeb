package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// SchemaVersion is written into every snapshot and checked on load.
// Bump it when the snapshot layout changes incompatibly.
const SchemaVersion = "1"

// Trial status values recorded in the session ledger.
const (
	StatusIssued    = "issued"    // parameters granted, no result yet
	StatusCompleted = "completed" // final result received
	StatusFailed    = "failed"    // result received but rejected or unusable
	StatusAbandoned = "abandoned" // trial ended without a final result
)

// TrialEntry is one row of the session ledger.
type TrialEntry struct {
	// ParameterID identifies the trial within its session.
	ParameterID int `json:"parameterId"`

	// Params holds the hyperparameter assignment evaluated by the trial.
	Params map[string]any `json:"params,omitempty"`

	// Status is one of the Status* constants.
	Status string `json:"status"`

	// Customized marks assignments supplied by the user rather than the tuner.
	Customized bool `json:"customized,omitempty"`

	// Value is the raw reported result, kept verbatim for export.
	Value any `json:"value,omitempty"`

	// Reward is the scalar extracted from Value. Only meaningful for
	// completed trials.
	Reward float64 `json:"reward,omitempty"`
}

// Snapshot represents a saved session state that can be resumed later.
// All fields are serialized to JSON for persistence.
//
// State Handling:
//
// The snapshot saves the session envelope: the search space, the trial
// ledger, and the parameter ID counter. It does NOT embed algorithm
// internals (enumeration cursors, RNG positions, populations). Each
// tuner writes its own state file into the same session directory when
// the session checkpoints, and reads it back on resume.
//
// RESUME ORDER:
//  1. The search space from the snapshot is applied to a fresh tuner.
//  2. The tuner loads its own state file from the session directory.
//  3. The session ledger and counter are restored from the snapshot.
//
// A tuner that saves no state file starts fresh after step 1, which is
// the documented behavior for tuners that opt out of checkpointing.
type Snapshot struct {
	// SchemaVersion records the snapshot layout version.
	SchemaVersion string `json:"schemaVersion"`

	// SessionID is the unique identifier for this tuning session.
	SessionID string `json:"sessionId"`

	// TunerName is the registered name of the algorithm driving the session.
	TunerName string `json:"tuner"`

	// AcceptCustomized records whether user-supplied assignments are fed
	// to the tuner. Fixed at session construction.
	AcceptCustomized bool `json:"acceptCustomized"`

	// Space is the search space in wire form, empty before the first update.
	Space json.RawMessage `json:"searchSpace,omitempty"`

	// NextID is the next parameter ID the session will issue.
	NextID int `json:"nextParameterId"`

	// Exhausted is set once the tuner has reported that no further
	// assignments exist for the current space.
	Exhausted bool `json:"exhausted,omitempty"`

	// Trials is the ledger of every trial the session has touched.
	Trials []TrialEntry `json:"trials"`

	// CreatedAt records when the session started.
	CreatedAt time.Time `json:"createdAt"`

	// UpdatedAt records when this snapshot was written.
	UpdatedAt time.Time `json:"updatedAt"`
}

// SnapshotInfo contains metadata about a snapshot without the full ledger.
// Used for listing sessions efficiently.
type SnapshotInfo struct {
	SessionID string    `json:"sessionId"`
	TunerName string    `json:"tuner"`
	Trials    int       `json:"trials"`
	Completed int       `json:"completed"`
	Exhausted bool      `json:"exhausted"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewSnapshot creates an empty snapshot for a fresh session.
func NewSnapshot(sessionID, tunerName string, acceptCustomized bool) *Snapshot {
	now := time.Now()
	return &Snapshot{
		SchemaVersion:    SchemaVersion,
		SessionID:        sessionID,
		TunerName:        tunerName,
		AcceptCustomized: acceptCustomized,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// ToInfo converts a full Snapshot to SnapshotInfo (metadata only).
func (s *Snapshot) ToInfo() SnapshotInfo {
	completed := 0
	for _, trial := range s.Trials {
		if trial.Status == StatusCompleted {
			completed++
		}
	}
	return SnapshotInfo{
		SessionID: s.SessionID,
		TunerName: s.TunerName,
		Trials:    len(s.Trials),
		Completed: completed,
		Exhausted: s.Exhausted,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

// Validate checks if the snapshot has valid data.
// Returns an error if any required field is missing or inconsistent.
func (s *Snapshot) Validate() error {
	if s.SchemaVersion == "" {
		return &ValidationError{Field: "SchemaVersion", Reason: "cannot be empty"}
	}
	if s.SessionID == "" {
		return &ValidationError{Field: "SessionID", Reason: "cannot be empty"}
	}
	if s.TunerName == "" {
		return &ValidationError{Field: "TunerName", Reason: "cannot be empty"}
	}
	if s.NextID < 0 {
		return &ValidationError{Field: "NextID", Reason: "cannot be negative"}
	}
	if s.CreatedAt.IsZero() {
		return &ValidationError{Field: "CreatedAt", Reason: "cannot be zero"}
	}
	if s.UpdatedAt.IsZero() {
		return &ValidationError{Field: "UpdatedAt", Reason: "cannot be zero"}
	}

	seen := make(map[int]bool, len(s.Trials))
	for i, trial := range s.Trials {
		field := fmt.Sprintf("Trials[%d]", i)
		if trial.ParameterID < 0 {
			return &ValidationError{Field: field + ".ParameterID", Reason: "cannot be negative"}
		}
		if seen[trial.ParameterID] {
			return &ValidationError{Field: field + ".ParameterID", Reason: "duplicate parameter ID"}
		}
		seen[trial.ParameterID] = true

		switch trial.Status {
		case StatusIssued, StatusCompleted, StatusFailed, StatusAbandoned:
		default:
			return &ValidationError{Field: field + ".Status", Reason: "unknown status " + trial.Status}
		}
		if trial.Status == StatusIssued && trial.Params == nil {
			return &ValidationError{Field: field + ".Params", Reason: "issued trial without parameters"}
		}
	}
	return nil
}

// ValidationError represents a snapshot validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// IsCompatible checks if this snapshot can be resumed by the current
// build with the given tuner. An empty tunerName accepts whatever tuner
// the snapshot was written with.
func (s *Snapshot) IsCompatible(tunerName string) error {
	if s.SchemaVersion != SchemaVersion {
		return &CompatibilityError{
			Field:    "SchemaVersion",
			Expected: SchemaVersion,
			Actual:   s.SchemaVersion,
		}
	}
	if tunerName != "" && s.TunerName != tunerName {
		return &CompatibilityError{
			Field:    "Tuner",
			Expected: s.TunerName,
			Actual:   tunerName,
		}
	}
	return nil
}

// CompatibilityError represents a snapshot compatibility error.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
