// Package tuner defines the capability contract every search algorithm
// implements, the embeddable defaults that make partial implementations
// valid, and the batch adapter that turns single-assignment generation into
// multi-assignment generation with partial-result semantics.
package tuner

import (
	"log/slog"

	"github.com/tunelab/hypertune/internal/searchspace"
)

// Params is one parameter assignment: dimension name to value.
// Values are JSON-representable scalars.
type Params map[string]any

// Result carries one completed trial's outcome back to the algorithm.
type Result struct {
	// ParameterID correlates the result with the generation request that
	// produced the assignment. Issued by the caller, never by the tuner.
	ParameterID int `json:"parameterId"`

	// Params is the assignment the trial ran with. For algorithm-generated
	// trials this must match what GenerateParameters returned for ParameterID.
	Params Params `json:"parameters"`

	// Value is the reported outcome: a bare number, or a structured record
	// whose "default" entry is the scalar reward.
	Value any `json:"value"`

	// Customized marks trials whose parameters were supplied by a human
	// rather than generated by the algorithm.
	Customized bool `json:"customized,omitempty"`
}

// TrialRecord is one historical observation used to warm-start a tuner.
type TrialRecord struct {
	Parameter Params `json:"parameter"`
	Value     any    `json:"value"`
}

// Tuner is the capability set a search algorithm exposes to its caller.
//
// UpdateSearchSpace, GenerateParameters, and ReceiveTrialResult are required:
// the Base defaults fail with UnimplementedError at first use, so a type that
// forgets one still constructs but cannot be driven. TrialEnd, ImportData,
// SaveCheckpoint, and LoadCheckpoint are optional with documented no-op
// defaults.
//
// Implementations are not required to be safe for concurrent use; callers
// serialize operations (see session.Session). Model mutation is monotonic:
// a received result cannot be retracted except by restoring a checkpoint.
type Tuner interface {
	// Name returns the algorithm's registry name.
	Name() string

	// UpdateSearchSpace adopts the space as authoritative for all future
	// generation, or rejects it with a ValidationError naming the malformed
	// dimension. May be called more than once; no merging, the newest space
	// wins. Whether model knowledge survives a space change is
	// algorithm-specific and documented per implementation.
	UpdateSearchSpace(space *searchspace.Space) error

	// GenerateParameters returns the assignment for the given parameter id,
	// or ErrNoMoreTrials when the algorithm has nothing further to offer
	// under the current space. Any other failure is an internal fault and
	// must never be folded into ErrNoMoreTrials.
	GenerateParameters(id int) (Params, error)

	// ReceiveTrialResult feeds one completed trial's outcome into the model.
	ReceiveTrialResult(res Result) error

	// TrialEnd is an advisory lifecycle notice: the trial for id finished,
	// successfully or not, whether or not a result was ever received. It must
	// tolerate ids it has never seen.
	TrialEnd(id int, success bool)

	// ImportData seeds the model with historical observations. An empty
	// slice is not an error.
	ImportData(records []TrialRecord) error

	// SaveCheckpoint persists algorithm state into dir; LoadCheckpoint
	// restores it. The directory is supplied by the caller. The defaults
	// ignore checkpointing, which is valid: callers must not assume these
	// change observable state unless the implementation documents it.
	SaveCheckpoint(dir string) error
	LoadCheckpoint(dir string) error
}

// Base provides the default behavior for every Tuner operation. Concrete
// algorithms embed it and override what they support.
type Base struct{}

// Name identifies the algorithm; implementations override it.
func (Base) Name() string { return "base" }

// UpdateSearchSpace must be overridden.
func (Base) UpdateSearchSpace(space *searchspace.Space) error {
	return &UnimplementedError{Op: "UpdateSearchSpace"}
}

// GenerateParameters must be overridden (directly or via MultiGenerator).
func (Base) GenerateParameters(id int) (Params, error) {
	return nil, &UnimplementedError{Op: "GenerateParameters"}
}

// ReceiveTrialResult must be overridden.
func (Base) ReceiveTrialResult(res Result) error {
	return &UnimplementedError{Op: "ReceiveTrialResult"}
}

// TrialEnd does nothing by default.
func (Base) TrialEnd(id int, success bool) {}

// ImportData does nothing by default.
func (Base) ImportData(records []TrialRecord) error { return nil }

// SaveCheckpoint is ignored by default.
func (Base) SaveCheckpoint(dir string) error {
	slog.Info("Save checkpoint ignored by tuner", "path", dir)
	return nil
}

// LoadCheckpoint is ignored by default.
func (Base) LoadCheckpoint(dir string) error {
	slog.Info("Load checkpoint ignored by tuner", "path", dir)
	return nil
}

// Clone returns a deep-enough copy of the assignment for ledger bookkeeping.
// Values are scalars, so copying the map is sufficient.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
