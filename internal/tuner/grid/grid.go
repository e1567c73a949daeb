// Package grid implements deterministic exhaustive search: the cartesian
// product of every enumerable dimension, visited in a fixed order.
package grid

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/tunelab/hypertune/internal/searchspace"
	"github.com/tunelab/hypertune/internal/store"
	"github.com/tunelab/hypertune/internal/tuner"
)

const stateFile = "grid.json"

// Tuner enumerates a finite search space in deterministic order and signals
// exhaustion once every distinct assignment has been issued.
//
// Adopting a new search space restarts the enumeration: the cursor and the
// record of already-covered assignments are discarded. Not safe for
// concurrent use; callers serialize operations.
type Tuner struct {
	tuner.Base

	names  []string
	values [][]any // aligned with names
	total  int
	cursor int
	seen   map[string]bool // canonical assignment -> already issued or imported
}

// New creates a grid tuner with no search space adopted yet.
func New() *Tuner {
	return &Tuner{seen: make(map[string]bool)}
}

// Name returns the registry name.
func (t *Tuner) Name() string { return "grid" }

// UpdateSearchSpace adopts a space where every dimension can be enumerated
// (choice, randint, quniform). Continuous dimensions are rejected with a
// ValidationError and the previous enumeration stays in effect.
func (t *Tuner) UpdateSearchSpace(space *searchspace.Space) error {
	if space == nil || space.Len() == 0 {
		return &searchspace.ValidationError{Reason: "search space is empty"}
	}

	names := space.Names()
	values := make([][]any, len(names))
	total := 1
	for i, name := range names {
		d, _ := space.Get(name)
		vals, ok := d.Values()
		if !ok {
			return &searchspace.ValidationError{
				Dimension: name,
				Reason:    fmt.Sprintf("kind %s cannot be enumerated for grid search", d.Kind),
			}
		}
		values[i] = vals
		total *= len(vals)
	}

	t.names = names
	t.values = values
	t.total = total
	t.cursor = 0
	t.seen = make(map[string]bool)

	slog.Info("Grid enumeration prepared", "dimensions", len(names), "assignments", total)
	return nil
}

// GenerateParameters returns the next unvisited cell of the grid, or
// ErrNoMoreTrials once the product is exhausted.
func (t *Tuner) GenerateParameters(id int) (tuner.Params, error) {
	if t.total == 0 {
		return nil, fmt.Errorf("no search space adopted")
	}

	for t.cursor < t.total {
		params := t.assignmentAt(t.cursor)
		t.cursor++

		key, err := canonicalKey(params)
		if err != nil {
			return nil, err
		}
		if t.seen[key] {
			continue // covered by import or an earlier result
		}
		t.seen[key] = true

		slog.Debug("Grid assignment issued", "parameter_id", id, "cursor", t.cursor, "total", t.total)
		return params, nil
	}

	return nil, tuner.ErrNoMoreTrials
}

// ReceiveTrialResult records coverage only: enumeration does not steer by
// reward, but an assignment that already has an outcome is never reissued.
func (t *Tuner) ReceiveTrialResult(res tuner.Result) error {
	if res.Params == nil {
		return nil
	}
	key, err := canonicalKey(res.Params)
	if err != nil {
		return err
	}
	t.seen[key] = true
	return nil
}

// ImportData marks historical assignments as covered so the enumeration
// skips them.
func (t *Tuner) ImportData(records []tuner.TrialRecord) error {
	marked := 0
	for _, rec := range records {
		if rec.Parameter == nil {
			continue
		}
		key, err := canonicalKey(rec.Parameter)
		if err != nil {
			return fmt.Errorf("failed to import record: %w", err)
		}
		if !t.seen[key] {
			t.seen[key] = true
			marked++
		}
	}
	if marked > 0 {
		slog.Info("Imported historical assignments", "count", marked)
	}
	return nil
}

type state struct {
	Cursor int      `json:"cursor"`
	Seen   []string `json:"seen,omitempty"`
}

// SaveCheckpoint writes the cursor and coverage set into dir.
func (t *Tuner) SaveCheckpoint(dir string) error {
	st := state{Cursor: t.cursor, Seen: make([]string, 0, len(t.seen))}
	for key := range t.seen {
		st.Seen = append(st.Seen, key)
	}
	sort.Strings(st.Seen)
	return store.WriteJSON(filepath.Join(dir, stateFile), st)
}

// LoadCheckpoint restores the cursor and coverage set from dir. A missing
// state file is not an error: the enumeration starts fresh.
func (t *Tuner) LoadCheckpoint(dir string) error {
	var st state
	err := store.ReadJSON(filepath.Join(dir, stateFile), &st)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	t.cursor = st.Cursor
	t.seen = make(map[string]bool, len(st.Seen))
	for _, key := range st.Seen {
		t.seen[key] = true
	}
	return nil
}

// assignmentAt decodes a cursor position into an assignment. The last
// dimension (in sorted name order) varies fastest.
func (t *Tuner) assignmentAt(i int) tuner.Params {
	params := make(tuner.Params, len(t.names))
	for k := len(t.names) - 1; k >= 0; k-- {
		n := len(t.values[k])
		params[t.names[k]] = t.values[k][i%n]
		i /= n
	}
	return params
}

// canonicalKey renders an assignment as JSON with sorted keys, giving a
// stable identity for the coverage set.
func canonicalKey(params tuner.Params) (string, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to encode assignment: %w", err)
	}
	return string(data), nil
}
