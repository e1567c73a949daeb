// Package random implements seeded random sampling over every dimension
// kind, with optional coverage tracking on finite spaces.
package random

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand"
	"path/filepath"

	"github.com/tunelab/hypertune/internal/searchspace"
	"github.com/tunelab/hypertune/internal/store"
	"github.com/tunelab/hypertune/internal/tuner"
)

const stateFile = "random.json"

// streamStep spreads draw ordinals across seed space.
const streamStep = 0x9E3779B9

// Tuner samples assignments independently from the search space.
//
// Every draw runs on a stream derived from the base seed and the draw
// ordinal, making generation a pure function of (seed, ordinal, space):
// a restored tuner continues the exact sequence, and a space update leaves
// the stream position intact. Rewards are ignored.
//
// With dedup enabled and an all-finite space, assignments are never repeated
// and ErrNoMoreTrials is signaled once the space is covered. Without dedup
// (or on spaces with a continuous dimension) generation never exhausts.
type Tuner struct {
	tuner.Base

	seed  int64
	draws int64
	dedup bool

	space  *searchspace.Space
	finite int // distinct assignments, -1 when not enumerable
	seen   map[string]bool
}

// New creates a random tuner. With dedup, finite spaces are sampled without
// replacement.
func New(seed int64, dedup bool) *Tuner {
	return &Tuner{
		seed:   seed,
		dedup:  dedup,
		finite: -1,
		seen:   make(map[string]bool),
	}
}

// Name returns the registry name.
func (t *Tuner) Name() string { return "random" }

// UpdateSearchSpace adopts the space. The draw stream keeps its position;
// coverage tracking restarts because it is defined per space.
func (t *Tuner) UpdateSearchSpace(space *searchspace.Space) error {
	if space == nil || space.Len() == 0 {
		return &searchspace.ValidationError{Reason: "search space is empty"}
	}

	t.space = space
	t.seen = make(map[string]bool)
	if size, ok := space.FiniteSize(); ok {
		t.finite = size
	} else {
		t.finite = -1
	}
	return nil
}

// GenerateParameters draws the next assignment.
func (t *Tuner) GenerateParameters(id int) (tuner.Params, error) {
	if t.space == nil {
		return nil, fmt.Errorf("no search space adopted")
	}

	if !t.dedup {
		params := t.sampleAt(t.draws)
		t.draws++
		return params, nil
	}

	if t.finite > 0 && len(t.seen) >= t.finite {
		return nil, tuner.ErrNoMoreTrials
	}

	// Rejection-sample until an uncovered assignment turns up. The coverage
	// check above guarantees one exists on finite spaces; continuous spaces
	// collide with probability zero.
	for {
		params := t.sampleAt(t.draws)
		t.draws++

		key, err := canonicalKey(params)
		if err != nil {
			return nil, err
		}
		if !t.seen[key] {
			t.seen[key] = true
			slog.Debug("Random assignment issued", "parameter_id", id, "draw", t.draws)
			return params, nil
		}
	}
}

// ReceiveTrialResult is accepted and ignored: random search does not steer.
func (t *Tuner) ReceiveTrialResult(res tuner.Result) error {
	reward, err := tuner.RewardOf(res.Value)
	if err == nil {
		slog.Debug("Trial result received", "parameter_id", res.ParameterID, "reward", reward)
	}
	return nil
}

// ImportData marks historical assignments as covered when dedup is on.
func (t *Tuner) ImportData(records []tuner.TrialRecord) error {
	if !t.dedup {
		return nil
	}
	for _, rec := range records {
		if rec.Parameter == nil {
			continue
		}
		key, err := canonicalKey(rec.Parameter)
		if err != nil {
			return fmt.Errorf("failed to import record: %w", err)
		}
		t.seen[key] = true
	}
	return nil
}

type state struct {
	Seed  int64    `json:"seed"`
	Draws int64    `json:"draws"`
	Seen  []string `json:"seen,omitempty"`
}

// SaveCheckpoint writes the seed, draw position, and coverage set into dir.
func (t *Tuner) SaveCheckpoint(dir string) error {
	st := state{Seed: t.seed, Draws: t.draws}
	for key := range t.seen {
		st.Seen = append(st.Seen, key)
	}
	return store.WriteJSON(filepath.Join(dir, stateFile), st)
}

// LoadCheckpoint restores the stream position and coverage set from dir.
// A missing state file leaves the tuner fresh.
func (t *Tuner) LoadCheckpoint(dir string) error {
	var st state
	err := store.ReadJSON(filepath.Join(dir, stateFile), &st)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	t.seed = st.Seed
	t.draws = st.Draws
	t.seen = make(map[string]bool, len(st.Seen))
	for _, key := range st.Seen {
		t.seen[key] = true
	}
	return nil
}

// sampleAt draws the assignment for a given ordinal on its own stream.
func (t *Tuner) sampleAt(n int64) tuner.Params {
	rng := rand.New(rand.NewSource(t.seed + n*streamStep))
	return t.space.Sample(rng)
}

func canonicalKey(params tuner.Params) (string, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to encode assignment: %w", err)
	}
	return string(data), nil
}
