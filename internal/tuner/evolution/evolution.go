// Package evolution implements a population-based ask/tell search: seed the
// population with random assignments, then mutate tournament-selected
// parents as results arrive.
package evolution

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand"
	"path/filepath"
	"sort"

	"github.com/tunelab/hypertune/internal/searchspace"
	"github.com/tunelab/hypertune/internal/store"
	"github.com/tunelab/hypertune/internal/tuner"
)

const stateFile = "evolution.json"

const streamStep = 0x9E3779B9

// Mode selects the direction rewards are optimized in.
type Mode string

const (
	Minimize Mode = "minimize"
	Maximize Mode = "maximize"
)

// DefaultPopulation is used when no population size is given.
const DefaultPopulation = 20

type individual struct {
	Params tuner.Params `json:"parameters"`
	Reward float64      `json:"reward"`
}

// Tuner evolves a bounded population of evaluated assignments.
//
// Until the population is full, assignments are drawn at random from the
// space. Afterwards each request mutates one dimension of a
// tournament-selected parent. Results are incorporated as they arrive;
// TrialEnd with success=false abandons the pending assignment so its slot is
// regenerated. Generation never signals exhaustion: mutation can always
// produce another candidate.
//
// Adopting a new search space keeps individuals that are still valid under
// it and drops the rest. Randomness is draw-indexed off the base seed, so a
// checkpointed tuner resumes its exact sequence. Not safe for concurrent
// use; callers serialize operations.
type Tuner struct {
	tuner.Base

	mode    Mode
	popSize int
	seed    int64
	draws   int64

	space      *searchspace.Space
	population []individual
	pending    map[int]tuner.Params
}

// New creates an evolution tuner. popSize <= 0 selects DefaultPopulation;
// an empty mode selects Minimize.
func New(popSize int, seed int64, mode Mode) *Tuner {
	if popSize <= 0 {
		popSize = DefaultPopulation
	}
	if mode == "" {
		mode = Minimize
	}
	return &Tuner{
		mode:    mode,
		popSize: popSize,
		seed:    seed,
		pending: make(map[int]tuner.Params),
	}
}

// Name returns the registry name.
func (t *Tuner) Name() string { return "evolution" }

// UpdateSearchSpace adopts the space and evicts individuals it invalidates.
func (t *Tuner) UpdateSearchSpace(space *searchspace.Space) error {
	if space == nil || space.Len() == 0 {
		return &searchspace.ValidationError{Reason: "search space is empty"}
	}

	kept := t.population[:0]
	for _, ind := range t.population {
		if space.Validate(ind.Params) == nil {
			kept = append(kept, ind)
		}
	}
	if dropped := len(t.population) - len(kept); dropped > 0 {
		slog.Info("Evicted individuals invalid under new space", "dropped", dropped, "kept", len(kept))
	}

	t.space = space
	t.population = kept
	return nil
}

// GenerateParameters returns the next candidate assignment.
func (t *Tuner) GenerateParameters(id int) (tuner.Params, error) {
	if t.space == nil {
		return nil, fmt.Errorf("no search space adopted")
	}

	rng := t.nextRNG()

	var params tuner.Params
	if len(t.population) == 0 || len(t.population)+len(t.pending) < t.popSize {
		params = tuner.Params(t.space.Sample(rng))
	} else {
		parent := t.selectParent(rng)
		params = t.mutate(parent.Params, rng)
	}

	t.pending[id] = params.Clone()
	slog.Debug("Candidate issued", "parameter_id", id, "population", len(t.population), "pending", len(t.pending))
	return params, nil
}

// ReceiveTrialResult folds a completed trial into the population.
func (t *Tuner) ReceiveTrialResult(res tuner.Result) error {
	reward, err := tuner.RewardOf(res.Value)
	if err != nil {
		return fmt.Errorf("failed to extract reward: %w", err)
	}

	params := res.Params
	if params == nil {
		params = t.pending[res.ParameterID]
	}
	if params == nil {
		return &tuner.ResultError{ParameterID: res.ParameterID, Reason: "result carries no parameters"}
	}

	delete(t.pending, res.ParameterID)
	t.incorporate(individual{Params: params.Clone(), Reward: reward})
	return nil
}

// TrialEnd abandons the pending candidate when the trial failed, freeing its
// population slot. Unknown ids are ignored.
func (t *Tuner) TrialEnd(id int, success bool) {
	if success {
		return
	}
	if _, ok := t.pending[id]; ok {
		delete(t.pending, id)
		slog.Debug("Pending candidate abandoned", "parameter_id", id)
	}
}

// ImportData seeds the population with historical observations. Records
// without a usable scalar reward are skipped.
func (t *Tuner) ImportData(records []tuner.TrialRecord) error {
	imported := 0
	for _, rec := range records {
		if rec.Parameter == nil {
			continue
		}
		reward, err := tuner.RewardOf(rec.Value)
		if err != nil {
			slog.Warn("Skipping historical record without scalar reward", "error", err)
			continue
		}
		t.incorporate(individual{Params: rec.Parameter.Clone(), Reward: reward})
		imported++
	}
	if imported > 0 {
		slog.Info("Imported historical observations", "count", imported, "population", len(t.population))
	}
	return nil
}

// Population returns the number of evaluated individuals currently held.
func (t *Tuner) Population() int {
	return len(t.population)
}

// Best returns the best evaluated assignment and its reward.
func (t *Tuner) Best() (tuner.Params, float64, bool) {
	if len(t.population) == 0 {
		return nil, 0, false
	}
	best := t.population[0]
	for _, ind := range t.population[1:] {
		if t.better(ind, best) {
			best = ind
		}
	}
	return best.Params.Clone(), best.Reward, true
}

type checkpointState struct {
	Mode       Mode                 `json:"mode"`
	PopSize    int                  `json:"popSize"`
	Seed       int64                `json:"seed"`
	Draws      int64                `json:"draws"`
	Population []individual         `json:"population,omitempty"`
	Pending    map[int]tuner.Params `json:"pending,omitempty"`
}

// SaveCheckpoint writes the population, pending set, and stream position.
func (t *Tuner) SaveCheckpoint(dir string) error {
	st := checkpointState{
		Mode:       t.mode,
		PopSize:    t.popSize,
		Seed:       t.seed,
		Draws:      t.draws,
		Population: t.population,
		Pending:    t.pending,
	}
	return store.WriteJSON(filepath.Join(dir, stateFile), st)
}

// LoadCheckpoint restores state saved by SaveCheckpoint. A missing state
// file leaves the tuner fresh.
func (t *Tuner) LoadCheckpoint(dir string) error {
	var st checkpointState
	err := store.ReadJSON(filepath.Join(dir, stateFile), &st)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	t.mode = st.Mode
	t.popSize = st.PopSize
	t.seed = st.Seed
	t.draws = st.Draws
	t.population = st.Population
	t.pending = st.Pending
	if t.pending == nil {
		t.pending = make(map[int]tuner.Params)
	}
	return nil
}

// incorporate adds an individual and trims the population to the best
// popSize members.
func (t *Tuner) incorporate(ind individual) {
	t.population = append(t.population, ind)
	if len(t.population) <= t.popSize {
		return
	}
	sort.SliceStable(t.population, func(i, j int) bool {
		return t.better(t.population[i], t.population[j])
	})
	t.population = t.population[:t.popSize]
}

// selectParent runs a tournament of two.
func (t *Tuner) selectParent(rng *rand.Rand) individual {
	a := t.population[rng.Intn(len(t.population))]
	b := t.population[rng.Intn(len(t.population))]
	if t.better(b, a) {
		return b
	}
	return a
}

// mutate resamples one randomly chosen dimension of the parent.
func (t *Tuner) mutate(parent tuner.Params, rng *rand.Rand) tuner.Params {
	child := parent.Clone()
	names := t.space.Names()
	name := names[rng.Intn(len(names))]
	if d, ok := t.space.Get(name); ok {
		child[name] = d.Sample(rng)
	}
	return child
}

func (t *Tuner) better(a, b individual) bool {
	if t.mode == Maximize {
		return a.Reward > b.Reward
	}
	return a.Reward < b.Reward
}

// nextRNG returns the stream for the next draw ordinal.
func (t *Tuner) nextRNG() *rand.Rand {
	rng := rand.New(rand.NewSource(t.seed + t.draws*streamStep))
	t.draws++
	return rng
}
