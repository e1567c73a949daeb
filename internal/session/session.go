// Package session coordinates one tuning run. A Session serializes all
// access to the underlying tuner, numbers trials, keeps the trial
// ledger, and persists enough state to resume after a restart. Results
// may arrive in any order relative to issuance and trial endings.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tunelab/hypertune/internal/searchspace"
	"github.com/tunelab/hypertune/internal/store"
	"github.com/tunelab/hypertune/internal/tuner"
)

// Recorder receives every ledger transition, typically backed by the
// trial journal. Recording failures are logged, never fatal.
type Recorder interface {
	RecordTrial(sessionID string, entry store.TrialEntry) error
}

// Config wires a session's collaborators. Zero values disable the
// corresponding feature.
type Config struct {
	// ID identifies the session. Generated when empty.
	ID string

	// DiscardCustomized keeps user-submitted results out of the tuner.
	// They are still recorded in the ledger. By default customized
	// results are fed to the tuner like any other.
	DiscardCustomized bool

	// Store persists snapshots and tuner state. Nil disables checkpointing.
	Store store.Store

	// Recorder receives ledger transitions. Nil disables durable history.
	Recorder Recorder
}

// Issued pairs a parameter ID with the assignment granted for it.
type Issued struct {
	ParameterID int          `json:"parameterId"`
	Params      tuner.Params `json:"parameters"`
}

// Session drives a single tuner instance.
type Session struct {
	mu sync.Mutex

	id               string
	tn               tuner.Tuner
	acceptCustomized bool
	createdAt        time.Time

	space    *searchspace.Space
	spaceRaw json.RawMessage

	nextID    int
	exhausted bool
	trials    map[int]*store.TrialEntry
	order     []int

	st          store.Store
	recorder    Recorder
	broadcaster *Broadcaster
}

// New creates a session around the given tuner.
func New(tn tuner.Tuner, cfg Config) *Session {
	id := cfg.ID
	if id == "" {
		id = uuid.New().String()
	}
	return &Session{
		id:               id,
		tn:               tn,
		acceptCustomized: !cfg.DiscardCustomized,
		createdAt:        time.Now(),
		trials:           make(map[int]*store.TrialEntry),
		st:               cfg.Store,
		recorder:         cfg.Recorder,
		broadcaster:      NewBroadcaster(),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// TunerName returns the registered name of the session's tuner.
func (s *Session) TunerName() string {
	return s.tn.Name()
}

// AcceptCustomized reports whether user-submitted results reach the tuner.
func (s *Session) AcceptCustomized() bool {
	return s.acceptCustomized
}

// Events returns the session's event broadcaster.
func (s *Session) Events() *Broadcaster {
	return s.broadcaster
}

// Exhausted reports whether the tuner has run out of assignments for
// the current search space.
func (s *Session) Exhausted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exhausted
}

// Space returns the current search space, nil before the first update.
func (s *Session) Space() *searchspace.Space {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.space
}

// Trials returns a copy of the ledger in issuance order.
func (s *Session) Trials() []store.TrialEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]store.TrialEntry, 0, len(s.order))
	for _, id := range s.order {
		entries = append(entries, *s.trials[id])
	}
	return entries
}

// UpdateSearchSpace replaces the search space. The tuner sees the new
// space before the session commits to it, so a rejected space leaves
// the session on its previous one. A successful update reopens an
// exhausted session.
func (s *Session) UpdateSearchSpace(space *searchspace.Space) error {
	if space == nil {
		return fmt.Errorf("search space cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(space)
	if err != nil {
		return fmt.Errorf("failed to serialize search space: %w", err)
	}
	if err := s.tn.UpdateSearchSpace(space); err != nil {
		return fmt.Errorf("tuner rejected search space: %w", err)
	}

	s.space = space
	s.spaceRaw = raw
	if s.exhausted {
		s.exhausted = false
		slog.Info("Search space updated, session reopened", "sessionID", s.id)
	}
	s.broadcaster.Broadcast(Event{
		SessionID: s.id,
		Type:      EventSpaceUpdated,
		Trials:    len(s.trials),
		Timestamp: time.Now(),
	})
	return nil
}

// Generate issues the next assignment. Once the tuner reports that the
// space is used up the session latches exhausted and keeps returning
// ErrNoMoreTrials without consulting the tuner again.
func (s *Session) Generate() (Issued, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.space == nil {
		return Issued{}, fmt.Errorf("no search space configured")
	}
	if s.exhausted {
		return Issued{}, tuner.ErrNoMoreTrials
	}

	id := s.nextID
	params, err := s.tn.GenerateParameters(id)
	if errors.Is(err, tuner.ErrNoMoreTrials) {
		s.latchExhaustedLocked()
		return Issued{}, err
	}
	if err != nil {
		return Issued{}, fmt.Errorf("failed to generate parameters: %w", err)
	}

	s.nextID++
	entry := &store.TrialEntry{
		ParameterID: id,
		Params:      params.Clone(),
		Status:      store.StatusIssued,
	}
	s.trials[id] = entry
	s.order = append(s.order, id)
	s.recordLocked(entry, EventIssued, 0)

	return Issued{ParameterID: id, Params: params}, nil
}

// GenerateBatch issues up to n assignments in one call. When the tuner
// runs out mid-batch the assignments granted so far are returned
// without error and the session latches exhausted; an empty batch
// returns ErrNoMoreTrials.
func (s *Session) GenerateBatch(n int) ([]Issued, error) {
	if n <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", n)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.space == nil {
		return nil, fmt.Errorf("no search space configured")
	}
	if s.exhausted {
		return nil, tuner.ErrNoMoreTrials
	}

	ids := make([]int, n)
	for i := range ids {
		ids[i] = s.nextID + i
	}

	// On a mid-batch fault the adapter has already handed the granted
	// assignments back to the tuner, so no ledger entries exist yet.
	paramsList, err := tuner.GenerateMultiple(s.tn, ids)
	if err != nil {
		return nil, err
	}
	if len(paramsList) == 0 {
		s.latchExhaustedLocked()
		return nil, tuner.ErrNoMoreTrials
	}

	issued := make([]Issued, 0, len(paramsList))
	for i, params := range paramsList {
		id := ids[i]
		entry := &store.TrialEntry{
			ParameterID: id,
			Params:      params.Clone(),
			Status:      store.StatusIssued,
		}
		s.trials[id] = entry
		s.order = append(s.order, id)
		s.nextID = id + 1
		s.recordLocked(entry, EventIssued, 0)
		issued = append(issued, Issued{ParameterID: id, Params: params})
	}

	if len(paramsList) < n {
		s.latchExhaustedLocked()
	}
	return issued, nil
}

// ReceiveResult ingests one trial result. Results for unknown,
// abandoned, or already-completed trials are rejected with a
// ResultError; customized results follow the session's gating policy.
func (s *Session) ReceiveResult(result tuner.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if result.Customized {
		return s.receiveCustomizedLocked(result)
	}

	entry, known := s.trials[result.ParameterID]
	if !known {
		return &tuner.ResultError{ParameterID: result.ParameterID, Reason: "trial was never issued"}
	}
	switch entry.Status {
	case store.StatusCompleted:
		return &tuner.ResultError{ParameterID: result.ParameterID, Reason: "duplicate result"}
	case store.StatusAbandoned:
		return &tuner.ResultError{ParameterID: result.ParameterID, Reason: "trial abandoned"}
	}

	// Sparse reports carry no parameters; fill in the issued ones.
	// Reports that do carry them must match the issued assignment.
	if result.Params == nil {
		result.Params = entry.Params
	} else if !sameAssignment(result.Params, entry.Params) {
		return &tuner.ResultError{ParameterID: result.ParameterID, Reason: "parameters do not match the issued assignment"}
	}

	reward, err := tuner.RewardOf(result.Value)
	if err != nil {
		entry.Status = store.StatusFailed
		entry.Value = result.Value
		s.recordLocked(entry, EventFailed, 0)
		return &tuner.ResultError{ParameterID: result.ParameterID, Reason: err.Error()}
	}

	if err := s.tn.ReceiveTrialResult(result); err != nil {
		entry.Status = store.StatusFailed
		entry.Value = result.Value
		s.recordLocked(entry, EventFailed, 0)
		return fmt.Errorf("tuner rejected result for trial %d: %w", result.ParameterID, err)
	}

	entry.Status = store.StatusCompleted
	entry.Value = result.Value
	entry.Reward = reward
	s.recordLocked(entry, EventCompleted, reward)
	return nil
}

// receiveCustomizedLocked handles results for user-chosen assignments.
// They are always recorded; whether the tuner sees them depends on the
// session's gating policy.
func (s *Session) receiveCustomizedLocked(result tuner.Result) error {
	if result.Params == nil {
		return &tuner.ResultError{ParameterID: result.ParameterID, Reason: "customized result without parameters"}
	}
	if result.ParameterID < 0 {
		return &tuner.ResultError{ParameterID: result.ParameterID, Reason: "negative parameter ID"}
	}
	if existing, exists := s.trials[result.ParameterID]; exists {
		if existing.Customized {
			return &tuner.ResultError{ParameterID: result.ParameterID, Reason: "duplicate result"}
		}
		return &tuner.ResultError{ParameterID: result.ParameterID, Reason: "parameter ID already used by a tuner trial"}
	}
	if s.space != nil {
		if err := s.space.Validate(result.Params); err != nil {
			return fmt.Errorf("customized parameters rejected: %w", err)
		}
	}

	reward, err := tuner.RewardOf(result.Value)
	if err != nil {
		return &tuner.ResultError{ParameterID: result.ParameterID, Reason: err.Error()}
	}

	entry := &store.TrialEntry{
		ParameterID: result.ParameterID,
		Params:      result.Params.Clone(),
		Customized:  true,
		Value:       result.Value,
		Reward:      reward,
	}
	s.trials[result.ParameterID] = entry
	s.order = append(s.order, result.ParameterID)
	if result.ParameterID >= s.nextID {
		s.nextID = result.ParameterID + 1
	}

	if !s.acceptCustomized {
		entry.Status = store.StatusCompleted
		slog.Info("Customized result recorded but not fed to tuner",
			"sessionID", s.id, "parameterID", result.ParameterID)
		s.recordLocked(entry, EventCompleted, reward)
		return nil
	}

	if err := s.tn.ReceiveTrialResult(result); err != nil {
		entry.Status = store.StatusFailed
		s.recordLocked(entry, EventFailed, 0)
		return fmt.Errorf("tuner rejected customized result %d: %w", result.ParameterID, err)
	}
	entry.Status = store.StatusCompleted
	s.recordLocked(entry, EventCompleted, reward)
	return nil
}

// TrialEnd reports that a trial stopped running. The signal is advisory
// and always reaches the tuner; the ledger only changes for trials that
// ended without a final result.
func (s *Session) TrialEnd(id int, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, known := s.trials[id]
	switch {
	case known && entry.Status == store.StatusIssued && !success:
		entry.Status = store.StatusAbandoned
		s.recordLocked(entry, EventAbandoned, 0)
	case !known && !success && id >= 0:
		// An unknown failed trial still blocks late results for its ID.
		entry = &store.TrialEntry{ParameterID: id, Status: store.StatusAbandoned}
		s.trials[id] = entry
		s.order = append(s.order, id)
		if id >= s.nextID {
			s.nextID = id + 1
		}
		s.recordLocked(entry, EventAbandoned, 0)
	}

	s.tn.TrialEnd(id, success)
}

// ImportData feeds prior trial history to the tuner for a warm start.
// Records are validated before any of them reach the tuner, and a
// non-empty import reopens an exhausted session.
func (s *Session) ImportData(records []tuner.TrialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, record := range records {
		if record.Parameter == nil {
			return fmt.Errorf("import record %d has no parameters", i)
		}
		if s.space != nil {
			if err := s.space.Validate(record.Parameter); err != nil {
				return fmt.Errorf("import record %d: %w", i, err)
			}
		}
	}

	if err := s.tn.ImportData(records); err != nil {
		return fmt.Errorf("tuner failed to import data: %w", err)
	}

	if len(records) > 0 && s.exhausted {
		s.exhausted = false
		slog.Info("Imported history reopened the session", "sessionID", s.id, "records", len(records))
	}
	return nil
}

// Checkpoint persists the session. The tuner's own state lands in the
// session directory first; the snapshot write is the commit point, so a
// crash between the two leaves the previous snapshot authoritative.
func (s *Session) Checkpoint() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.st == nil {
		return fmt.Errorf("no store configured")
	}

	dir, err := s.st.SessionDir(s.id)
	if err != nil {
		return err
	}
	if err := s.tn.SaveCheckpoint(dir); err != nil {
		return fmt.Errorf("tuner failed to save state: %w", err)
	}
	if err := s.st.SaveSnapshot(s.snapshotLocked()); err != nil {
		return err
	}

	slog.Info("Session checkpoint saved", "sessionID", s.id, "trials", len(s.trials))
	return nil
}

// Restore rebuilds a session from its snapshot. The stored search space
// is applied to the tuner before its state file is loaded, mirroring
// the order Checkpoint wrote them. The Recorder from cfg is kept;
// identity and gating come from the snapshot.
func Restore(st store.Store, sessionID string, tn tuner.Tuner, cfg Config) (*Session, error) {
	snap, err := st.LoadSnapshot(sessionID)
	if err != nil {
		return nil, err
	}
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("snapshot is not usable: %w", err)
	}
	if err := snap.IsCompatible(tn.Name()); err != nil {
		return nil, err
	}

	cfg.ID = sessionID
	cfg.Store = st
	cfg.DiscardCustomized = !snap.AcceptCustomized
	s := New(tn, cfg)
	s.createdAt = snap.CreatedAt

	if len(snap.Space) > 0 {
		space, err := searchspace.Parse(snap.Space)
		if err != nil {
			return nil, fmt.Errorf("failed to parse stored search space: %w", err)
		}
		if err := tn.UpdateSearchSpace(space); err != nil {
			return nil, fmt.Errorf("tuner rejected stored search space: %w", err)
		}
		s.space = space
		s.spaceRaw = append(json.RawMessage(nil), snap.Space...)
	}

	dir, err := st.SessionDir(sessionID)
	if err != nil {
		return nil, err
	}
	if err := tn.LoadCheckpoint(dir); err != nil {
		return nil, fmt.Errorf("tuner failed to load state: %w", err)
	}

	s.nextID = snap.NextID
	s.exhausted = snap.Exhausted
	for _, trial := range snap.Trials {
		entry := trial
		s.trials[entry.ParameterID] = &entry
		s.order = append(s.order, entry.ParameterID)
	}

	slog.Info("Session restored", "sessionID", sessionID, "tuner", tn.Name(), "trials", len(snap.Trials))
	return s, nil
}

// latchExhaustedLocked flips the exhaustion latch once. Only a space
// update or a fresh import reopens the session.
func (s *Session) latchExhaustedLocked() {
	if s.exhausted {
		return
	}
	s.exhausted = true
	slog.Info("Tuner exhausted the search space", "sessionID", s.id, "trials", len(s.trials))
	s.broadcaster.Broadcast(Event{
		SessionID: s.id,
		Type:      EventExhausted,
		Trials:    len(s.trials),
		Timestamp: time.Now(),
	})
}

// snapshotLocked captures the session envelope for persistence.
func (s *Session) snapshotLocked() *store.Snapshot {
	snap := &store.Snapshot{
		SchemaVersion:    store.SchemaVersion,
		SessionID:        s.id,
		TunerName:        s.tn.Name(),
		AcceptCustomized: s.acceptCustomized,
		Space:            append(json.RawMessage(nil), s.spaceRaw...),
		NextID:           s.nextID,
		Exhausted:        s.exhausted,
		CreatedAt:        s.createdAt,
		UpdatedAt:        time.Now(),
	}
	for _, id := range s.order {
		snap.Trials = append(snap.Trials, *s.trials[id])
	}
	return snap
}

// sameAssignment compares two assignments by their canonical JSON
// rendering, which levels int/float encodings of the same number.
func sameAssignment(a, b tuner.Params) bool {
	if len(a) != len(b) {
		return false
	}
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ja) == string(jb)
}

// recordLocked forwards a ledger transition to the recorder and the
// broadcaster.
func (s *Session) recordLocked(entry *store.TrialEntry, eventType EventType, reward float64) {
	if s.recorder != nil {
		if err := s.recorder.RecordTrial(s.id, *entry); err != nil {
			slog.Warn("Failed to record trial", "sessionID", s.id, "parameterID", entry.ParameterID, "error", err)
		}
	}
	s.broadcaster.Broadcast(Event{
		SessionID:   s.id,
		Type:        eventType,
		ParameterID: entry.ParameterID,
		Reward:      reward,
		Trials:      len(s.trials),
		Timestamp:   time.Now(),
	})
}
