package session

import (
	"errors"
	"fmt"
	"testing"

	"github.com/tunelab/hypertune/internal/searchspace"
	"github.com/tunelab/hypertune/internal/store"
	"github.com/tunelab/hypertune/internal/tuner"
	"github.com/tunelab/hypertune/internal/tuner/grid"
	"github.com/tunelab/hypertune/internal/tuner/random"
)

// stubTuner records every contract call so tests can assert what
// reached the algorithm.
type stubTuner struct {
	tuner.Base
	space     *searchspace.Space
	results   []tuner.Result
	ended     map[int]bool
	imported  int
	resultErr error
	seq       int
	failAfter int // GenerateParameters faults once seq reaches this (0 = never)
}

func newStubTuner() *stubTuner {
	return &stubTuner{ended: make(map[int]bool)}
}

func (st *stubTuner) Name() string { return "stub" }

func (st *stubTuner) UpdateSearchSpace(space *searchspace.Space) error {
	st.space = space
	return nil
}

func (st *stubTuner) GenerateParameters(id int) (tuner.Params, error) {
	if st.failAfter > 0 && st.seq >= st.failAfter {
		return nil, fmt.Errorf("backend unavailable")
	}
	st.seq++
	return tuner.Params{"x": float64(st.seq)}, nil
}

func (st *stubTuner) ReceiveTrialResult(result tuner.Result) error {
	if st.resultErr != nil {
		return st.resultErr
	}
	st.results = append(st.results, result)
	return nil
}

func (st *stubTuner) TrialEnd(id int, success bool) {
	st.ended[id] = success
}

func (st *stubTuner) ImportData(records []tuner.TrialRecord) error {
	st.imported += len(records)
	return nil
}

type fakeRecorder struct {
	entries []store.TrialEntry
	err     error
}

func (r *fakeRecorder) RecordTrial(sessionID string, entry store.TrialEntry) error {
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, entry)
	return nil
}

func parseSpace(t *testing.T, data string) *searchspace.Space {
	t.Helper()

	space, err := searchspace.Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return space
}

// newStubSession wires a stub tuner with a wide continuous space.
func newStubSession(t *testing.T, cfg Config) (*Session, *stubTuner) {
	t.Helper()

	st := newStubTuner()
	s := New(st, cfg)
	space := parseSpace(t, `{"x": {"_type": "uniform", "_value": [0, 100]}}`)
	if err := s.UpdateSearchSpace(space); err != nil {
		t.Fatalf("UpdateSearchSpace failed: %v", err)
	}
	return s, st
}

// newGridSession wires a real grid tuner over a three-value space.
func newGridSession(t *testing.T) *Session {
	t.Helper()

	s := New(grid.New(), Config{})
	space := parseSpace(t, `{"x": {"_type": "choice", "_value": [1, 2, 3]}}`)
	if err := s.UpdateSearchSpace(space); err != nil {
		t.Fatalf("UpdateSearchSpace failed: %v", err)
	}
	return s
}

func drainEvents(ch chan Event) []EventType {
	var types []EventType
	for {
		select {
		case event := <-ch:
			types = append(types, event.Type)
		default:
			return types
		}
	}
}

func TestGenerate_NumbersTrialsSequentially(t *testing.T) {
	s, _ := newStubSession(t, Config{})

	for want := 0; want < 3; want++ {
		issued, err := s.Generate()
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if issued.ParameterID != want {
			t.Errorf("Expected parameter ID %d, got %d", want, issued.ParameterID)
		}
		if issued.Params == nil {
			t.Error("Issued assignment has no parameters")
		}
	}

	trials := s.Trials()
	if len(trials) != 3 {
		t.Fatalf("Expected 3 ledger entries, got %d", len(trials))
	}
	for i, trial := range trials {
		if trial.Status != store.StatusIssued {
			t.Errorf("Trial %d: expected issued status, got %s", i, trial.Status)
		}
	}
}

func TestGenerate_RequiresSearchSpace(t *testing.T) {
	s := New(newStubTuner(), Config{})

	if _, err := s.Generate(); err == nil {
		t.Fatal("Expected error before any search space update")
	}
	if _, err := s.GenerateBatch(2); err == nil {
		t.Fatal("Expected batch error before any search space update")
	}
}

func TestGenerate_LatchesOnExhaustion(t *testing.T) {
	s := newGridSession(t)

	for i := 0; i < 3; i++ {
		if _, err := s.Generate(); err != nil {
			t.Fatalf("Generate %d failed: %v", i, err)
		}
	}

	for attempt := 0; attempt < 2; attempt++ {
		_, err := s.Generate()
		if !errors.Is(err, tuner.ErrNoMoreTrials) {
			t.Fatalf("Attempt %d: expected ErrNoMoreTrials, got %v", attempt, err)
		}
	}
	if !s.Exhausted() {
		t.Error("Session should be exhausted")
	}
}

func TestUpdateSearchSpace_ReopensSession(t *testing.T) {
	s := newGridSession(t)

	for i := 0; i < 3; i++ {
		if _, err := s.Generate(); err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
	}
	if _, err := s.Generate(); !errors.Is(err, tuner.ErrNoMoreTrials) {
		t.Fatalf("Expected exhaustion, got %v", err)
	}

	wider := parseSpace(t, `{"x": {"_type": "choice", "_value": [1, 2, 3, 4]}}`)
	if err := s.UpdateSearchSpace(wider); err != nil {
		t.Fatalf("UpdateSearchSpace failed: %v", err)
	}

	if s.Exhausted() {
		t.Error("Space update must reopen the session")
	}
	issued, err := s.Generate()
	if err != nil {
		t.Fatalf("Generate after reopen failed: %v", err)
	}
	if issued.ParameterID != 3 {
		t.Errorf("Parameter IDs must not restart, got %d", issued.ParameterID)
	}
}

func TestUpdateSearchSpace_RejectedKeepsPrevious(t *testing.T) {
	s := newGridSession(t)

	continuous := parseSpace(t, `{"x": {"_type": "uniform", "_value": [0, 1]}}`)
	if err := s.UpdateSearchSpace(continuous); err == nil {
		t.Fatal("Grid must reject a continuous space")
	}

	// The previous space is still active.
	if _, err := s.Generate(); err != nil {
		t.Errorf("Generate after rejected update failed: %v", err)
	}
}

func TestImportData_ReopensSession(t *testing.T) {
	s := newGridSession(t)

	for i := 0; i < 3; i++ {
		if _, err := s.Generate(); err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
	}
	if _, err := s.Generate(); !errors.Is(err, tuner.ErrNoMoreTrials) {
		t.Fatalf("Expected exhaustion, got %v", err)
	}

	err := s.ImportData([]tuner.TrialRecord{
		{Parameter: tuner.Params{"x": 2.0}, Value: 0.5},
	})
	if err != nil {
		t.Fatalf("ImportData failed: %v", err)
	}
	if s.Exhausted() {
		t.Error("Fresh history must reopen the session")
	}

	// The grid is still fully enumerated, so the tuner is consulted
	// again and reports exhaustion again.
	if _, err := s.Generate(); !errors.Is(err, tuner.ErrNoMoreTrials) {
		t.Errorf("Expected renewed exhaustion, got %v", err)
	}
}

func TestGenerateBatch_PartialOnExhaustion(t *testing.T) {
	s := newGridSession(t)

	issued, err := s.GenerateBatch(5)
	if err != nil {
		t.Fatalf("GenerateBatch failed: %v", err)
	}
	if len(issued) != 3 {
		t.Fatalf("Expected 3 issued assignments, got %d", len(issued))
	}
	for i, is := range issued {
		if is.ParameterID != i {
			t.Errorf("Expected parameter ID %d, got %d", i, is.ParameterID)
		}
	}
	if !s.Exhausted() {
		t.Error("Partial batch must latch exhaustion")
	}
	if _, err := s.Generate(); !errors.Is(err, tuner.ErrNoMoreTrials) {
		t.Errorf("Expected ErrNoMoreTrials after partial batch, got %v", err)
	}
}

func TestGenerateBatch_Exhausted(t *testing.T) {
	s := newGridSession(t)

	if _, err := s.GenerateBatch(3); err != nil {
		t.Fatalf("GenerateBatch failed: %v", err)
	}
	if _, err := s.GenerateBatch(2); !errors.Is(err, tuner.ErrNoMoreTrials) {
		t.Fatalf("Expected ErrNoMoreTrials, got %v", err)
	}
	if _, err := s.GenerateBatch(0); err == nil {
		t.Error("Expected error for non-positive batch size")
	}
}

func TestGenerateBatch_FaultLeavesNoTrace(t *testing.T) {
	s, st := newStubSession(t, Config{})
	st.failAfter = 2

	_, err := s.GenerateBatch(4)
	if err == nil {
		t.Fatal("Expected batch fault")
	}
	if errors.Is(err, tuner.ErrNoMoreTrials) {
		t.Fatal("A fault must not masquerade as exhaustion")
	}

	if len(s.Trials()) != 0 {
		t.Errorf("Faulted batch must leave no ledger entries, got %d", len(s.Trials()))
	}
	// The assignments granted before the fault were handed back.
	if success, ok := st.ended[0]; !ok || success {
		t.Errorf("Expected TrialEnd(0, false), got ok=%v success=%v", ok, success)
	}
	if success, ok := st.ended[1]; !ok || success {
		t.Errorf("Expected TrialEnd(1, false), got ok=%v success=%v", ok, success)
	}

	// No parameter IDs were consumed.
	st.failAfter = 0
	issued, err := s.Generate()
	if err != nil {
		t.Fatalf("Generate after fault failed: %v", err)
	}
	if issued.ParameterID != 0 {
		t.Errorf("Expected parameter ID 0 after fault, got %d", issued.ParameterID)
	}
}

func TestReceiveResult_CompletesTrial(t *testing.T) {
	s, st := newStubSession(t, Config{})

	issued, err := s.Generate()
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	err = s.ReceiveResult(tuner.Result{
		ParameterID: issued.ParameterID,
		Value:       map[string]any{"default": 0.42, "loss": 1.3},
	})
	if err != nil {
		t.Fatalf("ReceiveResult failed: %v", err)
	}

	trials := s.Trials()
	if trials[0].Status != store.StatusCompleted {
		t.Errorf("Expected completed status, got %s", trials[0].Status)
	}
	if trials[0].Reward != 0.42 {
		t.Errorf("Expected reward 0.42, got %v", trials[0].Reward)
	}
	if len(st.results) != 1 {
		t.Fatalf("Tuner should have received 1 result, got %d", len(st.results))
	}
	// Sparse reports are filled in with the issued parameters.
	if st.results[0].Params == nil {
		t.Error("Forwarded result lost its parameters")
	}
}

func TestReceiveResult_UnknownTrial(t *testing.T) {
	s, st := newStubSession(t, Config{})

	err := s.ReceiveResult(tuner.Result{ParameterID: 99, Value: 0.5})
	if !errors.Is(err, &tuner.ResultError{}) {
		t.Fatalf("Expected ResultError, got %v", err)
	}
	if len(st.results) != 0 {
		t.Error("Unknown result must not reach the tuner")
	}
}

func TestReceiveResult_Duplicate(t *testing.T) {
	s, _ := newStubSession(t, Config{})

	issued, _ := s.Generate()
	result := tuner.Result{ParameterID: issued.ParameterID, Value: 0.5}
	if err := s.ReceiveResult(result); err != nil {
		t.Fatalf("First result failed: %v", err)
	}
	if err := s.ReceiveResult(result); !errors.Is(err, &tuner.ResultError{}) {
		t.Fatalf("Expected ResultError for duplicate, got %v", err)
	}
}

func TestReceiveResult_AfterAbandonment(t *testing.T) {
	s, st := newStubSession(t, Config{})

	issued, _ := s.Generate()
	s.TrialEnd(issued.ParameterID, false)

	err := s.ReceiveResult(tuner.Result{ParameterID: issued.ParameterID, Value: 0.5})
	if !errors.Is(err, &tuner.ResultError{}) {
		t.Fatalf("Expected ResultError for abandoned trial, got %v", err)
	}
	if len(st.results) != 0 {
		t.Error("Late result must not reach the tuner")
	}

	trials := s.Trials()
	if trials[0].Status != store.StatusAbandoned {
		t.Errorf("Expected abandoned status, got %s", trials[0].Status)
	}
}

func TestReceiveResult_MismatchedParams(t *testing.T) {
	s, st := newStubSession(t, Config{})

	issued, _ := s.Generate()
	err := s.ReceiveResult(tuner.Result{
		ParameterID: issued.ParameterID,
		Params:      tuner.Params{"x": -999.0},
		Value:       0.5,
	})
	if !errors.Is(err, &tuner.ResultError{}) {
		t.Fatalf("Expected ResultError for mismatched parameters, got %v", err)
	}
	if len(st.results) != 0 {
		t.Error("Mismatched result must not reach the tuner")
	}

	// Echoing the issued assignment is accepted.
	err = s.ReceiveResult(tuner.Result{
		ParameterID: issued.ParameterID,
		Params:      issued.Params,
		Value:       0.5,
	})
	if err != nil {
		t.Fatalf("Echoed result failed: %v", err)
	}
}

func TestReceiveResult_BadValue(t *testing.T) {
	s, st := newStubSession(t, Config{})

	issued, _ := s.Generate()
	err := s.ReceiveResult(tuner.Result{ParameterID: issued.ParameterID, Value: "fast"})
	if !errors.Is(err, &tuner.ResultError{}) {
		t.Fatalf("Expected ResultError for non-scalar value, got %v", err)
	}
	if len(st.results) != 0 {
		t.Error("Unusable result must not reach the tuner")
	}
	if s.Trials()[0].Status != store.StatusFailed {
		t.Errorf("Expected failed status, got %s", s.Trials()[0].Status)
	}
}

func TestReceiveResult_TunerRejection(t *testing.T) {
	s, st := newStubSession(t, Config{})
	st.resultErr = fmt.Errorf("model update failed")

	issued, _ := s.Generate()
	err := s.ReceiveResult(tuner.Result{ParameterID: issued.ParameterID, Value: 0.5})
	if err == nil {
		t.Fatal("Expected error when tuner rejects the result")
	}
	if s.Trials()[0].Status != store.StatusFailed {
		t.Errorf("Expected failed status, got %s", s.Trials()[0].Status)
	}
}

func TestTrialEnd_SuccessKeepsTrialOpen(t *testing.T) {
	s, st := newStubSession(t, Config{})

	issued, _ := s.Generate()
	s.TrialEnd(issued.ParameterID, true)

	if success, ok := st.ended[issued.ParameterID]; !ok || !success {
		t.Errorf("Expected TrialEnd(%d, true) forwarded, got ok=%v success=%v", issued.ParameterID, ok, success)
	}
	if s.Trials()[0].Status != store.StatusIssued {
		t.Errorf("Successful end must await the result, got %s", s.Trials()[0].Status)
	}

	// The final result can still arrive afterwards.
	if err := s.ReceiveResult(tuner.Result{ParameterID: issued.ParameterID, Value: 0.7}); err != nil {
		t.Fatalf("Result after successful end failed: %v", err)
	}
	if s.Trials()[0].Status != store.StatusCompleted {
		t.Errorf("Expected completed status, got %s", s.Trials()[0].Status)
	}
}

func TestTrialEnd_UnknownFailureBlocksLateResult(t *testing.T) {
	s, st := newStubSession(t, Config{})

	s.TrialEnd(7, false)
	if success, ok := st.ended[7]; !ok || success {
		t.Errorf("Expected TrialEnd(7, false) forwarded, got ok=%v success=%v", ok, success)
	}

	err := s.ReceiveResult(tuner.Result{ParameterID: 7, Value: 0.5})
	if !errors.Is(err, &tuner.ResultError{}) {
		t.Fatalf("Expected ResultError after abandonment, got %v", err)
	}

	// The abandoned ID is never reissued.
	issued, err := s.Generate()
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if issued.ParameterID != 8 {
		t.Errorf("Expected parameter ID 8, got %d", issued.ParameterID)
	}
}

func TestCustomized_DefaultFeedsTuner(t *testing.T) {
	s, st := newStubSession(t, Config{})

	err := s.ReceiveResult(tuner.Result{
		ParameterID: 100,
		Params:      tuner.Params{"x": 3.0},
		Value:       0.5,
		Customized:  true,
	})
	if err != nil {
		t.Fatalf("Customized result failed: %v", err)
	}
	if len(st.results) != 1 {
		t.Fatalf("Tuner should have received the customized result, got %d", len(st.results))
	}

	trials := s.Trials()
	if len(trials) != 1 || !trials[0].Customized {
		t.Fatalf("Ledger missing customized trial: %+v", trials)
	}
	if trials[0].Status != store.StatusCompleted {
		t.Errorf("Expected completed status, got %s", trials[0].Status)
	}

	// The session never reuses the customized ID.
	issued, err := s.Generate()
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if issued.ParameterID != 101 {
		t.Errorf("Expected parameter ID 101, got %d", issued.ParameterID)
	}
}

func TestCustomized_DiscardPolicy(t *testing.T) {
	s, st := newStubSession(t, Config{DiscardCustomized: true})

	if s.AcceptCustomized() {
		t.Fatal("Session should report customized results as discarded")
	}

	err := s.ReceiveResult(tuner.Result{
		ParameterID: 5,
		Params:      tuner.Params{"x": 3.0},
		Value:       0.5,
		Customized:  true,
	})
	if err != nil {
		t.Fatalf("Customized result failed: %v", err)
	}

	if len(st.results) != 0 {
		t.Error("Discarded customized result must not reach the tuner")
	}
	trials := s.Trials()
	if len(trials) != 1 || trials[0].Status != store.StatusCompleted {
		t.Errorf("Discarded result must still be recorded: %+v", trials)
	}
}

func TestCustomized_RejectsInvalidParams(t *testing.T) {
	s, st := newStubSession(t, Config{})

	err := s.ReceiveResult(tuner.Result{
		ParameterID: 1,
		Params:      tuner.Params{"y": 3.0},
		Value:       0.5,
		Customized:  true,
	})
	var validationErr *searchspace.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}
	if len(st.results) != 0 {
		t.Error("Invalid customized result must not reach the tuner")
	}

	if err := s.ReceiveResult(tuner.Result{ParameterID: 1, Value: 0.5, Customized: true}); err == nil {
		t.Error("Expected error for customized result without parameters")
	}
}

func TestCustomized_IDCollisions(t *testing.T) {
	s, _ := newStubSession(t, Config{})

	issued, _ := s.Generate()
	err := s.ReceiveResult(tuner.Result{
		ParameterID: issued.ParameterID,
		Params:      tuner.Params{"x": 3.0},
		Value:       0.5,
		Customized:  true,
	})
	if !errors.Is(err, &tuner.ResultError{}) {
		t.Fatalf("Expected ResultError for ID collision, got %v", err)
	}

	customized := tuner.Result{ParameterID: 50, Params: tuner.Params{"x": 3.0}, Value: 0.5, Customized: true}
	if err := s.ReceiveResult(customized); err != nil {
		t.Fatalf("Customized result failed: %v", err)
	}
	if err := s.ReceiveResult(customized); !errors.Is(err, &tuner.ResultError{}) {
		t.Fatalf("Expected ResultError for duplicate customized result, got %v", err)
	}
}

func TestImportData_ValidatesBeforeForwarding(t *testing.T) {
	s, st := newStubSession(t, Config{})

	err := s.ImportData([]tuner.TrialRecord{
		{Parameter: tuner.Params{"x": 3.0}, Value: 0.5},
		{Parameter: tuner.Params{"z": 1.0}, Value: 0.6},
	})
	if err == nil {
		t.Fatal("Expected error for record outside the space")
	}
	if st.imported != 0 {
		t.Errorf("No records may reach the tuner on a failed import, got %d", st.imported)
	}

	err = s.ImportData([]tuner.TrialRecord{
		{Parameter: tuner.Params{"x": 3.0}, Value: 0.5},
		{Parameter: tuner.Params{"x": 4.0}, Value: 0.6},
	})
	if err != nil {
		t.Fatalf("Valid import failed: %v", err)
	}
	if st.imported != 2 {
		t.Errorf("Expected 2 imported records, got %d", st.imported)
	}

	if err := s.ImportData([]tuner.TrialRecord{{Value: 0.5}}); err == nil {
		t.Error("Expected error for record without parameters")
	}
}

func TestCheckpointRestore_RoundTrip(t *testing.T) {
	fsStore, err := store.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}

	spaceJSON := `{
		"lr":    {"_type": "loguniform", "_value": [0.001, 0.1]},
		"depth": {"_type": "randint", "_value": [1, 6]}
	}`

	s := New(random.New(7, false), Config{ID: "session-rt", Store: fsStore})
	if err := s.UpdateSearchSpace(parseSpace(t, spaceJSON)); err != nil {
		t.Fatalf("UpdateSearchSpace failed: %v", err)
	}

	// A twin session that never checkpoints supplies the expected stream.
	twin := New(random.New(7, false), Config{ID: "session-twin"})
	if err := twin.UpdateSearchSpace(parseSpace(t, spaceJSON)); err != nil {
		t.Fatalf("Twin UpdateSearchSpace failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := s.Generate(); err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if _, err := twin.Generate(); err != nil {
			t.Fatalf("Twin generate failed: %v", err)
		}
	}
	if err := s.ReceiveResult(tuner.Result{ParameterID: 0, Value: 0.9}); err != nil {
		t.Fatalf("ReceiveResult failed: %v", err)
	}
	if err := twin.ReceiveResult(tuner.Result{ParameterID: 0, Value: 0.9}); err != nil {
		t.Fatalf("Twin ReceiveResult failed: %v", err)
	}

	if err := s.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint failed: %v", err)
	}

	// Constructor arguments are placeholders; the snapshot and the tuner
	// state file are authoritative.
	restored, err := Restore(fsStore, "session-rt", random.New(0, false), Config{})
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	trials := restored.Trials()
	if len(trials) != 3 {
		t.Fatalf("Expected 3 restored trials, got %d", len(trials))
	}
	if trials[0].Status != store.StatusCompleted || trials[0].Reward != 0.9 {
		t.Errorf("Completed trial lost: %+v", trials[0])
	}
	if trials[1].Status != store.StatusIssued {
		t.Errorf("Issued trial lost: %+v", trials[1])
	}

	for i := 0; i < 5; i++ {
		got, err := restored.Generate()
		if err != nil {
			t.Fatalf("Restored generate failed: %v", err)
		}
		want, err := twin.Generate()
		if err != nil {
			t.Fatalf("Twin generate failed: %v", err)
		}
		if got.ParameterID != want.ParameterID {
			t.Fatalf("Parameter IDs diverged: %d vs %d", got.ParameterID, want.ParameterID)
		}
		for name, value := range want.Params {
			if got.Params[name] != value {
				t.Fatalf("Assignment %d diverged at %s: %v vs %v", got.ParameterID, name, got.Params[name], value)
			}
		}
	}
}

func TestRestore_WrongTuner(t *testing.T) {
	fsStore, err := store.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}

	s := New(random.New(1, false), Config{ID: "session-mismatch", Store: fsStore})
	space := parseSpace(t, `{"x": {"_type": "uniform", "_value": [0, 1]}}`)
	if err := s.UpdateSearchSpace(space); err != nil {
		t.Fatalf("UpdateSearchSpace failed: %v", err)
	}
	if err := s.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint failed: %v", err)
	}

	_, err = Restore(fsStore, "session-mismatch", grid.New(), Config{})
	var compatErr *store.CompatibilityError
	if !errors.As(err, &compatErr) {
		t.Fatalf("Expected CompatibilityError, got %v", err)
	}
}

func TestRestore_Missing(t *testing.T) {
	fsStore, err := store.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}

	_, err = Restore(fsStore, "never-saved", grid.New(), Config{})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestCheckpoint_WithoutStore(t *testing.T) {
	s, _ := newStubSession(t, Config{})

	if err := s.Checkpoint(); err == nil {
		t.Fatal("Expected error without a configured store")
	}
}

func TestEvents_LifecycleBroadcast(t *testing.T) {
	s := newGridSession(t)
	ch := s.Events().Subscribe(s.ID())
	defer s.Events().Unsubscribe(s.ID(), ch)

	issued, err := s.Generate()
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if err := s.ReceiveResult(tuner.Result{ParameterID: issued.ParameterID, Value: 0.3}); err != nil {
		t.Fatalf("ReceiveResult failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := s.Generate(); err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
	}
	s.Generate() // exhausts

	got := drainEvents(ch)
	want := map[EventType]bool{}
	for _, eventType := range got {
		want[eventType] = true
	}
	for _, expected := range []EventType{EventIssued, EventCompleted, EventExhausted} {
		if !want[expected] {
			t.Errorf("Expected %s event, saw %v", expected, got)
		}
	}
}

func TestRecorder_ReceivesTransitions(t *testing.T) {
	recorder := &fakeRecorder{}
	s, _ := newStubSession(t, Config{Recorder: recorder})

	issued, _ := s.Generate()
	if err := s.ReceiveResult(tuner.Result{ParameterID: issued.ParameterID, Value: 0.5}); err != nil {
		t.Fatalf("ReceiveResult failed: %v", err)
	}

	if len(recorder.entries) != 2 {
		t.Fatalf("Expected 2 recorded transitions, got %d", len(recorder.entries))
	}
	if recorder.entries[0].Status != store.StatusIssued {
		t.Errorf("First transition should be issued, got %s", recorder.entries[0].Status)
	}
	if recorder.entries[1].Status != store.StatusCompleted {
		t.Errorf("Second transition should be completed, got %s", recorder.entries[1].Status)
	}
}

func TestRecorder_FailureDoesNotBlockSession(t *testing.T) {
	recorder := &fakeRecorder{err: fmt.Errorf("disk full")}
	s, _ := newStubSession(t, Config{Recorder: recorder})

	if _, err := s.Generate(); err != nil {
		t.Fatalf("Generate must survive recorder failures: %v", err)
	}
}
