package evolution

import (
	"testing"

	"github.com/tunelab/hypertune/internal/searchspace"
	"github.com/tunelab/hypertune/internal/tuner"
)

const tuneSpace = `{
	"lr":    {"_type": "loguniform", "_value": [0.001, 0.1]},
	"depth": {"_type": "randint", "_value": [1, 6]}
}`

func adoptSpace(t *testing.T, tn *Tuner, data string) *searchspace.Space {
	t.Helper()

	space, err := searchspace.Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if err := tn.UpdateSearchSpace(space); err != nil {
		t.Fatalf("UpdateSearchSpace failed: %v", err)
	}
	return space
}

func sameParams(a, b tuner.Params) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// runTrial generates one assignment and immediately reports its reward.
func runTrial(t *testing.T, tn *Tuner, id int, reward float64) tuner.Params {
	t.Helper()

	params, err := tn.GenerateParameters(id)
	if err != nil {
		t.Fatalf("GenerateParameters(%d) failed: %v", id, err)
	}
	err = tn.ReceiveTrialResult(tuner.Result{ParameterID: id, Params: params, Value: reward})
	if err != nil {
		t.Fatalf("ReceiveTrialResult(%d) failed: %v", id, err)
	}
	return params
}

func TestGenerate_SeedsThenMutates(t *testing.T) {
	tn := New(3, 42, Minimize)
	space := adoptSpace(t, tn, tuneSpace)

	for i := 0; i < 6; i++ {
		params, err := tn.GenerateParameters(i)
		if err != nil {
			t.Fatalf("GenerateParameters(%d) failed: %v", i, err)
		}
		if err := space.Validate(params); err != nil {
			t.Fatalf("Candidate %d violates the space: %v", i, err)
		}
		err = tn.ReceiveTrialResult(tuner.Result{ParameterID: i, Params: params, Value: float64(i)})
		if err != nil {
			t.Fatalf("ReceiveTrialResult failed: %v", err)
		}
	}

	if tn.Population() != 3 {
		t.Errorf("Expected population trimmed to 3, got %d", tn.Population())
	}

	// Minimize keeps the lowest rewards seen (0, 1, 2).
	_, reward, ok := tn.Best()
	if !ok || reward != 0 {
		t.Errorf("Expected best reward 0, got %v (ok=%v)", reward, ok)
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	a := New(4, 99, Minimize)
	b := New(4, 99, Minimize)
	adoptSpace(t, a, tuneSpace)
	adoptSpace(t, b, tuneSpace)

	for i := 0; i < 12; i++ {
		pa, err := a.GenerateParameters(i)
		if err != nil {
			t.Fatal(err)
		}
		pb, err := b.GenerateParameters(i)
		if err != nil {
			t.Fatal(err)
		}
		if !sameParams(pa, pb) {
			t.Fatalf("Same seed diverged at %d: %v vs %v", i, pa, pb)
		}

		reward := float64(i % 5)
		if err := a.ReceiveTrialResult(tuner.Result{ParameterID: i, Params: pa, Value: reward}); err != nil {
			t.Fatal(err)
		}
		if err := b.ReceiveTrialResult(tuner.Result{ParameterID: i, Params: pb, Value: reward}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestTrialEnd_FailureFreesPendingSlot(t *testing.T) {
	tn := New(2, 1, Minimize)
	adoptSpace(t, tn, tuneSpace)

	if _, err := tn.GenerateParameters(0); err != nil {
		t.Fatal(err)
	}
	if _, err := tn.GenerateParameters(1); err != nil {
		t.Fatal(err)
	}
	if len(tn.pending) != 2 {
		t.Fatalf("Expected 2 pending candidates, got %d", len(tn.pending))
	}

	tn.TrialEnd(0, false)
	if len(tn.pending) != 1 {
		t.Fatalf("Expected abandoned candidate removed, got %d pending", len(tn.pending))
	}

	// Unknown ids and successful completions are tolerated.
	tn.TrialEnd(1234, false)
	tn.TrialEnd(1, true)
	if len(tn.pending) != 1 {
		t.Errorf("TrialEnd changed pending unexpectedly: %d", len(tn.pending))
	}
}

func TestReceiveTrialResult_UsesPendingParams(t *testing.T) {
	tn := New(2, 8, Minimize)
	adoptSpace(t, tn, tuneSpace)

	if _, err := tn.GenerateParameters(0); err != nil {
		t.Fatal(err)
	}

	err := tn.ReceiveTrialResult(tuner.Result{ParameterID: 0, Value: 1.5})
	if err != nil {
		t.Fatalf("ReceiveTrialResult without params failed: %v", err)
	}
	if tn.Population() != 1 {
		t.Errorf("Expected pending params to be incorporated, population %d", tn.Population())
	}

	// No pending entry and no params: nothing to incorporate.
	err = tn.ReceiveTrialResult(tuner.Result{ParameterID: 77, Value: 2.0})
	if err == nil {
		t.Fatal("Expected error for result without any parameters")
	}
}

func TestReceiveTrialResult_BadReward(t *testing.T) {
	tn := New(2, 8, Minimize)
	adoptSpace(t, tn, tuneSpace)

	params, err := tn.GenerateParameters(0)
	if err != nil {
		t.Fatal(err)
	}

	err = tn.ReceiveTrialResult(tuner.Result{ParameterID: 0, Params: params, Value: "fast"})
	if err == nil {
		t.Fatal("Expected error for non-numeric reward")
	}
	if tn.Population() != 0 {
		t.Errorf("Bad result must not enter the population, got %d", tn.Population())
	}
}

func TestImportData_SeedsPopulation(t *testing.T) {
	tn := New(2, 3, Minimize)
	adoptSpace(t, tn, tuneSpace)

	err := tn.ImportData([]tuner.TrialRecord{
		{Parameter: tuner.Params{"lr": 0.01, "depth": 2.0}, Value: 0.5},
		{Parameter: tuner.Params{"lr": 0.02, "depth": 3.0}, Value: 0.2},
		{Parameter: tuner.Params{"lr": 0.05, "depth": 4.0}, Value: 0.9},
		{Parameter: tuner.Params{"lr": 0.03, "depth": 1.0}, Value: "not a reward"},
	})
	if err != nil {
		t.Fatalf("ImportData failed: %v", err)
	}

	if tn.Population() != 2 {
		t.Fatalf("Expected population of 2 after import, got %d", tn.Population())
	}
	best, reward, ok := tn.Best()
	if !ok || reward != 0.2 {
		t.Errorf("Expected best reward 0.2, got %v (ok=%v)", reward, ok)
	}
	if best["lr"] != 0.02 {
		t.Errorf("Unexpected best assignment: %v", best)
	}

	if err := tn.ImportData(nil); err != nil {
		t.Errorf("ImportData(nil) must not fail: %v", err)
	}
}

func TestUpdateSearchSpace_EvictsInvalidIndividuals(t *testing.T) {
	tn := New(4, 3, Minimize)
	adoptSpace(t, tn, tuneSpace)

	err := tn.ImportData([]tuner.TrialRecord{
		{Parameter: tuner.Params{"lr": 0.01, "depth": 2.0}, Value: 0.5},
		{Parameter: tuner.Params{"lr": 0.09, "depth": 5.0}, Value: 0.3},
	})
	if err != nil {
		t.Fatal(err)
	}

	// The narrowed space invalidates depth 5.
	adoptSpace(t, tn, `{
		"lr":    {"_type": "loguniform", "_value": [0.001, 0.1]},
		"depth": {"_type": "randint", "_value": [1, 4]}
	}`)

	if tn.Population() != 1 {
		t.Fatalf("Expected 1 surviving individual, got %d", tn.Population())
	}
	best, reward, _ := tn.Best()
	if reward != 0.5 || best["depth"] != 2.0 {
		t.Errorf("Wrong survivor: %v reward %v", best, reward)
	}
}

func TestCheckpoint_RoundTrip(t *testing.T) {
	first := New(3, 21, Minimize)
	adoptSpace(t, first, tuneSpace)

	for i := 0; i < 4; i++ {
		runTrial(t, first, i, float64(10-i))
	}

	dir := t.TempDir()
	if err := first.SaveCheckpoint(dir); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}

	restored := New(3, 0, Maximize) // constructor values are overridden by the checkpoint
	adoptSpace(t, restored, tuneSpace)
	if err := restored.LoadCheckpoint(dir); err != nil {
		t.Fatalf("LoadCheckpoint failed: %v", err)
	}

	if restored.Population() != first.Population() {
		t.Fatalf("Population mismatch after restore: %d vs %d", restored.Population(), first.Population())
	}

	for i := 4; i < 10; i++ {
		a, err := first.GenerateParameters(i)
		if err != nil {
			t.Fatal(err)
		}
		b, err := restored.GenerateParameters(i)
		if err != nil {
			t.Fatal(err)
		}
		if !sameParams(a, b) {
			t.Fatalf("Restored tuner diverged at %d: %v vs %v", i, a, b)
		}

		reward := float64(i)
		if err := first.ReceiveTrialResult(tuner.Result{ParameterID: i, Params: a, Value: reward}); err != nil {
			t.Fatal(err)
		}
		if err := restored.ReceiveTrialResult(tuner.Result{ParameterID: i, Params: b, Value: reward}); err != nil {
			t.Fatal(err)
		}
	}
}
