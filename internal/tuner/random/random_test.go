package random

import (
	"errors"
	"testing"

	"github.com/tunelab/hypertune/internal/searchspace"
	"github.com/tunelab/hypertune/internal/tuner"
)

const mixedSpace = `{
	"batch": {"_type": "choice",  "_value": [16, 32, 64]},
	"lr":    {"_type": "loguniform", "_value": [0.0001, 0.1]},
	"depth": {"_type": "randint", "_value": [1, 8]}
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

func TestGenerate_Deterministic(t *testing.T) {
	a := New(42, false)
	b := New(42, false)
	adoptSpace(t, a, mixedSpace)
	adoptSpace(t, b, mixedSpace)

	for i := 0; i < 20; i++ {
		pa, err := a.GenerateParameters(i)
		if err != nil {
			t.Fatalf("GenerateParameters failed: %v", err)
		}
		pb, err := b.GenerateParameters(i)
		if err != nil {
			t.Fatalf("GenerateParameters failed: %v", err)
		}
		if !sameParams(pa, pb) {
			t.Fatalf("Same seed diverged at draw %d: %v vs %v", i, pa, pb)
		}
	}
}

func TestGenerate_WithinDomain(t *testing.T) {
	tn := New(7, false)
	space := adoptSpace(t, tn, mixedSpace)

	for i := 0; i < 50; i++ {
		params, err := tn.GenerateParameters(i)
		if err != nil {
			t.Fatalf("GenerateParameters failed: %v", err)
		}
		if err := space.Validate(params); err != nil {
			t.Fatalf("Draw %d violates the space: %v", i, err)
		}
	}
}

func TestGenerate_NoSpace(t *testing.T) {
	tn := New(1, false)
	if _, err := tn.GenerateParameters(0); err == nil {
		t.Fatal("Expected error without a search space")
	}
}

func TestDedup_CoversFiniteSpaceThenExhausts(t *testing.T) {
	tn := New(3, true)
	adoptSpace(t, tn, `{"x": {"_type": "choice", "_value": [1, 2]}}`)

	out, err := tuner.GenerateMultiple(tn, []int{0, 1, 2})
	if err != nil {
		t.Fatalf("GenerateMultiple failed: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("Expected 2 assignments before exhaustion, got %d", len(out))
	}
	if sameParams(out[0], out[1]) {
		t.Errorf("Dedup issued a repeated assignment: %v", out)
	}

	if _, err := tn.GenerateParameters(3); !errors.Is(err, tuner.ErrNoMoreTrials) {
		t.Fatalf("Expected ErrNoMoreTrials, got %v", err)
	}
}

func TestNoDedup_RepeatsFreely(t *testing.T) {
	tn := New(3, false)
	adoptSpace(t, tn, `{"x": {"_type": "choice", "_value": [1]}}`)

	for i := 0; i < 5; i++ {
		params, err := tn.GenerateParameters(i)
		if err != nil {
			t.Fatalf("GenerateParameters(%d) failed: %v", i, err)
		}
		if params["x"] != 1.0 {
			t.Errorf("Unexpected assignment: %v", params)
		}
	}
}

func TestImportData_CountsTowardCoverage(t *testing.T) {
	tn := New(9, true)
	adoptSpace(t, tn, `{"x": {"_type": "choice", "_value": [1, 2]}}`)

	err := tn.ImportData([]tuner.TrialRecord{
		{Parameter: tuner.Params{"x": 1.0}, Value: 0.4},
	})
	if err != nil {
		t.Fatalf("ImportData failed: %v", err)
	}

	params, err := tn.GenerateParameters(0)
	if err != nil {
		t.Fatalf("GenerateParameters failed: %v", err)
	}
	if params["x"] != 2.0 {
		t.Errorf("Expected the uncovered assignment, got %v", params)
	}

	if _, err := tn.GenerateParameters(1); !errors.Is(err, tuner.ErrNoMoreTrials) {
		t.Fatalf("Expected ErrNoMoreTrials, got %v", err)
	}
}

func TestCheckpoint_ContinuesExactStream(t *testing.T) {
	first := New(42, false)
	adoptSpace(t, first, mixedSpace)

	for i := 0; i < 3; i++ {
		if _, err := first.GenerateParameters(i); err != nil {
			t.Fatalf("GenerateParameters failed: %v", err)
		}
	}

	dir := t.TempDir()
	if err := first.SaveCheckpoint(dir); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}

	restored := New(0, false) // seed comes from the checkpoint
	adoptSpace(t, restored, mixedSpace)
	if err := restored.LoadCheckpoint(dir); err != nil {
		t.Fatalf("LoadCheckpoint failed: %v", err)
	}

	for i := 3; i < 10; i++ {
		a, err := first.GenerateParameters(i)
		if err != nil {
			t.Fatalf("GenerateParameters failed: %v", err)
		}
		b, err := restored.GenerateParameters(i)
		if err != nil {
			t.Fatalf("GenerateParameters failed: %v", err)
		}
		if !sameParams(a, b) {
			t.Fatalf("Restored stream diverged at draw %d: %v vs %v", i, a, b)
		}
	}
}

func TestUpdateSearchSpace_KeepsStreamPosition(t *testing.T) {
	a := New(5, false)
	b := New(5, false)
	adoptSpace(t, a, mixedSpace)
	adoptSpace(t, b, mixedSpace)

	// a advances two draws before switching spaces; b advances the same two.
	for i := 0; i < 2; i++ {
		if _, err := a.GenerateParameters(i); err != nil {
			t.Fatal(err)
		}
		if _, err := b.GenerateParameters(i); err != nil {
			t.Fatal(err)
		}
	}

	next := `{"y": {"_type": "uniform", "_value": [0, 1]}}`
	adoptSpace(t, a, next)
	adoptSpace(t, b, next)

	pa, err := a.GenerateParameters(2)
	if err != nil {
		t.Fatal(err)
	}
	pb, err := b.GenerateParameters(2)
	if err != nil {
		t.Fatal(err)
	}
	if !sameParams(pa, pb) {
		t.Errorf("Stream position not preserved across space update: %v vs %v", pa, pb)
	}
}
