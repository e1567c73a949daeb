package tuner

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// MultiGenerator is implemented by algorithms with native multi-assignment
// generation. GenerateMultiple dispatches to it when present, so a type may
// override batch generation instead of (or in addition to) the single form.
type MultiGenerator interface {
	GenerateMultipleParameters(ids []int) ([]Params, error)
}

// GenerateMultiple requests one assignment per id, in order.
//
// When the space runs out mid-batch the partial result is the contract: for n
// ids where the k-th single generation signals ErrNoMoreTrials, exactly the
// first k-1 assignments are returned with a nil error, ordered like their
// ids. The caller learns how much of the batch it can schedule without
// treating exhaustion as a failure.
//
// Any other fault abandons the batch: assignments already granted are
// withdrawn — the tuner sees TrialEnd(id, false) for each, since those trials
// will never run — and the fault is returned with no partial results.
func GenerateMultiple(t Tuner, ids []int) ([]Params, error) {
	if mg, ok := t.(MultiGenerator); ok {
		return mg.GenerateMultipleParameters(ids)
	}

	out := make([]Params, 0, len(ids))
	for i, id := range ids {
		slog.Debug("Generating parameters", "parameter_id", id)
		params, err := t.GenerateParameters(id)
		if errors.Is(err, ErrNoMoreTrials) {
			return out, nil
		}
		if err != nil {
			for _, granted := range ids[:i] {
				t.TrialEnd(granted, false)
			}
			return nil, fmt.Errorf("failed to generate parameters for %d: %w", id, err)
		}
		out = append(out, params)
	}
	return out, nil
}

// RewardOf extracts the scalar reward from a reported trial value: a bare
// number, or a map carrying the scalar under "default".
func RewardOf(value any) (float64, error) {
	switch v := value.(type) {
	case map[string]any:
		d, ok := v["default"]
		if !ok {
			return 0, fmt.Errorf("trial value has no \"default\" entry")
		}
		return RewardOf(d)
	case Params:
		return RewardOf(map[string]any(v))
	}

	if f, ok := toFloat(value); ok {
		return f, nil
	}
	return 0, fmt.Errorf("trial value %v (%T) is not a number", value, value)
}

// toFloat converts the numeric types a JSON or YAML decoder can produce.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
