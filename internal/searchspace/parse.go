package searchspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// wireDim is the serialized form of a dimension:
//
//	{"_type": "choice", "_value": [1, 2, 3]}
type wireDim struct {
	Type  string `json:"_type" yaml:"_type"`
	Value []any  `json:"_value" yaml:"_value"`
}

// Parse decodes a JSON search space of the form
// {"name": {"_type": KIND, "_value": [...]}}.
func Parse(data []byte) (*Space, error) {
	var raw map[string]wireDim
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode search space: %w", err)
	}
	return fromWire(raw)
}

// ParseYAML decodes the YAML rendering of the same tree Parse accepts.
func ParseYAML(data []byte) (*Space, error) {
	var raw map[string]wireDim
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode search space: %w", err)
	}
	return fromWire(raw)
}

// ParseFile reads a search space from disk, choosing the decoder by file
// extension (.yaml/.yml for YAML, anything else JSON).
func ParseFile(path string) (*Space, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read search space file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return Parse(data)
	}
}

// fromWire builds a validated Space from decoded wire dimensions.
func fromWire(raw map[string]wireDim) (*Space, error) {
	if len(raw) == 0 {
		return nil, &ValidationError{Reason: "search space has no dimensions"}
	}

	dims := make([]Dimension, 0, len(raw))
	for name, w := range raw {
		d, err := buildDimension(name, w)
		if err != nil {
			return nil, err
		}
		dims = append(dims, d)
	}

	return New(dims...)
}

// buildDimension converts one wire dimension into a typed Dimension.
func buildDimension(name string, w wireDim) (Dimension, error) {
	d := Dimension{Name: name, Kind: Kind(w.Type)}

	bounds := func(n int) ([]float64, error) {
		if len(w.Value) != n {
			return nil, &ValidationError{
				Dimension: name,
				Reason:    fmt.Sprintf("%s expects %d values, got %d", w.Type, n, len(w.Value)),
			}
		}
		out := make([]float64, n)
		for i, v := range w.Value {
			f, ok := toFloat(v)
			if !ok {
				return nil, &ValidationError{
					Dimension: name,
					Reason:    fmt.Sprintf("%s value %v is not numeric", w.Type, v),
				}
			}
			out[i] = f
		}
		return out, nil
	}

	switch d.Kind {
	case KindChoice:
		d.Choices = append([]any{}, w.Value...)
	case KindRandInt, KindUniform, KindLogUniform:
		b, err := bounds(2)
		if err != nil {
			return Dimension{}, err
		}
		d.Low, d.High = b[0], b[1]
	case KindQUniform:
		b, err := bounds(3)
		if err != nil {
			return Dimension{}, err
		}
		d.Low, d.High, d.Q = b[0], b[1], b[2]
	case KindNormal:
		b, err := bounds(2)
		if err != nil {
			return Dimension{}, err
		}
		d.Mu, d.Sigma = b[0], b[1]
	default:
		return Dimension{}, &ValidationError{Dimension: name, Reason: fmt.Sprintf("unsupported kind %q", w.Type)}
	}

	return d, nil
}

// MarshalJSON renders the space back into its wire form.
func (s *Space) MarshalJSON() ([]byte, error) {
	raw := make(map[string]wireDim, len(s.names))
	for _, name := range s.names {
		d := s.dims[name]
		w := wireDim{Type: string(d.Kind)}
		switch d.Kind {
		case KindChoice:
			w.Value = append([]any{}, d.Choices...)
		case KindRandInt, KindUniform, KindLogUniform:
			w.Value = []any{d.Low, d.High}
		case KindQUniform:
			w.Value = []any{d.Low, d.High, d.Q}
		case KindNormal:
			w.Value = []any{d.Mu, d.Sigma}
		}
		raw[name] = w
	}
	return json.Marshal(raw)
}

// UnmarshalJSON replaces the space with the decoded wire form.
func (s *Space) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*s = *parsed
	return nil
}

// toFloat converts the numeric types produced by the JSON and YAML decoders.
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
