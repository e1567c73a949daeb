package searchspace

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Kind identifies how a dimension's values are distributed.
type Kind string

const (
	KindChoice     Kind = "choice"
	KindRandInt    Kind = "randint"
	KindUniform    Kind = "uniform"
	KindQUniform   Kind = "quniform"
	KindLogUniform Kind = "loguniform"
	KindNormal     Kind = "normal"
)

// maxEnumValues caps how many values a single dimension may enumerate.
// Dimensions above the cap are treated as non-enumerable.
const maxEnumValues = 100000

// Dimension describes one named axis of a search space.
// Which fields are meaningful depends on Kind:
//   - choice: Choices
//   - randint: Low, High (integer bounds, half-open [Low, High))
//   - uniform, loguniform: Low, High
//   - quniform: Low, High, Q
//   - normal: Mu, Sigma
type Dimension struct {
	Name    string
	Kind    Kind
	Choices []any
	Low     float64
	High    float64
	Q       float64
	Mu      float64
	Sigma   float64
}

// Space is an immutable, validated set of named dimensions.
// The zero value is not usable; construct with New or Parse.
type Space struct {
	dims  map[string]Dimension
	names []string // sorted for deterministic iteration
}

// New builds a space from the given dimensions.
// Returns a ValidationError naming the offending dimension if any is malformed,
// or if the space is empty or contains duplicate names.
func New(dims ...Dimension) (*Space, error) {
	if len(dims) == 0 {
		return nil, &ValidationError{Reason: "search space has no dimensions"}
	}

	s := &Space{
		dims:  make(map[string]Dimension, len(dims)),
		names: make([]string, 0, len(dims)),
	}

	for _, d := range dims {
		if err := checkDimension(d); err != nil {
			return nil, err
		}
		if _, exists := s.dims[d.Name]; exists {
			return nil, &ValidationError{Dimension: d.Name, Reason: "duplicate dimension name"}
		}
		s.dims[d.Name] = d
		s.names = append(s.names, d.Name)
	}

	sort.Strings(s.names)
	return s, nil
}

// Names returns the dimension names in sorted order.
func (s *Space) Names() []string {
	return append([]string{}, s.names...)
}

// Get returns the named dimension.
func (s *Space) Get(name string) (Dimension, bool) {
	d, ok := s.dims[name]
	return d, ok
}

// Len returns the number of dimensions.
func (s *Space) Len() int {
	return len(s.names)
}

// FiniteSize returns the total number of distinct assignments if every
// dimension is enumerable, otherwise ok is false.
func (s *Space) FiniteSize() (int, bool) {
	total := 1
	for _, name := range s.names {
		d := s.dims[name]
		values, ok := d.Values()
		if !ok {
			return 0, false
		}
		total *= len(values)
		if total > maxEnumValues {
			return 0, false
		}
	}
	return total, true
}

// Validate checks that params assigns a valid value to every dimension and
// nothing else. Violations are reported as ValidationError.
func (s *Space) Validate(params map[string]any) error {
	for name := range params {
		if _, ok := s.dims[name]; !ok {
			return &ValidationError{Dimension: name, Reason: "not a dimension of the search space"}
		}
	}
	for _, name := range s.names {
		v, ok := params[name]
		if !ok {
			return &ValidationError{Dimension: name, Reason: "missing assignment"}
		}
		if err := s.dims[name].Check(v); err != nil {
			return &ValidationError{Dimension: name, Reason: err.Error()}
		}
	}
	return nil
}

// checkDimension verifies that a dimension's fields are consistent with its kind.
func checkDimension(d Dimension) error {
	if d.Name == "" {
		return &ValidationError{Reason: "dimension name cannot be empty"}
	}

	switch d.Kind {
	case KindChoice:
		if len(d.Choices) == 0 {
			return &ValidationError{Dimension: d.Name, Reason: "choice requires at least one value"}
		}
		for _, c := range d.Choices {
			if !isScalar(c) {
				return &ValidationError{Dimension: d.Name, Reason: fmt.Sprintf("choice value %v is not a scalar", c)}
			}
		}
	case KindRandInt:
		if d.Low != math.Trunc(d.Low) || d.High != math.Trunc(d.High) {
			return &ValidationError{Dimension: d.Name, Reason: "randint bounds must be integers"}
		}
		if d.Low >= d.High {
			return &ValidationError{Dimension: d.Name, Reason: "randint requires lower < upper"}
		}
	case KindUniform:
		if d.Low >= d.High {
			return &ValidationError{Dimension: d.Name, Reason: "uniform requires low < high"}
		}
	case KindQUniform:
		if d.Low >= d.High {
			return &ValidationError{Dimension: d.Name, Reason: "quniform requires low < high"}
		}
		if d.Q <= 0 {
			return &ValidationError{Dimension: d.Name, Reason: "quniform requires q > 0"}
		}
	case KindLogUniform:
		if d.Low <= 0 {
			return &ValidationError{Dimension: d.Name, Reason: "loguniform requires low > 0"}
		}
		if d.Low >= d.High {
			return &ValidationError{Dimension: d.Name, Reason: "loguniform requires low < high"}
		}
	case KindNormal:
		if d.Sigma <= 0 {
			return &ValidationError{Dimension: d.Name, Reason: "normal requires sigma > 0"}
		}
	default:
		return &ValidationError{Dimension: d.Name, Reason: fmt.Sprintf("unsupported kind %q", d.Kind)}
	}

	return nil
}

// Domain returns a short human-readable description of the dimension's domain.
func (d Dimension) Domain() string {
	switch d.Kind {
	case KindChoice:
		parts := make([]string, len(d.Choices))
		for i, c := range d.Choices {
			parts[i] = fmt.Sprintf("%v", c)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case KindRandInt:
		return fmt.Sprintf("[%d, %d) int", int64(d.Low), int64(d.High))
	case KindUniform:
		return fmt.Sprintf("[%g, %g]", d.Low, d.High)
	case KindQUniform:
		return fmt.Sprintf("[%g, %g] step %g", d.Low, d.High, d.Q)
	case KindLogUniform:
		return fmt.Sprintf("[%g, %g] log", d.Low, d.High)
	case KindNormal:
		return fmt.Sprintf("N(%g, %g)", d.Mu, d.Sigma)
	}
	return string(d.Kind)
}

// ValidationError reports a malformed search space or an assignment that
// violates it. Dimension may be empty when the space as a whole is at fault.
type ValidationError struct {
	Dimension string
	Reason    string
}

func (e *ValidationError) Error() string {
	if e.Dimension != "" {
		return "invalid search space: dimension " + e.Dimension + ": " + e.Reason
	}
	return "invalid search space: " + e.Reason
}

func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// isScalar reports whether v is a JSON scalar (string, bool, or number).
func isScalar(v any) bool {
	switch v.(type) {
	case string, bool:
		return true
	}
	_, ok := toFloat(v)
	return ok
}
