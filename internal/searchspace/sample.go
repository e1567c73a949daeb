package searchspace

import (
	"fmt"
	"math"
	"math/rand"
)

// numEps is the tolerance used when comparing sampled floating-point values.
const numEps = 1e-9

// Sample draws one assignment covering every dimension, using rng as the
// randomness source.
func (s *Space) Sample(rng *rand.Rand) map[string]any {
	params := make(map[string]any, len(s.names))
	for _, name := range s.names {
		params[name] = s.dims[name].Sample(rng)
	}
	return params
}

// Sample draws one value from the dimension's distribution.
func (d Dimension) Sample(rng *rand.Rand) any {
	switch d.Kind {
	case KindChoice:
		return d.Choices[rng.Intn(len(d.Choices))]
	case KindRandInt:
		return float64(int64(d.Low) + rng.Int63n(int64(d.High)-int64(d.Low)))
	case KindUniform:
		return d.Low + rng.Float64()*(d.High-d.Low)
	case KindQUniform:
		v := d.Low + rng.Float64()*(d.High-d.Low)
		return clampQ(v, d.Low, d.High, d.Q)
	case KindLogUniform:
		lo, hi := math.Log(d.Low), math.Log(d.High)
		return math.Exp(lo + rng.Float64()*(hi-lo))
	case KindNormal:
		return d.Mu + rng.NormFloat64()*d.Sigma
	}
	return nil
}

// Values enumerates the dimension's distinct values for finite kinds
// (choice, randint, quniform). ok is false for continuous kinds and for
// dimensions whose enumeration would exceed the enumeration cap.
func (d Dimension) Values() ([]any, bool) {
	switch d.Kind {
	case KindChoice:
		return append([]any{}, d.Choices...), true
	case KindRandInt:
		span := int64(d.High) - int64(d.Low)
		if span > maxEnumValues {
			return nil, false
		}
		values := make([]any, 0, span)
		for i := int64(0); i < span; i++ {
			values = append(values, float64(int64(d.Low)+i))
		}
		return values, true
	case KindQUniform:
		steps := (d.High - d.Low) / d.Q
		if steps > maxEnumValues {
			return nil, false
		}
		var values []any
		var last float64 = math.NaN()
		for v := d.Low; v <= d.High+numEps; v += d.Q {
			q := clampQ(v, d.Low, d.High, d.Q)
			if math.Abs(q-last) > numEps {
				values = append(values, q)
				last = q
			}
		}
		return values, true
	}
	return nil, false
}

// Check reports whether v is a valid value for the dimension.
func (d Dimension) Check(v any) error {
	switch d.Kind {
	case KindChoice:
		for _, c := range d.Choices {
			if equalScalar(c, v) {
				return nil
			}
		}
		return fmt.Errorf("value %v is not one of the choices", v)
	case KindRandInt:
		f, ok := toFloat(v)
		if !ok {
			return fmt.Errorf("value %v is not numeric", v)
		}
		if f != math.Trunc(f) {
			return fmt.Errorf("value %v is not an integer", v)
		}
		if f < d.Low || f >= d.High {
			return fmt.Errorf("value %v outside [%d, %d)", v, int64(d.Low), int64(d.High))
		}
	case KindUniform, KindLogUniform:
		f, ok := toFloat(v)
		if !ok {
			return fmt.Errorf("value %v is not numeric", v)
		}
		if f < d.Low-numEps || f > d.High+numEps {
			return fmt.Errorf("value %v outside [%g, %g]", v, d.Low, d.High)
		}
	case KindQUniform:
		f, ok := toFloat(v)
		if !ok {
			return fmt.Errorf("value %v is not numeric", v)
		}
		if f < d.Low-numEps || f > d.High+numEps {
			return fmt.Errorf("value %v outside [%g, %g]", v, d.Low, d.High)
		}
		// Clamped endpoints are reachable even when they are not multiples of q.
		onStep := math.Abs(f/d.Q-math.Round(f/d.Q)) < numEps
		if !onStep && math.Abs(f-d.Low) > numEps && math.Abs(f-d.High) > numEps {
			return fmt.Errorf("value %v is not a multiple of %g", v, d.Q)
		}
	case KindNormal:
		if _, ok := toFloat(v); !ok {
			return fmt.Errorf("value %v is not numeric", v)
		}
	}
	return nil
}

// clampQ rounds v to the nearest multiple of q and clamps it to [low, high].
func clampQ(v, low, high, q float64) float64 {
	v = math.Round(v/q) * q
	if v < low {
		v = low
	}
	if v > high {
		v = high
	}
	return v
}

// equalScalar compares two scalars, treating all numeric types as equivalent.
func equalScalar(a, b any) bool {
	fa, aok := toFloat(a)
	fb, bok := toFloat(b)
	if aok && bok {
		return math.Abs(fa-fb) < numEps
	}
	return a == b
}
