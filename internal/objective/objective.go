// Package objective provides synthetic benchmark functions for exercising
// tuners end to end, plus an early-stopping tracker over trial outcomes.
package objective

import (
	"fmt"
	"math"
	"sort"
)

// Func evaluates an assignment and returns the objective value to minimize.
type Func func(params map[string]any) (float64, error)

var functions = map[string]Func{
	"sphere":     Sphere,
	"rosenbrock": Rosenbrock,
	"rastrigin":  Rastrigin,
}

// Lookup returns the benchmark function registered under name.
func Lookup(name string) (Func, bool) {
	fn, ok := functions[name]
	return fn, ok
}

// Names returns the registered benchmark names in sorted order.
func Names() []string {
	names := make([]string, 0, len(functions))
	for name := range functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sphere computes the sum of squares. The minimum is 0 at the origin.
func Sphere(params map[string]any) (float64, error) {
	xs, err := vector(params)
	if err != nil {
		return 0, err
	}

	var sum float64
	for _, x := range xs {
		sum += x * x
	}
	return sum, nil
}

// Rosenbrock computes the banana-valley function over the dimensions in
// name order. The minimum is 0 at (1, ..., 1). A single dimension has no
// coupled term and evaluates to 0.
func Rosenbrock(params map[string]any) (float64, error) {
	xs, err := vector(params)
	if err != nil {
		return 0, err
	}

	var sum float64
	for i := 0; i+1 < len(xs); i++ {
		a := xs[i+1] - xs[i]*xs[i]
		b := 1 - xs[i]
		sum += 100*a*a + b*b
	}
	return sum, nil
}

// Rastrigin computes the highly multimodal cosine-modulated bowl.
// The minimum is 0 at the origin.
func Rastrigin(params map[string]any) (float64, error) {
	xs, err := vector(params)
	if err != nil {
		return 0, err
	}

	sum := 10 * float64(len(xs))
	for _, x := range xs {
		sum += x*x - 10*math.Cos(2*math.Pi*x)
	}
	return sum, nil
}

// vector flattens an assignment into a coordinate vector ordered by
// dimension name, so evaluation does not depend on map iteration order.
func vector(params map[string]any) ([]float64, error) {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	xs := make([]float64, 0, len(names))
	for _, name := range names {
		x, ok := toFloat(params[name])
		if !ok {
			return nil, fmt.Errorf("dimension %s is not numeric: %v", name, params[name])
		}
		xs = append(xs, x)
	}
	return xs, nil
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}
