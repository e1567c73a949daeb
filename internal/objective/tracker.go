package objective

import (
	"log/slog"
	"math"
)

// TrackerConfig defines parameters for detecting a stalled optimization
type TrackerConfig struct {
	// Enabled controls whether plateau detection is active
	Enabled bool

	// Patience is the number of completed trials with no improvement
	// before the run is considered converged
	Patience int

	// Threshold is the minimum relative improvement required to count as
	// progress. Example: 0.001 = 0.1% improvement required.
	// Relative improvement = (oldValue - newValue) / oldValue
	Threshold float64
}

// DefaultTrackerConfig returns sensible defaults for plateau detection
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		Enabled:   true,
		Patience:  10,
		Threshold: 0.001, // 0.1% improvement
	}
}

// DisabledTrackerConfig returns a config with plateau detection disabled
func DisabledTrackerConfig() TrackerConfig {
	return TrackerConfig{
		Enabled: false,
	}
}

// Tracker follows the objective values of completed trials and detects
// when a run has stopped making progress
type Tracker struct {
	config          TrackerConfig
	history         []float64
	best            float64 // Best value ever seen
	lastSignificant float64 // Last value that was a significant improvement
	staleCount      int     // Number of trials without significant improvement
}

// NewTracker creates a new plateau tracker with the given config
func NewTracker(config TrackerConfig) *Tracker {
	return &Tracker{
		config:          config,
		history:         []float64{},
		best:            math.Inf(1),
		lastSignificant: math.Inf(1),
		staleCount:      0,
	}
}

// Update records a new objective value and returns true if the run has
// plateaued
func (t *Tracker) Update(value float64) bool {
	if !t.config.Enabled {
		return false // Never converge if disabled
	}

	t.history = append(t.history, value)

	if value < t.best {
		t.best = value
	}

	// First value - initialize lastSignificant
	if len(t.history) == 1 {
		t.lastSignificant = value
		return false
	}

	// Relative improvement is undefined once the objective reaches zero
	// or below; fall back to the absolute improvement there.
	improvement := t.lastSignificant - value
	relative := improvement
	if t.lastSignificant > 0 {
		relative = improvement / t.lastSignificant
	}

	if relative >= t.config.Threshold {
		t.lastSignificant = value
		t.staleCount = 0
		slog.Debug("Objective improvement detected",
			"value", value,
			"relative_improvement", relative,
		)
	} else {
		t.staleCount++
		slog.Debug("No significant objective improvement",
			"value", value,
			"last_significant", t.lastSignificant,
			"stale_count", t.staleCount,
			"patience", t.config.Patience,
		)

		if t.staleCount >= t.config.Patience {
			slog.Info("Plateau detected - stopping early",
				"stale_count", t.staleCount,
				"patience", t.config.Patience,
				"best_value", t.best,
			)
			return true
		}
	}

	return false
}

// Best returns the best (lowest) value seen so far
func (t *Tracker) Best() float64 {
	return t.best
}

// History returns the full value history
func (t *Tracker) History() []float64 {
	return append([]float64{}, t.history...) // Return copy
}

// StaleCount returns the current number of trials without improvement
func (t *Tracker) StaleCount() int {
	return t.staleCount
}

// Reset clears the tracker's state
func (t *Tracker) Reset() {
	t.history = []float64{}
	t.best = math.Inf(1)
	t.lastSignificant = math.Inf(1)
	t.staleCount = 0
}
