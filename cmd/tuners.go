package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tunelab/hypertune/internal/tuner"
	"github.com/tunelab/hypertune/internal/tuner/evolution"
	"github.com/tunelab/hypertune/internal/tuner/grid"
	"github.com/tunelab/hypertune/internal/tuner/random"
)

var (
	tunerName string
	seed      int64
	popSize   int
	dedup     bool
)

// registerTunerFlags binds the tuner construction flags shared by the
// run, resume, and sample commands.
func registerTunerFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&tunerName, "tuner", "random", "Search algorithm: grid, random, evolution")
	cmd.Flags().Int64Var(&seed, "seed", 42, "Random seed")
	cmd.Flags().IntVar(&popSize, "pop", 20, "Population size (evolution)")
	cmd.Flags().BoolVar(&dedup, "dedup", false, "Never repeat assignments on finite spaces (random)")
}

// buildTuner constructs the named algorithm from the shared flags.
// Benchmarks are costs, so evolution runs in minimization mode.
func buildTuner(name string) (tuner.Tuner, error) {
	switch name {
	case "grid":
		return grid.New(), nil
	case "random":
		return random.New(seed, dedup), nil
	case "evolution":
		return evolution.New(popSize, seed, evolution.Minimize), nil
	}
	return nil, fmt.Errorf("unknown tuner: %s (choose grid, random, or evolution)", name)
}
