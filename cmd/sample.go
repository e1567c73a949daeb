package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tunelab/hypertune/internal/searchspace"
	"github.com/tunelab/hypertune/internal/session"
	"github.com/tunelab/hypertune/internal/tuner"
)

var (
	sampleSpacePath  string
	sampleCount      int
	sampleImportPath string
)

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Draw assignments from a search space without running trials",
	Long: `Draws a batch of assignments the way a tuning run would, and prints
them as JSON lines. Useful for eyeballing a space or a tuner's coverage.`,
	RunE: runSample,
}

func init() {
	sampleCmd.Flags().StringVar(&sampleSpacePath, "space", "", "Search space file (required)")
	sampleCmd.Flags().IntVar(&sampleCount, "count", 5, "Number of assignments to draw")
	sampleCmd.Flags().StringVar(&sampleImportPath, "import", "", "Mark this JSON Lines trial history as already covered")
	registerTunerFlags(sampleCmd)

	sampleCmd.MarkFlagRequired("space")
	rootCmd.AddCommand(sampleCmd)
}

func runSample(cmd *cobra.Command, args []string) error {
	space, err := searchspace.ParseFile(sampleSpacePath)
	if err != nil {
		return fmt.Errorf("search space is invalid: %w", err)
	}

	tn, err := buildTuner(tunerName)
	if err != nil {
		return err
	}

	s := session.New(tn, session.Config{})
	if err := s.UpdateSearchSpace(space); err != nil {
		return fmt.Errorf("tuner rejected the search space: %w", err)
	}

	if sampleImportPath != "" {
		if err := warmStart(s, sampleImportPath); err != nil {
			return err
		}
	}

	issued, err := s.GenerateBatch(sampleCount)
	if errors.Is(err, tuner.ErrNoMoreTrials) {
		fmt.Println("The space yields no assignments.")
		return nil
	}
	if err != nil {
		return err
	}

	for _, assignment := range issued {
		line, err := json.Marshal(assignment)
		if err != nil {
			return fmt.Errorf("failed to encode assignment: %w", err)
		}
		fmt.Println(string(line))
	}

	if len(issued) < sampleCount {
		fmt.Printf("Space exhausted after %d assignment(s)\n", len(issued))
	}
	return nil
}
