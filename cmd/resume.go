package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tunelab/hypertune/internal/journal"
	"github.com/tunelab/hypertune/internal/objective"
	"github.com/tunelab/hypertune/internal/session"
	"github.com/tunelab/hypertune/internal/store"
)

var resumeCmd = &cobra.Command{
	Use:   "resume [session-id]",
	Short: "Resume a tuning session from its last checkpoint",
	Long: `Restores a persisted session and continues issuing trials where it left
off. The tuner flags must describe the same algorithm that created the
session; the saved state overrides seeds and positions.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	registerLoopFlags(resumeCmd)
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	evaluate, ok := objective.Lookup(objectiveName)
	if !ok {
		return fmt.Errorf("unknown objective: %s (choose %s)", objectiveName, strings.Join(objective.Names(), ", "))
	}

	tn, err := buildTuner(tunerName)
	if err != nil {
		return err
	}

	fsStore, err := store.NewFSStore(dataDir)
	if err != nil {
		return fmt.Errorf("failed to create session store: %w", err)
	}

	cfg := session.Config{}
	if journalPath != "" {
		db, err := journal.Open(journalPath)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer db.Close()
		cfg.Recorder = db
	}

	s, err := session.Restore(fsStore, args[0], tn, cfg)
	if err != nil {
		return fmt.Errorf("failed to restore session: %w", err)
	}

	slog.Info("Resuming session",
		"session_id", s.ID(),
		"tuner", s.TunerName(),
		"trials", len(s.Trials()),
		"exhausted", s.Exhausted(),
	)

	return executeTrials(s, evaluate)
}
