package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tunelab/hypertune/internal/journal"
	"github.com/tunelab/hypertune/internal/objective"
	"github.com/tunelab/hypertune/internal/searchspace"
	"github.com/tunelab/hypertune/internal/session"
	"github.com/tunelab/hypertune/internal/store"
	"github.com/tunelab/hypertune/internal/tuner"
)

var (
	spacePath       string
	sessionID       string
	importPath      string
	objectiveName   string
	maxTrials       int
	batchSize       int
	dataDir         string
	checkpointEvery int
	patience        int
	threshold       float64
	journalPath     string
	exportPath      string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a tuning session against a benchmark objective",
	Long: `Runs a complete tuning session: the tuner proposes assignments from the
search space, the benchmark objective scores them, and the results steer
the search. The session is checkpointed so it can be resumed later.`,
	RunE: runTuning,
}

func init() {
	runCmd.Flags().StringVar(&spacePath, "space", "", "Search space file (required)")
	runCmd.Flags().StringVar(&sessionID, "session", "", "Session ID (generated when empty)")
	runCmd.Flags().StringVar(&importPath, "import", "", "Warm-start from this JSON Lines trial history")
	registerLoopFlags(runCmd)

	runCmd.MarkFlagRequired("space")
	rootCmd.AddCommand(runCmd)
}

// registerLoopFlags binds the trial-loop flags shared by run and resume.
func registerLoopFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&objectiveName, "objective", "sphere", "Benchmark objective: "+strings.Join(objective.Names(), ", "))
	cmd.Flags().IntVar(&maxTrials, "trials", 30, "Maximum trials to run")
	cmd.Flags().IntVar(&batchSize, "batch", 1, "Assignments requested per round")
	cmd.Flags().StringVar(&dataDir, "data-dir", "./data", "Base directory for session storage")
	cmd.Flags().IntVar(&checkpointEvery, "checkpoint-every", 0, "Checkpoint every N trials (0 = final only)")
	cmd.Flags().IntVar(&patience, "patience", 0, "Stop after N trials without improvement (0 = run all trials)")
	cmd.Flags().Float64Var(&threshold, "threshold", 0.001, "Minimum relative improvement to reset patience")
	cmd.Flags().StringVar(&journalPath, "journal", "", "SQLite journal path (empty = disabled)")
	cmd.Flags().StringVar(&exportPath, "export", "", "Write completed trials to this JSON Lines file")
	registerTunerFlags(cmd)
}

func runTuning(cmd *cobra.Command, args []string) error {
	slog.Info("Starting tuning run", "tuner", tunerName, "objective", objectiveName, "trials", maxTrials)

	evaluate, ok := objective.Lookup(objectiveName)
	if !ok {
		return fmt.Errorf("unknown objective: %s (choose %s)", objectiveName, strings.Join(objective.Names(), ", "))
	}

	space, err := searchspace.ParseFile(spacePath)
	if err != nil {
		return fmt.Errorf("search space is invalid: %w", err)
	}

	tn, err := buildTuner(tunerName)
	if err != nil {
		return err
	}

	fsStore, err := store.NewFSStore(dataDir)
	if err != nil {
		return fmt.Errorf("failed to create session store: %w", err)
	}

	cfg := session.Config{ID: sessionID, Store: fsStore}
	if journalPath != "" {
		db, err := journal.Open(journalPath)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer db.Close()
		cfg.Recorder = db
	}

	s := session.New(tn, cfg)
	if err := s.UpdateSearchSpace(space); err != nil {
		return fmt.Errorf("tuner rejected the search space: %w", err)
	}
	slog.Info("Session created", "session_id", s.ID(), "dimensions", space.Len())

	if importPath != "" {
		if err := warmStart(s, importPath); err != nil {
			return err
		}
	}

	return executeTrials(s, evaluate)
}

// warmStart feeds a JSON Lines trial history into the session before the
// first assignment is issued.
func warmStart(s *session.Session, path string) error {
	reader, err := journal.NewRecordReader(path)
	if err != nil {
		return fmt.Errorf("failed to open import file: %w", err)
	}
	defer reader.Close()

	records, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to read import file: %w", err)
	}
	if err := s.ImportData(records); err != nil {
		return fmt.Errorf("failed to import history: %w", err)
	}

	slog.Info("Imported trial history", "records", len(records), "path", path)
	return nil
}

// executeTrials drives the generate/evaluate/report loop until the trial
// budget is spent, the space is exhausted, or progress plateaus.
func executeTrials(s *session.Session, evaluate objective.Func) error {
	var writer *journal.RecordWriter
	if exportPath != "" {
		var err error
		writer, err = journal.NewRecordWriter(exportPath, false)
		if err != nil {
			return fmt.Errorf("failed to open export file: %w", err)
		}
		defer writer.Close()
	}

	trackerConfig := objective.DisabledTrackerConfig()
	if patience > 0 {
		trackerConfig = objective.TrackerConfig{Enabled: true, Patience: patience, Threshold: threshold}
	}
	tracker := objective.NewTracker(trackerConfig)

	start := time.Now()
	completed := 0
	exhausted := false
	plateaued := false

loop:
	for completed < maxTrials {
		want := batchSize
		if remaining := maxTrials - completed; want > remaining {
			want = remaining
		}

		batch, err := s.GenerateBatch(want)
		if errors.Is(err, tuner.ErrNoMoreTrials) {
			exhausted = true
			break
		}
		if err != nil {
			return fmt.Errorf("failed to generate assignments: %w", err)
		}

		for _, issued := range batch {
			value, err := evaluate(issued.Params)
			if err != nil {
				return fmt.Errorf("objective cannot evaluate trial %d: %w", issued.ParameterID, err)
			}

			if err := s.ReceiveResult(tuner.Result{ParameterID: issued.ParameterID, Value: value}); err != nil {
				return fmt.Errorf("failed to report trial %d: %w", issued.ParameterID, err)
			}
			completed++
			slog.Debug("Trial evaluated", "parameter_id", issued.ParameterID, "value", value)

			if writer != nil {
				record := tuner.TrialRecord{Parameter: issued.Params, Value: value}
				if err := writer.Write(record); err != nil {
					return fmt.Errorf("failed to export trial %d: %w", issued.ParameterID, err)
				}
			}

			if tracker.Update(value) {
				plateaued = true
				break loop
			}

			// Periodic checkpoints are best effort; the final one commits.
			if checkpointEvery > 0 && completed%checkpointEvery == 0 {
				if err := s.Checkpoint(); err != nil {
					slog.Warn("Periodic checkpoint failed", "session_id", s.ID(), "error", err)
				}
			}
		}

		if len(batch) < want {
			exhausted = true
			break
		}
	}

	if err := s.Checkpoint(); err != nil {
		return fmt.Errorf("failed to checkpoint session: %w", err)
	}
	if writer != nil {
		if err := writer.Flush(); err != nil {
			return fmt.Errorf("failed to flush export file: %w", err)
		}
	}

	reportRun(s, completed, time.Since(start), exhausted, plateaued)
	return nil
}

func reportRun(s *session.Session, completed int, elapsed time.Duration, exhausted, plateaued bool) {
	perSecond := 0.0
	if elapsed > 0 {
		perSecond = float64(completed) / elapsed.Seconds()
	}

	slog.Info("Tuning run complete",
		"session_id", s.ID(),
		"trials", completed,
		"elapsed", elapsed,
		"exhausted", exhausted,
		"plateaued", plateaued,
	)

	outcome := "budget reached"
	if plateaued {
		outcome = "plateaued"
	}
	if exhausted {
		outcome = "space exhausted"
	}
	fmt.Printf("Session %s: %d trial(s) in %s (%s, %.1f trials/sec)\n",
		s.ID(), completed, elapsed.Round(time.Millisecond), outcome, perSecond)

	if best, ok := bestTrial(s); ok {
		params, _ := json.Marshal(best.Params)
		fmt.Printf("Best trial %d: %.6f\n  %s\n", best.ParameterID, best.Reward, params)
	}
}

// bestTrial returns the completed trial with the lowest objective value.
func bestTrial(s *session.Session) (store.TrialEntry, bool) {
	var best store.TrialEntry
	bestValue := math.Inf(1)
	found := false

	for _, trial := range s.Trials() {
		if trial.Status != store.StatusCompleted {
			continue
		}
		if trial.Reward < bestValue {
			best = trial
			bestValue = trial.Reward
			found = true
		}
	}
	return best, found
}
