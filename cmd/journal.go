package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tunelab/hypertune/internal/journal"
	"github.com/tunelab/hypertune/internal/store"
)

var (
	journalDBPath string
	journalOut    string
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect the trial journal",
	Long: `Inspect the SQLite trial journal written during tuning runs.
The journal keeps the latest state of every trial across all sessions.`,
}

var journalSummaryCmd = &cobra.Command{
	Use:   "summary [session-id]",
	Short: "Summarize journaled sessions",
	Long: `Without arguments, lists every journaled session.
With a session ID, shows trial counts by status and the reward range.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJournalSummary,
}

var journalExportCmd = &cobra.Command{
	Use:   "export [session-id]",
	Short: "Export completed trials as JSON Lines",
	Long: `Writes the completed trials of a session as JSON Lines records,
suitable for warm-starting another run via 'run --import'.`,
	Args: cobra.ExactArgs(1),
	RunE: runJournalExport,
}

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalSummaryCmd)
	journalCmd.AddCommand(journalExportCmd)

	journalCmd.PersistentFlags().StringVar(&journalDBPath, "db", "./data/journal.db", "SQLite journal path")
	journalExportCmd.Flags().StringVar(&journalOut, "out", "", "Output file (required)")
	journalExportCmd.MarkFlagRequired("out")
}

func runJournalSummary(cmd *cobra.Command, args []string) error {
	db, err := journal.Open(journalDBPath)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer db.Close()

	if len(args) == 0 {
		return listJournalSessions(db)
	}
	return summarizeJournalSession(db, args[0])
}

func listJournalSessions(db *journal.Journal) error {
	sessions, err := db.Sessions()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if len(sessions) == 0 {
		fmt.Println("Journal is empty.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION ID\tTRIALS\tCOMPLETED\tBEST\tWORST")
	fmt.Fprintln(w, "----------\t------\t---------\t----\t-----")

	for _, sessionID := range sessions {
		summary, err := db.Summarize(sessionID)
		if err != nil {
			return fmt.Errorf("failed to summarize session %s: %w", sessionID, err)
		}

		best, worst := "-", "-"
		if summary.HasRewards {
			best = fmt.Sprintf("%.6f", summary.BestReward)
			worst = fmt.Sprintf("%.6f", summary.WorstReward)
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n",
			displaySessionID(sessionID),
			summary.Trials,
			summary.ByStatus[store.StatusCompleted],
			best,
			worst,
		)
	}
	w.Flush()

	fmt.Printf("\nTotal sessions: %d\n", len(sessions))
	return nil
}

func summarizeJournalSession(db *journal.Journal, sessionID string) error {
	summary, err := db.Summarize(sessionID)
	if err != nil {
		return fmt.Errorf("failed to summarize session: %w", err)
	}

	if summary.Trials == 0 {
		fmt.Printf("No journaled trials for session %s\n", sessionID)
		return nil
	}

	fmt.Printf("Session: %s\n", sessionID)
	fmt.Printf("Trials:  %d\n", summary.Trials)
	fmt.Println()

	fmt.Println("By status:")
	for _, status := range []string{store.StatusIssued, store.StatusCompleted, store.StatusFailed, store.StatusAbandoned} {
		if count := summary.ByStatus[status]; count > 0 {
			fmt.Printf("  %-10s %d\n", status, count)
		}
	}

	if summary.HasRewards {
		fmt.Println()
		fmt.Printf("Best reward:  %.6f\n", summary.BestReward)
		fmt.Printf("Worst reward: %.6f\n", summary.WorstReward)
	}
	return nil
}

func runJournalExport(cmd *cobra.Command, args []string) error {
	db, err := journal.Open(journalDBPath)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer db.Close()

	records, err := db.ExportRecords(args[0])
	if err != nil {
		return fmt.Errorf("failed to export session: %w", err)
	}
	if len(records) == 0 {
		fmt.Printf("No completed trials for session %s\n", args[0])
		return nil
	}

	writer, err := journal.NewRecordWriter(journalOut, false)
	if err != nil {
		return fmt.Errorf("failed to open output file: %w", err)
	}
	defer writer.Close()

	for _, record := range records {
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush output file: %w", err)
	}

	fmt.Printf("Exported %d record(s) to %s\n", len(records), journalOut)
	return nil
}
