package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tunelab/hypertune/internal/store"
)

var (
	sessionsDataDir string
	keepLast        int
	olderThanDays   int
	forceClean      bool
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage persisted tuning sessions",
	Long: `Manage persisted sessions including listing and cleaning old snapshots.
Snapshots allow resuming long tuning runs from saved state.`,
}

var listSessionsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all persisted sessions",
	Long:  `Display all sessions with tuner, trial counts, last update, and on-disk size.`,
	RunE:  runListSessions,
}

var cleanSessionsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean old sessions",
	Long: `Delete old session snapshots based on retention policy.
You can keep the N most recent sessions or delete sessions older than N days.`,
	RunE: runCleanSessions,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(listSessionsCmd)
	sessionsCmd.AddCommand(cleanSessionsCmd)

	sessionsCmd.PersistentFlags().StringVar(&sessionsDataDir, "data-dir", "./data", "Base directory for session storage")

	cleanSessionsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the N most recent sessions (0 = keep all)")
	cleanSessionsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete sessions older than N days (0 = no age limit)")
	cleanSessionsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

func runListSessions(cmd *cobra.Command, args []string) error {
	sessionStore, err := store.NewFSStore(sessionsDataDir)
	if err != nil {
		return fmt.Errorf("failed to create session store: %w", err)
	}

	infos, err := sessionStore.ListSnapshots()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No sessions found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION ID\tTUNER\tUPDATED\tTRIALS\tCOMPLETED\tSIZE")
	fmt.Fprintln(w, "----------\t-----\t-------\t------\t---------\t----")

	for _, info := range infos {
		sessionDir := filepath.Join(sessionsDataDir, "sessions", info.SessionID)
		size, err := getDirSize(sessionDir)
		sizeStr := "unknown"
		if err == nil {
			sizeStr = formatBytes(size)
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			displaySessionID(info.SessionID),
			info.TunerName,
			info.UpdatedAt.Format("2006-01-02 15:04:05"),
			info.Trials,
			info.Completed,
			sizeStr,
		)
	}
	w.Flush()

	fmt.Printf("\nTotal sessions: %d\n", len(infos))
	return nil
}

func runCleanSessions(cmd *cobra.Command, args []string) error {
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	sessionStore, err := store.NewFSStore(sessionsDataDir)
	if err != nil {
		return fmt.Errorf("failed to create session store: %w", err)
	}

	infos, err := sessionStore.ListSnapshots()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No sessions to clean.")
		return nil
	}

	toDelete := selectSessionsForDeletion(infos, keepLast, olderThanDays)
	if len(toDelete) == 0 {
		fmt.Println("No sessions match deletion criteria.")
		return nil
	}

	fmt.Printf("Found %d session(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Printf("  - %s (%s, %d trial(s), updated %s)\n",
			displaySessionID(info.SessionID),
			info.TunerName,
			info.Trials,
			info.UpdatedAt.Format("2006-01-02 15:04:05"),
		)
	}

	if !forceClean {
		fmt.Print("\nProceed with deletion? [y/N]: ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	deleted := 0
	failed := 0
	for _, info := range toDelete {
		if err := sessionStore.DeleteSnapshot(info.SessionID); err != nil {
			slog.Error("Failed to delete session", "session_id", info.SessionID, "error", err)
			failed++
		} else {
			slog.Info("Deleted session", "session_id", info.SessionID)
			deleted++
		}
	}

	fmt.Printf("\nDeleted %d session(s), %d failed.\n", deleted, failed)
	return nil
}

// selectSessionsForDeletion applies the retention policy: sessions past the
// age limit go first, then the oldest beyond the keep-last count.
func selectSessionsForDeletion(infos []store.SnapshotInfo, keepLast int, olderThanDays int) []store.SnapshotInfo {
	selected := make(map[string]bool)
	var toDelete []store.SnapshotInfo

	if olderThanDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -olderThanDays)
		for _, info := range infos {
			if info.UpdatedAt.Before(cutoff) && !selected[info.SessionID] {
				selected[info.SessionID] = true
				toDelete = append(toDelete, info)
			}
		}
	}

	if keepLast > 0 && len(infos) > keepLast {
		sorted := make([]store.SnapshotInfo, len(infos))
		copy(sorted, infos)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].UpdatedAt.Before(sorted[j].UpdatedAt)
		})

		for _, info := range sorted[:len(sorted)-keepLast] {
			if !selected[info.SessionID] {
				selected[info.SessionID] = true
				toDelete = append(toDelete, info)
			}
		}
	}

	return toDelete
}

// displaySessionID truncates long session IDs for table output.
func displaySessionID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}

// getDirSize calculates the total size of a directory
func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// formatBytes formats bytes as human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
